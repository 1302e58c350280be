package helper

import (
	"testing"
	"time"
)

func TestGateway_SendReceiveOrder(t *testing.T) {
	fixture := NewInMemoryFixture(nil, "h1", "h2", "h3")
	defer fixture.Close()

	roles := NewRoleAssignment("h1", "h2", "h3")
	t1, err := fixture.Transport("h1")
	if err != nil {
		t.Fatalf("transport: %v", err)
	}
	t2, err := fixture.Transport("h2")
	if err != nil {
		t.Fatalf("transport: %v", err)
	}

	config := GatewayConfig{BatchBytes: 1, FlushInterval: 5 * time.Millisecond}
	gwSend := NewGateway("q1", config, roles, t1, nil)
	gwRecv := NewGateway("q1", config, roles, t2, nil)
	defer gwSend.Close()

	step := NewStep("test")
	sender := gwSend.GetSender(H2, step)
	receiver := gwRecv.GetReceiver(H1, step)

	sender.Write([]byte{1})
	sender.Write([]byte{2})
	sender.Write([]byte{3})

	for _, want := range []byte{1, 2, 3} {
		data, ok := receiver.ReadExact(1)
		if !ok {
			t.Fatalf("receiver closed early")
		}
		if data[0] != want {
			t.Fatalf("expected %d, got %d", want, data[0])
		}
	}
}

func TestGateway_GetReceiverTwicePanics(t *testing.T) {
	fixture := NewInMemoryFixture(nil, "h1", "h2", "h3")
	defer fixture.Close()

	roles := NewRoleAssignment("h1", "h2", "h3")
	transport, _ := fixture.Transport("h1")
	gw := NewGateway("q1", DefaultGatewayConfig(), roles, transport, nil)
	defer gw.Close()

	step := NewStep("test")
	gw.GetReceiver(H2, step)

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic calling GetReceiver twice for the same role/step")
		}
	}()
	gw.GetReceiver(H2, step)
}

func TestGateway_Role(t *testing.T) {
	fixture := NewInMemoryFixture(nil, "h1", "h2", "h3")
	defer fixture.Close()

	roles := NewRoleAssignment("h1", "h2", "h3")
	transport, _ := fixture.Transport("h2")
	gw := NewGateway("q1", DefaultGatewayConfig(), roles, transport, nil)
	defer gw.Close()

	if gw.Role() != H2 {
		t.Fatalf("expected h2's gateway to report role H2, got %s", gw.Role())
	}
}
