package simulator

import (
	"testing"
	"time"
)

func TestLinkSocketPathIsOrderIndependent(t *testing.T) {
	a := LinkEndpoint{Chip: 2, Channel: 1}
	b := LinkEndpoint{Chip: 0, Channel: 5}

	if linkSocketPath("/tmp", a, b) != linkSocketPath("/tmp", b, a) {
		t.Fatal("expected socket path to be the same regardless of endpoint order")
	}
}

func TestIsServerSideAgreesFromBothEndpoints(t *testing.T) {
	a := LinkEndpoint{Chip: 1, Channel: 0}
	b := LinkEndpoint{Chip: 1, Channel: 2}

	if isServerSide(a, b) == isServerSide(b, a) {
		t.Fatal("expected exactly one side to be the server")
	}
	if !isServerSide(a, b) {
		t.Fatal("expected the lower channel to be the server side")
	}
}

func TestEthLinkConnectsAndExchangesData(t *testing.T) {
	dir := t.TempDir()
	a := LinkEndpoint{Chip: 0, Channel: 0}
	b := LinkEndpoint{Chip: 1, Channel: 0}

	server := NewEthLink(dir, a, b)
	client := NewEthLink(dir, b, a)

	errs := make(chan error, 2)
	go func() { errs <- server.Connect(time.Millisecond, time.Second) }()
	go func() { errs <- client.Connect(time.Millisecond, time.Second) }()

	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Fatal(err)
		}
	}
	defer server.Disconnect()
	defer client.Disconnect()

	if !server.IsConnected() || !client.IsConnected() {
		t.Fatal("expected both sides to report connected")
	}

	if _, err := client.Write([]byte("ping")); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 4)
	if _, err := server.Read(buf); err != nil {
		t.Fatal(err)
	}
	if string(buf) != "ping" {
		t.Fatalf("got %q, want ping", buf)
	}
}

func TestEthLinkReadFailsWhenNotConnected(t *testing.T) {
	link := NewEthLink(t.TempDir(), LinkEndpoint{}, LinkEndpoint{Chip: 1})
	buf := make([]byte, 1)
	if _, err := link.Read(buf); err == nil {
		t.Fatal("expected error reading from an unconnected link")
	}
}
