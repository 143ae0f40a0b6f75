package ttumdconfig

import (
	"testing"
)

func TestParseVisibleDevicesEmpty(t *testing.T) {
	v, err := ParseVisibleDevices("")
	if err != nil {
		t.Fatal(err)
	}
	if !v.Empty() {
		t.Fatal("expected empty allowlist")
	}
	if !v.Allows(7, BDF{}) {
		t.Fatal("empty allowlist should allow everything")
	}
}

func TestParseVisibleDevicesMixed(t *testing.T) {
	v, err := ParseVisibleDevices("1, 0000:03:00.0 ,2")
	if err != nil {
		t.Fatal(err)
	}
	if len(v.Indices) != 2 || v.Indices[0] != 1 || v.Indices[1] != 2 {
		t.Fatalf("unexpected indices: %+v", v.Indices)
	}
	if len(v.BDFs) != 1 {
		t.Fatalf("unexpected bdfs: %+v", v.BDFs)
	}
	want := BDF{Domain: 0, Bus: 3, Device: 0, Function: 0}
	if v.BDFs[0] != want {
		t.Fatalf("bdf = %+v, want %+v", v.BDFs[0], want)
	}
	if !v.Allows(1, BDF{}) {
		t.Fatal("expected index 1 allowed")
	}
	if v.Allows(5, BDF{}) {
		t.Fatal("expected index 5 disallowed")
	}
	if !v.Allows(99, want) {
		t.Fatal("expected matching bdf allowed")
	}
}

func TestParseVisibleDevicesBadToken(t *testing.T) {
	if _, err := ParseVisibleDevices("not-a-device"); err == nil {
		t.Fatal("expected error for unrecognized token")
	}
}

func TestParseBDFShortForm(t *testing.T) {
	b, err := ParseBDF("03:00.1")
	if err != nil {
		t.Fatal(err)
	}
	want := BDF{Domain: 0, Bus: 3, Device: 0, Function: 1}
	if b != want {
		t.Fatalf("got %+v, want %+v", b, want)
	}
	if b.String() != "0000:03:00.1" {
		t.Fatalf("String() = %q", b.String())
	}
}

func TestSimulatorAddrDefault(t *testing.T) {
	t.Setenv("NNG_SOCKET_ADDR", "")
	t.Setenv("NNG_SOCKET_LOCAL_PORT", "")
	network, addr := SimulatorAddr()
	if network != "unix" || addr == "" {
		t.Fatalf("got %s %s", network, addr)
	}
}

func TestSimulatorAddrTCP(t *testing.T) {
	t.Setenv("NNG_SOCKET_ADDR", "")
	t.Setenv("NNG_SOCKET_LOCAL_PORT", "5555")
	t.Setenv("TT_SIMULATOR_LOCALHOST", "1")
	network, addr := SimulatorAddr()
	if network != "tcp" || addr != "localhost:5555" {
		t.Fatalf("got %s %s", network, addr)
	}
}
