package kioctl

import "testing"

func TestIoctlNREncodesMagicAndCommand(t *testing.T) {
	nr := ioctlNR(cmdGetDeviceInfo)
	if nr>>8 != ioctlMagic {
		t.Fatalf("expected magic %#x in high byte, got %#x", ioctlMagic, nr)
	}
	if nr&0xff != uintptr(cmdGetDeviceInfo) {
		t.Fatalf("expected command %d in low byte, got %#x", cmdGetDeviceInfo, nr&0xff)
	}
}

func TestIoctlNRDistinctPerCommand(t *testing.T) {
	cmds := []iocCommand{
		cmdGetDeviceInfo, cmdGetDriverInfo, cmdQueryMappings, cmdAllocateTLB,
		cmdPinPages, cmdAllocateDMABuf, cmdResetDevice, cmdUnpinPages, cmdFreeTLB,
	}
	seen := map[uintptr]bool{}
	for _, c := range cmds {
		nr := ioctlNR(c)
		if seen[nr] {
			t.Fatalf("command %d collides with another command's request number", c)
		}
		seen[nr] = true
	}
}

func TestOpenMissingDeviceFails(t *testing.T) {
	if _, err := Open(99999); err == nil {
		t.Fatal("expected error opening a nonexistent device index")
	}
}

func TestDecodeVersionUnpacksMajorMinorPatch(t *testing.T) {
	v := decodeVersion(1<<16 | 34<<8 | 2)
	if v.Major != 1 || v.Minor != 34 || v.Patch != 2 {
		t.Fatalf("got %+v, want {1 34 2}", v)
	}
	if got, want := v.String(), "1.34.2"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestVersionLessOrdersByMajorThenMinorThenPatch(t *testing.T) {
	cases := []struct {
		a, b Version
		less bool
	}{
		{Version{1, 34, 0}, Version{1, 34, 0}, false},
		{Version{1, 33, 9}, Version{1, 34, 0}, true},
		{Version{1, 34, 0}, Version{1, 33, 9}, false},
		{Version{1, 34, 0}, Version{2, 0, 0}, true},
		{Version{2, 0, 0}, Version{1, 99, 0}, false},
	}
	for _, c := range cases {
		if got := c.a.Less(c.b); got != c.less {
			t.Fatalf("%s.Less(%s): got %v, want %v", c.a, c.b, got, c.less)
		}
	}
}
