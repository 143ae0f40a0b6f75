package ttumderr

import (
	"errors"
	"testing"
)

func TestAssertf(t *testing.T) {
	if err := Assertf(true, KindInvalidArgument, "tlbwindow.write32", "unreachable"); err != nil {
		t.Fatalf("expected nil error for true condition, got %v", err)
	}
	err := Assertf(1+1 == 3, KindInvalidArgument, "tlbwindow.write32", "offset %d exceeds size %d", 8, 4)
	if err == nil {
		t.Fatal("expected error for false condition")
	}
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if e.Kind != KindInvalidArgument {
		t.Fatalf("kind = %v, want %v", e.Kind, KindInvalidArgument)
	}
	if e.Assertion == "" {
		t.Fatal("expected assertion text to be set")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	root := errors.New("ioctl failed: EINVAL")
	err := Wrap(KindTransport, "kioctl.AllocateTLB", root)
	if !errors.Is(err, root) {
		t.Fatal("expected wrapped error to unwrap to root cause")
	}
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if e.StackTrace() == nil {
		t.Fatal("expected a captured stack trace")
	}
}

func TestIsHangIsTimeout(t *testing.T) {
	hang := New(KindHardwareHang, "protocol.detectHang", "0xFFFFFFFF canary")
	if !IsHang(hang) {
		t.Fatal("expected IsHang true")
	}
	if IsTimeout(hang) {
		t.Fatal("expected IsTimeout false")
	}
	to := New(KindTimeout, "arcmsg.Send", "timed out after 1s")
	if !IsTimeout(to) {
		t.Fatal("expected IsTimeout true")
	}
	wrapped := Wrap(KindTransport, "chip.ArcMsg", hang)
	if !IsHang(wrapped) {
		t.Fatal("expected IsHang true through wrap")
	}
}
