package ttumdlog

import (
	"bytes"
	"io"
	"strings"
	"sync"
	"testing"
)

type buf struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (b *buf) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}
func (b *buf) Close() error { return nil }
func (b *buf) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

var _ io.WriteCloser = (*buf)(nil)

func TestLevelFiltering(t *testing.T) {
	w := &buf{}
	l := New(w)
	if err := l.SetLevel(WARN); err != nil {
		t.Fatal(err)
	}
	l.Debugf("should not appear")
	l.Infof("should not appear either")
	l.Warnf("owner %s tid=%d", "pid-123", 42)
	out := w.String()
	if strings.Contains(out, "should not appear") {
		t.Fatalf("level filtering failed, got %q", out)
	}
	if !strings.Contains(out, "owner pid-123 tid=42") {
		t.Fatalf("expected WARN line to be written, got %q", out)
	}
}

func TestKVLog(t *testing.T) {
	w := &buf{}
	l := New(w)
	l.KVLog(INFO, "allocated tlb", KV{"tlb_id", 4}, KV{"size", "1MiB"})
	out := w.String()
	if !strings.Contains(out, "tlb_id=4") || !strings.Contains(out, "size=1MiB") {
		t.Fatalf("expected kv fields in output, got %q", out)
	}
}

func TestDefaultLoggerOverride(t *testing.T) {
	w := &buf{}
	SetDefault(New(w))
	defer SetDefault(NewDiscard())
	Default().Warnf("hello %d", 1)
	if !strings.Contains(w.String(), "hello 1") {
		t.Fatalf("expected default logger to route to override, got %q", w.String())
	}
}

func TestCloseIsIdempotentlyRejected(t *testing.T) {
	l := New(&buf{})
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != ErrNotOpen {
		t.Fatalf("expected ErrNotOpen on double close, got %v", err)
	}
}
