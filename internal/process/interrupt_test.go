package process

import (
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

func TestInstallInterruptHandlerOnce(t *testing.T) {
	h, err := InstallInterruptHandler(func() {})
	if err != nil {
		t.Fatalf("InstallInterruptHandler failed: %v", err)
	}

	if _, err := InstallInterruptHandler(func() {}); !errors.Is(err, ErrHandlerInstalled) {
		t.Fatalf("second install: expected ErrHandlerInstalled, got %v", err)
	}

	h.Remove()
	h.Remove()

	h2, err := InstallInterruptHandler(func() {})
	if err != nil {
		t.Fatalf("install after Remove failed: %v", err)
	}
	h2.Remove()
}

func TestInterruptHandlerFiresOnce(t *testing.T) {
	var calls atomic.Int32
	fired := make(chan struct{}, 2)

	h, err := InstallInterruptHandler(func() {
		calls.Add(1)
		fired <- struct{}{}
	})
	if err != nil {
		t.Fatalf("InstallInterruptHandler failed: %v", err)
	}
	defer h.Remove()

	h.signals <- os.Interrupt
	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("handler did not fire")
	}

	h.signals <- os.Interrupt
	h.Remove()

	if n := calls.Load(); n != 1 {
		t.Fatalf("handler ran %d times, want 1", n)
	}
}
