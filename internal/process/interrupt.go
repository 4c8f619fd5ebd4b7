package process

import (
	"errors"
	"os"
	"os/signal"
	"sync"
)

// ErrHandlerInstalled is returned when an interrupt handler is installed
// while another one is still active
var ErrHandlerInstalled = errors.New("interrupt handler already installed")

var (
	interruptMu     sync.Mutex
	interruptActive bool
)

// InterruptHandler forwards the first Ctrl-C delivered to this process to a
// callback. Only one handler may be active per process.
type InterruptHandler struct {
	signals chan os.Signal
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
	remove  sync.Once
}

// InstallInterruptHandler registers fn to run on the first interrupt.
// fn runs on the handler's own goroutine and must only flag cancellation.
func InstallInterruptHandler(fn func()) (*InterruptHandler, error) {
	interruptMu.Lock()
	defer interruptMu.Unlock()
	if interruptActive {
		return nil, ErrHandlerInstalled
	}

	h := &InterruptHandler{
		signals: make(chan os.Signal, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	signal.Notify(h.signals, os.Interrupt)
	interruptActive = true

	go h.loop(fn)
	return h, nil
}

func (h *InterruptHandler) loop(fn func()) {
	defer close(h.done)
	for {
		select {
		case <-h.stop:
			return
		case <-h.signals:
			h.once.Do(fn)
		}
	}
}

// Remove stops forwarding interrupts and frees the slot for a new handler.
// Calling Remove more than once is a no-op.
func (h *InterruptHandler) Remove() {
	h.remove.Do(func() {
		signal.Stop(h.signals)
		close(h.stop)
		<-h.done

		interruptMu.Lock()
		interruptActive = false
		interruptMu.Unlock()
	})
}
