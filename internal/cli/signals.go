package cli

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// SignalHandler cancels the run context on SIGINT/SIGTERM so in-flight
// container operations unwind through their normal disposal paths.
type SignalHandler struct {
	signals    chan os.Signal
	shutdown   chan struct{}
	stopCh     chan struct{}
	done       chan struct{}
	stopOnce   sync.Once
	cancel     context.CancelFunc
	onShutdown []func()
	mu         sync.Mutex
}

// NewSignalHandler creates a signal handler with the given context cancel
func NewSignalHandler(cancel context.CancelFunc) *SignalHandler {
	return &SignalHandler{
		signals:  make(chan os.Signal, 1),
		shutdown: make(chan struct{}),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
		cancel:   cancel,
	}
}

// Start begins listening for signals
func (h *SignalHandler) Start() {
	h.StartWithNotify(true)
}

// StartWithNotify begins listening for signals, optionally registering
// with OS signal handling. Pass false in unit tests to avoid global
// signal state interactions.
func (h *SignalHandler) StartWithNotify(notify bool) {
	if notify {
		signal.Notify(h.signals, syscall.SIGINT, syscall.SIGTERM)
	}

	started := make(chan struct{})
	go func() {
		defer close(h.done)
		close(started)

		select {
		case <-h.signals:
			if h.cancel != nil {
				h.cancel()
			}

			h.mu.Lock()
			callbacks := make([]func(), len(h.onShutdown))
			copy(callbacks, h.onShutdown)
			h.mu.Unlock()
			for _, fn := range callbacks {
				fn()
			}

			close(h.shutdown)
		case <-h.stopCh:
			return
		}
	}()
	<-started
}

// OnShutdown registers a callback to run on shutdown
func (h *SignalHandler) OnShutdown(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onShutdown = append(h.onShutdown, fn)
}

// Wait blocks until shutdown is triggered
func (h *SignalHandler) Wait() {
	<-h.shutdown
}

// Stop stops the signal handler and cleans up
func (h *SignalHandler) Stop() {
	signal.Stop(h.signals)
	h.stopOnce.Do(func() {
		close(h.stopCh)
	})
	select {
	case <-h.done:
	case <-time.After(100 * time.Millisecond):
		// The goroutine may still be mid-shutdown; cleanup is done.
	}
}
