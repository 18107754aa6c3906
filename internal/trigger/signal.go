package trigger

import (
	"os"
	"os/signal"
	"sync"
)

// signalChains tracks, per os.Signal, every SignalListener currently armed
// on it so that more than one cell can watch the same signal (e.g. two
// independently-lazy cells both caring about SIGWINCH). This plays the
// role the teacher lineage's SignalListener filled by chaining to
// whatever handler signal.signal() had previously installed.
var (
	signalChainsMu sync.Mutex
	signalChains   = map[os.Signal]*signalChain{}
)

type signalChain struct {
	ch        chan os.Signal
	stop      chan struct{}
	listeners map[*SignalListener]struct{}
}

// SignalListener fires its armed callback whenever the process receives
// signum, without suppressing delivery to any other listener armed on the
// same signal.
type SignalListener struct {
	signum os.Signal

	mu       sync.Mutex
	callback func()
	armed    bool
}

// NewSignalListener creates a listener for signum (e.g. syscall.SIGWINCH).
func NewSignalListener(signum os.Signal) *SignalListener {
	return &SignalListener{signum: signum}
}

// Arm implements kernel.Trigger.
func (l *SignalListener) Arm(callback func()) error {
	l.mu.Lock()
	l.callback = callback
	l.armed = true
	l.mu.Unlock()

	signalChainsMu.Lock()
	defer signalChainsMu.Unlock()

	chain, ok := signalChains[l.signum]
	if !ok {
		chain = &signalChain{
			ch:        make(chan os.Signal, 1),
			stop:      make(chan struct{}),
			listeners: make(map[*SignalListener]struct{}),
		}
		signal.Notify(chain.ch, l.signum)
		signalChains[l.signum] = chain
		go chain.run()
	}
	chain.listeners[l] = struct{}{}
	return nil
}

// Disarm implements kernel.Trigger.
func (l *SignalListener) Disarm() {
	l.mu.Lock()
	l.armed = false
	l.callback = nil
	l.mu.Unlock()

	signalChainsMu.Lock()
	defer signalChainsMu.Unlock()

	chain, ok := signalChains[l.signum]
	if !ok {
		return
	}
	delete(chain.listeners, l)
	if len(chain.listeners) == 0 {
		signal.Stop(chain.ch)
		close(chain.stop)
		delete(signalChains, l.signum)
	}
}

func (c *signalChain) run() {
	for {
		select {
		case <-c.ch:
			signalChainsMu.Lock()
			listeners := make([]*SignalListener, 0, len(c.listeners))
			for l := range c.listeners {
				listeners = append(listeners, l)
			}
			signalChainsMu.Unlock()
			for _, l := range listeners {
				l.fire()
			}
		case <-c.stop:
			return
		}
	}
}

func (l *SignalListener) fire() {
	l.mu.Lock()
	armed, cb := l.armed, l.callback
	l.mu.Unlock()
	if armed && cb != nil {
		cb()
	}
}
