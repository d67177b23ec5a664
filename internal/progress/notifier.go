package progress

import (
	"sync"
	"time"

	"github.com/alexisbeaulieu97/nodeflow/internal/logger"
)

// DefaultPeriod is the sweep interval of the process-wide notifier.
const DefaultPeriod = 250 * time.Millisecond

// Notifier periodically delivers batched change events for every registered
// root monitor. One goroutine serves all monitors of a notifier.
type Notifier struct {
	period time.Duration
	log    *logger.Logger

	mu    sync.Mutex
	roots map[*Root]struct{}

	runMu   sync.Mutex
	stop    chan struct{}
	stopped chan struct{}
}

// NewNotifier creates a notifier that sweeps every period once started.
func NewNotifier(period time.Duration, log *logger.Logger) *Notifier {
	if period <= 0 {
		period = DefaultPeriod
	}
	return &Notifier{
		period: period,
		log:    log,
		roots:  make(map[*Root]struct{}),
	}
}

var (
	defaultOnce     sync.Once
	defaultNotifier *Notifier
)

// Default returns the lazily started process-wide notifier.
func Default() *Notifier {
	defaultOnce.Do(func() {
		defaultNotifier = NewNotifier(DefaultPeriod, nil)
		defaultNotifier.Start()
	})
	return defaultNotifier
}

// Start launches the sweep loop. Starting a running notifier is a no-op.
func (n *Notifier) Start() {
	n.runMu.Lock()
	defer n.runMu.Unlock()
	if n.stop != nil {
		return
	}
	n.stop = make(chan struct{})
	n.stopped = make(chan struct{})
	go n.loop(n.stop, n.stopped)
}

// Stop halts the sweep loop after a final sweep and waits for it to exit.
func (n *Notifier) Stop() {
	n.runMu.Lock()
	stop, stopped := n.stop, n.stopped
	n.stop, n.stopped = nil, nil
	n.runMu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-stopped
}

func (n *Notifier) loop(stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)
	ticker := time.NewTicker(n.period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n.Sweep()
		case <-stop:
			n.Sweep()
			return
		}
	}
}

// Sweep fires one event for each registered root whose state changed since
// its previous event and returns the number of roots notified.
func (n *Notifier) Sweep() int {
	n.mu.Lock()
	roots := make([]*Root, 0, len(n.roots))
	for r := range n.roots {
		roots = append(roots, r)
	}
	n.mu.Unlock()

	fired := 0
	for _, r := range roots {
		if r.fireIfChanged() {
			fired++
		}
	}
	return fired
}

// Len reports the number of registered roots.
func (n *Notifier) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.roots)
}

func (n *Notifier) register(r *Root) {
	n.mu.Lock()
	n.roots[r] = struct{}{}
	n.mu.Unlock()
}

func (n *Notifier) unregister(r *Root) {
	n.mu.Lock()
	delete(n.roots, r)
	n.mu.Unlock()
}
