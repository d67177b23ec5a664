// Package progress implements composable progress reporting and cooperative
// cancellation for node execution.
//
// A Root monitor owns the progress value and message that listeners observe.
// Sub monitors map their own [0, 1] range onto a fraction of their parent's
// range, so nested computations compose into one top-level value. Listener
// notification is batched by a Notifier that sweeps registered roots on a
// fixed period.
package progress

import (
	"context"
	"math"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/alexisbeaulieu97/nodeflow/internal/listeners"
	"github.com/alexisbeaulieu97/nodeflow/internal/logger"
	nferrors "github.com/alexisbeaulieu97/nodeflow/pkg/errors"
)

const messageSeparator = " - "

// Event is delivered to listeners when a monitor's state changed since the
// previous sweep.
type Event struct {
	Progress    float64
	HasProgress bool
	Message     string
}

// Listener receives batched progress events.
type Listener func(Event)

// Monitor is the progress and cancellation contract handed to executing code.
type Monitor interface {
	// SetProgress sets the progress in [0, 1]. Other values are ignored.
	SetProgress(value float64)
	// SetProgressMessage sets progress and message in one step.
	SetProgressMessage(value float64, message string)
	// SetMessage replaces the message of this level.
	SetMessage(message string)
	// Progress returns the progress of this level and whether it was set.
	Progress() (float64, bool)
	// Message returns the message of this level including nested levels.
	Message() string
	// CheckCanceled returns a *errors.CanceledError once cancellation was requested.
	CheckCanceled() error
	// IsCanceled reports whether cancellation was requested.
	IsCanceled() bool
	// SubProgress creates a child reporting into fraction of this range.
	SubProgress(fraction float64) Monitor
	// SilentSubProgress is like SubProgress but drops the child's messages.
	SilentSubProgress(fraction float64) Monitor
}

// treeLevel is implemented by monitors that can act as a parent. All methods
// ending in Locked require the tree lock held by the root.
type treeLevel interface {
	Monitor
	root() *Root
	setProgressLocked(value float64)
	progressLocked() (float64, bool)
	appendLocked(levels []string)
}

// Option configures a Root monitor.
type Option func(*Root)

// WithNotifier registers the root with n instead of the process-wide default.
func WithNotifier(n *Notifier) Option {
	return func(r *Root) {
		r.notifier = n
	}
}

// WithContext binds cancellation to ctx: once ctx is done the monitor reports
// itself canceled.
func WithContext(ctx context.Context) Option {
	return func(r *Root) {
		r.ctx = ctx
	}
}

// WithListener registers an initial listener.
func WithListener(l Listener) Option {
	return func(r *Root) {
		if l != nil {
			r.listeners.Add(l)
		}
	}
}

// WithLogger sets the logger used to report failing listeners.
func WithLogger(log *logger.Logger) Option {
	return func(r *Root) {
		r.log = log
	}
}

// Root is the top of a monitor tree. It is registered with a Notifier for its
// whole lifetime and must be closed once the computation it tracks is over.
type Root struct {
	mu          sync.Mutex
	progress    float64
	hasProgress bool
	message     string
	tail        []string
	changed     bool

	cancel atomic.Pointer[string]
	ctx    context.Context

	listeners listeners.Set[Listener]
	notifier  *Notifier
	log       *logger.Logger
	closeOnce sync.Once
}

// NewMonitor creates a root monitor and registers it with its notifier.
func NewMonitor(opts ...Option) *Root {
	r := &Root{}
	for _, opt := range opts {
		opt(r)
	}
	if r.notifier == nil {
		r.notifier = Default()
	}
	if r.log == nil {
		r.log = r.notifier.log
	}
	r.notifier.register(r)
	return r
}

// Close unregisters the monitor from its notifier after delivering any pending
// change. Further updates are kept but never dispatched.
func (r *Root) Close() {
	r.closeOnce.Do(func() {
		r.notifier.unregister(r)
		r.fireIfChanged()
	})
}

// AddListener subscribes l to batched change events.
func (r *Root) AddListener(l Listener) listeners.Subscription {
	return r.listeners.Add(l)
}

// Cancel requests cancellation with the default message.
func (r *Root) Cancel() {
	r.CancelWithMessage(nferrors.DefaultCancelMessage)
}

// CancelWithMessage requests cancellation. The flag is one-way until Reset.
func (r *Root) CancelWithMessage(message string) {
	if message == "" {
		message = nferrors.DefaultCancelMessage
	}
	r.cancel.Store(&message)
}

// Reset clears progress, message and the cancel flag. Listeners are kept and
// pending changes are dropped without notification.
func (r *Root) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changed = false
	r.progress = 0
	r.hasProgress = false
	r.message = ""
	r.tail = nil
	r.cancel.Store(nil)
}

// IsCanceled reports whether cancellation was requested directly or through
// the bound context.
func (r *Root) IsCanceled() bool {
	if r.cancel.Load() != nil {
		return true
	}
	return r.ctx != nil && r.ctx.Err() != nil
}

// CheckCanceled returns a cancellation error once cancellation was requested.
func (r *Root) CheckCanceled() error {
	if msg := r.cancel.Load(); msg != nil {
		return nferrors.NewCanceledError(*msg)
	}
	if r.ctx != nil && r.ctx.Err() != nil {
		return nferrors.NewCanceledError("")
	}
	return nil
}

// SetProgress implements Monitor.
func (r *Root) SetProgress(value float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setProgressLocked(value)
}

// SetProgressMessage implements Monitor.
func (r *Root) SetProgressMessage(value float64, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setProgressLocked(value)
	r.setMessageLocked(message)
}

// SetMessage implements Monitor.
func (r *Root) SetMessage(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setMessageLocked(message)
}

// Progress implements Monitor.
func (r *Root) Progress() (float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.progressLocked()
}

// Message returns all message levels joined by " - ".
func (r *Root) Message() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return strings.Join(levels(r.message, r.tail), messageSeparator)
}

// Snapshot returns the current state as an Event.
func (r *Root) Snapshot() Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// SubProgress implements Monitor.
func (r *Root) SubProgress(fraction float64) Monitor {
	return newSub(r, fraction, false)
}

// SilentSubProgress implements Monitor.
func (r *Root) SilentSubProgress(fraction float64) Monitor {
	return newSub(r, fraction, true)
}

func (r *Root) root() *Root { return r }

func (r *Root) setProgressLocked(value float64) {
	if !validProgress(value) {
		return
	}
	if !r.hasProgress || r.progress != value {
		r.changed = true
	}
	r.progress = value
	r.hasProgress = true
}

func (r *Root) progressLocked() (float64, bool) {
	return r.progress, r.hasProgress
}

func (r *Root) setMessageLocked(message string) {
	r.message = message
	r.tail = nil
	r.changed = true
}

func (r *Root) appendLocked(levels []string) {
	r.tail = levels
	r.changed = true
}

func (r *Root) snapshotLocked() Event {
	return Event{
		Progress:    r.progress,
		HasProgress: r.hasProgress,
		Message:     strings.Join(levels(r.message, r.tail), messageSeparator),
	}
}

// fireIfChanged dispatches one event when the state changed since the last
// dispatch. Listener panics are recovered and logged.
func (r *Root) fireIfChanged() bool {
	r.mu.Lock()
	if !r.changed {
		r.mu.Unlock()
		return false
	}
	r.changed = false
	event := r.snapshotLocked()
	r.mu.Unlock()

	for _, l := range r.listeners.Snapshot() {
		r.dispatch(l, event)
	}
	return true
}

func (r *Root) dispatch(l Listener, event Event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.WithFields(map[string]any{"panic": rec}).Warn("progress listener panicked")
		}
	}()
	l(event)
}

func validProgress(value float64) bool {
	return !math.IsNaN(value) && value >= 0 && value <= 1
}

func levels(message string, tail []string) []string {
	out := make([]string, 0, len(tail)+1)
	if message != "" {
		out = append(out, message)
	}
	return append(out, tail...)
}

var _ Monitor = (*Root)(nil)
