package progress

import (
	"math"
	"strings"
)

// sub is a child monitor. It shares the tree lock of its root and forwards
// progress as base + value*fraction into its parent.
type sub struct {
	parent   treeLevel
	top      *Root
	fraction float64
	base     float64
	silent   bool

	progress    float64
	hasProgress bool
	message     string
	tail        []string
}

func newSub(parent treeLevel, fraction float64, silent bool) *sub {
	top := parent.root()
	top.mu.Lock()
	defer top.mu.Unlock()

	base, _ := parent.progressLocked()
	return &sub{
		parent:   parent,
		top:      top,
		fraction: clampFraction(fraction),
		base:     base,
		silent:   silent,
	}
}

func clampFraction(fraction float64) float64 {
	switch {
	case math.IsNaN(fraction) || fraction <= 0:
		return 0
	case fraction > 1:
		return 1
	default:
		return fraction
	}
}

func (s *sub) SetProgress(value float64) {
	s.top.mu.Lock()
	defer s.top.mu.Unlock()
	s.setProgressLocked(value)
}

func (s *sub) SetProgressMessage(value float64, message string) {
	s.top.mu.Lock()
	defer s.top.mu.Unlock()
	s.setProgressLocked(value)
	s.setMessageLocked(message)
}

func (s *sub) SetMessage(message string) {
	s.top.mu.Lock()
	defer s.top.mu.Unlock()
	s.setMessageLocked(message)
}

func (s *sub) Progress() (float64, bool) {
	s.top.mu.Lock()
	defer s.top.mu.Unlock()
	return s.progressLocked()
}

func (s *sub) Message() string {
	s.top.mu.Lock()
	defer s.top.mu.Unlock()
	return strings.Join(levels(s.message, s.tail), messageSeparator)
}

func (s *sub) CheckCanceled() error { return s.top.CheckCanceled() }

func (s *sub) IsCanceled() bool { return s.top.IsCanceled() }

func (s *sub) SubProgress(fraction float64) Monitor {
	return newSub(s, fraction, false)
}

func (s *sub) SilentSubProgress(fraction float64) Monitor {
	return newSub(s, fraction, true)
}

func (s *sub) root() *Root { return s.top }

func (s *sub) setProgressLocked(value float64) {
	if !validProgress(value) {
		return
	}
	s.progress = value
	s.hasProgress = true
	if s.fraction == 0 {
		return
	}
	s.parent.setProgressLocked(math.Min(1, s.base+value*s.fraction))
}

func (s *sub) progressLocked() (float64, bool) {
	return s.progress, s.hasProgress
}

func (s *sub) setMessageLocked(message string) {
	s.message = message
	s.tail = nil
	s.forwardMessageLocked()
}

func (s *sub) appendLocked(nested []string) {
	s.tail = nested
	s.forwardMessageLocked()
}

func (s *sub) forwardMessageLocked() {
	if s.silent {
		return
	}
	s.parent.appendLocked(levels(s.message, s.tail))
}

var _ treeLevel = (*sub)(nil)
