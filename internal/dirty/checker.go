// Package dirty decides whether a record's searchable state changed since it
// was last synchronized.
package dirty

import (
	"github.com/utafrali/searchsync/internal/domain"
)

// Reporter is implemented by records that decide their own dirtiness. Its
// answer overrides every other check.
type Reporter interface {
	IndexDirty() bool
}

// ChangeTracker exposes the "changed since last save" signal.
type ChangeTracker interface {
	AttributeChanged(name string) domain.ChangeSignal
}

// PendingChangeTracker exposes the "will save a change" signal that
// supersedes ChangeTracker on newer hosts.
type PendingChangeTracker interface {
	WillSaveChangeToAttribute(name string) domain.ChangeSignal
}

// Option configures a Checker.
type Option func(*Checker)

// PreferPendingChanges makes the checker consult PendingChangeTracker before
// ChangeTracker. Hosts set it when their legacy signal is deprecated.
func PreferPendingChanges(prefer bool) Option {
	return func(c *Checker) {
		c.preferPending = prefer
	}
}

// Checker implements the must-reindex decision.
type Checker struct {
	preferPending bool
}

// NewChecker creates a Checker.
func NewChecker(opts ...Option) *Checker {
	c := &Checker{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MustReindex reports whether rec has to be resynchronized under cfg.
func (c *Checker) MustReindex(rec domain.Record, cfg domain.IndexConfiguration) bool {
	if r, ok := rec.(Reporter); ok {
		return r.IndexDirty()
	}
	if cfg.IndexingDisabled() {
		return false
	}
	if rec.IsNewRecord() {
		return true
	}

	// An id attribute that cannot report changes is treated as unchanged.
	if c.Signal(rec, cfg.IDAttributeName()) == domain.ChangeDetected {
		return true
	}

	for _, name := range cfg.AttributeNames(rec) {
		if c.Changed(rec, name) {
			return true
		}
	}

	for _, cond := range cfg.Conditions() {
		if cond.Opaque() || c.Changed(rec, cond.Attribute) {
			return true
		}
	}
	return false
}

// Changed reports whether name changed on rec. Attributes the record cannot
// answer for are reported as changed.
func (c *Checker) Changed(rec domain.Record, name string) bool {
	return c.Signal(rec, name) != domain.ChangeNone
}

// Signal combines the record's change signals for name, consulting the
// preferred one first and falling back to the other when it is unknown.
func (c *Checker) Signal(rec domain.Record, name string) domain.ChangeSignal {
	legacy := func() domain.ChangeSignal {
		if t, ok := rec.(ChangeTracker); ok {
			return t.AttributeChanged(name)
		}
		return domain.ChangeUnknown
	}
	pending := func() domain.ChangeSignal {
		if t, ok := rec.(PendingChangeTracker); ok {
			return t.WillSaveChangeToAttribute(name)
		}
		return domain.ChangeUnknown
	}

	first, second := legacy, pending
	if c.preferPending {
		first, second = pending, legacy
	}
	if s := first(); s != domain.ChangeUnknown {
		return s
	}
	return second()
}
