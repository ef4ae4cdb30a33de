// Package filter provides pure predicate evaluation of scraped records
// against declarative acceptance criteria.
package filter

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sietchlabs/scraper-go/pkg/types"
)

// Spec holds the acceptance criteria applied to a record. Nil bounds impose
// no constraint. A Spec is immutable once built; Matches never mutates it.
type Spec struct {
	// MinActivity is the inclusive lower activity bound
	MinActivity *int
	// MaxActivity is the inclusive upper activity bound
	MaxActivity *int
	// JoinAfter is the inclusive start of the join-date window
	JoinAfter *time.Time
	// JoinBefore is the inclusive end of the join-date window
	JoinBefore *time.Time
	// UsernamePattern must match at the start of the username when set.
	// Records without a username are rejected when a pattern is set.
	UsernamePattern *regexp.Regexp
	// ExcludeBanned rejects banned users
	ExcludeBanned bool
	// OnlyActive rejects any user whose status is not active
	OnlyActive bool
}

// Matches reports whether the record satisfies every criterion of the spec.
// It is pure: the record and spec are never mutated, and repeated calls on
// the same pair yield the same result.
func (s *Spec) Matches(r *types.Record) bool {
	if s == nil {
		return true
	}
	return s.checkActivity(r) &&
		s.checkJoinDate(r) &&
		s.checkUsername(r) &&
		s.checkStatus(r)
}

func (s *Spec) checkActivity(r *types.Record) bool {
	if s.MinActivity != nil && r.ActivityLevel < *s.MinActivity {
		return false
	}
	if s.MaxActivity != nil && r.ActivityLevel > *s.MaxActivity {
		return false
	}
	return true
}

func (s *Spec) checkJoinDate(r *types.Record) bool {
	if s.JoinAfter != nil && r.JoinDate.Before(*s.JoinAfter) {
		return false
	}
	if s.JoinBefore != nil && r.JoinDate.After(*s.JoinBefore) {
		return false
	}
	return true
}

func (s *Spec) checkUsername(r *types.Record) bool {
	if s.UsernamePattern == nil {
		return true
	}
	if r.Username == "" {
		return false
	}
	return s.UsernamePattern.MatchString(r.Username)
}

func (s *Spec) checkStatus(r *types.Record) bool {
	if s.ExcludeBanned && r.Status == types.StatusBanned {
		return false
	}
	if s.OnlyActive && r.Status != types.StatusActive {
		return false
	}
	return true
}

// Merge combines multiple specs into one composite equal to their
// intersection: a record passes the composite iff it passes every input.
// Range bounds tighten (max of mins, min of maxes), the first non-nil
// username pattern is kept, and boolean flags OR together.
func Merge(specs ...*Spec) *Spec {
	composite := &Spec{}
	for _, s := range specs {
		if s == nil {
			continue
		}
		if s.MinActivity != nil && (composite.MinActivity == nil || *s.MinActivity > *composite.MinActivity) {
			composite.MinActivity = intPtr(*s.MinActivity)
		}
		if s.MaxActivity != nil && (composite.MaxActivity == nil || *s.MaxActivity < *composite.MaxActivity) {
			composite.MaxActivity = intPtr(*s.MaxActivity)
		}
		if s.JoinAfter != nil && (composite.JoinAfter == nil || s.JoinAfter.After(*composite.JoinAfter)) {
			composite.JoinAfter = timePtr(*s.JoinAfter)
		}
		if s.JoinBefore != nil && (composite.JoinBefore == nil || s.JoinBefore.Before(*composite.JoinBefore)) {
			composite.JoinBefore = timePtr(*s.JoinBefore)
		}
		if s.UsernamePattern != nil && composite.UsernamePattern == nil {
			composite.UsernamePattern = s.UsernamePattern
		}
		composite.ExcludeBanned = composite.ExcludeBanned || s.ExcludeBanned
		composite.OnlyActive = composite.OnlyActive || s.OnlyActive
	}
	return composite
}

// Builder assembles a Spec incrementally.
type Builder struct {
	spec Spec
	err  error
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// ActivityRange sets the inclusive activity bounds. Nil leaves a bound open.
func (b *Builder) ActivityRange(min, max *int) *Builder {
	if min != nil {
		b.spec.MinActivity = intPtr(*min)
	}
	if max != nil {
		b.spec.MaxActivity = intPtr(*max)
	}
	return b
}

// JoinDateRange sets the inclusive join-date window. Nil leaves a bound open.
func (b *Builder) JoinDateRange(after, before *time.Time) *Builder {
	if after != nil {
		b.spec.JoinAfter = timePtr(*after)
	}
	if before != nil {
		b.spec.JoinBefore = timePtr(*before)
	}
	return b
}

// UsernamePattern compiles the pattern anchored at the start of the
// username. A malformed pattern surfaces from Build.
func (b *Builder) UsernamePattern(pattern string) *Builder {
	if pattern == "" {
		return b
	}
	re, err := compileAnchored(pattern)
	if err != nil {
		b.err = fmt.Errorf("filter: compiling username pattern: %w", err)
		return b
	}
	b.spec.UsernamePattern = re
	return b
}

// StatusFilters sets the status-related flags.
func (b *Builder) StatusFilters(excludeBanned, onlyActive bool) *Builder {
	b.spec.ExcludeBanned = excludeBanned
	b.spec.OnlyActive = onlyActive
	return b
}

// Build returns the assembled spec, or the first error recorded while
// assembling it.
func (b *Builder) Build() (*Spec, error) {
	if b.err != nil {
		return nil, b.err
	}
	spec := b.spec
	return &spec, nil
}

// compileAnchored anchors the pattern at the start of the subject so that
// matching follows prefix semantics.
func compileAnchored(pattern string) (*regexp.Regexp, error) {
	if !strings.HasPrefix(pattern, "^") {
		pattern = "^(?:" + pattern + ")"
	}
	return regexp.Compile(pattern)
}

func intPtr(v int) *int              { return &v }
func timePtr(v time.Time) *time.Time { return &v }
