package orderindex

import (
	"fmt"
	"strings"
)

// Key is an order_index value. Keys only compare within one scope.
type Key int64

// Direction is the order a window is read or displayed in.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

func (d Direction) String() string {
	if d == Descending {
		return "desc"
	}
	return "asc"
}

// ParseDirection accepts asc/ascending and desc/descending (case-insensitive).
// An empty string is Ascending.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "asc", "ascending":
		return Ascending, nil
	case "desc", "descending":
		return Descending, nil
	default:
		return Ascending, fmt.Errorf("invalid direction %q, must be one of: asc, desc", s)
	}
}

// Default key space values.
const (
	DefaultGap           Key = 10000
	DefaultMinGap        Key = 2
	DefaultWindow            = 20
	DefaultLeadingWindow     = 10
	DefaultLeadingSpan       = 10
	DefaultMaxWindow         = 320
)

// Space holds the tunables of the key space.
type Space struct {
	// Gap is the distance between freshly spaced keys.
	Gap Key
	// MinGap is the smallest neighbor distance that still allows a midpoint.
	MinGap Key
	// Window is the number of rows a local rebalance rewrites.
	Window int
	// LeadingWindow is the number of rows rewritten to make room at the front.
	LeadingWindow int
	// LeadingSpan bounds the leading rebalance to keys <= min + LeadingSpan*Gap.
	LeadingSpan int
	// MaxWindow caps how far a window may grow to clear the fence above it.
	MaxWindow int
	// Seed is the key of the first task in an empty scope, and the key handed
	// out for the first position after a leading rebalance.
	Seed Key
}

// DefaultSpace returns the default key space.
func DefaultSpace() Space {
	return Space{
		Gap:           DefaultGap,
		MinGap:        DefaultMinGap,
		Window:        DefaultWindow,
		LeadingWindow: DefaultLeadingWindow,
		LeadingSpan:   DefaultLeadingSpan,
		MaxWindow:     DefaultMaxWindow,
		Seed:          DefaultGap,
	}
}

// WithDefaults fills zero fields from DefaultSpace. Seed follows Gap.
func (s Space) WithDefaults() Space {
	d := DefaultSpace()
	if s.Gap == 0 {
		s.Gap = d.Gap
	}
	if s.MinGap == 0 {
		s.MinGap = d.MinGap
	}
	if s.Window == 0 {
		s.Window = d.Window
	}
	if s.LeadingWindow == 0 {
		s.LeadingWindow = d.LeadingWindow
	}
	if s.LeadingSpan == 0 {
		s.LeadingSpan = d.LeadingSpan
	}
	if s.MaxWindow == 0 {
		s.MaxWindow = d.MaxWindow
		if s.MaxWindow < s.Window {
			s.MaxWindow = s.Window
		}
	}
	if s.Seed == 0 {
		s.Seed = s.Gap
	}
	return s
}

// Validate reports the first inconsistent setting.
func (s Space) Validate() error {
	switch {
	case s.Gap <= 0:
		return fmt.Errorf("gap must be positive, got %d", s.Gap)
	case s.MinGap < 2:
		return fmt.Errorf("min gap must be at least 2, got %d", s.MinGap)
	case s.MinGap >= s.Gap:
		return fmt.Errorf("min gap (%d) must be smaller than gap (%d)", s.MinGap, s.Gap)
	case s.Window < 2:
		return fmt.Errorf("window must be at least 2, got %d", s.Window)
	case s.LeadingWindow <= 0:
		return fmt.Errorf("leading window must be positive, got %d", s.LeadingWindow)
	case s.LeadingSpan <= 0:
		return fmt.Errorf("leading span must be positive, got %d", s.LeadingSpan)
	case s.MaxWindow < s.Window || s.MaxWindow < s.LeadingWindow:
		return fmt.Errorf("max window (%d) must be at least window (%d) and leading window (%d)",
			s.MaxWindow, s.Window, s.LeadingWindow)
	case s.Seed <= 0:
		return fmt.Errorf("seed must be positive, got %d", s.Seed)
	}
	return nil
}

// midpoint is floor((lo+hi)/2) without overflowing. Requires lo < hi.
func midpoint(lo, hi Key) Key {
	return lo + (hi-lo)/2
}
