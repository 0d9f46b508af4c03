package tasks

import (
	"fmt"
	"strings"
)

// PlacementKind says where a new task goes.
type PlacementKind int

const (
	PlaceLast PlacementKind = iota
	PlaceFirst
	PlaceAfter
	PlaceBefore
)

// Placement positions a new task. Anchor is the task id for After and Before.
type Placement struct {
	Kind   PlacementKind
	Anchor string
}

// Last places a task at the end of the list.
func Last() Placement { return Placement{Kind: PlaceLast} }

// First places a task at the start of the list.
func First() Placement { return Placement{Kind: PlaceFirst} }

// After places a task right after anchor.
func After(anchor string) Placement { return Placement{Kind: PlaceAfter, Anchor: anchor} }

// Before places a task right before anchor.
func Before(anchor string) Placement { return Placement{Kind: PlaceBefore, Anchor: anchor} }

func (p Placement) String() string {
	switch p.Kind {
	case PlaceFirst:
		return "first"
	case PlaceAfter:
		return "after:" + p.Anchor
	case PlaceBefore:
		return "before:" + p.Anchor
	default:
		return "last"
	}
}

// ParsePlacement accepts last (or empty), first, after and before. After and
// before need an anchor id.
func ParsePlacement(kind, anchor string) (Placement, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "last", "end", "bottom":
		return Last(), nil
	case "first", "start", "top":
		return First(), nil
	case "after", "before":
		if strings.TrimSpace(anchor) == "" {
			return Placement{}, fmt.Errorf("%w: placement %q needs an anchor task", ErrInvalidInput, kind)
		}
		if strings.EqualFold(strings.TrimSpace(kind), "after") {
			return After(anchor), nil
		}
		return Before(anchor), nil
	default:
		return Placement{}, fmt.Errorf("%w: unknown placement %q", ErrInvalidInput, kind)
	}
}
