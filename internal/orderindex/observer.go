package orderindex

import (
	"io"

	"github.com/charmbracelet/log"
)

// Allocation kinds reported to an Observer.
const (
	KindAppend  = "append"
	KindFirst   = "first"
	KindBetween = "between"
)

// Observer receives key space events. Implementations must be safe for
// concurrent use.
type Observer interface {
	// ObserveAllocation is called once per allocated key.
	ObserveAllocation(kind string)
	// ObserveRebalance is called once per rebalance attempt with the number of
	// rows rewritten, or the error that stopped it.
	ObserveRebalance(items int, err error)
	// ObservePlan is called once per planned move.
	ObservePlan(assignments int)
}

// NoopObserver discards all events.
type NoopObserver struct{}

func (NoopObserver) ObserveAllocation(string)    {}
func (NoopObserver) ObserveRebalance(int, error) {}
func (NoopObserver) ObservePlan(int)             {}

// Option configures a component.
type Option func(*options)

type options struct {
	logger   *log.Logger
	observer Observer
}

// WithLogger sets the logger. Rebalances are logged at debug level.
func WithLogger(l *log.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithObserver sets the event observer.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.New(io.Discard)
	}
	if o.observer == nil {
		o.observer = NoopObserver{}
	}
	return o
}
