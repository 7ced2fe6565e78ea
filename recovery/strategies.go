package recovery

import (
	"errors"
	"fmt"

	"github.com/wudi/pdfengine/observability"
)

// StrictStrategy fails on the first malformed construct.
type StrictStrategy struct{}

func NewStrictStrategy() *StrictStrategy {
	return &StrictStrategy{}
}

func (s *StrictStrategy) OnError(err error, location Location) Action {
	return ActionFail
}

// LenientStrategy repairs what it can and records every problem it saw.
// A cross-reference section that cannot be read triggers a full-file
// object scan instead of a CorruptDocument failure.
type LenientStrategy struct {
	// Logger receives one warning per repaired problem. Nil is silent.
	Logger    observability.Logger
	Errors    []error
	Locations []Location
}

func NewLenientStrategy() *LenientStrategy {
	return &LenientStrategy{}
}

func (s *LenientStrategy) OnError(err error, location Location) Action {
	s.Errors = append(s.Errors, fmt.Errorf("%s: %w", location, err))
	s.Locations = append(s.Locations, location)
	if s.Logger != nil {
		s.Logger.Warn("repairing malformed input",
			observability.String("component", string(location.Component)),
			observability.Int64("offset", location.ByteOffset),
			observability.Int("object", location.ObjectNum),
			observability.Error("error", err))
	}
	return ActionFix
}

// Err joins every recorded problem, or returns nil when the load was clean.
func (s *LenientStrategy) Err() error {
	return errors.Join(s.Errors...)
}

// Allows reports whether strategy lets the loader repair a failure at the
// given location. A nil strategy is strict.
func Allows(strategy Strategy, err error, location Location) bool {
	if strategy == nil {
		return false
	}
	switch strategy.OnError(err, location) {
	case ActionFix, ActionSkip, ActionWarn:
		return true
	default:
		return false
	}
}
