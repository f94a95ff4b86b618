package sink

import (
	"context"
	"errors"

	"github.com/0xmhha/bridge-listener/types/bridge"
)

// Multi dispatches every action to all of its sinks
type Multi struct {
	sinks []Sink
}

// NewMulti combines sinks
func NewMulti(sinks ...Sink) *Multi {
	return &Multi{sinks: sinks}
}

// Dispatch sends action to every sink. All sinks are tried; the joined
// error of the failing ones is returned.
func (m *Multi) Dispatch(ctx context.Context, action bridge.Action) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Dispatch(ctx, action); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink
func (m *Multi) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
