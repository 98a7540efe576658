package strategy

import (
	"fmt"

	"github.com/always-cache/dextral-horn/pkg/snapshot"
)

// Run executes steps in order, feeding each result into the next step.
// The first step receives nil. Every step runs; the first error aborts the chain.
func (r *Registry) Run(steps []Step, req snapshot.RequestSnapshot, res snapshot.ResponseSnapshot) (any, error) {
	var value any
	for i, step := range steps {
		s, err := r.Resolve(step.Strategy)
		if err != nil {
			return nil, err
		}
		opts := step.Options
		if opts == nil {
			opts = Options{}
		}
		if value, err = s.Handle(req, res, opts, value); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Strategy, err)
		}
	}
	return value, nil
}
