package aggregate

import (
	"sort"
	"strings"

	"github.com/perlin-network/academy/errs"
)

// Failure is a child excluded from a composite.
type Failure struct {
	Kind string
	ID   uint64
	Err  error
}

// Report accounts for the children a composite asked for.
type Report struct {
	Requested int
	Excluded  int
	Failures  []Failure
}

func (r Report) Partial() bool {
	return r.Excluded > 0
}

// Warning describes the excluded children as a PartialAggregationFailure,
// or returns nil when nothing was excluded. It is never returned as the
// error of an aggregation.
func (r Report) Warning() error {
	if !r.Partial() {
		return nil
	}

	parts := make([]string, 0, len(r.Failures))
	for _, f := range r.Failures {
		parts = append(parts, f.Kind+" "+uitoa(f.ID))
	}

	return errs.Errorf(errs.KindPartialAggregationFailure, "aggregate",
		"%d of %d children excluded: %s", r.Excluded, r.Requested, strings.Join(parts, ", "))
}

func (r *Report) merge(o Report) {
	r.Requested += o.Requested
	r.Excluded += o.Excluded
	r.Failures = append(r.Failures, o.Failures...)
}

func (r *Report) exclude(kind string, id uint64, err error) {
	r.Excluded++
	r.Failures = append(r.Failures, Failure{Kind: kind, ID: id, Err: err})
}

func (r *Report) sortFailures() {
	sort.SliceStable(r.Failures, func(i, j int) bool {
		if r.Failures[i].Kind != r.Failures[j].Kind {
			return r.Failures[i].Kind < r.Failures[j].Kind
		}

		return r.Failures[i].ID < r.Failures[j].ID
	})
}
