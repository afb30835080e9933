// Package analytics implements the registration pipeline stages that follow
// normalization: filtering, aggregation by dimension and month, trailing
// growth rates and latest-period leaderboards.
//
// Every stage is a pure function. Inputs are never modified and every call
// returns freshly allocated tables, so results can be shared between
// goroutines without locking.
package analytics

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"vahan/internal/core"
)

var (
	ErrNoDimensions       = errors.New("at least one dimension is required")
	ErrDuplicateDimension = errors.New("duplicate dimension")
	ErrMissingDimension   = errors.New("dimension not present in series")
)

func validateDimensions(dims []core.Dimension) error {
	if len(dims) == 0 {
		return ErrNoDimensions
	}
	known := core.Dimensions()
	for i, d := range dims {
		if !slices.Contains(known, d) {
			return fmt.Errorf("%w: %q", core.ErrUnknownDimension, d)
		}
		if slices.Contains(dims[:i], d) {
			return fmt.Errorf("%w: %q", ErrDuplicateDimension, d)
		}
	}
	return nil
}

// projection maps each wanted dimension to its index in have.
func projection(have, want []core.Dimension) ([]int, error) {
	if err := validateDimensions(want); err != nil {
		return nil, err
	}
	idx := make([]int, len(want))
	for i, d := range want {
		at := slices.Index(have, d)
		if at < 0 {
			return nil, fmt.Errorf("%w: %q", ErrMissingDimension, d)
		}
		idx[i] = at
	}
	return idx, nil
}

func project(key []string, idx []int) []string {
	out := make([]string, len(idx))
	for i, at := range idx {
		out[i] = key[at]
	}
	return out
}

// groupID encodes a key tuple as a map key. Parts are length-prefixed so
// labels containing the separator cannot collide.
func groupID(key []string) string {
	var b strings.Builder
	for _, k := range key {
		fmt.Fprintf(&b, "%d\x1f%s\x1f", len(k), k)
	}
	return b.String()
}
