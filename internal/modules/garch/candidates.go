package garch

import (
	"fmt"
	"iter"
	"slices"
)

// GenerateCandidates enumerates the feasible (orders, family) tuples for the
// given maximum orders. The returned sequence is lazy, deterministic and may
// be ranged over any number of times.
//
// Orders are visited as nested loops over p, o, q and then family. A tuple is
// skipped when it has no persistence term (p = 0 and o = 0), when asymmetry
// lacks either level (o > 0 with p = 0 or q = 0), when APARCH has o > p, or
// when FIGARCH has p > 1 or q > 1.
func GenerateCandidates(maxP, maxQ, maxO int, families []VolatilityFamily) (iter.Seq[Candidate], error) {
	if maxP < 0 || maxQ < 0 || maxO < 0 {
		return nil, fmt.Errorf("%w: orders must be non-negative (max_p=%d, max_q=%d, max_o=%d)",
			ErrInvalidConfiguration, maxP, maxQ, maxO)
	}
	if maxP == 0 && maxO == 0 {
		return nil, fmt.Errorf("%w: one of max_p or max_o must be strictly positive", ErrInvalidConfiguration)
	}

	fams := slices.Clone(families)
	if len(fams) == 0 {
		fams = []VolatilityFamily{GARCH}
	}
	for _, f := range fams {
		if !f.Valid() {
			return nil, fmt.Errorf("%w: unknown volatility family %q", ErrInvalidConfiguration, f)
		}
	}

	return func(yield func(Candidate) bool) {
		for p := 0; p <= maxP; p++ {
			for o := 0; o <= maxO; o++ {
				for q := 0; q <= maxQ; q++ {
					for _, family := range fams {
						if !feasibleOrders(p, o, q, family) {
							continue
						}
						if !yield(Candidate{Orders: Orders{P: p, O: o, Q: q}, Volatility: family}) {
							return
						}
					}
				}
			}
		}
	}, nil
}

func feasibleOrders(p, o, q int, family VolatilityFamily) bool {
	if p == 0 && o == 0 {
		return false
	}
	if o > 0 && (p == 0 || q == 0) {
		return false
	}
	if family == APARCH && o > p {
		return false
	}
	if family == FIGARCH && (p > 1 || q > 1) {
		return false
	}
	return true
}
