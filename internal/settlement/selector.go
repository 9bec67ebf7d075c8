package settlement

import "fmt"

// BoundaryPolicy decides how the draw target is compared with the running
// cumulative weight.
type BoundaryPolicy int

const (
	// BoundaryInclusive picks the first entry with target <= cumulative.
	// Every target in [1, total] selects an entry, each with exactly its
	// weight's share of targets.
	BoundaryInclusive BoundaryPolicy = iota
	// BoundaryStrict picks the first entry with target < cumulative. A
	// target equal to the pot total selects nothing.
	BoundaryStrict
)

func (p BoundaryPolicy) String() string {
	switch p {
	case BoundaryInclusive:
		return "inclusive"
	case BoundaryStrict:
		return "strict"
	default:
		return fmt.Sprintf("boundary(%d)", int(p))
	}
}

// ParseBoundaryPolicy accepts "inclusive" (also the empty string) and "strict".
func ParseBoundaryPolicy(s string) (BoundaryPolicy, error) {
	switch s {
	case "", "inclusive":
		return BoundaryInclusive, nil
	case "strict":
		return BoundaryStrict, nil
	default:
		return BoundaryInclusive, fmt.Errorf("unknown boundary policy %q", s)
	}
}

// Selection is the outcome of a weighted draw.
type Selection struct {
	Index  int
	Target uint64
	Total  uint64
}

// SelectWinner maps one random value onto the ledger. It is pure: the same
// entries, value and policy always give the same result.
func SelectWinner(entries []Entry, randomValue uint64, policy BoundaryPolicy) (Selection, error) {
	if len(entries) == 0 {
		return Selection{}, ErrNoEntries
	}
	total, err := SumEntries(entries)
	if err != nil {
		return Selection{}, err
	}
	if total == 0 {
		return Selection{}, ErrEmptyPot
	}

	// randomValue % total < total, so the +1 cannot wrap.
	target := randomValue%total + 1

	var cumulative uint64
	for i, e := range entries {
		cumulative += e.WeightedValue
		if policy.selects(target, cumulative) {
			return Selection{Index: i, Target: target, Total: total}, nil
		}
	}
	return Selection{Target: target, Total: total},
		detailf(ErrNoWinnerSelected, "target %d equals pot total under %s boundary", target, policy)
}

func (p BoundaryPolicy) selects(target, cumulative uint64) bool {
	if p == BoundaryStrict {
		return target < cumulative
	}
	return target <= cumulative
}
