package settlement

import "math/bits"

// Weigh converts a raw native amount to its common-unit value.
func Weigh(rawAmount, priceFactor uint64) (uint64, error) {
	hi, lo := bits.Mul64(rawAmount, priceFactor)
	if hi != 0 {
		return 0, detailf(ErrArithmeticOverflow, "%d * %d", rawAmount, priceFactor)
	}
	return lo, nil
}

// CheckLimits enforces minLimit <= value <= maxLimit.
func CheckLimits(value, minLimit, maxLimit uint64) error {
	if value < minLimit || value > maxLimit {
		return detailf(ErrValueOutOfRange, "value %d not in [%d, %d]", value, minLimit, maxLimit)
	}
	return nil
}

// SumEntries re-sums the weighted values of a ledger.
func SumEntries(entries []Entry) (uint64, error) {
	var total, carry uint64
	for _, e := range entries {
		total, carry = bits.Add64(total, e.WeightedValue, 0)
		if carry != 0 {
			return 0, detailf(ErrArithmeticOverflow, "pot total")
		}
	}
	return total, nil
}

// TokenAssets lists the distinct token assets present in a ledger in the
// order they were first entered.
func TokenAssets(entries []Entry) []Identity {
	var out []Identity
	seen := make(map[Identity]struct{})
	for _, e := range entries {
		if e.IsNative() {
			continue
		}
		if _, ok := seen[e.AssetID]; ok {
			continue
		}
		seen[e.AssetID] = struct{}{}
		out = append(out, e.AssetID)
	}
	return out
}

// Append adds an entry to an open room and keeps the running total.
func (r *Room) Append(e Entry) error {
	if err := r.RequireInProgress(); err != nil {
		return err
	}
	if e.WeightedValue == 0 {
		return detailf(ErrValueOutOfRange, "weighted value must be positive")
	}
	if !e.Participant.Valid() {
		return detailf(ErrInvalidIdentity, "empty participant")
	}
	total, carry := bits.Add64(r.Total, e.WeightedValue, 0)
	if carry != 0 {
		return detailf(ErrArithmeticOverflow, "pot total")
	}
	r.Entries = append(r.Entries, e)
	r.Total = total
	r.UpdatedAt = e.CreatedAt
	return nil
}
