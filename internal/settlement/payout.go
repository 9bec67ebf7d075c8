package settlement

import "math/bits"

// AssetBalance is a custodial token balance held by a room.
type AssetBalance struct {
	AssetID Identity `json:"asset_id"`
	Amount  uint64   `json:"amount"`
}

// TokenPayout is the winner's share of one token balance.
type TokenPayout struct {
	AssetID    Identity `json:"asset_id"`
	Balance    uint64   `json:"balance"`
	Commission uint64   `json:"commission"`
	Payout     uint64   `json:"payout"`
}

// NativePayout is the winner's share of the native balance.
type NativePayout struct {
	Balance    uint64 `json:"balance"`
	Valuation  uint64 `json:"valuation"`
	Commission uint64 `json:"commission"`
	Payout     uint64 `json:"payout"`
}

// Settlement is the full payout breakdown for a room.
type Settlement struct {
	RoomID         RoomID        `json:"room_id"`
	Winner         Identity      `json:"winner"`
	Total          uint64        `json:"total"`
	CommissionRate uint64        `json:"commission_rate"`
	Commission     uint64        `json:"commission"`
	TokenAmount    uint64        `json:"token_amount"`
	Native         NativePayout  `json:"native"`
	Tokens         []TokenPayout `json:"tokens"`
}

func (s Settlement) clone() Settlement {
	out := s
	out.Tokens = append([]TokenPayout(nil), s.Tokens...)
	return out
}

// CalculateSettlement splits the custodial balances between the winner and
// the operator. total is the ledger's weighted sum, rate a percentage.
func CalculateSettlement(total, rate, nativeBalance uint64, tokens []AssetBalance) (Settlement, error) {
	if total == 0 {
		return Settlement{}, detailf(ErrDivisionByZero, "pot total is zero")
	}
	if rate > MaxCommissionRate {
		return Settlement{}, detailf(ErrRateOutOfRange, "got %d", rate)
	}
	commission, err := mulDiv(total, rate, 100)
	if err != nil {
		return Settlement{}, err
	}

	var tokenAmount, carry uint64
	for _, t := range tokens {
		tokenAmount, carry = bits.Add64(tokenAmount, t.Amount, 0)
		if carry != 0 {
			return Settlement{}, detailf(ErrArithmeticOverflow, "token balances")
		}
	}
	s := Settlement{
		Total:          total,
		CommissionRate: rate,
		Commission:     commission,
		TokenAmount:    tokenAmount,
		Tokens:         make([]TokenPayout, 0, len(tokens)),
	}

	for _, t := range tokens {
		cut, err := tokenCommission(commission, t.Amount, total)
		if err != nil {
			return Settlement{}, err
		}
		s.Tokens = append(s.Tokens, TokenPayout{
			AssetID:    t.AssetID,
			Balance:    t.Amount,
			Commission: cut,
			Payout:     saturatingSub(t.Amount, cut),
		})
	}

	// Token balances above the pot total (funds sent straight to the room
	// account) leave no native valuation. The surplus goes to the winner
	// with the same proportional cut.
	valuation := saturatingSub(total, tokenAmount)
	cut, err := nativeCommission(commission, valuation, total)
	if err != nil {
		return Settlement{}, err
	}
	s.Native = NativePayout{
		Balance:    nativeBalance,
		Valuation:  valuation,
		Commission: cut,
		Payout:     saturatingSub(nativeBalance, cut),
	}
	return s, nil
}

// tokenCommission is commission * tokenAmount / total.
func tokenCommission(commission, tokenAmount, total uint64) (uint64, error) {
	if total == 0 {
		return 0, detailf(ErrDivisionByZero, "token apportionment")
	}
	if tokenAmount == 0 || commission == 0 {
		return 0, nil
	}
	return mulDiv(commission, tokenAmount, total)
}

// nativeCommission is commission * nativeValuation / total.
func nativeCommission(commission, nativeValuation, total uint64) (uint64, error) {
	if total == 0 {
		return 0, detailf(ErrDivisionByZero, "native apportionment")
	}
	if nativeValuation == 0 || commission == 0 {
		return 0, nil
	}
	return mulDiv(commission, nativeValuation, total)
}

// mulDiv computes a*b/d truncated, with a 128-bit intermediate product.
func mulDiv(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, ErrDivisionByZero
	}
	hi, lo := bits.Mul64(a, b)
	if hi >= d {
		return 0, detailf(ErrArithmeticOverflow, "%d * %d / %d", a, b, d)
	}
	q, _ := bits.Div64(hi, lo, d)
	return q, nil
}

func saturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}
