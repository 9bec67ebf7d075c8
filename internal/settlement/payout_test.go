package settlement

import (
	"errors"
	"math"
	"testing"
)

func TestCalculateSettlement_Example(t *testing.T) {
	s, err := CalculateSettlement(100, 5, 60, []AssetBalance{{AssetID: "usdc", Amount: 40}})
	if err != nil {
		t.Fatalf("CalculateSettlement: %v", err)
	}
	if s.Commission != 5 {
		t.Errorf("Commission = %d, want 5", s.Commission)
	}
	if s.Native.Valuation != 60 {
		t.Errorf("native valuation = %d, want 60", s.Native.Valuation)
	}
	if len(s.Tokens) != 1 || s.Tokens[0].Payout != 38 {
		t.Errorf("token payout = %+v, want 38", s.Tokens)
	}
	if s.Native.Payout != 57 {
		t.Errorf("native payout = %d, want 57", s.Native.Payout)
	}
}

func TestCalculateSettlement_Errors(t *testing.T) {
	if _, err := CalculateSettlement(0, 5, 10, nil); !errors.Is(err, ErrDivisionByZero) {
		t.Errorf("zero total: %v, want ErrDivisionByZero", err)
	}
	if _, err := CalculateSettlement(10, 101, 10, nil); !errors.Is(err, ErrRateOutOfRange) {
		t.Errorf("rate: %v, want ErrRateOutOfRange", err)
	}
}

func TestCalculateSettlement_TokenSurplus(t *testing.T) {
	// 10 usdc entered, 1 more credited directly to the room account.
	s, err := CalculateSettlement(10, 5, 0, []AssetBalance{{AssetID: "usdc", Amount: 11}})
	if err != nil {
		t.Fatalf("CalculateSettlement: %v", err)
	}
	if s.Tokens[0].Payout != 11 {
		t.Errorf("token payout = %d, want 11", s.Tokens[0].Payout)
	}
	if s.Native.Valuation != 0 || s.Native.Payout != 0 {
		t.Errorf("native = %+v, want zero", s.Native)
	}

	s, err = CalculateSettlement(100, 5, 7, []AssetBalance{{AssetID: "usdc", Amount: 110}})
	if err != nil {
		t.Fatalf("CalculateSettlement: %v", err)
	}
	if s.Tokens[0].Commission != 5 || s.Tokens[0].Payout != 105 {
		t.Errorf("token = %+v, want commission 5 payout 105", s.Tokens[0])
	}
	if s.Native.Commission != 0 || s.Native.Payout != 7 {
		t.Errorf("native = %+v, want commission 0 payout 7", s.Native)
	}
}

func TestCalculateSettlement_LargeValues(t *testing.T) {
	total := uint64(math.MaxUint64)
	s, err := CalculateSettlement(total, 100, total, nil)
	if err != nil {
		t.Fatalf("CalculateSettlement: %v", err)
	}
	if s.Commission != total {
		t.Errorf("Commission = %d, want %d", s.Commission, total)
	}
	if s.Native.Payout != 0 {
		t.Errorf("native payout = %d, want 0", s.Native.Payout)
	}
}

func TestCalculateSettlement_Conservation(t *testing.T) {
	cases := []struct {
		total  uint64
		rate   uint64
		native uint64
		tokens []AssetBalance
	}{
		{26, 5, 12, []AssetBalance{{"usdc", 14}}},
		{1000, 7, 333, []AssetBalance{{"usdc", 333}, {"dai", 334}}},
		{3, 33, 1, []AssetBalance{{"usdc", 1}, {"dai", 1}}},
		{999_999_937, 100, 500_000_000, []AssetBalance{{"usdc", 499_999_937}}},
		{17, 0, 17, nil},
	}
	for _, c := range cases {
		s, err := CalculateSettlement(c.total, c.rate, c.native, c.tokens)
		if err != nil {
			t.Fatalf("CalculateSettlement(%+v): %v", c, err)
		}
		if s.Commission > c.total {
			t.Errorf("commission %d exceeds total %d", s.Commission, c.total)
		}

		var apportioned uint64
		for _, tp := range s.Tokens {
			if tp.Payout+tp.Commission != tp.Balance {
				t.Errorf("%s: payout %d + commission %d != balance %d", tp.AssetID, tp.Payout, tp.Commission, tp.Balance)
			}
			apportioned += tp.Commission
		}
		if s.Native.Payout+s.Native.Commission != s.Native.Balance {
			t.Errorf("native: payout %d + commission %d != balance %d",
				s.Native.Payout, s.Native.Commission, s.Native.Balance)
		}
		apportioned += s.Native.Commission

		// Truncation loses at most one unit per split.
		splits := uint64(len(s.Tokens) + 1)
		if apportioned > s.Commission || s.Commission-apportioned > splits {
			t.Errorf("apportioned %d vs commission %d (splits %d)", apportioned, s.Commission, splits)
		}
	}
}

func TestCalculateSettlement_SaturatesNative(t *testing.T) {
	// Native balance smaller than its commission share.
	s, err := CalculateSettlement(100, 50, 10, nil)
	if err != nil {
		t.Fatalf("CalculateSettlement: %v", err)
	}
	if s.Native.Commission != 50 {
		t.Errorf("native commission = %d, want 50", s.Native.Commission)
	}
	if s.Native.Payout != 0 {
		t.Errorf("native payout = %d, want 0 (saturated)", s.Native.Payout)
	}
}

func TestMulDiv(t *testing.T) {
	got, err := mulDiv(math.MaxUint64, math.MaxUint64, math.MaxUint64)
	if err != nil || got != math.MaxUint64 {
		t.Fatalf("mulDiv(max, max, max) = %d, %v", got, err)
	}
	if _, err := mulDiv(math.MaxUint64, 2, 1); !errors.Is(err, ErrArithmeticOverflow) {
		t.Errorf("overflow: %v, want ErrArithmeticOverflow", err)
	}
	if _, err := mulDiv(1, 1, 0); !errors.Is(err, ErrDivisionByZero) {
		t.Errorf("div zero: %v, want ErrDivisionByZero", err)
	}
}
