package settlement

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_IsMatchesCode(t *testing.T) {
	err := detailf(ErrNotWinner, "payee %s", "mallory")

	if !errors.Is(err, ErrNotWinner) {
		t.Error("detailed error should match its sentinel")
	}
	if errors.Is(err, ErrNotAuthorized) {
		t.Error("different codes must not match")
	}
	if err.Error() != "payee is not the room winner: payee mallory" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestError_Wrapping(t *testing.T) {
	cause := errors.New("connection refused")
	err := wrap(ErrOracleUnavailable, cause)

	if !errors.Is(err, ErrOracleUnavailable) {
		t.Error("should match sentinel")
	}
	if !errors.Is(err, cause) {
		t.Error("should unwrap to cause")
	}
	if KindOf(err) != KindOracle {
		t.Errorf("KindOf = %q, want oracle", KindOf(err))
	}

	outer := fmt.Errorf("draw room 3: %w", err)
	if CodeOf(outer) != "OracleUnavailable" {
		t.Errorf("CodeOf = %q, want OracleUnavailable", CodeOf(outer))
	}
}

func TestKindOf_Foreign(t *testing.T) {
	if KindOf(errors.New("plain")) != "" {
		t.Error("plain errors have no kind")
	}
	if CodeOf(nil) != "" {
		t.Error("nil has no code")
	}
}

func TestClassify(t *testing.T) {
	if classify(nil, ErrStorage) != nil {
		t.Error("classify(nil) should be nil")
	}

	engineErr := fmt.Errorf("%w: available 1", ErrInsufficientFunds)
	if got := classify(engineErr, ErrTransferRejected); !errors.Is(got, ErrInsufficientFunds) {
		t.Errorf("engine errors keep their code, got %v", got)
	}

	foreign := errors.New("disk full")
	got := classify(foreign, ErrStorage)
	if !errors.Is(got, ErrStorage) || !errors.Is(got, foreign) {
		t.Errorf("foreign errors are wrapped, got %v", got)
	}
}

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		err  *Error
		kind Kind
	}{
		{ErrNotAuthorized, KindAuthorization},
		{ErrNotWinner, KindAuthorization},
		{ErrAlreadyInitialized, KindState},
		{ErrNotInProgress, KindState},
		{ErrRoomStillInProgress, KindState},
		{ErrAssetListFull, KindValidation},
		{ErrRateOutOfRange, KindValidation},
		{ErrValueOutOfRange, KindValidation},
		{ErrArithmeticOverflow, KindArithmetic},
		{ErrDivisionByZero, KindArithmetic},
		{ErrEmptyPot, KindArithmetic},
		{ErrOracleMismatch, KindOracle},
		{ErrOracleUnavailable, KindOracle},
	}
	for _, tt := range tests {
		if tt.err.Kind != tt.kind {
			t.Errorf("%s kind = %q, want %q", tt.err.Code, tt.err.Kind, tt.kind)
		}
	}
}
