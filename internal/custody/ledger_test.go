package custody

import (
	"context"
	"errors"
	"testing"

	"github.com/R3E-Network/lottery_engine/internal/settlement"
)

func TestLedger_CreditAndBalances(t *testing.T) {
	l := NewLedger(0)
	ctx := context.Background()

	if err := l.Credit(ctx, NativeAsset, "alice", 100, "deposit-1"); err != nil {
		t.Fatalf("credit native: %v", err)
	}
	if err := l.Credit(ctx, "usdc", "alice", 40, "deposit-2"); err != nil {
		t.Fatalf("credit token: %v", err)
	}

	if got := l.Balance(NativeAsset, "alice"); got != 100 {
		t.Errorf("native balance = %d, want 100", got)
	}
	balances := l.Balances("alice")
	if len(balances) != 2 {
		t.Fatalf("balances len = %d, want 2", len(balances))
	}
	if balances[0].AssetID != NativeAsset || balances[1].AssetID != "usdc" {
		t.Errorf("balances order = %+v, want native first", balances)
	}
}

func TestLedger_Transfer(t *testing.T) {
	l := NewLedger(0)
	ctx := context.Background()
	_ = l.Credit(ctx, NativeAsset, "alice", 100, "")

	if err := l.TransferNative(ctx, "alice", "room:1", 60); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	alice, _ := l.NativeBalance(ctx, "alice")
	room, _ := l.NativeBalance(ctx, "room:1")
	if alice != 40 || room != 60 {
		t.Errorf("balances = (%d, %d), want (40, 60)", alice, room)
	}

	txs := l.Transactions("room:1", 10)
	if len(txs) != 1 {
		t.Fatalf("transactions = %d, want 1", len(txs))
	}
	if txs[0].ID == "" || txs[0].TxType != TxTypeTransfer {
		t.Errorf("unexpected transaction %+v", txs[0])
	}
}

func TestLedger_TransferErrors(t *testing.T) {
	l := NewLedger(0)
	ctx := context.Background()
	_ = l.Credit(ctx, "usdc", "alice", 10, "")

	tests := []struct {
		name string
		run  func() error
		want error
	}{
		{"insufficient", func() error { return l.TransferToken(ctx, "usdc", "alice", "bob", 11) }, settlement.ErrInsufficientFunds},
		{"zero amount", func() error { return l.TransferToken(ctx, "usdc", "alice", "bob", 0) }, settlement.ErrTransferRejected},
		{"same account", func() error { return l.TransferToken(ctx, "usdc", "alice", "alice", 1) }, settlement.ErrTransferRejected},
		{"missing asset", func() error { return l.TransferToken(ctx, "", "alice", "bob", 1) }, settlement.ErrTransferRejected},
		{"unknown asset", func() error { return l.TransferToken(ctx, "dai", "alice", "bob", 1) }, settlement.ErrInsufficientFunds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
			if settlement.KindOf(err) != settlement.KindTransfer {
				t.Errorf("kind = %q, want transfer", settlement.KindOf(err))
			}
		})
	}

	if got := l.Balance("usdc", "alice"); got != 10 {
		t.Errorf("balance after failures = %d, want 10", got)
	}
}

func TestLedger_Freeze(t *testing.T) {
	l := NewLedger(0)
	ctx := context.Background()
	_ = l.Credit(ctx, NativeAsset, "alice", 10, "")

	l.Freeze("bob")
	if err := l.TransferNative(ctx, "alice", "bob", 5); !errors.Is(err, settlement.ErrTransferRejected) {
		t.Fatalf("error = %v, want ErrTransferRejected", err)
	}

	l.Unfreeze("bob")
	if err := l.TransferNative(ctx, "alice", "bob", 5); err != nil {
		t.Fatalf("transfer after unfreeze: %v", err)
	}
}

func TestLedger_HistoryBound(t *testing.T) {
	l := NewLedger(3)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_ = l.Credit(ctx, NativeAsset, "alice", 1, "")
	}
	if got := len(l.Transactions("alice", 0)); got != 3 {
		t.Errorf("history = %d, want 3", got)
	}
}
