// Package custody provides the custodial balance ledger the lottery engine
// moves funds through. Every account holds the native asset and any number
// of tokens; transfers are applied atomically under one lock.
package custody

import (
	"context"
	"fmt"
	"math/bits"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/lottery_engine/internal/settlement"
)

// Ledger is an in-memory custodial ledger.
type Ledger struct {
	mu           sync.RWMutex
	balances     map[string]map[string]uint64 // asset -> account -> amount
	frozen       map[string]bool
	transactions []Transaction
	maxHistory   int
}

var _ settlement.Custody = (*Ledger)(nil)

// NewLedger creates an empty ledger keeping up to maxHistory transactions.
func NewLedger(maxHistory int) *Ledger {
	if maxHistory <= 0 {
		maxHistory = 10000
	}
	return &Ledger{
		balances:   make(map[string]map[string]uint64),
		frozen:     make(map[string]bool),
		maxHistory: maxHistory,
	}
}

// =============================================================================
// Balance Operations
// =============================================================================

// Credit adds funds to an account, e.g. a verified external deposit.
func (l *Ledger) Credit(ctx context.Context, assetID, account string, amount uint64, reference string) error {
	if account == "" {
		return fmt.Errorf("%w: account is required", settlement.ErrTransferRejected)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	current := l.balanceLocked(assetID, account)
	next, carry := bits.Add64(current, amount, 0)
	if carry != 0 {
		return fmt.Errorf("%w: balance overflow for %s", settlement.ErrTransferRejected, account)
	}
	l.setLocked(assetID, account, next)
	l.recordLocked(Transaction{
		ID:           uuid.New().String(),
		TxType:       TxTypeCredit,
		AssetID:      assetID,
		To:           account,
		Amount:       amount,
		BalanceAfter: next,
		ReferenceID:  reference,
		CreatedAt:    time.Now().UTC(),
	})
	return nil
}

// Freeze makes every transfer touching account fail with ErrTransferRejected.
func (l *Ledger) Freeze(account string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.frozen[account] = true
}

// Unfreeze lifts a freeze.
func (l *Ledger) Unfreeze(account string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.frozen, account)
}

// Balance returns account's holding of assetID.
func (l *Ledger) Balance(assetID, account string) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balanceLocked(assetID, account)
}

// Balances lists every non-zero holding of account, native first.
func (l *Ledger) Balances(account string) []Balance {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Balance
	for asset, accounts := range l.balances {
		if amt := accounts[account]; amt > 0 {
			out = append(out, Balance{AssetID: asset, Amount: amt})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssetID < out[j].AssetID })
	return out
}

// Transactions returns the most recent transactions touching account,
// newest first.
func (l *Ledger) Transactions(account string, limit int) []Transaction {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Transaction
	for i := len(l.transactions) - 1; i >= 0; i-- {
		tx := l.transactions[i]
		if tx.From != account && tx.To != account {
			continue
		}
		out = append(out, tx)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// =============================================================================
// settlement.Custody
// =============================================================================

func (l *Ledger) TransferNative(ctx context.Context, from, to settlement.Identity, amount uint64) error {
	return l.transfer(ctx, NativeAsset, string(from), string(to), amount)
}

func (l *Ledger) TransferToken(ctx context.Context, asset, from, to settlement.Identity, amount uint64) error {
	if asset == "" {
		return fmt.Errorf("%w: token asset is required", settlement.ErrTransferRejected)
	}
	return l.transfer(ctx, string(asset), string(from), string(to), amount)
}

func (l *Ledger) NativeBalance(ctx context.Context, account settlement.Identity) (uint64, error) {
	return l.Balance(NativeAsset, string(account)), nil
}

func (l *Ledger) TokenBalance(ctx context.Context, asset, account settlement.Identity) (uint64, error) {
	return l.Balance(string(asset), string(account)), nil
}

func (l *Ledger) transfer(ctx context.Context, asset, from, to string, amount uint64) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", settlement.ErrTransferRejected, err)
	}
	if from == "" || to == "" || from == to {
		return fmt.Errorf("%w: invalid accounts %q -> %q", settlement.ErrTransferRejected, from, to)
	}
	if amount == 0 {
		return fmt.Errorf("%w: amount must be positive", settlement.ErrTransferRejected)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.frozen[from] || l.frozen[to] {
		return fmt.Errorf("%w: account frozen", settlement.ErrTransferRejected)
	}

	available := l.balanceLocked(asset, from)
	if amount > available {
		return fmt.Errorf("%w: available %d, requested %d", settlement.ErrInsufficientFunds, available, amount)
	}
	received, carry := bits.Add64(l.balanceLocked(asset, to), amount, 0)
	if carry != 0 {
		return fmt.Errorf("%w: balance overflow for %s", settlement.ErrTransferRejected, to)
	}

	l.setLocked(asset, from, available-amount)
	l.setLocked(asset, to, received)
	l.recordLocked(Transaction{
		ID:           uuid.New().String(),
		TxType:       TxTypeTransfer,
		AssetID:      asset,
		From:         from,
		To:           to,
		Amount:       amount,
		BalanceAfter: received,
		CreatedAt:    time.Now().UTC(),
	})
	return nil
}

func (l *Ledger) balanceLocked(asset, account string) uint64 {
	return l.balances[asset][account]
}

func (l *Ledger) setLocked(asset, account string, amount uint64) {
	accounts, ok := l.balances[asset]
	if !ok {
		accounts = make(map[string]uint64)
		l.balances[asset] = accounts
	}
	if amount == 0 {
		delete(accounts, account)
		return
	}
	accounts[account] = amount
}

func (l *Ledger) recordLocked(tx Transaction) {
	l.transactions = append(l.transactions, tx)
	if over := len(l.transactions) - l.maxHistory; over > 0 {
		l.transactions = append([]Transaction(nil), l.transactions[over:]...)
	}
}
