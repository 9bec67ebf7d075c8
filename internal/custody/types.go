package custody

import "time"

const (
	// Transaction types
	TxTypeCredit   = "credit"
	TxTypeTransfer = "transfer"

	// NativeAsset is the ledger key for the native asset.
	NativeAsset = ""
)

// Transaction is one ledger movement. From is empty for credits.
type Transaction struct {
	ID           string    `json:"id"`
	TxType       string    `json:"tx_type"`
	AssetID      string    `json:"asset_id,omitempty"`
	From         string    `json:"from,omitempty"`
	To           string    `json:"to"`
	Amount       uint64    `json:"amount"`
	BalanceAfter uint64    `json:"balance_after"`
	ReferenceID  string    `json:"reference_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Balance is an account's holding of one asset.
type Balance struct {
	AssetID string `json:"asset_id"`
	Amount  uint64 `json:"amount"`
}
