package solana

import (
	"github.com/gagliardetto/solana-go/rpc"
)

// SignatureRecord is one entry of a wallet's signature history.
type SignatureRecord struct {
	Signature          string `json:"signature"`
	Slot               uint64 `json:"slot"`
	BlockTime          *int64 `json:"blockTime"`
	Err                any    `json:"err"`
	ConfirmationStatus string `json:"confirmationStatus"`
}

// Finalized reports whether the transaction succeeded and can no longer be rolled back.
func (r SignatureRecord) Finalized() bool {
	return r.Err == nil && r.ConfirmationStatus == string(rpc.ConfirmationStatusFinalized)
}

// TokenAccount is one of the largest holders of a mint.
type TokenAccount struct {
	Address        string   `json:"address"`
	Amount         string   `json:"amount"`
	Decimals       uint8    `json:"decimals"`
	UIAmount       *float64 `json:"uiAmount"`
	UIAmountString string   `json:"uiAmountString"`
}
