package solana

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/nootey/walko/service/ledger"
)

// signatureToRecord converts an RPC TransactionSignature to a SignatureRecord.
func signatureToRecord(sig *rpc.TransactionSignature) SignatureRecord {
	rec := SignatureRecord{
		Signature:          sig.Signature.String(),
		Slot:               sig.Slot,
		Err:                sig.Err,
		ConfirmationStatus: string(sig.ConfirmationStatus),
	}
	if sig.BlockTime != nil {
		ts := int64(*sig.BlockTime)
		rec.BlockTime = &ts
	}
	return rec
}

// toLedgerTransaction extracts the balance and inner-instruction data the ledger
// needs from a jsonParsed getTransaction result.
func toLedgerTransaction(signature string, result *rpc.GetParsedTransactionResult) (*ledger.Transaction, error) {
	if result.BlockTime == nil {
		return nil, errors.New("missing blockTime")
	}

	tx := &ledger.Transaction{
		Signature: signature,
		BlockTime: int64(*result.BlockTime),
	}
	if result.Meta == nil {
		return tx, nil
	}

	meta := &ledger.TransactionMeta{
		PreTokenBalances:  convertBalances(result.Meta.PreTokenBalances),
		PostTokenBalances: convertBalances(result.Meta.PostTokenBalances),
	}

	for _, group := range result.Meta.InnerInstructions {
		g := ledger.InnerInstructionGroup{
			Index:        int(group.Index),
			Instructions: make([]ledger.ParsedInstruction, 0, len(group.Instructions)),
		}
		for _, ix := range group.Instructions {
			if ix == nil {
				continue
			}
			parsed, err := decodeParsedInfo(ix)
			if err != nil {
				return nil, fmt.Errorf("inner instruction group %d: %w", group.Index, err)
			}
			g.Instructions = append(g.Instructions, parsed)
		}
		meta.InnerInstructions = append(meta.InnerInstructions, g)
	}

	tx.Meta = meta
	return tx, nil
}

func convertBalances(in []rpc.TokenBalance) []ledger.TokenBalance {
	out := make([]ledger.TokenBalance, 0, len(in))
	for _, b := range in {
		tb := ledger.TokenBalance{
			AccountIndex: int(b.AccountIndex),
			Mint:         b.Mint.String(),
		}
		if b.Owner != nil {
			tb.Owner = b.Owner.String()
		}
		if b.UiTokenAmount != nil {
			amt := &ledger.UITokenAmount{}
			if b.UiTokenAmount.UiAmount != nil {
				v := *b.UiTokenAmount.UiAmount
				amt.UIAmount = &v
			}
			tb.UITokenAmount = amt
		}
		out = append(out, tb)
	}
	return out
}

// parsedEnvelope mirrors the "parsed" object of a jsonParsed instruction.
type parsedEnvelope struct {
	Type string         `json:"type"`
	Info map[string]any `json:"info"`
}

// decodeParsedInfo reads the parsed "info" of an instruction. The solana-go
// envelope keeps its contents unexported, so the value is re-decoded from JSON.
// Instructions the node returned as a bare string (e.g. memos) carry no info.
func decodeParsedInfo(ix *rpc.ParsedInstruction) (ledger.ParsedInstruction, error) {
	out := ledger.ParsedInstruction{Program: ix.Program}
	if ix.Parsed == nil {
		return out, nil
	}

	raw, err := json.Marshal(ix.Parsed)
	if err != nil {
		return out, fmt.Errorf("re-encode parsed instruction: %w", err)
	}
	if len(raw) == 0 || raw[0] != '{' {
		return out, nil
	}

	var env parsedEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return out, fmt.Errorf("decode parsed instruction: %w", err)
	}
	out.Type = env.Type
	out.Info = env.Info
	return out, nil
}
