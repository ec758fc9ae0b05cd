package ledger

import (
	"context"
	"log/slog"
)

// DetectMints scans the inner instructions of tx for token actions authorized by
// wallet that carry both a mint and a token amount. Each mint is recorded into seen;
// the returned events flag whether the mint was new to the scan.
//
// When oracle is non-nil the mint is priced at the transaction's block time and the
// price is attached to the event. The price does not feed into trade valuation.
func DetectMints(ctx context.Context, tx *Transaction, wallet string, seen *MintSet, oracle PriceOracle, logger *slog.Logger) []MintEvent {
	if tx == nil || tx.Meta == nil {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	var events []MintEvent
	for _, group := range tx.Meta.InnerInstructions {
		for _, ix := range group.Instructions {
			mint, ok := mintAuthorizedBy(ix.Info, wallet)
			if !ok {
				continue
			}

			ev := MintEvent{
				Mint:      mint,
				Signature: tx.Signature,
				Timestamp: tx.BlockTime,
				New:       seen.Add(mint),
			}
			if oracle != nil {
				price, found, err := oracle.GetPrice(ctx, mint, tx.BlockTime)
				if err != nil {
					logger.WarnContext(ctx, "failed to price mint",
						"mint", mint,
						"signature", tx.Signature,
						"error", err,
					)
				}
				if err == nil && found {
					ev.PriceUSD = price
					ev.Resolved = true
				}
			}
			events = append(events, ev)
		}
	}
	return events
}

func mintAuthorizedBy(info map[string]any, wallet string) (string, bool) {
	if info == nil {
		return "", false
	}
	authority, ok := info["authority"].(string)
	if !ok || authority != wallet {
		return "", false
	}
	if _, ok := info["tokenAmount"]; !ok {
		return "", false
	}
	mint, ok := info["mint"].(string)
	if !ok {
		return "", false
	}
	return mint, true
}
