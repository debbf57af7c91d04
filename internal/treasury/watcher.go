package treasury

import (
	"context"
	"math/big"
	"time"

	"go.uber.org/zap"
)

// WatchDeposits polls the treasury balance and reports positive deltas.
// Native transfers carry no logs, so a poll-detected deposit has no sender
// attribution; the callback receives only the amount.
func (c *Client) WatchDeposits(ctx context.Context, interval time.Duration, onDeposit func(amount *big.Int)) {
	watchDeposits(ctx, c.Balance, c.log, interval, onDeposit)
}

// watchDeposits runs the polling loop against an abstract balance read.
// No delta is computed until a baseline read has succeeded: defaulting the
// baseline to zero would report the whole pre-existing balance as a deposit
// on the next poll. Outbound payouts shrink the balance between polls, so a
// delta can only ever under-report, never invent a deposit.
func watchDeposits(ctx context.Context, balance func(context.Context) (*big.Int, error), log *zap.Logger, interval time.Duration, onDeposit func(amount *big.Int)) {
	var last *big.Int // nil until the first read succeeds
	if bal, err := balance(ctx); err != nil {
		log.Error("deposit watcher: initial balance", zap.Error(err))
	} else {
		last = bal
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("deposit watcher stopped")
			return
		case <-ticker.C:
			bal, err := balance(ctx)
			if err != nil {
				log.Error("deposit watcher: balance", zap.Error(err))
				continue
			}
			if last != nil {
				if delta := new(big.Int).Sub(bal, last); delta.Sign() > 0 {
					onDeposit(delta)
				}
			}
			last = bal
		}
	}
}
