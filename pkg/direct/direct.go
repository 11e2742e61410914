// Package direct processes synthetic transactions synchronously, bypassing the
// message channel. It is used when the broker is disabled or unreachable.
package direct

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"payment-relay/pkg/simulate"
	"payment-relay/pkg/types"
)

type Processor interface {
	Process(ctx context.Context, id string, amount float64, deviceID string) (types.Status, error)
}

// Result is the outcome of one directly processed transaction.
type Result struct {
	ID       string       `json:"id"`
	Amount   float64      `json:"amount"`
	Status   types.Status `json:"status"`
	DeviceID string       `json:"device_id"`
}

type Invoker struct {
	proc   Processor
	gen    *simulate.Generator
	logger *slog.Logger
}

func New(proc Processor, gen *simulate.Generator, logger *slog.Logger) *Invoker {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Invoker{proc: proc, gen: gen, logger: logger}
}

// ProcessDirect generates count transactions and processes them one after
// another. On failure it returns the results gathered so far together with
// the error; the failed transaction is never silently left out.
func (d *Invoker) ProcessDirect(ctx context.Context, count int) ([]Result, error) {
	results := make([]Result, 0, count)
	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		req := d.gen.Next()
		status, err := d.proc.Process(ctx, req.ID, req.Amount, req.DeviceID)
		if err != nil {
			d.logger.Error("direct processing failed",
				"transaction_id", req.ID,
				"device_id", req.DeviceID,
				"error", err,
			)
			return results, fmt.Errorf("transaction %s: %w", req.ID, err)
		}

		results = append(results, Result{
			ID:       req.ID,
			Amount:   req.Amount,
			Status:   status,
			DeviceID: req.DeviceID,
		})
	}
	d.logger.Info("direct simulation finished", "count", len(results))
	return results, nil
}
