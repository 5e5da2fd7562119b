// Package confirmation follows submitted transactions until they reach the
// required confirmation depth or run out of read attempts.
package confirmation

import (
	"context"
	"time"

	"github.com/vitwit/tipsplit/clients"
	"github.com/vitwit/tipsplit/logger"
	"github.com/vitwit/tipsplit/metrics"
	"github.com/vitwit/tipsplit/types"
)

// EmitFunc receives every record the tracker observes, terminal ones included.
type EmitFunc func(types.ConfirmationRecord)

// Tracker polls a ChainGateway for one transaction at a time. A Tracker holds
// no per-transaction state, so one value can serve many concurrent Track calls.
type Tracker struct {
	gateway clients.ChainGateway

	requiredConfirmations uint64
	maxAttempts           int
	retryDelay            time.Duration
	pollInterval          time.Duration

	network types.Network
	log     logger.Logger
	metrics metrics.Recorder
}

type Option func(*Tracker)

// WithRequiredConfirmations sets the depth at which a transaction is confirmed.
func WithRequiredConfirmations(n uint64) Option {
	return func(t *Tracker) { t.requiredConfirmations = n }
}

// WithRetry sets how many consecutive read failures are tolerated and the
// pause between them.
func WithRetry(maxAttempts int, delay time.Duration) Option {
	return func(t *Tracker) {
		t.maxAttempts = maxAttempts
		t.retryDelay = delay
	}
}

// WithPollInterval sets the pause between polls of a pending transaction.
func WithPollInterval(d time.Duration) Option {
	return func(t *Tracker) { t.pollInterval = d }
}

func WithLogger(l logger.Logger) Option {
	return func(t *Tracker) { t.log = l }
}

func WithMetrics(m metrics.Recorder) Option {
	return func(t *Tracker) { t.metrics = m }
}

func WithNetwork(n types.Network) Option {
	return func(t *Tracker) { t.network = n }
}

func NewTracker(gateway clients.ChainGateway, opts ...Option) *Tracker {
	t := &Tracker{
		gateway:               gateway,
		requiredConfirmations: types.DefaultConfirmationBlocks,
		maxAttempts:           types.DefaultMaxRetryAttempts,
		retryDelay:            types.DefaultRetryDelay,
		pollInterval:          types.DefaultPollInterval,
		log:                   logger.NoopLogger{},
		metrics:               metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.maxAttempts < 1 {
		t.maxAttempts = 1
	}
	return t
}

// Track polls txHash until it is confirmed or failed and returns the terminal
// record. Each observation is passed to emit, which may be nil.
//
// A failed receipt or head read counts as one attempt; a successful read
// resets the count. After maxAttempts consecutive failures the transaction is
// reported failed with block number 0. Not-yet-mined and unreachable node
// look the same here, so a slow transaction can be reported failed.
//
// If ctx is done first, Track returns the last record and ctx.Err().
func (t *Tracker) Track(ctx context.Context, txHash string, emit EmitFunc) (types.ConfirmationRecord, error) {
	if emit == nil {
		emit = func(types.ConfirmationRecord) {}
	}

	start := time.Now()
	labels := map[string]string{"network": string(t.network)}
	record := types.PendingRecord(txHash)
	failures := 0

	for {
		if err := ctx.Err(); err != nil {
			return record, err
		}

		block, confirmations, err := t.poll(ctx, txHash)
		record.Attempts++
		record.UpdatedAt = time.Now()

		if err != nil {
			failures++
			t.log.Debug("confirmation read failed", map[string]any{
				"hash":     txHash,
				"failures": failures,
				"error":    err.Error(),
			})

			if failures >= t.maxAttempts {
				record.BlockNumber = 0
				record.Confirmations = 0
				record.Status = types.ConfirmationFailed
				emit(record)

				t.metrics.IncCounter(metrics.EventTxConfirmFailed, labels)
				t.metrics.ObserveLatency(metrics.OperationConfirmation, time.Since(start), labels)
				t.log.Warn("transaction confirmation failed", map[string]any{
					"hash":     txHash,
					"attempts": record.Attempts,
					"error":    err.Error(),
				})
				return record, nil
			}

			if err := wait(ctx, t.retryDelay); err != nil {
				return record, err
			}
			continue
		}

		failures = 0
		record.BlockNumber = block
		record.Confirmations = confirmations
		if confirmations >= t.requiredConfirmations {
			record.Status = types.ConfirmationConfirmed
		} else {
			record.Status = types.ConfirmationPending
		}
		emit(record)

		if record.Status.IsTerminal() {
			t.metrics.IncCounter(metrics.EventTxConfirmed, labels)
			t.metrics.ObserveLatency(metrics.OperationConfirmation, time.Since(start), labels)
			t.log.Info("transaction confirmed", map[string]any{
				"hash":          txHash,
				"block":         block,
				"confirmations": confirmations,
			})
			return record, nil
		}

		if err := wait(ctx, t.pollInterval); err != nil {
			return record, err
		}
	}
}

// poll reads the receipt and the head and returns the receipt block and its depth.
func (t *Tracker) poll(ctx context.Context, txHash string) (uint64, uint64, error) {
	receipt, err := t.gateway.GetReceipt(ctx, txHash)
	if err != nil {
		return 0, 0, err
	}

	head, err := t.gateway.GetHeadBlockNumber(ctx)
	if err != nil {
		return 0, 0, err
	}

	// a lagging node can report a head below the receipt block
	if head < receipt.BlockNumber {
		return receipt.BlockNumber, 0, nil
	}
	return receipt.BlockNumber, head - receipt.BlockNumber, nil
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
