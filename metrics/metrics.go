// Package metrics records payment and confirmation events.
package metrics

import "time"

// Event names recorded by the payment flow.
const (
	EventPaymentStarted    = "payment_started"
	EventPaymentSucceeded  = "payment_succeeded"
	EventPaymentFailed     = "payment_failed"
	EventTransferSubmitted = "transfer_submitted"
	EventTransferFailed    = "transfer_failed"
	EventTxConfirmed       = "tx_confirmed"
	EventTxConfirmFailed   = "tx_confirmation_failed"
	EventSessionBusy       = "session_busy"

	OperationExecute      = "execute_payment"
	OperationConfirmation = "confirmation"
)

// Recorder receives counters and latencies. Labels are "network" and
// "currency"; missing labels are recorded empty.
type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}

// NoopRecorder discards everything. It is the default everywhere a Recorder
// is optional.
type NoopRecorder struct{}

var _ Recorder = NoopRecorder{}

func (NoopRecorder) IncCounter(string, map[string]string)                    {}
func (NoopRecorder) ObserveLatency(string, time.Duration, map[string]string) {}
