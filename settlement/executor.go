package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vitwit/tipsplit/clients"
	"github.com/vitwit/tipsplit/logger"
	"github.com/vitwit/tipsplit/metrics"
	"github.com/vitwit/tipsplit/types"
	"github.com/vitwit/tipsplit/utils"
)

// Executor turns a PaymentRequest into one on-chain transfer per recipient.
type Executor interface {
	Execute(ctx context.Context, req *types.PaymentRequest) *types.PaymentResult
}

// submitFunc sends one recipient's share through a single currency path.
type submitFunc func(ctx context.Context, recipient, amount string) (string, error)

// PaymentExecutor validates a request, recomputes the split and submits the
// transfers sequentially in recipient order.
type PaymentExecutor struct {
	gateway    clients.ChainGateway
	currencies []types.Currency
	network    types.Network

	minCollaborators int
	maxCollaborators int
	timeout          time.Duration

	log     logger.Logger
	metrics metrics.Recorder
}

var _ Executor = (*PaymentExecutor)(nil)

type Option func(*PaymentExecutor)

func WithLogger(l logger.Logger) Option {
	return func(e *PaymentExecutor) { e.log = l }
}

func WithMetrics(m metrics.Recorder) Option {
	return func(e *PaymentExecutor) { e.metrics = m }
}

// WithCollaboratorBounds sets the inclusive range of recipients per payment.
func WithCollaboratorBounds(min, max int) Option {
	return func(e *PaymentExecutor) {
		e.minCollaborators = min
		e.maxCollaborators = max
	}
}

// WithTimeout bounds request validation and the balance read. Transfer
// submission is not bounded. Zero means no bound.
func WithTimeout(d time.Duration) Option {
	return func(e *PaymentExecutor) { e.timeout = d }
}

func WithNetwork(n types.Network) Option {
	return func(e *PaymentExecutor) { e.network = n }
}

// NewPaymentExecutor creates an executor for the given gateway. Only
// currencies in the list can be paid in.
func NewPaymentExecutor(gateway clients.ChainGateway, currencies []types.Currency, opts ...Option) *PaymentExecutor {
	e := &PaymentExecutor{
		gateway:          gateway,
		currencies:       currencies,
		minCollaborators: types.DefaultMinCollaborators,
		maxCollaborators: types.DefaultMaxCollaborators,
		log:              logger.NoopLogger{},
		metrics:          metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute validates req and submits its transfers. It never returns nil.
//
// Validation failures submit nothing and return an empty hash list. A failed
// transfer stops the loop; hashes of the transfers before it are returned.
func (e *PaymentExecutor) Execute(ctx context.Context, req *types.PaymentRequest) *types.PaymentResult {
	if req == nil {
		return types.Failed(uuid.Nil, nil, types.NewPaymentError(types.ErrValidation, "payment request is required"))
	}

	start := time.Now()
	labels := e.labels(req.Currency)
	e.metrics.IncCounter(metrics.EventPaymentStarted, labels)
	defer func() {
		e.metrics.ObserveLatency(metrics.OperationExecute, time.Since(start), labels)
	}()

	fields := map[string]any{
		"request_id": req.ID.String(),
		"amount":     req.Amount,
		"currency":   req.Currency.Symbol,
		"recipients": len(req.Splits),
		"sender":     utils.ShortAddress(req.SenderAddress),
	}
	e.log.Info("processing payment", fields)

	currency, err := e.validateWithTimeout(ctx, req)
	if err != nil {
		return e.fail(req, nil, err, fields)
	}

	inputs := make([]utils.SplitInput, len(req.Splits))
	for i, s := range req.Splits {
		inputs[i] = utils.SplitInput{Address: s.CollaboratorAddress, Percentage: s.Percentage}
	}
	amounts, err := utils.ComputeSplits(req.Amount, inputs)
	if err != nil {
		return e.fail(req, nil, types.NewPaymentError(types.ErrValidation, "%v", err), fields)
	}

	submit, err := e.submitter(req.SenderAddress, currency)
	if err != nil {
		return e.fail(req, nil, err, fields)
	}

	hashes := make([]string, 0, len(amounts))
	splits := make([]types.PaymentSplit, len(req.Splits))
	for i, share := range amounts {
		splits[i] = req.Splits[i]
		splits[i].Amount = share.Amount

		hash, err := submit(ctx, share.Address, share.Amount)
		if err != nil {
			e.metrics.IncCounter(metrics.EventTransferFailed, labels)
			perr := types.NewPaymentError(types.ErrTransferFailed,
				"%s payment failed: %s transfer to recipient %d of %d (%s): %v",
				currency.Symbol, currency.Standard, i+1, len(amounts), utils.ShortAddress(share.Address), err)
			perr.Data = map[string]any{"recipientIndex": i, "submitted": len(hashes)}
			return e.fail(req, hashes, perr, fields)
		}

		e.metrics.IncCounter(metrics.EventTransferSubmitted, labels)
		e.log.Debug("transfer submitted", map[string]any{
			"request_id": req.ID.String(),
			"recipient":  utils.ShortAddress(share.Address),
			"amount":     share.Amount,
			"hash":       hash,
		})
		hashes = append(hashes, hash)
	}

	e.metrics.IncCounter(metrics.EventPaymentSucceeded, labels)
	e.log.Info("payment submitted", map[string]any{
		"request_id": req.ID.String(),
		"hashes":     hashes,
	})

	return &types.PaymentResult{
		RequestID:         req.ID,
		Success:           true,
		TransactionHashes: hashes,
		Details: &types.PaymentDetails{
			TotalAmount: req.Amount,
			Currency:    currency.Symbol,
			Splits:      splits,
		},
	}
}

// validateWithTimeout bounds validation and the balance read by e.timeout.
// Submission runs on the caller's ctx: once the first transfer is out, the
// rest are never cut off by this deadline.
func (e *PaymentExecutor) validateWithTimeout(ctx context.Context, req *types.PaymentRequest) (types.Currency, error) {
	if e.timeout <= 0 {
		return e.validate(ctx, req)
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return e.validate(ctx, req)
}

// validate checks req in a fixed order and returns the registered currency.
// The balance read comes last so malformed requests never touch the chain.
func (e *PaymentExecutor) validate(ctx context.Context, req *types.PaymentRequest) (types.Currency, error) {
	if req.SenderAddress == "" {
		return types.Currency{}, types.NewPaymentError(types.ErrValidation, "Sender address is required")
	}
	if !utils.ValidateAddress(req.SenderAddress) {
		return types.Currency{}, types.NewPaymentError(types.ErrValidation, "Sender address %q is invalid", req.SenderAddress)
	}

	if _, err := utils.ValidatePositiveAmount(req.Amount); err != nil {
		return types.Currency{}, types.NewPaymentError(types.ErrValidation, "Invalid payment amount: %v", err)
	}

	if len(req.Splits) == 0 {
		return types.Currency{}, types.NewPaymentError(types.ErrValidation, "Payment splits are required")
	}
	if len(req.Splits) < e.minCollaborators || len(req.Splits) > e.maxCollaborators {
		return types.Currency{}, types.NewPaymentError(types.ErrValidation,
			"Payment needs between %d and %d collaborators, got %d", e.minCollaborators, e.maxCollaborators, len(req.Splits))
	}

	percentages := make([]float64, len(req.Splits))
	for i, s := range req.Splits {
		if err := utils.ValidateStruct(s); err != nil {
			return types.Currency{}, types.NewPaymentError(types.ErrValidation, "Split %d is invalid: %v", i+1, err)
		}
		percentages[i] = s.Percentage
	}
	sum, err := utils.SumPercentages(percentages)
	if err != nil {
		return types.Currency{}, types.NewPaymentError(types.ErrValidation, "Invalid split percentages: %v", err)
	}
	if !utils.ValidateSplitTotal(percentages) {
		return types.Currency{}, types.NewPaymentError(types.ErrValidation,
			"Split percentages must add up to 100%% (got %s%%)", sum.String())
	}

	currency, err := e.registered(req.Currency)
	if err != nil {
		return types.Currency{}, err
	}

	balance := e.gateway.GetBalance(ctx, req.SenderAddress, currency)
	if !utils.HasSufficientBalance(balance, req.Amount) {
		perr := types.NewPaymentError(types.ErrInsufficientBalance, "Insufficient %s balance", currency.Symbol)
		perr.Data = map[string]string{"balance": balance, "required": req.Amount}
		return types.Currency{}, perr
	}

	return currency, nil
}

// registered resolves the request currency against the configured list.
func (e *PaymentExecutor) registered(c types.Currency) (types.Currency, error) {
	found, err := types.FindCurrency(e.currencies, c.Symbol)
	if err != nil {
		return types.Currency{}, types.NewPaymentError(types.ErrUnsupportedCurrency, "Unsupported currency: %s", c.Symbol)
	}
	switch found.Standard {
	case types.TokenStandardNative, types.TokenStandardERC20:
		return found, nil
	default:
		return types.Currency{}, types.NewPaymentError(types.ErrUnsupportedCurrency,
			"Unsupported currency: %s (%s)", found.Symbol, found.Standard)
	}
}

// submitter picks the transfer path for the currency once per request.
func (e *PaymentExecutor) submitter(sender string, currency types.Currency) (submitFunc, error) {
	switch currency.Standard {
	case types.TokenStandardNative:
		return e.nativeTransfer(sender, currency), nil
	case types.TokenStandardERC20:
		return e.tokenTransfer(sender, currency), nil
	default:
		return nil, types.NewPaymentError(types.ErrUnsupportedCurrency, "Unsupported currency: %s", currency.Symbol)
	}
}

func (e *PaymentExecutor) nativeTransfer(sender string, currency types.Currency) submitFunc {
	return func(ctx context.Context, recipient, amount string) (string, error) {
		return e.gateway.SendTransfer(ctx, types.TransferRequest{
			Sender:    sender,
			Recipient: recipient,
			Amount:    amount,
			Currency:  currency,
		})
	}
}

func (e *PaymentExecutor) tokenTransfer(sender string, currency types.Currency) submitFunc {
	return func(ctx context.Context, recipient, amount string) (string, error) {
		if currency.Address == "" {
			return "", fmt.Errorf("%w: %s has no contract address", clients.ErrTransferFailed, currency.Symbol)
		}
		return e.gateway.SendTransfer(ctx, types.TransferRequest{
			Sender:    sender,
			Recipient: recipient,
			Amount:    amount,
			Currency:  currency,
		})
	}
}

func (e *PaymentExecutor) fail(req *types.PaymentRequest, hashes []string, err error, fields map[string]any) *types.PaymentResult {
	e.metrics.IncCounter(metrics.EventPaymentFailed, e.labels(req.Currency))

	logFields := make(map[string]any, len(fields)+3)
	for k, v := range fields {
		logFields[k] = v
	}
	logFields["error"] = err.Error()
	logFields["submitted"] = len(hashes)
	if pe, ok := types.AsPaymentError(err); ok {
		logFields["stage"] = pe.Stage()
	}
	e.log.Error("payment failed", logFields)

	return types.Failed(req.ID, hashes, err)
}

func (e *PaymentExecutor) labels(c types.Currency) map[string]string {
	return map[string]string{
		"network":  string(e.network),
		"currency": c.Symbol,
	}
}
