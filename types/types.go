package types

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TokenStandard classifies how a currency is moved on chain.
type TokenStandard string

const (
	TokenStandardNative TokenStandard = "native"
	TokenStandardERC20  TokenStandard = "erc20"
)

// Currency describes one asset a tip can be paid in.
type Currency struct {
	Symbol   string        `json:"symbol" mapstructure:"symbol" validate:"required"`
	Name     string        `json:"name" mapstructure:"name" validate:"required"`
	Decimals int           `json:"decimals" mapstructure:"decimals" validate:"gte=0,lte=36"`
	Address  string        `json:"address" mapstructure:"address" validate:"omitempty,eth_addr"` // zero address for the native asset
	Standard TokenStandard `json:"standard" mapstructure:"standard" validate:"required,oneof=native erc20"`
}

// IsNative reports whether the currency is the chain's base asset.
func (c Currency) IsNative() bool {
	return c.Standard == TokenStandardNative
}

func (c Currency) String() string {
	return c.Symbol
}

// CollaboratorSplit is one member of a collaborator group as entered by the caller.
type CollaboratorSplit struct {
	WalletAddress string  `json:"walletAddress" validate:"required,eth_addr"`
	DisplayName   string  `json:"displayName" validate:"required"`
	Percentage    float64 `json:"percentage" validate:"gt=0,lte=100"`
}

// PaymentSplit pairs a recipient with the amount computed for it.
type PaymentSplit struct {
	CollaboratorAddress string  `json:"collaboratorAddress" validate:"required,eth_addr"`
	DisplayName         string  `json:"displayName" validate:"required"`
	Amount              string  `json:"amount"`
	Percentage          float64 `json:"percentage" validate:"gt=0,lte=100"`
}

// PaymentRequest is built fresh for every send and never mutated afterwards.
type PaymentRequest struct {
	ID            uuid.UUID      `json:"id"`
	Amount        string         `json:"amount"`
	Currency      Currency       `json:"currency"`
	Splits        []PaymentSplit `json:"splits"`
	SenderAddress string         `json:"senderAddress"`
	CreatedAt     time.Time      `json:"createdAt"`
}

// PaymentDetails echoes the request for audit display.
type PaymentDetails struct {
	TotalAmount string         `json:"totalAmount"`
	Currency    string         `json:"currency"`
	Splits      []PaymentSplit `json:"splits"`
}

// PaymentResult is the outcome of one multi-recipient payment.
//
// TransactionHashes holds one hash per successfully submitted transfer, in
// recipient order. On a partial failure it holds the hashes of the transfers
// that went out before the failing one.
type PaymentResult struct {
	RequestID         uuid.UUID       `json:"requestId"`
	Success           bool            `json:"success"`
	TransactionHashes []string        `json:"transactionHashes"`
	Error             string          `json:"error,omitempty"`
	ErrorCode         string          `json:"errorCode,omitempty"`
	Details           *PaymentDetails `json:"details,omitempty"`
}

// Failed builds a result carrying err. Hashes already submitted are kept.
func Failed(requestID uuid.UUID, hashes []string, err error) *PaymentResult {
	if hashes == nil {
		hashes = []string{}
	}
	result := &PaymentResult{
		RequestID:         requestID,
		Success:           false,
		TransactionHashes: hashes,
	}
	result.SetError(err)
	return result
}

func (r *PaymentResult) SetError(err error) {
	if err == nil {
		return
	}

	r.Success = false
	r.Error = err.Error()
	if pe, ok := AsPaymentError(err); ok {
		r.ErrorCode = pe.Code
	}
}

// TransferRequest is a single recipient transfer handed to a chain gateway.
type TransferRequest struct {
	Sender    string
	Recipient string
	Amount    string // decimal units of Currency, e.g. "0.6"
	Currency  Currency
}

// Receipt is the part of a transaction receipt the tracker needs.
type Receipt struct {
	TransactionHash string `json:"transactionHash"`
	BlockNumber     uint64 `json:"blockNumber"`
}

// ConfirmationStatus is the lifecycle state of a submitted transfer.
type ConfirmationStatus string

const (
	ConfirmationPending   ConfirmationStatus = "pending"
	ConfirmationConfirmed ConfirmationStatus = "confirmed"
	ConfirmationFailed    ConfirmationStatus = "failed"
)

// IsTerminal reports whether no further polling happens from this state.
func (s ConfirmationStatus) IsTerminal() bool {
	return s == ConfirmationConfirmed || s == ConfirmationFailed
}

// ConfirmationRecord is the observed confirmation state of one transaction.
type ConfirmationRecord struct {
	TransactionHash string             `json:"transactionHash"`
	BlockNumber     uint64             `json:"blockNumber"` // zero until the first receipt is read
	Confirmations   uint64             `json:"confirmations"`
	Status          ConfirmationStatus `json:"status"`
	Attempts        int                `json:"attempts"`
	UpdatedAt       time.Time          `json:"updatedAt"`
}

// PendingRecord is the record a transfer starts with right after submission.
func PendingRecord(txHash string) ConfirmationRecord {
	return ConfirmationRecord{
		TransactionHash: txHash,
		Status:          ConfirmationPending,
		UpdatedAt:       time.Now(),
	}
}

// SessionStatus is the state of the payment a session is handling.
type SessionStatus string

const (
	SessionIdle       SessionStatus = "idle"
	SessionProcessing SessionStatus = "processing"
	SessionSucceeded  SessionStatus = "succeeded"
	SessionFailed     SessionStatus = "failed"
)

// PaymentError is the typed error carried through results and returned by the session.
type PaymentError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *PaymentError) Error() string {
	return e.Message
}

// Stage names the part of the flow the error came from.
func (e *PaymentError) Stage() string {
	switch e.Code {
	case ErrValidation:
		return "validation"
	case ErrInsufficientBalance:
		return "balance"
	case ErrUnsupportedCurrency:
		return "currency-unsupported"
	case ErrTransferFailed:
		return "transfer"
	case ErrReceiptUnavailable, ErrReadError:
		return "confirmation"
	case ErrBusy, ErrWalletNotConnected, ErrSessionClosed:
		return "session"
	case ErrConfigError:
		return "config"
	default:
		return "unknown"
	}
}

// Common error codes
const (
	ErrValidation          = "VALIDATION_ERROR"
	ErrInsufficientBalance = "INSUFFICIENT_BALANCE"
	ErrUnsupportedCurrency = "UNSUPPORTED_CURRENCY"
	ErrTransferFailed      = "TRANSFER_FAILED"
	ErrReceiptUnavailable  = "RECEIPT_UNAVAILABLE"
	ErrReadError           = "READ_ERROR"
	ErrBusy                = "BUSY"
	ErrWalletNotConnected  = "WALLET_NOT_CONNECTED"
	ErrConfigError         = "CONFIG_ERROR"
	ErrSessionClosed       = "SESSION_CLOSED"
)

// NewPaymentError formats a PaymentError with the given code.
func NewPaymentError(code string, format string, args ...interface{}) *PaymentError {
	return &PaymentError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// AsPaymentError unwraps err into a *PaymentError if it holds one.
func AsPaymentError(err error) (*PaymentError, bool) {
	var pe *PaymentError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
