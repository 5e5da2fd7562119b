package clients

import "errors"

var (
	// ErrTransferFailed is returned when a transfer could not be built, signed or submitted.
	ErrTransferFailed = errors.New("transfer failed")

	// ErrReceiptUnavailable is returned when no receipt could be read for a hash.
	ErrReceiptUnavailable = errors.New("receipt unavailable")

	// ErrReadError is returned when a chain read other than a receipt fails.
	ErrReadError = errors.New("chain read failed")

	ErrNoSigner = errors.New("no signer configured on client")
)
