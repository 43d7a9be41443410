package uploads

import "fmt"

// TransferReason distinguishes the ways a transfer can die
type TransferReason string

const (
	ReasonNetwork  TransferReason = "network"
	ReasonStatus   TransferReason = "status"
	ReasonCanceled TransferReason = "canceled"
)

// CredentialError means the gateway refused or failed to issue an
// upload credential. Nothing was transferred
type CredentialError struct {
	Err error
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("credential request failed, %v", e.Err)
}

func (e *CredentialError) Unwrap() error { return e.Err }

// TransportError means the transfer itself failed: a network error, a
// rejecting status code or a user cancellation
type TransportError struct {
	Reason TransferReason
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	switch e.Reason {
	case ReasonCanceled:
		return "upload canceled"
	case ReasonStatus:
		return fmt.Sprintf("storage rejected the upload with status %d", e.Status)
	default:
		return fmt.Sprintf("upload transfer failed, %v", e.Err)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// ConfirmationError means the blob was written but persisting its
// metadata failed. The object is orphaned in storage until reconciled
// out-of-band, which is why this is logged apart from other failures
type ConfirmationError struct {
	Key string
	Err error
}

func (e *ConfirmationError) Error() string {
	return fmt.Sprintf("failed to persist metadata for stored object %s, %v", e.Key, e.Err)
}

func (e *ConfirmationError) Unwrap() error { return e.Err }
