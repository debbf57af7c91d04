package vault

import "errors"

// Authorization failures.
var (
	ErrNotOwner               = errors.New("caller is not the owner")
	ErrNotAdmin               = errors.New("caller is not an admin")
	ErrRouterNotAllowed       = errors.New("router is not allowlisted")
	ErrNotSignedBySigner      = errors.New("voucher not signed by the configured signer")
	ErrContractCallerRejected = errors.New("submitter must be the voucher account")
)

// Replay violation.
var ErrNonceMismatch = errors.New("voucher nonce does not match account nonce")

// External call failures.
var (
	ErrTransferFailed = errors.New("native transfer failed")
	ErrCallReverted   = errors.New("external call reverted")
)

// Configuration errors.
var (
	ErrInvalidOwner  = errors.New("new owner is the zero address")
	ErrInvalidSigner = errors.New("new signer is the zero address")
	ErrAdminExists   = errors.New("address is already an admin")
	ErrIndexMismatch = errors.New("admin slot index does not match address")
)
