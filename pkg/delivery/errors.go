package delivery

import "github.com/pkg/errors"

// Typed failures surfaced by the delivery engine. Callers map these onto
// HTTP statuses; nothing here carries a stack trace to the end user.
var (
	// ErrBackendUnavailable means the file's storage server could not be
	// resolved or reached. Fatal for the request.
	ErrBackendUnavailable = errors.New("could not locate file storage backend")

	// ErrAdmissionDenied means the requester is at their concurrent
	// transfer ceiling. Clients may retry later (429 semantics).
	ErrAdmissionDenied = errors.New("too many concurrent download requests")

	// ErrTokenInvalid means no matching download token exists for the
	// file (or the address, when tokens are IP locked).
	ErrTokenInvalid = errors.New("invalid download token")

	// ErrTokenExpired means the token matched but is past its expiry.
	ErrTokenExpired = errors.New("download token expired")

	// ErrTransferIO wraps a mid-stream read or write failure, typically a
	// client disconnect. Accounting is still settled best effort.
	ErrTransferIO = errors.New("transfer interrupted")
)
