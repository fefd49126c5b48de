// Package services defines the marketplace business logic: identity, job
// postings, bids, two-party completion, chat and reviews.
// This file centralizes the service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// Two kinds of errors live here. Sentinel values name predictable outcomes
// (not found, forbidden, conflicting state). The error types classify the
// failure taxonomy the API surfaces: ValidationError, RemoteWriteError,
// RemoteReadError and AuthError. Translation into HTTP status codes is
// performed by the handler layer.
package services

import "errors"

// Lookup errors.
var (
	ErrJobNotFound  = errors.New("job not found")
	ErrBidNotFound  = errors.New("bid not found")
	ErrUserNotFound = errors.New("user not found")
)

// Permission errors.
var (
	// ErrNotCustomer is returned when a provider attempts a customer-only action.
	ErrNotCustomer = errors.New("only customers can do this")

	// ErrNotProvider is returned when a customer attempts a provider-only action.
	ErrNotProvider = errors.New("only service providers can do this")

	// ErrNotJobOwner is returned when someone other than the posting customer
	// reads bids for, or accepts a bid on, a job.
	ErrNotJobOwner = errors.New("job belongs to another customer")

	// ErrNotParticipant is returned when the caller is neither the job's
	// customer nor its accepted provider.
	ErrNotParticipant = errors.New("not a participant of this job")
)

// State errors.
var (
	// ErrJobNotOpen is returned when a bid targets a job whose bidding closed.
	ErrJobNotOpen = errors.New("job is not open for bidding")

	// ErrJobAlreadyAwarded is returned when a different bid on the job was
	// already accepted.
	ErrJobAlreadyAwarded = errors.New("another bid was already accepted for this job")

	// ErrNoAcceptedBid is returned by completion and chat operations on a job
	// that has not been awarded yet.
	ErrNoAcceptedBid = errors.New("job has no accepted bid")

	// ErrJobNotCompleted is returned when reviewing a job that is not completed.
	ErrJobNotCompleted = errors.New("job is not completed")

	// ErrAlreadyReviewed is returned on a second review for the same job.
	ErrAlreadyReviewed = errors.New("job already reviewed")
)

// Identity errors. They are wrapped in an AuthError when returned.
var (
	ErrEmailTaken         = errors.New("email already in use")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrTokenInvalid       = errors.New("invalid or expired token")
	ErrSignedOut          = errors.New("session was signed out")
)

// ValidationError reports a missing or malformed input field. No write is
// attempted when it is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// RemoteWriteError wraps a store failure during a write. Its message is the
// generic "write failed"; the cause is kept for logs via Unwrap.
type RemoteWriteError struct {
	Op  string
	Err error
}

func (e *RemoteWriteError) Error() string { return "write failed" }
func (e *RemoteWriteError) Unwrap() error { return e.Err }

// RemoteReadError wraps a store failure during a read.
type RemoteReadError struct {
	Op  string
	Err error
}

func (e *RemoteReadError) Error() string { return "read failed" }
func (e *RemoteReadError) Unwrap() error { return e.Err }

// AuthError is a sign-in, sign-up or token failure. Message is shown to the
// user verbatim.
type AuthError struct {
	Message string
	Err     error
}

func (e *AuthError) Error() string { return e.Message }
func (e *AuthError) Unwrap() error { return e.Err }

func authErr(sentinel error) error {
	return &AuthError{Message: sentinel.Error(), Err: sentinel}
}

// writeFailed wraps err as a RemoteWriteError unless it is already a
// classified service error.
func writeFailed(op string, err error) error {
	if err == nil || classified(err) {
		return err
	}
	return &RemoteWriteError{Op: op, Err: err}
}

// readFailed wraps err as a RemoteReadError unless it is already classified.
func readFailed(op string, err error) error {
	if err == nil || classified(err) {
		return err
	}
	return &RemoteReadError{Op: op, Err: err}
}

var sentinels = []error{
	ErrJobNotFound, ErrBidNotFound, ErrUserNotFound,
	ErrNotCustomer, ErrNotProvider, ErrNotJobOwner, ErrNotParticipant,
	ErrJobNotOpen, ErrJobAlreadyAwarded, ErrNoAcceptedBid,
	ErrJobNotCompleted, ErrAlreadyReviewed,
}

func classified(err error) bool {
	var (
		ve *ValidationError
		we *RemoteWriteError
		re *RemoteReadError
		ae *AuthError
	)
	if errors.As(err, &ve) || errors.As(err, &we) || errors.As(err, &re) || errors.As(err, &ae) {
		return true
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return true
		}
	}
	return false
}
