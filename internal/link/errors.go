package link

import "errors"

// Sentinel errors for linking operations. The gateway maps these onto its
// HTTP error contract; anything unrecognized is treated as an internal
// storage failure.
var (
	// ErrInvalidInput indicates a missing or malformed request parameter.
	ErrInvalidInput = errors.New("link: invalid input")

	// ErrStateNotFound indicates the state token is unknown, already
	// consumed, or expired. Terminal for the attempt; the user restarts.
	ErrStateNotFound = errors.New("link: state token not found or expired")

	// ErrAlreadyLinked indicates the Telegram account already has an
	// active link.
	ErrAlreadyLinked = errors.New("link: telegram account already linked")

	// ErrConflict indicates the Discord account is already linked to a
	// different Telegram account.
	ErrConflict = errors.New("link: discord account already linked")

	// ErrUpstream indicates a Discord API failure (network or non-2xx).
	ErrUpstream = errors.New("link: discord api failure")

	// ErrNotFound indicates the requested link or guild does not exist.
	ErrNotFound = errors.New("link: not found")
)

// IsUserError reports whether the error is caused by user input or state
// (as opposed to an upstream or storage failure) and is therefore safe to
// surface with a 4xx response.
func IsUserError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrStateNotFound) ||
		errors.Is(err, ErrAlreadyLinked) ||
		errors.Is(err, ErrConflict)
}
