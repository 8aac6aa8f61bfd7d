package mutate

import "errors"

// Typed mutation outcomes. Handlers map these onto HTTP statuses; nothing in
// this package returns a generic failure for a predictable miss.
var (
	// ErrNotFound covers a missing message or poll record.
	ErrNotFound = errors.New("not found")
	// ErrOptionNotFound covers a vote naming an option the poll lacks.
	ErrOptionNotFound = errors.New("option not found")
	// ErrAlreadyVoted is returned when a voter holds a vote that the poll's
	// settings forbid repeating. Votes are scarce, so duplicates are
	// rejected rather than absorbed like reactions.
	ErrAlreadyVoted = errors.New("already voted")
	// ErrPollClosed rejects votes on an expired poll.
	ErrPollClosed = errors.New("poll closed")
	// ErrContentRequired rejects a message with no body, attachment or
	// voice note.
	ErrContentRequired = errors.New("message content required")
	// ErrBlocked rejects mutations from a blocked identity.
	ErrBlocked = errors.New("identity blocked")
	// ErrConflict surfaces only when the optimistic swap loop exhausts its
	// retries; the store is left unchanged.
	ErrConflict = errors.New("concurrent update conflict")
)
