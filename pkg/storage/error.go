package storage

import "errors"

var (
	// ErrNotFound is matched by every NotFoundError via errors.Is.
	ErrNotFound = errors.New("not found")

	// ErrInvalidMessage is returned when a message can not be stored, for
	// example because its role is neither user nor assistant.
	ErrInvalidMessage = errors.New("invalid message")
)

// NotFoundError is returned when a conversation or message doesn't exist in
// the store, or belongs to another owner.
type NotFoundError struct {
	// Kind is "conversation" or "message".
	Kind string
	ID   string
}

func (e NotFoundError) Error() string {
	kind := e.Kind
	if kind == "" {
		kind = "conversation"
	}

	if e.ID == "" {
		return kind + " not found"
	}

	return kind + " not found: " + e.ID
}

// Is makes errors.Is(err, ErrNotFound) true for any NotFoundError.
func (e NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ConversationNotFound builds the error for a missing conversation.
func ConversationNotFound(id string) error {
	return NotFoundError{Kind: "conversation", ID: id}
}

// MessageNotFound builds the error for a missing message.
func MessageNotFound(id string) error {
	return NotFoundError{Kind: "message", ID: id}
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
