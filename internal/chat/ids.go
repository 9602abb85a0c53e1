package chat

import (
	"crypto/rand"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewSessionID returns a client-generated session id. ULIDs keep the
// timestamp-plus-random-suffix shape the backend expects and sort by
// creation time.
func NewSessionID() (string, error) {
	id, err := ulid.New(ulid.Timestamp(time.Now()), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// NewMessageID returns a client-generated message id.
func NewMessageID() string {
	return uuid.NewString()
}
