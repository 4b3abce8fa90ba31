package unique

import "github.com/google/uuid"

// NewID generates a random entity id for callers that do not bring their
// own primary keys.
func NewID() string {
	return uuid.NewString()
}
