package storage

import (
	crand "crypto/rand"
	"encoding/hex"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// NewMessageID returns a globally unique message id
func NewMessageID() string {
	return uuid.NewString()
}

// NewRoomSlug returns a short random slug (8 hex characters). Callers
// retry on collision against existing rooms.
func NewRoomSlug() string {
	b := make([]byte, 4)
	if _, err := crand.Read(b); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	return hex.EncodeToString(b)
}

// newUserIDCandidate produces a candidate user id: millisecond
// timestamp scaled by 1000 plus a random suffix. Collisions are
// possible and handled by the bounded retry loop in CreateUser.
func newUserIDCandidate() int64 {
	return time.Now().UnixMilli()*1000 + rand.Int63n(1000)
}
