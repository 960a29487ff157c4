package util

import (
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid"
)

var (
	entropy = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
	m       sync.Mutex
)

// NewULID returns an id that sorts after every id previously returned for the same or an earlier time.
func NewULID(at time.Time) string {
	m.Lock()
	defer m.Unlock()
	return ulid.MustNew(ulid.Timestamp(at), entropy).String()
}
