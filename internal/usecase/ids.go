package usecase

import (
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// newID returns a time-ordered unique identifier. ULIDs sort by creation
// time, which keeps project lists and file maps naturally ordered.
func newID() string {
	t := time.Now()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
