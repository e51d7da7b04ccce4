package id

import (
	"crypto/rand"

	"github.com/oklog/ulid/v2"
)

// New returns a ULID string. Used for provisional account ids and outgoing
// Message-IDs, where time-ordering keeps log correlation readable.
func New() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}
