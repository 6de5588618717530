package models

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"time"
)

const (
	orderNumberPrefix = "ONS"
	base36Alphabet    = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// NewOrderNumber returns "ONS" + the last six digits of now in epoch millis +
// six random base36 characters. Uniqueness is enforced by the orders table, not here.
func NewOrderNumber(now time.Time) string {
	millis := strconv.FormatInt(now.UnixMilli(), 10)
	if len(millis) > 6 {
		millis = millis[len(millis)-6:]
	}

	suffix := make([]byte, 6)
	max := big.NewInt(int64(len(base36Alphabet)))
	for i := range suffix {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand does not fail on supported platforms; fall back to the clock
			n = big.NewInt(now.UnixNano() % int64(len(base36Alphabet)))
		}
		suffix[i] = base36Alphabet[n.Int64()]
	}
	return orderNumberPrefix + millis + string(suffix)
}
