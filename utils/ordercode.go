package utils

import (
	"math/rand"
	"time"
)

// maxOrderCode is the largest order code PayOS accepts (JavaScript's
// Number.MAX_SAFE_INTEGER).
const maxOrderCode = 9007199254740991

// GenerateOrderCode returns a numeric order code for the payment provider.
// The code is derived from the current time in milliseconds with a random
// suffix, which keeps codes unique across concurrent checkouts while staying
// below the provider's safe-integer limit.
func GenerateOrderCode() int64 {
	code := time.Now().UnixMilli()*1000 + rand.Int63n(1000)
	if code > maxOrderCode {
		code = code % maxOrderCode
	}
	return code
}
