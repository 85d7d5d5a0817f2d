package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGenerateOrderCode(t *testing.T) {
	before := time.Now().UnixMilli()
	code := GenerateOrderCode()
	after := time.Now().UnixMilli()

	assert.Positive(t, code)
	assert.LessOrEqual(t, code, int64(maxOrderCode))

	// The code embeds the generation time in milliseconds
	millis := code / 1000
	assert.GreaterOrEqual(t, millis, before)
	assert.LessOrEqual(t, millis, after)

	// The random suffix stays within its three digits
	assert.Less(t, code%1000, int64(1000))
}

func TestGenerateOrderCode_WithinProviderLimit(t *testing.T) {
	for i := 0; i < 100; i++ {
		assert.LessOrEqual(t, GenerateOrderCode(), int64(maxOrderCode))
	}
}
