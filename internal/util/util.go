// Package util provides small shared helpers.
package util

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"time"
)

// ParseBoolEnv reads a boolean environment variable, returning def when the
// variable is unset or unparsable.
func ParseBoolEnv(key string, def bool) bool {
	val, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return def
	}
	return parsed
}

// GenerateRandomHex returns n random bytes hex-encoded.
func GenerateRandomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// GenerateSessionID returns a time-ordered unique id for a session record.
// The millisecond prefix keeps ids sortable by creation time; the random
// suffix disambiguates sessions created in the same millisecond.
func GenerateSessionID() string {
	suffix, err := GenerateRandomHex(4)
	if err != nil {
		// crypto/rand failure is unrecoverable in practice; fall back to a
		// nanosecond counter so ids stay unique enough.
		suffix = strconv.FormatInt(time.Now().UnixNano()%0xffffffff, 16)
	}
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), suffix)
}
