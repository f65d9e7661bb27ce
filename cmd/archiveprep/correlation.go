package main

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync/atomic"
)

var correlationIDValue atomic.Value

func init() {
	correlationIDValue.Store("")
}

// newCorrelationID derives a stable id from the command line so repeated
// invocations can be matched across the operational log and JSON output.
func newCorrelationID(arguments []string) string {
	if len(arguments) == 0 {
		return strings.Repeat("0", 24)
	}
	normalized := make([]string, 0, len(arguments))
	for _, arg := range arguments {
		normalized = append(normalized, strings.TrimSpace(arg))
	}
	sum := sha256.Sum256([]byte(strings.Join(normalized, "\x1f")))
	return hex.EncodeToString(sum[:12])
}

func setCurrentCorrelationID(correlationID string) {
	correlationIDValue.Store(strings.TrimSpace(correlationID))
}

func currentCorrelationID() string {
	value, _ := correlationIDValue.Load().(string)
	return value
}
