package utils

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"
)

// GenerateETag derives a strong ETag from identifying values, typically a
// document id and its last update time.
func GenerateETag(parts ...any) string {
	h := sha1.New()
	for _, p := range parts {
		if t, ok := p.(time.Time); ok {
			p = t.UTC().Format(time.RFC3339Nano)
		}
		fmt.Fprintf(h, "%v|", p)
	}
	return `"` + hex.EncodeToString(h.Sum(nil)) + `"`
}
