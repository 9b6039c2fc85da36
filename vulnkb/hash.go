package vulnkb

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// ContentHash returns a stable fingerprint of a code snippet. Line endings and
// surrounding whitespace are normalized first so that cosmetic differences do
// not defeat deduplication.
func ContentHash(code string) string {
	normalized := strings.ReplaceAll(code, "\r\n", "\n")
	normalized = strings.TrimSpace(normalized)
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// EncodeVector renders an embedding as the bracketed comma-separated literal
// the store expects for vector columns.
func EncodeVector(v []float64) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	}
	b.WriteByte(']')
	return b.String()
}
