package chunk

import (
	"crypto/sha1"
	"encoding/hex"
)

// ID returns the content address of a chunk: the lowercase hex SHA-1 of the
// exact UTF-8 bytes of text. Identical text always yields the identical id.
func ID(text string) string {
	sum := sha1.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}
