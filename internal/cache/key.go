package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Key derives a content-addressed cache key from the logical operation name
// and its semantically significant inputs. Field order never matters, and
// inputs not passed in never perturb the key.
func Key(operation string, fields map[string]string) string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString(operation)
	for _, name := range names {
		sb.WriteByte('|')
		sb.WriteString(name)
		sb.WriteByte('=')
		sb.WriteString(strings.ToLower(strings.TrimSpace(fields[name])))
	}

	sum := sha256.Sum256([]byte(sb.String()))
	return operation + ":" + hex.EncodeToString(sum[:])
}
