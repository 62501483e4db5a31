// Package fingerprint computes content digests for cross-run duplicate
// detection.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/gamesjobs/pipeline/internal/pipeline"
)

// descriptionPrefixLen bounds how much of the description feeds the digest.
// Listings are frequently republished with boilerplate appended at the end,
// so only the leading portion identifies the job.
const descriptionPrefixLen = 200

// Compute returns a hex SHA-256 digest over the document's identifying
// fields: title, company, canonical location, and the first 200 characters
// of the description. A missing description contributes an empty string.
func Compute(doc pipeline.NormalizedDocument) string {
	h := sha256.New()
	h.Write([]byte(doc.Title))
	h.Write([]byte(doc.Company))
	h.Write([]byte(doc.Location))
	h.Write([]byte(descriptionPrefix(doc.Description)))
	return hex.EncodeToString(h.Sum(nil))
}

func descriptionPrefix(s string) string {
	runes := []rune(s)
	if len(runes) <= descriptionPrefixLen {
		return s
	}
	return string(runes[:descriptionPrefixLen])
}
