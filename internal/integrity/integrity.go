// Package integrity computes the content hash recorded for every installer
// binary. The digest is SHA-256, rendered as 64 lowercase hex characters.
package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// DigestLength is the length of a hex-encoded digest.
const DigestLength = sha256.Size * 2

var digestPattern = regexp.MustCompile(`^[a-fA-F0-9]{64}$`)

// ComputeHash streams r through SHA-256 in chunks (via io.Copy), so memory
// use stays constant regardless of the installer size.
func ComputeHash(r io.Reader) (string, error) {
	hasher := sha256.New()
	if _, err := io.Copy(hasher, r); err != nil {
		return "", fmt.Errorf("hashing installer content: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// ComputeHashFromStart rewinds rs to offset 0 before hashing it, so a
// stream that was partially consumed still yields the digest of the
// complete content.
func ComputeHashFromStart(rs io.ReadSeeker) (string, error) {
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewinding installer content: %w", err)
	}
	return ComputeHash(rs)
}

// ValidDigest reports whether s looks like a hex-encoded SHA-256 digest.
// Upper and lower case are both accepted.
func ValidDigest(s string) bool {
	return digestPattern.MatchString(s)
}

// Verify hashes r and compares the result with expected, ignoring case.
func Verify(r io.Reader, expected string) (bool, error) {
	actual, err := ComputeHash(r)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(actual, expected), nil
}
