// Package keyspace derives deterministic cache keys from keyword sets.
package keyspace

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"strings"

	"github.com/kirillkom/keyword-intel/internal/core/domain"
)

const (
	keywordDelimiter = "|"
	segmentDelimiter = "_"

	// MaxPlainKeyLength is the longest key stored verbatim; longer keys are fingerprinted.
	MaxPlainKeyLength = 200
)

// Derive sorts a copy of keywords and appends region, language and the
// optional device segment. It does not normalize case; callers do.
func Derive(keywords []string, region, language, device string) (string, error) {
	if len(keywords) == 0 {
		return "", domain.WrapError(domain.ErrInvalidInput, "derive cache key", errors.New("empty keyword list"))
	}

	sorted := append([]string(nil), keywords...)
	sort.Strings(sorted)

	var b strings.Builder
	b.WriteString(strings.Join(sorted, keywordDelimiter))
	b.WriteString(segmentDelimiter)
	b.WriteString(region)
	b.WriteString(segmentDelimiter)
	b.WriteString(language)
	if device != "" {
		b.WriteString(segmentDelimiter)
		b.WriteString(device)
	}
	return b.String(), nil
}

// StorageKey returns key unchanged when short enough, otherwise a sha256 fingerprint.
func StorageKey(key string) string {
	if len(key) <= MaxPlainKeyLength {
		return key
	}
	return Fingerprint(key)
}

func Fingerprint(key string) string {
	sum := sha256.Sum256([]byte(key))
	return "sha256:" + hex.EncodeToString(sum[:])
}
