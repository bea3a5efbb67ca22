// Package keyid validates and normalizes short GnuPG key ids.
package keyid

import (
	"regexp"
	"strings"
)

var shortIDPattern = regexp.MustCompile(`^[0-9A-Fa-f]{8}$`)

// Valid reports whether id is exactly 8 hexadecimal characters.
func Valid(id string) bool {
	return shortIDPattern.MatchString(id)
}

// ParseCSVList splits a comma separated list and keeps the valid ids in
// order. Invalid entries are dropped silently. The result is never nil.
func ParseCSVList(csv *string) []string {
	ids := []string{}
	if csv == nil || *csv == "" {
		return ids
	}
	for _, id := range strings.Split(*csv, ",") {
		if Valid(id) {
			ids = append(ids, id)
		}
	}
	return ids
}

// CheckProvided returns key when it is valid, otherwise the first fallback
// entry when that is valid. ok is false when neither qualifies.
func CheckProvided(key *string, fallback []string) (string, bool) {
	if key != nil && Valid(*key) {
		return *key, true
	}
	if len(fallback) > 0 && Valid(fallback[0]) {
		return fallback[0], true
	}
	return "", false
}
