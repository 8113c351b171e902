package domain

import (
	"fmt"
	"strings"
)

const dedupSep = "|"

// DedupKey = "<contact_person>|<name>"
func MakeDedupKey(contactPerson, teamName string) string {
	return contactPerson + dedupSep + teamName
}

type ParsedDedupKey struct {
	ContactPerson string
	TeamName      string
}

func ParseDedupKey(key string) (ParsedDedupKey, error) {
	var out ParsedDedupKey
	contact, name, ok := strings.Cut(key, dedupSep)
	if !ok {
		return out, fmt.Errorf("invalid dedup key format: %s", key)
	}

	out.ContactPerson = contact
	out.TeamName = name
	return out, nil
}
