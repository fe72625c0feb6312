package inventory

import (
	"strings"
	"time"
)

// Filter is a conjunction of optional predicates. A zero-value field means
// that clause is omitted entirely; it never widens into a wildcard. Values
// are matched as data, never interpolated into any query syntax.
type Filter struct {
	// ExpiresWithinDays keeps records whose expiration date falls at or
	// before now plus this many days. Records without an expiration never
	// match when this clause is present.
	ExpiresWithinDays *int

	// Owner matches exactly, no normalization.
	Owner string

	// VaultName matches the partition exactly.
	VaultName string

	// ObjectType matches exactly. Empty means any type.
	ObjectType ObjectType

	// NameContains is a case-sensitive substring match on the object name.
	NameContains string
}

// IsZero reports whether no clauses are present.
func (f Filter) IsZero() bool {
	return f.ExpiresWithinDays == nil && f.Owner == "" && f.VaultName == "" &&
		f.ObjectType == "" && f.NameContains == ""
}

// Predicate compiles the filter into a match function evaluated against each
// record. The expiration cutoff is fixed at compile time from now.
func (f Filter) Predicate(now time.Time) func(*KeyVaultObject) bool {
	var cutoff time.Time
	if f.ExpiresWithinDays != nil {
		cutoff = now.AddDate(0, 0, *f.ExpiresWithinDays)
	}

	return func(o *KeyVaultObject) bool {
		if f.ExpiresWithinDays != nil {
			if o.ExpirationDate == nil || o.ExpirationDate.After(cutoff) {
				return false
			}
		}
		if f.Owner != "" && o.Owner != f.Owner {
			return false
		}
		if f.VaultName != "" && o.VaultName != f.VaultName {
			return false
		}
		if f.ObjectType != "" && o.ObjectType != f.ObjectType {
			return false
		}
		if f.NameContains != "" && !strings.Contains(o.ObjectName, f.NameContains) {
			return false
		}
		return true
	}
}
