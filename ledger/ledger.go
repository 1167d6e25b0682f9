// Package ledger tracks the committed versions of one logical document
// as an append-only ordered list of version keys; the last entry is the
// current version.
package ledger

import "errors"

// ErrNoPreviousVersion is returned by Rollback when only the original
// version remains.
var ErrNoPreviousVersion = errors.New("no previous version")

// Ledger is the ordered version list for one document, oldest first.
// It always holds at least one entry once initialized via New.
type Ledger struct {
	versions []string
}

// New creates a ledger seeded with the original version key.
func New(original string) *Ledger {
	return &Ledger{versions: []string{original}}
}

// FromVersions restores a ledger from a persisted version list.
func FromVersions(versions []string) (*Ledger, error) {
	if len(versions) == 0 {
		return nil, errors.New("ledger requires at least one version")
	}
	return &Ledger{versions: append([]string(nil), versions...)}, nil
}

// Append pushes a new version key; it becomes current.
func (l *Ledger) Append(key string) {
	l.versions = append(l.versions, key)
}

// Rollback pops the last version and returns its key so callers can
// release the stored blob. The previous entry becomes current. Rolling
// back past the original fails and leaves the ledger unchanged.
func (l *Ledger) Rollback() (string, error) {
	if len(l.versions) < 2 {
		return "", ErrNoPreviousVersion
	}
	dropped := l.versions[len(l.versions)-1]
	l.versions = l.versions[:len(l.versions)-1]
	return dropped, nil
}

// Current returns the key of the current (latest) version.
func (l *Ledger) Current() string { return l.versions[len(l.versions)-1] }

// Len returns the number of committed versions.
func (l *Ledger) Len() int { return len(l.versions) }

// Versions returns a copy of the full version list, oldest first.
func (l *Ledger) Versions() []string {
	return append([]string(nil), l.versions...)
}
