// Package uploads remembers which guest account uploaded which file, so a
// guest can be shown and allowed to delete only their own uploads.
package uploads

import (
	"time"

	"photoframe/internal/fsutil"
	"photoframe/internal/store"
)

type Entry struct {
	AccountID   string    `json:"accountId"`
	AccountName string    `json:"accountName"`
	FilePath    string    `json:"filePath"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

type Ledger struct {
	store *store.Store[Entry]
	now   func() time.Time
}

func New(st *store.Store[Entry], now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{store: st, now: now}
}

// Record notes that accountID uploaded every path in files.
func (l *Ledger) Record(accountID, accountName string, files ...string) error {
	if len(files) == 0 {
		return nil
	}
	at := l.now().UTC()
	return l.store.Update(func(all []Entry) ([]Entry, error) {
		for _, f := range files {
			all = append(all, Entry{
				AccountID:   accountID,
				AccountName: accountName,
				FilePath:    fsutil.CleanRelPath(f),
				UploadedAt:  at,
			})
		}
		return all, nil
	})
}

func (l *Ledger) ByAccount(accountID string) []Entry {
	var out []Entry
	for _, e := range l.store.Load() {
		if e.AccountID == accountID {
			out = append(out, e)
		}
	}
	return out
}

// OwnedPaths returns the set of paths uploaded by accountID.
func (l *Ledger) OwnedPaths(accountID string) map[string]bool {
	out := make(map[string]bool)
	for _, e := range l.ByAccount(accountID) {
		out[e.FilePath] = true
	}
	return out
}

func (l *Ledger) IsOwner(accountID, file string) bool {
	file = fsutil.CleanRelPath(file)
	for _, e := range l.store.Load() {
		if e.AccountID == accountID && e.FilePath == file {
			return true
		}
	}
	return false
}

// Forget drops every entry for the given paths.
func (l *Ledger) Forget(files ...string) error {
	drop := make(map[string]bool, len(files))
	for _, f := range files {
		drop[fsutil.CleanRelPath(f)] = true
	}
	return l.store.Update(func(all []Entry) ([]Entry, error) {
		kept := all[:0]
		for _, e := range all {
			if !drop[e.FilePath] {
				kept = append(kept, e)
			}
		}
		return kept, nil
	})
}
