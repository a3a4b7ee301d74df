package publish

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/xeptore/flaw/v8"
	"gopkg.in/yaml.v3"

	"github.com/xeptore/crateclip/errutil"
)

// LedgerEntry records one published release folder. The ledger lives at the
// output root and is the only record of what already went out.
type LedgerEntry struct {
	Folder      string    `yaml:"folder"`
	Title       string    `yaml:"title"`
	Artists     string    `yaml:"artists,omitempty"`
	Year        string    `yaml:"year,omitempty"`
	Country     string    `yaml:"country,omitempty"`
	Price       string    `yaml:"price,omitempty"`
	Owner       string    `yaml:"owner,omitempty"`
	MediaIDs    []string  `yaml:"media_ids"`
	PublishedAt time.Time `yaml:"published_at"`
}

func ReadLedger(path string) ([]LedgerEntry, error) {
	data, err := os.ReadFile(path)
	if nil != err {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		flawP := flaw.P{"path": path, "err_debug_tree": errutil.Tree(err).FlawP()}
		return nil, flaw.From(fmt.Errorf("failed to read ledger: %v", err)).Append(flawP)
	}

	var entries []LedgerEntry
	if err := yaml.Unmarshal(data, &entries); nil != err {
		flawP := flaw.P{"path": path, "err_debug_tree": errutil.Tree(err).FlawP()}
		return nil, flaw.From(fmt.Errorf("failed to unmarshal ledger: %v", err)).Append(flawP)
	}
	return entries, nil
}

// AppendLedger rewrites the ledger with the new entry added. Entries are few
// enough that read-modify-write stays simpler than an append-only format.
func AppendLedger(path string, entry LedgerEntry) error {
	entries, err := ReadLedger(path)
	if nil != err {
		return err
	}
	entries = append(entries, entry)

	data, err := yaml.Marshal(entries)
	if nil != err {
		flawP := flaw.P{"path": path, "err_debug_tree": errutil.Tree(err).FlawP()}
		return flaw.From(fmt.Errorf("failed to marshal ledger: %v", err)).Append(flawP)
	}
	if err := os.WriteFile(path, data, 0o0644); nil != err {
		flawP := flaw.P{"path": path, "err_debug_tree": errutil.Tree(err).FlawP()}
		return flaw.From(fmt.Errorf("failed to write ledger: %v", err)).Append(flawP)
	}
	return nil
}

// IsPublished reports whether a folder name already has a ledger entry.
func IsPublished(entries []LedgerEntry, folderName string) bool {
	for _, e := range entries {
		if e.Folder == folderName {
			return true
		}
	}
	return false
}
