// Package state persists the per-outline sync baseline.
//
// The baseline is the last-sync snapshot of every bound heading/issue
// pair, collapsed to the fields the reconciler compares. It is the
// common ancestor for three-way diffs. The file lives next to the
// outline (<outline>.org-gh.json) or in a central directory, and is
// written atomically: temp file, fsync, rename.
package state

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"
)

// Version is the highest baseline schema version this build reads.
const Version = 1

// Baseline is the persisted snapshot for one outline file.
type Baseline struct {
	Version        int             `json:"version"`
	Repo           string          `json:"repo"`
	LastSync       time.Time       `json:"last_sync,omitzero"`
	Items          map[int]*Record `json:"-"`
	PendingCreates []PendingCreate `json:"pending_creates"`

	// extra preserves unknown top-level fields across load/save so a
	// newer minor writer's data survives a round trip through this one.
	extra map[string]json.RawMessage
}

// Record is the collapsed last-sync state of one bound pair.
type Record struct {
	Identity      string    `json:"identity"`
	Title         string    `json:"title"`
	BodyDigest    string    `json:"body_digest"`
	State         string    `json:"state"` // workflow keyword, e.g. "TODO" or "DONE"
	Assignees     []string  `json:"assignees"`
	Labels        []string  `json:"labels"`
	GHModifiedAt  time.Time `json:"gh_modified_at"`
	OrgModifiedAt time.Time `json:"org_modified_at"`
}

// PendingCreate marks a syncable heading not yet bound to any issue.
type PendingCreate struct {
	Identity string `json:"identity"`
	Title    string `json:"title"`
}

// StateError reports a corrupt or incompatible baseline file.
type StateError struct {
	Path string
	Msg  string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("baseline %s: %s (run 'org-gh init' to reinitialize)", e.Path, e.Msg)
}

// New returns an empty baseline for the given repository.
func New(repo string) *Baseline {
	return &Baseline{
		Version: Version,
		Repo:    repo,
		Items:   make(map[int]*Record),
	}
}

// Path returns the baseline file location for an outline. When dir is
// empty the baseline is a sibling of the outline; otherwise it lives in
// dir under a name derived from the outline's absolute path.
func Path(orgPath, dir string) string {
	if dir == "" {
		return orgPath + ".org-gh.json"
	}
	abs, err := filepath.Abs(orgPath)
	if err != nil {
		abs = orgPath
	}
	sum := sha256.Sum256([]byte(abs))
	name := fmt.Sprintf("%s-%x.org-gh.json", filepath.Base(orgPath), sum[:6])
	return filepath.Join(dir, name)
}

// Load reads the baseline at path. A missing file yields (nil, nil);
// the caller decides whether that means "not initialized" or "empty".
func Load(path string) (*Baseline, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read baseline: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &StateError{Path: path, Msg: fmt.Sprintf("corrupt JSON: %v", err)}
	}

	b := New("")
	b.extra = make(map[string]json.RawMessage)
	for key, val := range raw {
		switch key {
		case "version":
			if err := json.Unmarshal(val, &b.Version); err != nil {
				return nil, &StateError{Path: path, Msg: "invalid version field"}
			}
		case "repo":
			if err := json.Unmarshal(val, &b.Repo); err != nil {
				return nil, &StateError{Path: path, Msg: "invalid repo field"}
			}
		case "last_sync":
			if err := json.Unmarshal(val, &b.LastSync); err != nil {
				return nil, &StateError{Path: path, Msg: "invalid last_sync field"}
			}
		case "items":
			var items map[string]*Record
			if err := json.Unmarshal(val, &items); err != nil {
				return nil, &StateError{Path: path, Msg: fmt.Sprintf("invalid items field: %v", err)}
			}
			for num, rec := range items {
				n, err := strconv.Atoi(num)
				if err != nil || n <= 0 {
					return nil, &StateError{Path: path, Msg: fmt.Sprintf("invalid issue number key %q", num)}
				}
				b.Items[n] = rec
			}
		case "pending_creates":
			if err := json.Unmarshal(val, &b.PendingCreates); err != nil {
				return nil, &StateError{Path: path, Msg: fmt.Sprintf("invalid pending_creates field: %v", err)}
			}
		default:
			b.extra[key] = val
		}
	}

	if b.Version > Version {
		return nil, &StateError{Path: path, Msg: fmt.Sprintf("schema version %d is newer than supported version %d", b.Version, Version)}
	}
	if b.Version == 0 {
		return nil, &StateError{Path: path, Msg: "missing schema version"}
	}
	return b, nil
}

// Save writes the baseline atomically: sibling temp file, fsync,
// rename over the target. Unknown fields read by Load are re-emitted.
func (b *Baseline) Save(path string) error {
	doc := make(map[string]json.RawMessage, len(b.extra)+5)
	for key, val := range b.extra {
		doc[key] = val
	}

	put := func(key string, v any) error {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", key, err)
		}
		doc[key] = raw
		return nil
	}

	items := make(map[string]*Record, len(b.Items))
	for num, rec := range b.Items {
		items[strconv.Itoa(num)] = rec
	}
	if b.PendingCreates == nil {
		b.PendingCreates = []PendingCreate{}
	}
	if err := put("version", b.Version); err != nil {
		return err
	}
	if err := put("repo", b.Repo); err != nil {
		return err
	}
	if err := put("items", items); err != nil {
		return err
	}
	if err := put("pending_creates", b.PendingCreates); err != nil {
		return err
	}
	if !b.LastSync.IsZero() {
		if err := put("last_sync", b.LastSync.UTC()); err != nil {
			return err
		}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode baseline: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp baseline: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write baseline: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync baseline: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close baseline: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace baseline: %w", err)
	}
	return nil
}

// Record stores or replaces the snapshot for an issue and clears any
// pending-create entry for the same identity.
func (b *Baseline) Record(number int, rec *Record) {
	b.Items[number] = rec
	b.RemovePendingCreate(rec.Identity)
}

// Remove drops the snapshot for an issue.
func (b *Baseline) Remove(number int) {
	delete(b.Items, number)
}

// ByIdentity finds the issue number bound to a heading identity.
func (b *Baseline) ByIdentity(identity string) (int, *Record) {
	for num, rec := range b.Items {
		if rec.Identity == identity {
			return num, rec
		}
	}
	return 0, nil
}

// Numbers returns the recorded issue numbers in ascending order.
func (b *Baseline) Numbers() []int {
	out := make([]int, 0, len(b.Items))
	for num := range b.Items {
		out = append(out, num)
	}
	sort.Ints(out)
	return out
}

// AddPendingCreate marks a heading as awaiting creation. Duplicate
// identities are collapsed.
func (b *Baseline) AddPendingCreate(identity, title string) {
	for i := range b.PendingCreates {
		if b.PendingCreates[i].Identity == identity {
			b.PendingCreates[i].Title = title
			return
		}
	}
	b.PendingCreates = append(b.PendingCreates, PendingCreate{Identity: identity, Title: title})
}

// RemovePendingCreate clears the pending-create entry for an identity.
func (b *Baseline) RemovePendingCreate(identity string) {
	kept := b.PendingCreates[:0]
	for _, p := range b.PendingCreates {
		if p.Identity != identity {
			kept = append(kept, p)
		}
	}
	b.PendingCreates = kept
}
