package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPath(t *testing.T) {
	if got := Path("/home/u/notes/roadmap.org", ""); got != "/home/u/notes/roadmap.org.org-gh.json" {
		t.Errorf("sibling path = %q", got)
	}
	central := Path("/home/u/notes/roadmap.org", "/var/state")
	if !strings.HasPrefix(central, "/var/state/roadmap.org-") || !strings.HasSuffix(central, ".org-gh.json") {
		t.Errorf("central path = %q", central)
	}
	// Central names must differ for same-named outlines in different dirs.
	if central == Path("/elsewhere/roadmap.org", "/var/state") {
		t.Error("central paths collide")
	}
}

func TestLoadMissing(t *testing.T) {
	b, err := Load(filepath.Join(t.TempDir(), "nope.org-gh.json"))
	require.NoError(t, err)
	assert.Nil(t, b)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.org.org-gh.json")
	ts := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)

	b := New("octo/widgets")
	b.LastSync = ts
	b.Record(7, &Record{
		Identity:      "fix-flake",
		Title:         "Fix flake",
		BodyDigest:    "sha256:abc",
		State:         "TODO",
		Assignees:     []string{"alice"},
		Labels:        []string{"bug"},
		GHModifiedAt:  ts,
		OrgModifiedAt: ts,
	})
	b.AddPendingCreate("new-thing", "New thing")
	require.NoError(t, b.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, Version, got.Version)
	assert.Equal(t, "octo/widgets", got.Repo)
	assert.True(t, got.LastSync.Equal(ts))
	require.Contains(t, got.Items, 7)
	assert.Equal(t, "fix-flake", got.Items[7].Identity)
	assert.Equal(t, "TODO", got.Items[7].State)
	require.Len(t, got.PendingCreates, 1)
	assert.Equal(t, "new-thing", got.PendingCreates[0].Identity)

	// No stray temp files after an atomic save.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestUnknownFieldsSurviveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.org.org-gh.json")
	doc := `{
  "version": 1,
  "repo": "o/r",
  "items": {},
  "pending_creates": [],
  "experimental_flag": {"nested": true}
}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	b, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, b.Save(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Contains(t, decoded, "experimental_flag")
}

func TestLoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.org.org-gh.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := Load(path)
	var serr *StateError
	require.ErrorAs(t, err, &serr)
	assert.Contains(t, serr.Error(), "reinitialize")
}

func TestLoadNewerVersionRefused(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.org.org-gh.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version": 99, "repo": "o/r", "items": {}}`), 0o644))

	_, err := Load(path)
	var serr *StateError
	require.ErrorAs(t, err, &serr)
	assert.Contains(t, serr.Msg, "newer")
}

func TestRecordClearsPendingCreate(t *testing.T) {
	b := New("o/r")
	b.AddPendingCreate("thing", "Thing")
	b.Record(3, &Record{Identity: "thing", Title: "Thing"})
	assert.Empty(t, b.PendingCreates)
	num, rec := b.ByIdentity("thing")
	assert.Equal(t, 3, num)
	require.NotNil(t, rec)
}

func TestNumbersSorted(t *testing.T) {
	b := New("o/r")
	for _, n := range []int{9, 2, 5} {
		b.Items[n] = &Record{}
	}
	assert.Equal(t, []int{2, 5, 9}, b.Numbers())
}

func TestLockBusy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.org.org-gh.json")
	l1, err := Acquire(path)
	require.NoError(t, err)
	defer l1.Release()

	_, err = Acquire(path)
	var busy *BusyError
	require.ErrorAs(t, err, &busy)

	l1.Release()
	l3, err := Acquire(path)
	require.NoError(t, err)
	l3.Release()
}
