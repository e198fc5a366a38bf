package sirix

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirixdb/sirix-go/internal/page"
	"github.com/sirixdb/sirix-go/internal/record"
	"github.com/sirixdb/sirix-go/internal/resource"
	"github.com/sirixdb/sirix-go/internal/revision"
)

func TestWriteThenOpen(t *testing.T) {
	dir := t.TempDir()
	cfg := resource.Default(dir)

	w, err := BeginWrite(cfg)
	require.NoError(t, err)
	require.NoError(t, w.Put(page.Document, &record.Data{Key: 1, Payload: []byte("doc")}))
	rev, err := w.Commit("tester", "first")
	require.NoError(t, err)
	require.Equal(t, int32(0), rev)

	rt, err := Open(dir, 0)
	require.NoError(t, err)
	defer rt.Close()

	r, err := rt.GetRecord(1, page.Document)
	require.NoError(t, err)
	assert.Equal(t, []byte("doc"), r.(*record.Data).Payload)

	uber, err := rt.UberPage()
	require.NoError(t, err)
	assert.Equal(t, int32(0), uber.LatestRevision())
}

func TestOpenWithConfigCompression(t *testing.T) {
	dir := t.TempDir()
	cfg := resource.Default(dir)
	cfg.Resource.Compression = true
	cfg.Resource.Policy = revision.Incremental.String()

	w, err := BeginWrite(cfg)
	require.NoError(t, err)
	require.NoError(t, w.Put(page.Document, &record.Data{Key: 9, Payload: []byte("compressed")}))
	_, err = w.Commit("tester", "compressed commit")
	require.NoError(t, err)

	rt, err := OpenWithConfig(cfg, 0)
	require.NoError(t, err)
	defer rt.Close()

	r, err := rt.GetRecord(9, page.Document)
	require.NoError(t, err)
	assert.Equal(t, []byte("compressed"), r.(*record.Data).Payload)
}

func TestOpenRejectsBadPolicy(t *testing.T) {
	cfg := resource.Default(t.TempDir())
	cfg.Resource.Policy = "bogus"
	_, err := OpenWithConfig(cfg, 0)
	assert.ErrorIs(t, err, revision.ErrUnknownPolicy)
}

func TestConfigLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "resource.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
resource:
  dir: /data/res1
  policy: differential
  revisions_to_restore: 4
  store_dewey_ids: true
  compression: true
indexes:
  path: true
cache:
  record_slots: 50
`), 0o644))

	cfg, err := resource.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/res1", cfg.Resource.Dir)
	assert.Equal(t, 4, cfg.Resource.RevisionsToRestore)
	assert.True(t, cfg.Resource.StoreDeweyIDs)
	assert.True(t, cfg.Indexes.Path)
	assert.False(t, cfg.Indexes.CAS)
	assert.Equal(t, 50, cfg.Cache.RecordSlots)
	// unset values fall back to defaults
	assert.Equal(t, 20, cfg.Cache.IndexSlots)
	assert.Equal(t, 5000, cfg.Cache.RecordTTLSeconds)

	policy, err := cfg.Policy()
	require.NoError(t, err)
	assert.Equal(t, revision.Differential, policy)
}
