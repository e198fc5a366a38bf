package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirixdb/sirix-go/internal/page"
	"github.com/sirixdb/sirix-go/internal/record"
)

func testContext() page.ResourceContext {
	return page.ResourceContext{Serializer: record.DataSerializer{}}
}

func TestFileRoundTrip(t *testing.T) {
	for _, compress := range []bool{false, true} {
		path := filepath.Join(t.TempDir(), "resource.sirix")

		w, err := OpenWriter(path, compress)
		require.NoError(t, err)

		leaf := page.NewKeyValueLeafPage(0, page.Document, testContext())
		require.NoError(t, leaf.Put(1, &record.Data{Key: 1, Payload: []byte("v")}))
		leafKey, err := w.AppendPage(leaf)
		require.NoError(t, err)

		uber := page.NewUberPage()
		uber.SetLatestRevision(0)
		require.NoError(t, w.WriteUber(uber))
		require.NoError(t, w.Close())

		r, err := OpenReader(path, compress)
		require.NoError(t, err)

		gotUber, err := r.ReadUber(testContext())
		require.NoError(t, err)
		assert.Equal(t, int32(0), gotUber.LatestRevision())

		p, err := r.ReadPage(leafKey, testContext())
		require.NoError(t, err)
		gotLeaf, ok := p.(*page.KeyValueLeafPage)
		require.True(t, ok)
		rec, err := gotLeaf.Get(1)
		require.NoError(t, err)
		assert.Equal(t, []byte("v"), rec.(*record.Data).Payload)

		require.NoError(t, r.Close())
		require.NoError(t, r.Close()) // idempotent
	}
}

func TestReaderRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bogus")
	require.NoError(t, os.WriteFile(path, make([]byte, 64), 0o644))

	_, err := OpenReader(path, false)
	assert.ErrorIs(t, err, ErrBadMagic)
}

func TestReaderNoUber(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resource.sirix")
	w, err := OpenWriter(path, false)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := OpenReader(path, false)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.ReadUber(testContext())
	assert.ErrorIs(t, err, ErrNoUber)
}

func TestReaderDetectsCorruptBlock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resource.sirix")
	w, err := OpenWriter(path, false)
	require.NoError(t, err)
	key, err := w.AppendPage(page.NewOverflowPage([]byte("payload")))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	// flip one body byte
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte{0xFF}, int64(key)+blockHeaderSize)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	r, err := OpenReader(path, false)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.ReadPage(key, testContext())
	assert.ErrorIs(t, err, ErrBadBlock)
}

func TestLogStoreReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.node")
	s, err := OpenLogStore(path)
	require.NoError(t, err)

	require.NoError(t, s.Append(LogEntry{PageKey: 1, Image: []byte("one")}))
	require.NoError(t, s.Append(LogEntry{PageKey: 2, Empty: true}))
	require.NoError(t, s.Append(LogEntry{PageKey: 3, Image: []byte("three")}))

	var got []LogEntry
	require.NoError(t, s.Replay(func(e LogEntry) error {
		got = append(got, e)
		return nil
	}))
	require.Len(t, got, 3)
	assert.Equal(t, []byte("one"), got[0].Image)
	assert.True(t, got[1].Empty)
	assert.Equal(t, uint64(3), got[2].PageKey)

	require.NoError(t, s.Truncate())
	count := 0
	require.NoError(t, s.Replay(func(LogEntry) error { count++; return nil }))
	assert.Equal(t, 0, count)

	require.NoError(t, s.Close())
}

func TestLogStoreToleratesTornTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.node")
	s, err := OpenLogStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Append(LogEntry{PageKey: 1, Image: []byte("intact")}))
	require.NoError(t, s.Close())

	// simulate a crash mid-append: an incomplete record at the tail
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	var partial [12]byte
	copy(partial[:4], []byte{0x53, 0x52, 0x4C, 0x47})
	_, err = f.Write(partial[:])
	require.NoError(t, err)
	require.NoError(t, f.Close())

	s, err = OpenLogStore(path)
	require.NoError(t, err)
	defer s.Close()

	var keys []uint64
	require.NoError(t, s.Replay(func(e LogEntry) error {
		keys = append(keys, e.PageKey)
		return nil
	}))
	assert.Equal(t, []uint64{1}, keys)
}
