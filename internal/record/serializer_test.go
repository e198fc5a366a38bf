package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirixdb/sirix-go/internal/codec"
)

func TestDataRoundTrip(t *testing.T) {
	s := DataSerializer{}
	in := &Data{Key: 77, ID: []byte{1, 2}, Payload: []byte("hello")}

	buf := codec.NewBuffer(nil)
	require.NoError(t, s.Serialize(buf, in))

	out, err := s.Deserialize(buf, 77, []byte{1, 2})
	require.NoError(t, err)
	assert.True(t, Equal(in, out))
	assert.False(t, IsDeleted(out))
}

func TestTombstoneRoundTrip(t *testing.T) {
	s := DataSerializer{}
	in := &Tombstone{Key: 9}

	buf := codec.NewBuffer(nil)
	require.NoError(t, s.Serialize(buf, in))

	out, err := s.Deserialize(buf, 9, nil)
	require.NoError(t, err)
	assert.True(t, IsDeleted(out))
	assert.Equal(t, uint64(9), out.NodeKey())
}

func TestDeserializeUnknownKind(t *testing.T) {
	s := DataSerializer{}
	_, err := s.Deserialize(codec.NewBuffer([]byte{0xFF}), 1, nil)
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestDeweyDeltaRoundTrip(t *testing.T) {
	s := DataSerializer{}
	ids := [][]byte{
		{0x01},
		{0x01, 0x02},
		{0x01, 0x02, 0x07},
		{0x02},
	}

	buf := codec.NewBuffer(nil)
	var prev []byte
	for _, id := range ids {
		require.NoError(t, s.SerializeDeweyID(buf, prev, id))
		prev = id
	}

	prev = nil
	for _, want := range ids {
		got, err := s.DeserializeDeweyID(buf, prev)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		prev = got
	}
}

func TestDeweyDeltaCorruptPrefix(t *testing.T) {
	s := DataSerializer{}
	buf := codec.NewBuffer(nil)
	codec.PutUvarint(buf, 5) // shared prefix longer than empty base
	codec.PutUvarint(buf, 0)
	_, err := s.DeserializeDeweyID(buf, nil)
	assert.ErrorIs(t, err, ErrDecode)
}
