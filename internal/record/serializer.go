package record

import (
	"fmt"

	"github.com/sirixdb/sirix-go/internal/codec"
)

// Serializer encodes records into leaf-page slots and decodes them back.
// The slot length framing belongs to the page, not the serializer; a
// serializer only sees the payload bytes.
type Serializer interface {
	Serialize(out *codec.Buffer, r Record) error
	Deserialize(in *codec.Buffer, nodeKey uint64, deweyID []byte) (Record, error)
}

// DeweyCapable is the optional delta codec a serializer offers when the
// resource stores dewey ids. Callers probe for it with a type assertion.
type DeweyCapable interface {
	SerializeDeweyID(out *codec.Buffer, prev, curr []byte) error
	DeserializeDeweyID(in *codec.Buffer, prev []byte) ([]byte, error)
}

const (
	kindData      byte = 1
	kindTombstone byte = 2
)

// DataSerializer is the default codec: a one-byte kind tag followed by the
// raw payload for data records, the tag alone for tombstones.
type DataSerializer struct{}

var _ Serializer = DataSerializer{}
var _ DeweyCapable = DataSerializer{}

func (DataSerializer) Serialize(out *codec.Buffer, r Record) error {
	if IsDeleted(r) {
		return out.WriteByte(kindTombstone)
	}
	d, ok := r.(*Data)
	if !ok {
		return fmt.Errorf("%w: %T", ErrUnknownKind, r)
	}
	out.WriteByte(kindData)
	out.Write(d.Payload)
	return nil
}

func (DataSerializer) Deserialize(in *codec.Buffer, nodeKey uint64, deweyID []byte) (Record, error) {
	kind, err := in.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	switch kind {
	case kindTombstone:
		return &Tombstone{Key: nodeKey, ID: deweyID}, nil
	case kindData:
		payload := make([]byte, in.Remaining())
		if _, err := in.Read(payload); err != nil && in.Remaining() > 0 {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		return &Data{Key: nodeKey, ID: deweyID, Payload: payload}, nil
	default:
		return nil, fmt.Errorf("%w: tag %d", ErrUnknownKind, kind)
	}
}

// SerializeDeweyID writes curr delta-compressed against prev: the length
// of the shared prefix, then the remaining suffix.
func (DataSerializer) SerializeDeweyID(out *codec.Buffer, prev, curr []byte) error {
	common := 0
	for common < len(prev) && common < len(curr) && prev[common] == curr[common] {
		common++
	}
	codec.PutUvarint(out, uint64(common))
	codec.PutUvarint(out, uint64(len(curr)-common))
	out.Write(curr[common:])
	return nil
}

func (DataSerializer) DeserializeDeweyID(in *codec.Buffer, prev []byte) ([]byte, error) {
	common, err := codec.Uvarint(in)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if common > uint64(len(prev)) {
		return nil, fmt.Errorf("%w: shared prefix longer than base", ErrDecode)
	}
	suffixLen, err := codec.Uvarint(in)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	suffix, err := in.Next(int(suffixLen))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	id := make([]byte, int(common)+len(suffix))
	copy(id, prev[:common])
	copy(id[common:], suffix)
	return id, nil
}
