package edz

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/beam-cloud/edz/pkg/common"
	"github.com/rs/zerolog/log"
)

// HeaderCodec encodes and decodes edz headers. The magic written by
// MakeHeader is fixed when the codec is constructed.
type HeaderCodec struct {
	magic uint32
}

func NewHeaderCodec(magic uint32) *HeaderCodec {
	return &HeaderCodec{magic: magic}
}

func (hc *HeaderCodec) Magic() uint32 {
	return hc.magic
}

// MakeHeader packs the header fields into the fixed 37 byte layout.
// now is seconds since the Unix epoch and is written as given.
func (hc *HeaderCodec) MakeHeader(typeID uint64, uid common.UID, delta bool, now uint64) [common.EdzHeaderLength]byte {
	header := common.EdzArchiveHeader{
		Magic:     hc.magic,
		TypeID:    typeID,
		UID:       uid,
		Timestamp: now,
		Delta:     delta,
	}

	log.Debug().
		Uint32("magic", header.Magic).
		Uint64("type_id", header.TypeID).
		Str("uid", header.UID.String()).
		Bool("delta", header.Delta).
		Uint64("timestamp", header.Timestamp).
		Msg("making header")

	var buf [common.EdzHeaderLength]byte
	EncodeHeader(buf[:], header)
	return buf
}

// HeaderAt is MakeHeader with the timestamp taken from t. Times before the
// Unix epoch do not fit the unsigned timestamp field.
func (hc *HeaderCodec) HeaderAt(typeID uint64, uid common.UID, delta bool, t time.Time) ([common.EdzHeaderLength]byte, error) {
	secs := t.Unix()
	if secs < 0 {
		return [common.EdzHeaderLength]byte{}, fmt.Errorf("%w: timestamp %s is before the unix epoch", common.ErrInvalidField, t.Format(time.RFC3339))
	}
	return hc.MakeHeader(typeID, uid, delta, uint64(secs)), nil
}

// MakeHeaderFromInts builds a header from signed values, as produced by
// callers that parse untyped input. Negative values are rejected.
func (hc *HeaderCodec) MakeHeaderFromInts(typeID int64, uid common.UID, delta bool, now int64) ([common.EdzHeaderLength]byte, error) {
	if typeID < 0 {
		return [common.EdzHeaderLength]byte{}, fmt.Errorf("%w: type id %d is negative", common.ErrInvalidField, typeID)
	}
	if now < 0 {
		return [common.EdzHeaderLength]byte{}, fmt.Errorf("%w: timestamp %d is negative", common.ErrInvalidField, now)
	}
	return hc.MakeHeader(uint64(typeID), uid, delta, uint64(now)), nil
}

// EncodeHeader writes h into buf, which must be at least EdzHeaderLength bytes.
func EncodeHeader(buf []byte, h common.EdzArchiveHeader) {
	binary.LittleEndian.PutUint32(buf[common.MagicOffset:common.TypeIDOffset], h.Magic)
	binary.LittleEndian.PutUint64(buf[common.TypeIDOffset:common.UIDHighOffset], h.TypeID)
	binary.LittleEndian.PutUint64(buf[common.UIDHighOffset:common.UIDLowOffset], h.UID.Hi)
	binary.LittleEndian.PutUint64(buf[common.UIDLowOffset:common.TimestampOffset], h.UID.Lo)
	binary.LittleEndian.PutUint64(buf[common.TimestampOffset:common.DeltaOffset], h.Timestamp)

	buf[common.DeltaOffset] = 0
	if h.Delta {
		buf[common.DeltaOffset] = 1
	}
}

// DecodeHeader reads a header from the first EdzHeaderLength bytes of data.
// Trailing bytes are ignored.
func DecodeHeader(data []byte) (common.EdzArchiveHeader, error) {
	if len(data) < common.EdzHeaderLength {
		return common.EdzArchiveHeader{}, fmt.Errorf("%w: need %d bytes, got %d", common.ErrTruncatedHeader, common.EdzHeaderLength, len(data))
	}

	var h common.EdzArchiveHeader
	h.Magic = binary.LittleEndian.Uint32(data[common.MagicOffset:common.TypeIDOffset])
	h.TypeID = binary.LittleEndian.Uint64(data[common.TypeIDOffset:common.UIDHighOffset])
	h.UID.Hi = binary.LittleEndian.Uint64(data[common.UIDHighOffset:common.UIDLowOffset])
	h.UID.Lo = binary.LittleEndian.Uint64(data[common.UIDLowOffset:common.TimestampOffset])
	h.Timestamp = binary.LittleEndian.Uint64(data[common.TimestampOffset:common.DeltaOffset])

	switch data[common.DeltaOffset] {
	case 0:
		h.Delta = false
	case 1:
		h.Delta = true
	default:
		return common.EdzArchiveHeader{}, fmt.Errorf("%w: delta flag must be 0 or 1, got %d", common.ErrInvalidField, data[common.DeltaOffset])
	}

	return h, nil
}

// GenerateUID reads 128 random bits from r. A nil r uses crypto/rand.
func GenerateUID(r io.Reader) (common.UID, error) {
	if r == nil {
		r = rand.Reader
	}

	var b [16]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return common.UID{}, fmt.Errorf("unable to generate uid: %w", err)
	}

	uid := common.UID{
		Hi: binary.BigEndian.Uint64(b[0:8]),
		Lo: binary.BigEndian.Uint64(b[8:16]),
	}
	log.Debug().Str("uid", uid.String()).Msg("generated random uid")
	return uid, nil
}

// CheckMagic reports whether the first four bytes of b are the little-endian
// encoding of expected.
func CheckMagic(b []byte, expected uint32) bool {
	if len(b) < 4 {
		return false
	}
	return binary.LittleEndian.Uint32(b[:4]) == expected
}
