package common

import (
	"encoding/hex"
	"fmt"
	"time"
)

const (
	EdzHeaderLength        = 37
	EdzFileExtension       = ".edz"
	DefaultMagic    uint32 = 0x4E5A4445 // "EDZN"
)

/*

Header layout, all fields little-endian:

	Magic     uint32  offset 0
	TypeID    uint64  offset 4
	UIDHigh   uint64  offset 12
	UIDLow    uint64  offset 20
	Timestamp uint64  offset 28
	Delta     uint8   offset 36

The zip payload starts at EdzHeaderLength and runs to EOF.

*/

const (
	MagicOffset     = 0
	TypeIDOffset    = 4
	UIDHighOffset   = 12
	UIDLowOffset    = 20
	TimestampOffset = 28
	DeltaOffset     = 36
)

// UID is a 128-bit identifier. Hi holds the upper 64 bits, Lo the lower 64.
// Every bit is random; there are no version or variant bits.
type UID struct {
	Hi uint64
	Lo uint64
}

func (u UID) String() string {
	return fmt.Sprintf("%016x%016x", u.Hi, u.Lo)
}

func (u UID) IsZero() bool {
	return u.Hi == 0 && u.Lo == 0
}

// ParseUID parses the 32 hex digit form produced by UID.String.
func ParseUID(s string) (UID, error) {
	if len(s) != 32 {
		return UID{}, fmt.Errorf("%w: uid %q must be 32 hex digits", ErrInvalidField, s)
	}

	b, err := hex.DecodeString(s)
	if err != nil {
		return UID{}, fmt.Errorf("%w: uid %q: %v", ErrInvalidField, s, err)
	}

	var u UID
	for i := 0; i < 8; i++ {
		u.Hi = u.Hi<<8 | uint64(b[i])
		u.Lo = u.Lo<<8 | uint64(b[8+i])
	}
	return u, nil
}

// EdzArchiveHeader is the decoded form of the 37 byte header.
type EdzArchiveHeader struct {
	Magic     uint32
	TypeID    uint64
	UID       UID
	Timestamp uint64
	Delta     bool
}

// CreatedAt returns the header timestamp as a time.Time.
func (h EdzArchiveHeader) CreatedAt() time.Time {
	return time.Unix(int64(h.Timestamp), 0).UTC()
}
