package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUIDString(t *testing.T) {
	uid := UID{Hi: 0x0123456789abcdef, Lo: 0xfedcba9876543210}
	assert.Equal(t, "0123456789abcdeffedcba9876543210", uid.String())
	assert.Equal(t, "00000000000000000000000000000000", UID{}.String())
	assert.True(t, UID{}.IsZero())
	assert.False(t, uid.IsZero())
}

func TestParseUID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    UID
		wantErr bool
	}{
		{"round trip", "0123456789abcdeffedcba9876543210", UID{Hi: 0x0123456789abcdef, Lo: 0xfedcba9876543210}, false},
		{"upper case", "FFFFFFFFFFFFFFFF0000000000000001", UID{Hi: ^uint64(0), Lo: 1}, false},
		{"too short", "abc", UID{}, true},
		{"too long", "0123456789abcdeffedcba987654321000", UID{}, true},
		{"not hex", "zz23456789abcdeffedcba9876543210", UID{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseUID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidField)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, mustParse(t, got.String()))
		})
	}
}

func mustParse(t *testing.T, s string) UID {
	t.Helper()
	uid, err := ParseUID(s)
	require.NoError(t, err)
	return uid
}

func TestHeaderCreatedAt(t *testing.T) {
	h := EdzArchiveHeader{Timestamp: 1584403200}
	assert.Equal(t, time.Date(2020, 3, 17, 0, 0, 0, 0, time.UTC), h.CreatedAt())
}

func TestHeaderOffsets(t *testing.T) {
	assert.Equal(t, EdzHeaderLength, DeltaOffset+1)
	assert.Equal(t, 4, TypeIDOffset-MagicOffset)
	assert.Equal(t, 8, UIDHighOffset-TypeIDOffset)
	assert.Equal(t, 8, UIDLowOffset-UIDHighOffset)
	assert.Equal(t, 8, TimestampOffset-UIDLowOffset)
	assert.Equal(t, 8, DeltaOffset-TimestampOffset)
}
