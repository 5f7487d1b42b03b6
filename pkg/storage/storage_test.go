package storage

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/beam-cloud/edz/pkg/common"
	"github.com/beam-cloud/edz/pkg/edz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestArchive packs a small tree and returns the archive path and bytes.
func createTestArchive(t *testing.T) (string, []byte) {
	t.Helper()

	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "hello.txt"), []byte("hello edz"), 0644))

	archivePath, _, err := edz.CreateArchive(edz.CreateOptions{
		InputPath:  src,
		OutputPath: filepath.Join(t.TempDir(), "bundle.edz"),
		TypeID:     7,
		UID:        &common.UID{Hi: 1, Lo: 2},
		Now:        func() time.Time { return time.Unix(1700000000, 0) },
	})
	require.NoError(t, err)

	data, err := os.ReadFile(archivePath)
	require.NoError(t, err)
	return archivePath, data
}

func TestCheckArchive(t *testing.T) {
	archivePath, _ := createTestArchive(t)
	require.NoError(t, checkArchive(archivePath))

	short := filepath.Join(t.TempDir(), "short.edz")
	require.NoError(t, os.WriteFile(short, []byte("EDZN"), 0644))
	err := checkArchive(short)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrTruncatedHeader)

	err = checkArchive(filepath.Join(t.TempDir(), "missing.edz"))
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrPathNotFound)
}

func TestWriteFileLocked(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "nested", "out.bin")

	n, err := writeFileLocked(bytes.NewReader([]byte("payload")), dest)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	entries, err := os.ReadDir(filepath.Dir(dest))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp and lock files should be gone")
	assert.Equal(t, "out.bin", entries[0].Name())
}

func TestNewEdzStorage(t *testing.T) {
	ctx := context.Background()

	s, err := NewEdzStorage(ctx, EdzStorageOpts{Mode: common.StorageModeLocal, LocalDir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &LocalEdzStorage{}, s)

	_, err = NewEdzStorage(ctx, EdzStorageOpts{Mode: common.StorageModeS3})
	assert.Error(t, err)

	_, err = NewEdzStorage(ctx, EdzStorageOpts{Mode: "ftp"})
	assert.Error(t, err)
}
