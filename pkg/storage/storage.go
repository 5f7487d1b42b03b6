package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/beam-cloud/edz/pkg/common"
	"github.com/beam-cloud/edz/pkg/edz"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

// EdzStorageInterface stores finished archives and fetches them back.
type EdzStorageInterface interface {
	// Store copies the archive at archivePath into the store and returns
	// its location there.
	Store(ctx context.Context, archivePath string) (string, error)
	// Fetch copies the archive called name out of the store to destPath.
	Fetch(ctx context.Context, name string, destPath string) error
}

type EdzStorageCredentials struct {
	S3 *S3StorageCredentials
}

type EdzStorageOpts struct {
	Mode        common.StorageMode
	LocalDir    string
	StorageInfo *common.S3StorageInfo
	Credentials EdzStorageCredentials
}

func NewEdzStorage(ctx context.Context, opts EdzStorageOpts) (EdzStorageInterface, error) {
	switch opts.Mode {
	case common.StorageModeLocal:
		return NewLocalEdzStorage(LocalEdzStorageOpts{Dir: opts.LocalDir})
	case common.StorageModeS3:
		if opts.StorageInfo == nil {
			return nil, errors.New("storage info not provided")
		}

		s3Opts := S3EdzStorageOpts{
			Bucket:         opts.StorageInfo.Bucket,
			Prefix:         opts.StorageInfo.Prefix,
			Region:         opts.StorageInfo.Region,
			Endpoint:       opts.StorageInfo.Endpoint,
			ForcePathStyle: opts.StorageInfo.ForcePathStyle,
		}
		if opts.Credentials.S3 != nil {
			s3Opts.AccessKey = opts.Credentials.S3.AccessKey
			s3Opts.SecretKey = opts.Credentials.S3.SecretKey
		}
		return NewS3EdzStorage(ctx, s3Opts)
	default:
		return nil, fmt.Errorf("unsupported storage type %q", opts.Mode)
	}
}

// checkArchive rejects files too short to hold a header.
func checkArchive(archivePath string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", common.ErrPathNotFound, archivePath)
		}
		return err
	}
	defer f.Close()

	headerBytes := make([]byte, common.EdzHeaderLength)
	n, _ := io.ReadFull(f, headerBytes)
	if _, err := edz.DecodeHeader(headerBytes[:n]); err != nil {
		return fmt.Errorf("refusing to store %s: %w", archivePath, err)
	}
	return nil
}

// writeFileLocked copies src to destPath through a uniquely named temp file
// and a rename, holding "<destPath>.lock" while doing so.
func writeFileLocked(src io.Reader, destPath string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return 0, err
	}

	lockFilePath := fmt.Sprintf("%s.lock", destPath)
	fileLock := flock.New(lockFilePath)

	locked, err := fileLock.TryLock()
	if err != nil {
		return 0, fmt.Errorf("error while trying to acquire file lock: %w", err)
	}
	if !locked {
		return 0, fmt.Errorf("another process is already writing %s", destPath)
	}
	// Unlock runs before the remove, so a writer that already opened the old
	// lock file can take it while another creates a fresh one.
	defer os.Remove(lockFilePath)
	defer fileLock.Unlock()

	tmpFile := fmt.Sprintf("%s.%s", destPath, uuid.New().String()[:6])
	f, err := os.Create(tmpFile)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(f, src)
	if err != nil {
		f.Close()
		os.Remove(tmpFile)
		return n, err
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpFile)
		return n, err
	}

	if err := os.Rename(tmpFile, destPath); err != nil {
		os.Remove(tmpFile)
		return n, fmt.Errorf("failed to move %s into place: %w", tmpFile, err)
	}
	return n, nil
}
