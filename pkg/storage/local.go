package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/beam-cloud/edz/pkg/common"
	"github.com/rs/zerolog/log"
)

// LocalEdzStorage keeps archives in a directory on the local filesystem.
type LocalEdzStorage struct {
	dir string
}

type LocalEdzStorageOpts struct {
	Dir string
}

func NewLocalEdzStorage(opts LocalEdzStorageOpts) (*LocalEdzStorage, error) {
	if opts.Dir == "" {
		return nil, errors.New("local storage directory not provided")
	}

	dir, err := filepath.Abs(opts.Dir)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory <%s>: %w", dir, err)
	}

	return &LocalEdzStorage{dir: dir}, nil
}

func (s *LocalEdzStorage) Store(ctx context.Context, archivePath string) (string, error) {
	if err := checkArchive(archivePath); err != nil {
		return "", err
	}

	src, err := os.Open(archivePath)
	if err != nil {
		return "", err
	}
	defer src.Close()

	destPath := filepath.Join(s.dir, filepath.Base(archivePath))
	n, err := writeFileLocked(src, destPath)
	if err != nil {
		return "", err
	}

	log.Info().Msgf("stored %s at %s (%d bytes)", archivePath, destPath, n)
	return destPath, nil
}

func (s *LocalEdzStorage) Fetch(ctx context.Context, name string, destPath string) error {
	srcPath := filepath.Join(s.dir, filepath.Base(name))
	src, err := os.Open(srcPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", common.ErrPathNotFound, srcPath)
		}
		return err
	}
	defer src.Close()

	_, err = writeFileLocked(src, destPath)
	return err
}
