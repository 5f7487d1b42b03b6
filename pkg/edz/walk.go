package edz

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/beam-cloud/edz/pkg/common"
	"github.com/karrick/godirwalk"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/btree"
)

// populateIndex records every regular file under sourceRoot, keyed by its
// slash separated path relative to the root. A symlinked root is followed. A
// single file root is recorded under its base name. Paths in exclude are
// skipped (the archive being written and its lock file).
func populateIndex(index *btree.BTree, sourceRoot string, exclude ...string) error {
	resolvedRoot, err := filepath.EvalSymlinks(sourceRoot)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", common.ErrPathNotFound, sourceRoot)
		}
		return err
	}

	fi, err := os.Stat(resolvedRoot)
	if err != nil {
		return err
	}

	if !fi.IsDir() {
		index.Set(&common.EdzNode{
			Path:       filepath.Base(sourceRoot),
			SourcePath: resolvedRoot,
			Size:       fi.Size(),
			Mode:       fi.Mode().Perm(),
			ModTime:    fi.ModTime(),
		})
		return nil
	}

	// Walk paths are below resolvedRoot, so excludes reached through the
	// original root need the same resolution.
	resolvedExclude := make([]string, 0, len(exclude))
	for _, path := range exclude {
		resolvedExclude = append(resolvedExclude, resolveParent(path))
	}
	sourceRoot = resolvedRoot
	exclude = resolvedExclude

	return godirwalk.Walk(sourceRoot, &godirwalk.Options{
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de.IsDir() {
				return nil
			}

			if !de.IsRegular() {
				log.Debug().Msgf("skipping non-regular file: %s", path)
				return nil
			}

			for _, skip := range exclude {
				if path == skip {
					log.Debug().Msgf("skipping %s", path)
					return nil
				}
			}

			rel, err := filepath.Rel(sourceRoot, path)
			if err != nil {
				return fmt.Errorf("error computing relative path for %s: %w", path, err)
			}

			info, err := os.Lstat(path)
			if err != nil {
				return err
			}

			index.Set(&common.EdzNode{
				Path:       filepath.ToSlash(rel),
				SourcePath: path,
				Size:       info.Size(),
				Mode:       info.Mode().Perm(),
				ModTime:    info.ModTime(),
			})
			return nil
		},
		Unsorted: false,
	})
}

// resolveParent resolves symlinks in the directory part of path. The file
// itself may not exist yet.
func resolveParent(path string) string {
	dir, err := filepath.EvalSymlinks(filepath.Dir(path))
	if err != nil {
		return path
	}
	return filepath.Join(dir, filepath.Base(path))
}
