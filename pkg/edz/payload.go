package edz

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/beam-cloud/edz/pkg/common"
	"github.com/klauspost/compress/flate"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/btree"
)

func registerDeflate(zw *zip.Writer) {
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.DefaultCompression)
	})
}

func registerInflate(zr *zip.Reader) {
	zr.RegisterDecompressor(zip.Deflate, func(r io.Reader) io.ReadCloser {
		return flate.NewReader(r)
	})
}

// buildPayload compresses every node of index into an in-memory zip.
func buildPayload(index *btree.BTree, readFile func(string) ([]byte, error)) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	registerDeflate(zw)

	var walkErr error
	if index.Len() > 0 {
		index.Ascend(index.Min(), func(a interface{}) bool {
			node := a.(*common.EdzNode)

			data, err := readFile(node.SourcePath)
			if err != nil {
				walkErr = fmt.Errorf("failed to read %s: %w", node.SourcePath, err)
				return false
			}

			header := &zip.FileHeader{
				Name:     node.Path,
				Method:   zip.Deflate,
				Modified: node.ModTime,
			}
			header.SetMode(node.Mode)

			w, err := zw.CreateHeader(header)
			if err != nil {
				walkErr = fmt.Errorf("failed to create zip entry %s: %w", node.Path, err)
				return false
			}

			if _, err := w.Write(data); err != nil {
				walkErr = fmt.Errorf("failed to compress %s: %w", node.Path, err)
				return false
			}

			log.Debug().Msgf("added %s (%d bytes)", node.Path, len(data))
			return true
		})
	}

	if walkErr != nil {
		zw.Close()
		return nil, walkErr
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize payload: %w", err)
	}

	return buf.Bytes(), nil
}

// openPayload reads the zip central directory stored after the header.
// Entry contents are not decompressed.
func openPayload(r io.ReaderAt, fileSize int64) (*zip.Reader, error) {
	payloadSize := fileSize - common.EdzHeaderLength
	zr, err := zip.NewReader(io.NewSectionReader(r, common.EdzHeaderLength, payloadSize), payloadSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCorruptArchive, err)
	}
	registerInflate(zr)
	return zr, nil
}

func indexPayload(zr *zip.Reader) *btree.BTree {
	index := common.NewIndex()
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		index.Set(&common.EdzNode{
			Path:    f.Name,
			Size:    int64(f.UncompressedSize64),
			Mode:    f.Mode().Perm(),
			ModTime: f.Modified,
		})
	}
	return index
}

// entryPaths maps every entry to its destination below outputDir. Entries
// that would land outside outputDir fail the whole payload.
func entryPaths(zr *zip.Reader, outputDir string) ([]string, error) {
	destPaths := make([]string, len(zr.File))
	for i, file := range zr.File {
		destPath := filepath.Join(outputDir, filepath.FromSlash(file.Name))

		relPath, err := filepath.Rel(outputDir, destPath)
		if err != nil || relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) {
			return nil, fmt.Errorf("%w: invalid entry path %q", common.ErrCorruptArchive, file.Name)
		}
		destPaths[i] = destPath
	}
	return destPaths, nil
}

// extractPayload writes every entry below outputDir. It returns the number
// of regular files and bytes written. Nothing is written unless every entry
// path is valid.
func extractPayload(zr *zip.Reader, outputDir string) (int, int64, error) {
	destPaths, err := entryPaths(zr, outputDir)
	if err != nil {
		return 0, 0, err
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return 0, 0, fmt.Errorf("failed to create output directory: %w", err)
	}

	var entries int
	var written int64

	for i, file := range zr.File {
		destPath := destPaths[i]

		if file.FileInfo().IsDir() {
			if err := os.MkdirAll(destPath, 0755); err != nil {
				return entries, written, fmt.Errorf("failed to create directory: %w", err)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
			return entries, written, fmt.Errorf("failed to create parent directory: %w", err)
		}

		n, err := extractFile(file, destPath)
		if err != nil {
			return entries, written, fmt.Errorf("failed to extract %s: %w", file.Name, err)
		}

		log.Debug().Msgf("extracted %s", file.Name)
		entries++
		written += n
	}

	return entries, written, nil
}

func extractFile(file *zip.File, destPath string) (int64, error) {
	rc, err := file.Open()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", common.ErrCorruptArchive, err)
	}
	defer rc.Close()

	mode := file.Mode().Perm()
	if mode == 0 {
		mode = 0644
	}

	destFile, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return 0, err
	}
	defer destFile.Close()

	n, err := io.Copy(destFile, rc)
	if err != nil {
		// zip reports checksum and inflate errors through the entry reader
		var corrupt flate.CorruptInputError
		if errors.Is(err, zip.ErrChecksum) || errors.Is(err, io.ErrUnexpectedEOF) || errors.As(err, &corrupt) {
			return n, fmt.Errorf("%w: %v", common.ErrCorruptArchive, err)
		}
		return n, err
	}
	return n, nil
}
