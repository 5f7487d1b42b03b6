package edz

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/beam-cloud/edz/pkg/common"
	"github.com/beam-cloud/edz/pkg/metrics"
	"github.com/gofrs/flock"
	"github.com/rs/zerolog/log"
)

type EdzArchiverOptions struct {
	Magic uint32

	// Lock takes an advisory file lock on "<archive>.lock" for the duration
	// of Pack and Unpack.
	Lock bool
}

// EdzArchiver owns the split between header and payload in a single file.
type EdzArchiver struct {
	codec *HeaderCodec
	lock  bool

	readFile   func(name string) ([]byte, error)
	openOutput func(name string) (*os.File, error)
}

func NewEdzArchiver(opts EdzArchiverOptions) *EdzArchiver {
	return &EdzArchiver{
		codec:      NewHeaderCodec(opts.Magic),
		lock:       opts.Lock,
		readFile:   os.ReadFile,
		openOutput: os.Create,
	}
}

func (ea *EdzArchiver) Codec() *HeaderCodec {
	return ea.codec
}

// DefaultOutputPath is "<root>/<base(root)>.edz" for a directory and
// "<dir(file)>/<base(file)>.edz" for a single file.
func DefaultOutputPath(sourceRoot string) (string, error) {
	fi, err := os.Stat(sourceRoot)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", common.ErrPathNotFound, sourceRoot)
		}
		return "", err
	}

	dir := sourceRoot
	if !fi.IsDir() {
		dir = filepath.Dir(sourceRoot)
	}
	return filepath.Join(dir, filepath.Base(sourceRoot)+common.EdzFileExtension), nil
}

func (ea *EdzArchiver) acquire(archivePath string) (func(), error) {
	if !ea.lock {
		return func() {}, nil
	}

	lockFilePath := fmt.Sprintf("%s.lock", archivePath)
	fileLock := flock.New(lockFilePath)
	if err := fileLock.Lock(); err != nil {
		return nil, fmt.Errorf("unable to lock %s: %w", archivePath, err)
	}

	return func() {
		// Removing after unlock lets a waiter on the old inode and a caller
		// creating a fresh lock file both proceed. The lock only guards
		// cooperating edz processes.
		fileLock.Unlock()
		os.Remove(lockFilePath)
	}, nil
}

// Pack compresses sourceRoot and writes header followed by the payload to
// outputPath. An empty outputPath uses DefaultOutputPath. The payload is
// built before outputPath is opened: if reading or compressing the source
// fails, a file already at outputPath is kept untouched. If writing fails,
// the partially written output file is removed on a best-effort basis.
func (ea *EdzArchiver) Pack(header [common.EdzHeaderLength]byte, sourceRoot string, outputPath string) (string, error) {
	start := time.Now()

	outputPath, written, entries, err := ea.pack(header, sourceRoot, outputPath)
	if err != nil {
		metrics.GlobalMetrics.RecordFailure("pack")
		return "", err
	}

	metrics.GlobalMetrics.RecordPack(written, entries, time.Since(start))
	return outputPath, nil
}

func (ea *EdzArchiver) pack(header [common.EdzHeaderLength]byte, sourceRoot string, outputPath string) (string, int64, int, error) {
	sourceRoot, err := filepath.Abs(sourceRoot)
	if err != nil {
		return "", 0, 0, err
	}

	if outputPath == "" {
		outputPath, err = DefaultOutputPath(sourceRoot)
		if err != nil {
			return "", 0, 0, err
		}
	}

	outputPath, err = filepath.Abs(outputPath)
	if err != nil {
		return "", 0, 0, err
	}

	release, err := ea.acquire(outputPath)
	if err != nil {
		return "", 0, 0, err
	}
	defer release()

	index := common.NewIndex()
	if err := populateIndex(index, sourceRoot, outputPath, outputPath+".lock"); err != nil {
		return "", 0, 0, err
	}

	log.Debug().Msgf("creating in-memory payload of %s (%d entries)", sourceRoot, index.Len())
	payload, err := buildPayload(index, ea.readFile)
	if err != nil {
		return "", 0, 0, err
	}

	log.Debug().Msgf("writing archive to %s", outputPath)
	outFile, err := ea.openOutput(outputPath)
	if err != nil {
		return "", 0, 0, err
	}

	written, err := writeArchive(outFile, header, payload)
	if err != nil {
		log.Debug().Msgf("removing possibly invalid archive %s", outputPath)
		if rmErr := os.Remove(outputPath); rmErr != nil {
			log.Debug().Err(rmErr).Msgf("unable to remove %s", outputPath)
		}
		return "", 0, 0, err
	}

	return outputPath, written, index.Len(), nil
}

func writeArchive(outFile *os.File, header [common.EdzHeaderLength]byte, payload []byte) (int64, error) {
	var written int64

	n, err := outFile.Write(header[:])
	written += int64(n)
	if err != nil {
		outFile.Close()
		return written, fmt.Errorf("failed to write header: %w", err)
	}

	n, err = outFile.Write(payload)
	written += int64(n)
	if err != nil {
		outFile.Close()
		return written, fmt.Errorf("failed to write payload: %w", err)
	}

	if err := outFile.Close(); err != nil {
		return written, fmt.Errorf("failed to close archive: %w", err)
	}
	return written, nil
}

// archiveFile is an open archive with its decoded header.
type archiveFile struct {
	file   *os.File
	size   int64
	header common.EdzArchiveHeader
}

func openArchive(archivePath string) (*archiveFile, error) {
	file, err := os.Open(archivePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", common.ErrPathNotFound, archivePath)
		}
		return nil, err
	}

	fi, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}

	headerBytes := make([]byte, common.EdzHeaderLength)
	n, err := io.ReadFull(file, headerBytes)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		file.Close()
		return nil, err
	}

	header, err := DecodeHeader(headerBytes[:n])
	if err != nil {
		file.Close()
		return nil, err
	}

	return &archiveFile{file: file, size: fi.Size(), header: header}, nil
}

// ExtractMetadata decodes the header and lists the payload entries without
// decompressing them.
func (ea *EdzArchiver) ExtractMetadata(archivePath string) (*common.EdzArchiveMetadata, error) {
	af, err := openArchive(archivePath)
	if err != nil {
		return nil, err
	}
	defer af.file.Close()

	zr, err := openPayload(af.file, af.size)
	if err != nil {
		return nil, err
	}

	return &common.EdzArchiveMetadata{
		Header: af.header,
		Index:  indexPayload(zr),
	}, nil
}

// Peek returns the header and entry names of an archive. Nothing is extracted.
func (ea *EdzArchiver) Peek(archivePath string) (common.EdzArchiveHeader, []string, error) {
	metadata, err := ea.ExtractMetadata(archivePath)
	if err != nil {
		metrics.GlobalMetrics.RecordFailure("peek")
		return common.EdzArchiveHeader{}, nil, err
	}

	metrics.GlobalMetrics.RecordPeek()
	return metadata.Header, metadata.Names(), nil
}

// Unpack extracts every entry of archivePath below outputDir, defaulting to
// the directory containing the archive, and returns the decoded header.
func (ea *EdzArchiver) Unpack(archivePath string, outputDir string) (common.EdzArchiveHeader, error) {
	start := time.Now()

	header, written, entries, err := ea.unpack(archivePath, outputDir)
	if err != nil {
		metrics.GlobalMetrics.RecordFailure("unpack")
		return common.EdzArchiveHeader{}, err
	}

	metrics.GlobalMetrics.RecordUnpack(written, entries, time.Since(start))
	return header, nil
}

func (ea *EdzArchiver) unpack(archivePath string, outputDir string) (common.EdzArchiveHeader, int64, int, error) {
	archivePath, err := filepath.Abs(archivePath)
	if err != nil {
		return common.EdzArchiveHeader{}, 0, 0, err
	}

	if outputDir == "" {
		outputDir = filepath.Dir(archivePath)
	}

	outputDir, err = filepath.Abs(outputDir)
	if err != nil {
		return common.EdzArchiveHeader{}, 0, 0, err
	}

	release, err := ea.acquire(archivePath)
	if err != nil {
		return common.EdzArchiveHeader{}, 0, 0, err
	}
	defer release()

	af, err := openArchive(archivePath)
	if err != nil {
		return common.EdzArchiveHeader{}, 0, 0, err
	}
	defer af.file.Close()

	zr, err := openPayload(af.file, af.size)
	if err != nil {
		return common.EdzArchiveHeader{}, 0, 0, err
	}

	entries, written, err := extractPayload(zr, outputDir)
	if err != nil {
		return common.EdzArchiveHeader{}, 0, 0, err
	}

	return af.header, written, entries, nil
}

// VerifyMagic reads only the first four bytes of archivePath and compares
// them against expected. Any read failure reports false.
func (ea *EdzArchiver) VerifyMagic(archivePath string, expected uint32) bool {
	metrics.GlobalMetrics.RecordVerify()

	file, err := os.Open(archivePath)
	if err != nil {
		log.Debug().Err(err).Msgf("unable to open %s", archivePath)
		return false
	}
	defer file.Close()

	magic := make([]byte, 4)
	n, err := io.ReadFull(file, magic)
	if err != nil {
		log.Debug().Err(err).Msgf("unable to read magic from %s", archivePath)
	}
	return CheckMagic(magic[:n], expected)
}
