package edz

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/beam-cloud/edz/pkg/common"
	"github.com/beam-cloud/edz/pkg/metrics"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// SetLogLevel configures the logging verbosity for the edz library.
// Valid levels: "debug", "info", "warn", "error", "disabled"
func SetLogLevel(level string) error {
	switch strings.ToLower(level) {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn", "warning":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case "disabled", "none", "off":
		zerolog.SetGlobalLevel(zerolog.Disabled)
	default:
		return fmt.Errorf("invalid log level %q: must be one of: debug, info, warn, error, disabled", level)
	}
	return nil
}

type CreateOptions struct {
	InputPath  string
	OutputPath string  // defaults to <input>/<base(input)>.edz
	Magic      *uint32 // nil selects common.DefaultMagic
	TypeID     uint64
	UID        *common.UID // nil generates a random uid
	Delta      bool
	Lock       bool

	Now    func() time.Time // defaults to time.Now
	Random io.Reader        // defaults to crypto/rand
}

type ExtractOptions struct {
	InputFile  string
	OutputPath string // defaults to the directory holding InputFile
	Lock       bool
}

func magicOrDefault(magic *uint32) uint32 {
	if magic == nil {
		return common.DefaultMagic
	}
	return *magic
}

// CreateArchive builds a header from options and packs InputPath.
// It returns the written path and the header stored in it.
func CreateArchive(options CreateOptions) (string, common.EdzArchiveHeader, error) {
	log.Info().Msgf("creating archive from %s", options.InputPath)

	a := NewEdzArchiver(EdzArchiverOptions{
		Magic: magicOrDefault(options.Magic),
		Lock:  options.Lock,
	})

	var uid common.UID
	if options.UID != nil {
		uid = *options.UID
	} else {
		generated, err := GenerateUID(options.Random)
		if err != nil {
			return "", common.EdzArchiveHeader{}, err
		}
		uid = generated
	}

	now := time.Now
	if options.Now != nil {
		now = options.Now
	}

	header, err := a.Codec().HeaderAt(options.TypeID, uid, options.Delta, now())
	if err != nil {
		return "", common.EdzArchiveHeader{}, err
	}

	outputPath, err := a.Pack(header, options.InputPath, options.OutputPath)
	if err != nil {
		return "", common.EdzArchiveHeader{}, fmt.Errorf("failed to create archive from %s: %w", options.InputPath, err)
	}

	decoded, err := DecodeHeader(header[:])
	if err != nil {
		return "", common.EdzArchiveHeader{}, err
	}

	log.Info().Msgf("archive created successfully: %s", outputPath)
	return outputPath, decoded, nil
}

// ExtractArchive unpacks an archive and returns its header.
func ExtractArchive(options ExtractOptions) (common.EdzArchiveHeader, error) {
	log.Info().Msgf("extracting archive: %s", options.InputFile)

	a := NewEdzArchiver(EdzArchiverOptions{Lock: options.Lock})
	header, err := a.Unpack(options.InputFile, options.OutputPath)
	if err != nil {
		return common.EdzArchiveHeader{}, err
	}

	log.Info().Msg("archive extracted successfully")
	return header, nil
}

// PeekArchive returns the header and entry index of an archive.
func PeekArchive(archivePath string) (*common.EdzArchiveMetadata, error) {
	a := NewEdzArchiver(EdzArchiverOptions{})
	metadata, err := a.ExtractMetadata(archivePath)
	if err != nil {
		metrics.GlobalMetrics.RecordFailure("peek")
		return nil, err
	}

	metrics.GlobalMetrics.RecordPeek()
	return metadata, nil
}

// VerifyArchive reports whether archivePath starts with magic.
func VerifyArchive(archivePath string, magic uint32) bool {
	a := NewEdzArchiver(EdzArchiverOptions{Magic: magic})
	return a.VerifyMagic(archivePath, magic)
}

// VerifyArchives checks many archives concurrently, at most concurrency at a
// time (values below 1 mean one). The result maps each path to its verdict.
func VerifyArchives(ctx context.Context, archivePaths []string, magic uint32, concurrency int) (map[string]bool, error) {
	if concurrency < 1 {
		concurrency = 1
	}

	results := make([]bool, len(archivePaths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, archivePath := range archivePaths {
		i, archivePath := i, archivePath
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = VerifyArchive(archivePath, magic)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	verdicts := make(map[string]bool, len(archivePaths))
	for i, archivePath := range archivePaths {
		verdicts[archivePath] = results[i]
	}
	return verdicts, nil
}
