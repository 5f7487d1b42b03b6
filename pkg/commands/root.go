package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/beam-cloud/edz/pkg/common"
	"github.com/beam-cloud/edz/pkg/edz"
	"github.com/beam-cloud/edz/pkg/metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "EDZ"

// newConfig returns a viper instance that resolves flags first, then
// EDZ_* environment variables ("type-id" reads EDZ_TYPE_ID).
func newConfig() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	v.SetDefault("log-level", "info")
	return v
}

func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("unable to bind flags: %w", err)
	}
	return nil
}

// NewRootCmd builds the edz command tree.
func NewRootCmd() *cobra.Command {
	v := newConfig()

	rootCmd := &cobra.Command{
		Use:   "edz <target> [target...]",
		Short: "Create, inspect and extract .edz archives",
		Long: `edz packs a directory (or a single file) into an .edz archive: a 37 byte
header carrying a magic number, a type id, a random 128-bit uid, a creation
timestamp and a delta flag, followed by a zip payload.

Examples:
  edz ./assets                      write ./assets/assets.edz
  edz ./assets -o out/assets.edz    write to an explicit path
  edz -d out/assets.edz -o restore  extract into restore/
  edz -p out/assets.edz             list the entries
  edz --verify a.edz b.edz          check the magic of one or more archives`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := bindFlags(v, cmd); err != nil {
				return err
			}
			return edz.SetLogLevel(v.GetString("log-level"))
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if v.GetBool("stats") {
				metrics.LogMetricsSummary()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case v.GetBool("verify"):
				return runVerify(cmd, v, args)
			case len(args) != 1:
				return fmt.Errorf("expected exactly one target, got %d", len(args))
			case v.GetBool("decompress"):
				return runExtract(cmd, v, args[0])
			case v.GetBool("peek"):
				return runPeek(cmd, v, args[0])
			default:
				return runCreate(cmd, v, args[0])
			}
		},
	}

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error, disabled)")
	rootCmd.PersistentFlags().Bool("stats", false, "Log a metrics summary when the command finishes")
	rootCmd.PersistentFlags().StringP("magic", "m", "", "Magic number override, decimal or 0x hex (default 0x4E5A4445)")

	flags := rootCmd.Flags()
	flags.StringP("output", "o", "", "Output archive path, or output directory with --decompress")
	flags.BoolP("decompress", "d", false, "Extract the target archive")
	flags.Bool("verify", false, "Only check the magic number of the target archives")
	flags.BoolP("peek", "p", false, "List the entries of the target archive")
	flags.String("dir", "", "With --peek, list only the immediate children of this directory")
	flags.StringP("type-id", "t", "0", "Type id stored in the header, decimal or 0x hex")
	flags.String("uid", "", "128-bit uid as 32 hex digits (default random)")
	flags.Bool("delta", false, "Mark the archive as a delta payload")
	flags.Bool("lock", false, "Hold an advisory lock on <archive>.lock while packing or extracting")
	flags.Int("concurrency", 4, "Archives verified in parallel with --verify")
	rootCmd.MarkFlagsMutuallyExclusive("decompress", "verify", "peek")

	rootCmd.AddCommand(newStoreCmd(v))
	rootCmd.AddCommand(newFetchCmd(v))

	return rootCmd
}

// parseMagic accepts decimal or 0x prefixed values. Empty selects the default.
func parseMagic(s string) (uint32, error) {
	if s == "" {
		return common.DefaultMagic, nil
	}

	magic, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: magic %q does not fit in 32 bits: %v", common.ErrInvalidField, s, err)
	}
	return uint32(magic), nil
}

func parseTypeID(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}

	typeID, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: type id %q does not fit in 64 bits: %v", common.ErrInvalidField, s, err)
	}
	return typeID, nil
}
