package commands

import (
	"fmt"

	"github.com/beam-cloud/edz/pkg/common"
	"github.com/beam-cloud/edz/pkg/edz"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func runVerify(cmd *cobra.Command, v *viper.Viper, targets []string) error {
	magic, err := parseMagic(v.GetString("magic"))
	if err != nil {
		return err
	}

	verdicts, err := edz.VerifyArchives(cmd.Context(), targets, magic, v.GetInt("concurrency"))
	if err != nil {
		return err
	}

	failed := 0
	for _, target := range targets {
		status := "ok"
		if !verdicts[target] {
			status = "bad magic"
			failed++
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", target, status)
	}

	if failed > 0 {
		return fmt.Errorf("%w: %d of %d archives", common.ErrMagicMismatch, failed, len(targets))
	}
	return nil
}
