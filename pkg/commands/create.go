package commands

import (
	"fmt"

	"github.com/beam-cloud/edz/pkg/common"
	"github.com/beam-cloud/edz/pkg/edz"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func runCreate(cmd *cobra.Command, v *viper.Viper, target string) error {
	magic, err := parseMagic(v.GetString("magic"))
	if err != nil {
		return err
	}

	typeID, err := parseTypeID(v.GetString("type-id"))
	if err != nil {
		return err
	}

	opts := edz.CreateOptions{
		InputPath:  target,
		OutputPath: v.GetString("output"),
		Magic:      &magic,
		TypeID:     typeID,
		Delta:      v.GetBool("delta"),
		Lock:       v.GetBool("lock"),
	}

	if s := v.GetString("uid"); s != "" {
		uid, err := common.ParseUID(s)
		if err != nil {
			return err
		}
		opts.UID = &uid
	}

	outputPath, header, err := edz.CreateArchive(opts)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s uid=%s\n", outputPath, header.UID)
	return nil
}
