package commands

import (
	"fmt"
	"io"

	"github.com/beam-cloud/edz/pkg/common"
	"github.com/beam-cloud/edz/pkg/edz"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func runExtract(cmd *cobra.Command, v *viper.Viper, target string) error {
	header, err := edz.ExtractArchive(edz.ExtractOptions{
		InputFile:  target,
		OutputPath: v.GetString("output"),
		Lock:       v.GetBool("lock"),
	})
	if err != nil {
		return err
	}

	printHeader(cmd.OutOrStdout(), header)
	return nil
}

func runPeek(cmd *cobra.Command, v *viper.Viper, target string) error {
	metadata, err := edz.PeekArchive(target)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printHeader(out, metadata.Header)

	names := metadata.Names()
	if dir := v.GetString("dir"); dir != "" {
		names = metadata.ListDirectory(dir)
	}
	for _, name := range names {
		fmt.Fprintln(out, name)
	}
	return nil
}

func printHeader(w io.Writer, h common.EdzArchiveHeader) {
	fmt.Fprintf(w, "magic=0x%08X type_id=%d uid=%s delta=%t created=%s\n",
		h.Magic, h.TypeID, h.UID, h.Delta, h.CreatedAt().Format("2006-01-02T15:04:05Z"))
}
