package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/beam-cloud/edz/pkg/common"
	"github.com/beam-cloud/edz/pkg/storage"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newStoreCmd(v *viper.Viper) *cobra.Command {
	storeCmd := &cobra.Command{
		Use:   "store",
		Short: "Copy an .edz archive into remote or local storage",
	}

	storeS3Cmd := &cobra.Command{
		Use:   "s3 <archive>",
		Short: "Upload an archive to s3",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := newS3Storage(cmd, v)
			if err != nil {
				return err
			}
			key, err := store.Store(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "s3://%s/%s\n", v.GetString("bucket"), key)
			return nil
		},
	}
	addS3Flags(storeS3Cmd)

	storeLocalCmd := &cobra.Command{
		Use:   "local <archive>",
		Short: "Copy an archive into a local storage directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := storage.NewEdzStorage(cmd.Context(), storage.EdzStorageOpts{
				Mode:     common.StorageModeLocal,
				LocalDir: v.GetString("dir"),
			})
			if err != nil {
				return err
			}
			location, err := store.Store(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), location)
			return nil
		},
	}
	storeLocalCmd.Flags().String("dir", "", "Storage directory")
	storeLocalCmd.MarkFlagRequired("dir")

	storeCmd.AddCommand(storeS3Cmd, storeLocalCmd)
	return storeCmd
}

func newFetchCmd(v *viper.Viper) *cobra.Command {
	fetchCmd := &cobra.Command{
		Use:   "fetch",
		Short: "Copy an .edz archive out of remote or local storage",
	}

	fetchS3Cmd := &cobra.Command{
		Use:   "s3 <name>",
		Short: "Download an archive from s3",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := newS3Storage(cmd, v)
			if err != nil {
				return err
			}
			return fetch(cmd, v, store, args[0])
		},
	}
	addS3Flags(fetchS3Cmd)
	fetchS3Cmd.Flags().StringP("output", "o", "", "Destination path (default ./<name>)")

	fetchLocalCmd := &cobra.Command{
		Use:   "local <name>",
		Short: "Copy an archive out of a local storage directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := storage.NewEdzStorage(cmd.Context(), storage.EdzStorageOpts{
				Mode:     common.StorageModeLocal,
				LocalDir: v.GetString("dir"),
			})
			if err != nil {
				return err
			}
			return fetch(cmd, v, store, args[0])
		},
	}
	fetchLocalCmd.Flags().String("dir", "", "Storage directory")
	fetchLocalCmd.Flags().StringP("output", "o", "", "Destination path (default ./<name>)")
	fetchLocalCmd.MarkFlagRequired("dir")

	fetchCmd.AddCommand(fetchS3Cmd, fetchLocalCmd)
	return fetchCmd
}

func fetch(cmd *cobra.Command, v *viper.Viper, store storage.EdzStorageInterface, name string) error {
	destPath := v.GetString("output")
	if destPath == "" {
		destPath = filepath.Base(name)
	}

	if err := store.Fetch(cmd.Context(), name, destPath); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), destPath)
	return nil
}

func addS3Flags(cmd *cobra.Command) {
	cmd.Flags().StringP("bucket", "b", "", "S3 bucket name")
	cmd.Flags().String("prefix", "", "Key prefix inside the bucket")
	cmd.Flags().String("region", "", "AWS region (default $AWS_REGION)")
	cmd.Flags().String("endpoint", "", "Custom S3 endpoint")
	cmd.Flags().Bool("force-path-style", false, "Use path style S3 addressing")
	cmd.MarkFlagRequired("bucket")
}

func newS3Storage(cmd *cobra.Command, v *viper.Viper) (storage.EdzStorageInterface, error) {
	region := v.GetString("region")
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}

	return storage.NewEdzStorage(cmd.Context(), storage.EdzStorageOpts{
		Mode: common.StorageModeS3,
		StorageInfo: &common.S3StorageInfo{
			Bucket:         v.GetString("bucket"),
			Prefix:         v.GetString("prefix"),
			Region:         region,
			Endpoint:       v.GetString("endpoint"),
			ForcePathStyle: v.GetBool("force-path-style"),
		},
	})
}
