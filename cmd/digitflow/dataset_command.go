package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"digitflow/internal/model"
)

const defaultDatasetURL = "https://storage.googleapis.com/cvdf-datasets/mnist"

func newDatasetCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dataset",
		Short: "Manage the MNIST reference dataset",
	}
	cmd.AddCommand(newDatasetDownloadCommand(ctx))
	return cmd
}

func newDatasetDownloadCommand(ctx *commandContext) *cobra.Command {
	var baseURL string

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download missing MNIST IDX files into paths.dataset_dir",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client := &http.Client{Timeout: 5 * time.Minute}
			files, err := model.DownloadDataset(cmd.Context(), client, baseURL, cfg.Paths.DatasetDir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(files) == 0 {
				fmt.Fprintf(out, "Dataset already present in %s\n", cfg.Paths.DatasetDir)
				return nil
			}
			for _, file := range files {
				fmt.Fprintf(out, "Downloaded %s\n", file)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", defaultDatasetURL, "Base URL hosting the gzipped IDX files")
	return cmd
}
