package main

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rhuss/mcp-census/pkg/index"
)

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Manage the dataset catalog index",
	}
	addConfigFlag(cmd.PersistentFlags())
	cmd.AddCommand(newIndexRebuildCmd(), newIndexSearchCmd())
	return cmd
}

func newIndexRebuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Fetch the dataset catalog and rebuild the index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			fromSnapshot, _ := cmd.Flags().GetBool("from-snapshot")
			if fromSnapshot && cfg.Index.SnapshotPath == "" {
				return fmt.Errorf("--from-snapshot requires index.snapshot_path")
			}

			ctx := cmd.Context()
			cat, err := newCatalog(ctx, cfg, newCensusClient(cfg), slog.Default())
			if err != nil {
				return err
			}
			defer cat.Close()

			var n int
			if fromSnapshot {
				n, err = cat.builder.BuildFromSnapshot(ctx)
			} else {
				n, err = cat.builder.Build(ctx)
			}
			if err != nil {
				return fmt.Errorf("rebuilding index: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d datasets into %s index (model %s)\n",
				n, cfg.Index.Backend, cat.embedder.ModelID())
			return nil
		},
	}
	cmd.Flags().Bool("from-snapshot", false, "Rebuild from the catalog snapshot instead of fetching it")
	return cmd
}

func newIndexSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the dataset index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			filter, err := searchFilter(cmd)
			if err != nil {
				return err
			}
			k, _ := cmd.Flags().GetInt("k")

			ctx := cmd.Context()
			cat, err := newCatalog(ctx, cfg, newCensusClient(cfg), slog.Default())
			if err != nil {
				return err
			}
			defer cat.Close()

			if err := cat.builder.LoadOrBuild(ctx); err != nil {
				return err
			}
			results, err := cat.searcher.Search(ctx, strings.Join(args, " "), filter, k)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(results) == 0 {
				fmt.Fprintln(out, "no matching datasets")
				return nil
			}
			for i, r := range results {
				if i > 0 {
					fmt.Fprintln(out, "---")
				}
				fmt.Fprintln(out, r)
			}
			return nil
		},
	}
	cmd.Flags().String("year", "", "Only datasets of this vintage")
	cmd.Flags().String("dataset", "", "Only this dataset path, e.g. acs/acs5")
	cmd.Flags().Int("k", 0, "Number of results (default: index.top_k)")
	return cmd
}

func searchFilter(cmd *cobra.Command) (index.Filter, error) {
	var f index.Filter
	if year, _ := cmd.Flags().GetString("year"); year != "" {
		v, err := strconv.Atoi(year)
		if err != nil || v <= 0 {
			return f, fmt.Errorf("invalid --year %q", year)
		}
		f.Vintage = v
	}
	f.Dataset, _ = cmd.Flags().GetString("dataset")
	return f, nil
}
