// Command metriq is the operational CLI for the catalog: snapshot export and
// import between backends, spreadsheet reports, and schema migrations.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rpattn/metriq/internal/catalog"
	"github.com/rpattn/metriq/internal/config"
	"github.com/rpattn/metriq/internal/db"
	"github.com/rpattn/metriq/internal/export"
	"github.com/rpattn/metriq/internal/store"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "metriq",
		Short:         "Operate the metriq catalog store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", ".", "directory containing config.yaml")

	root.AddCommand(newExportCmd(&configPath))
	root.AddCommand(newImportCmd(&configPath))
	root.AddCommand(newReportCmd(&configPath))
	root.AddCommand(newMigrateCmd(&configPath))
	return root
}

func newExportCmd(configPath *string) *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Snapshot every collection to JSON documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, stores, closeStores, err := openStores(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer closeStores()

			if outDir == "" {
				outDir = cfg.Export.Dir
			}

			svc := export.NewService()
			for _, collection := range catalog.Collections() {
				doc, err := svc.Export(cmd.Context(), stores[collection], collection)
				if err != nil {
					return err
				}
				path := filepath.Join(outDir, collection+".json")
				if err := export.WriteFile(doc, path); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "exported %d %s to %s\n", len(doc.Entities), collection, path)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out", "", "output directory (defaults to export.dir)")
	return cmd
}

func newImportCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <snapshot.json>...",
		Short: "Restore collection snapshots into the configured backend",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, stores, closeStores, err := openStores(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer closeStores()

			svc := export.NewService()
			for _, path := range args {
				doc, err := export.ReadFile(path)
				if err != nil {
					return err
				}
				st, ok := stores[doc.Collection]
				if !ok {
					return fmt.Errorf("snapshot %s targets unknown collection %q", path, doc.Collection)
				}
				if err := svc.Import(cmd.Context(), st, doc); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d %s from %s\n", len(doc.Entities), doc.Collection, path)
			}
			return nil
		},
	}
	return cmd
}

func newReportCmd(configPath *string) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render the catalog as a spreadsheet, one sheet per collection",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, stores, closeStores, err := openStores(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer closeStores()

			if out == "" {
				out = filepath.Join(cfg.Export.Dir, "catalog.xlsx")
			}

			svc := export.NewService()
			docs := make([]export.Document, 0, len(catalog.Collections()))
			for _, collection := range catalog.Collections() {
				doc, err := svc.Export(cmd.Context(), stores[collection], collection)
				if err != nil {
					return err
				}
				docs = append(docs, doc)
			}
			if err := export.WriteReport(out, docs); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote report to %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "report path (defaults under export.dir)")
	return cmd
}

func newMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply relational schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if err := db.RunMigrations(cfg.Database); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func openStores(ctx context.Context, configPath string) (config.Config, map[string]store.EntityStore, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	stores, closeStores, err := catalog.Open(ctx, cfg)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	return cfg, stores, closeStores, nil
}
