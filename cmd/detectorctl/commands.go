package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"detectorgo/internal/config"
	"detectorgo/internal/document"
	"detectorgo/internal/models"
	"detectorgo/internal/repository"
	"detectorgo/internal/service/inference"
	"detectorgo/internal/storage"
	"detectorgo/internal/textnorm"
)

const classifyConcurrency = 4

// openDatabase needs only the database section; identity and inference
// settings may be absent on operator machines.
func openDatabase(configPath string) (*storage.DB, error) {
	cfg, err := config.LoadDatabase(configPath)
	if err != nil {
		return nil, err
	}
	return storage.Open(cfg.BasicConfig.Database, cfg)
}

func newMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openDatabase(*configPath)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := storage.Migrate(db); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema up to date (%s)\n", db.Dialect)
			return nil
		},
	}
}

func newRoleCmd(configPath *string, use, short string, role models.Role) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <email>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDatabase(*configPath)
			if err != nil {
				return err
			}
			defer db.Close()
			err = repository.NewUserRepository(db).SetRoleByEmail(cmd.Context(), args[0], role)
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("no profile registered for %s", args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", args[0], role)
			return nil
		},
	}
}

type classifyResult struct {
	File  string        `json:"file"`
	Model string        `json:"model,omitempty"`
	Label *models.Label `json:"prediction,omitempty"`
	Error string        `json:"error,omitempty"`
}

func newClassifyCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "classify <file>...",
		Short: "Classify .txt or .pdf files with the configured backend",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			classifier, err := inference.New(ctx, cfg.Inference)
			if err != nil {
				return err
			}
			loader, err := document.NewLoader(ctx)
			if err != nil {
				return err
			}

			results := make([]classifyResult, len(args))
			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(classifyConcurrency)
			for i, path := range args {
				g.Go(func() error {
					res := classifyResult{File: path, Model: classifier.ModelName()}
					text, err := loader.LoadText(gctx, path)
					if err == nil {
						text = textnorm.Normalize(text)
						if text == "" {
							err = document.ErrNoText
						}
					}
					if err == nil {
						var label models.Label
						label, err = classifier.Classify(gctx, text)
						res.Label = &label
					}
					if err != nil {
						res.Label = nil
						res.Error = err.Error()
					}
					results[i] = res
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			failed := 0
			for _, res := range results {
				if res.Error != "" {
					failed++
				}
				if err := enc.Encode(res); err != nil {
					return err
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed", failed, len(results))
			}
			return nil
		},
	}
}

func newDocumentCmd(configPath *string) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "document <key>",
		Short: "Download an archived upload from the document bucket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadDatabase(*configPath)
			if err != nil {
				return err
			}
			if !cfg.Documents.Enabled() {
				return errors.New("documents.endpoint and documents.bucket must be configured")
			}
			store, err := storage.NewMinioStore(cmd.Context(), cfg.Documents)
			if err != nil {
				return err
			}
			data, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			return os.WriteFile(output, data, 0o644)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	return cmd
}
