package main

import (
	"fmt"
	"os"

	"github.com/ChamsBouzaiene/jewelbot/internal/catalog"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var noEnrich bool

var ingestCmd = &cobra.Command{
	Use:   "ingest <products.csv>",
	Short: "Load products from a CSV file into the catalog",
	Long: `Load products into the catalog database (JEWELBOT_CATALOG_DB).

Rows without style or material are enriched by the configured oracle: the LLM
provider, or keyword rules with --offline. Enrichment calls are retried with
exponential backoff; rows that still fail are stored with Unknown metadata.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, k, err := loadConfig()
		if err != nil {
			return err
		}

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", args[0], err)
		}
		defer f.Close()

		store, err := catalog.Open(ctx, cfg.CatalogDB)
		if err != nil {
			return err
		}
		defer store.Close()

		var enricher catalog.Enricher
		if !noEnrich {
			o, err := buildOracle(ctx, cfg, k)
			if err != nil {
				return err
			}
			enricher = o
		}

		logger.Info("📥 ingesting products", zap.String("file", args[0]), zap.String("catalog", cfg.CatalogDB))
		report, err := catalog.NewIngester(store, enricher, cfg.IngestWorkers, logger).Ingest(ctx, f)
		if err != nil {
			return err
		}
		logger.Info("✅ ingest complete",
			zap.Int("rows", report.Rows),
			zap.Int("enriched", report.Enriched),
			zap.Int("failed", report.Failed),
			zap.Int("stored", report.Stored),
		)
		return nil
	},
}

func init() {
	ingestCmd.Flags().BoolVar(&noEnrich, "no-enrich", false, "Store rows as-is without oracle enrichment")
}
