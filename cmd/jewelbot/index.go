package main

import (
	"github.com/ChamsBouzaiene/jewelbot/internal/knowledge"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Rebuild the document page index",
	Long: `Index every document under JEWELBOT_DOCS_DIR into JEWELBOT_INDEX_PATH.

Markdown and text files are split into pages. Paths listed in .kbignore are
skipped, and documents that disappeared are removed from the index.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		walker, err := knowledge.NewWalker(cfg.DocsDir)
		if err != nil {
			return err
		}
		index, err := knowledge.OpenIndex(cfg.IndexPath, logger)
		if err != nil {
			return err
		}
		defer index.Close()

		stats, err := knowledge.NewBuilder(walker, index, logger).Rebuild(cmd.Context())
		if err != nil {
			return err
		}
		logger.Info("✅ index ready",
			zap.String("path", cfg.IndexPath),
			zap.Int("documents", stats.Documents),
			zap.Int("pages", stats.Pages),
			zap.Int("removed", stats.Removed),
		)
		return nil
	},
}
