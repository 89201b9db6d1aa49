package main

import (
	"fmt"

	"github.com/ChamsBouzaiene/jewelbot/internal/config"
	"github.com/ChamsBouzaiene/jewelbot/internal/providers"
	"github.com/spf13/cobra"
)

var profileFlags config.Profile

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show or save the LLM provider profile",
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the saved profile",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := config.NewManager()
		if err != nil {
			return err
		}
		p, err := mgr.Load()
		if err != nil {
			return err
		}
		key := ""
		if p.APIKey != "" {
			key = "(set)"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "path:     %s\nprovider: %s\nmodel:    %s\nbase_url: %s\napi_key:  %s\n",
			mgr.GetConfigPath(), p.LLMProvider, p.Model, p.BaseURL, key)
		return nil
	},
}

var profileSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Save provider settings used when the environment leaves them unset",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if profileFlags.LLMProvider == "" {
			return fmt.Errorf("--provider is required (one of %v)", providers.SupportedProviders())
		}
		mgr, err := config.NewManager()
		if err != nil {
			return err
		}
		if err := mgr.Save(&profileFlags); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "saved %s\n", mgr.GetConfigPath())
		return nil
	},
}

func init() {
	profileSetCmd.Flags().StringVar(&profileFlags.LLMProvider, "provider", "", "LLM provider")
	profileSetCmd.Flags().StringVar(&profileFlags.APIKey, "api-key", "", "Provider API key")
	profileSetCmd.Flags().StringVar(&profileFlags.Model, "model", "", "Model name")
	profileSetCmd.Flags().StringVar(&profileFlags.BaseURL, "base-url", "", "Override the provider base URL")
	profileCmd.AddCommand(profileShowCmd, profileSetCmd)
}
