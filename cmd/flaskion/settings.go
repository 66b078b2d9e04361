package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flaskion/flaskion-client/pkg/api"
)

func newSettingsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Manage account settings",
	}
	cmd.AddCommand(newSettingsSetCmd(a), newRegenerateKeyCmd(a))
	return cmd
}

func newSettingsSetCmd(a *app) *cobra.Command {
	var uwgenKey, geminiKey string

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store provider API keys (an empty value clears a key)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var update api.SettingsUpdate
			if cmd.Flags().Changed("uwgen-key") {
				update.UwgenAPIKey = &uwgenKey
			}
			if cmd.Flags().Changed("gemini-key") {
				update.GeminiAPIKey = &geminiKey
			}
			if update.UwgenAPIKey == nil && update.GeminiAPIKey == nil {
				return fmt.Errorf("nothing to update: pass --uwgen-key and/or --gemini-key")
			}

			reply, err := a.service.UpdateSettings(cmd.Context(), update)
			if err != nil {
				return fmt.Errorf("failed to update settings: %w", err)
			}
			if !reply.OK() {
				return a.replyError(reply.Response)
			}

			message := reply.Response.Message()
			if message == "" {
				message = "Settings updated."
			}
			fmt.Fprintln(cmd.OutOrStdout(), message)
			return nil
		},
	}

	cmd.Flags().StringVar(&uwgenKey, "uwgen-key", "", "uwgen API key")
	cmd.Flags().StringVar(&geminiKey, "gemini-key", "", "Gemini API key")
	return cmd
}

func newRegenerateKeyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "regenerate-key",
		Short: "Issue a new personal API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reply, err := a.service.RegenerateAPIKey(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to regenerate API key: %w", err)
			}
			if !reply.OK() {
				return a.replyError(reply.Response)
			}
			fmt.Fprintln(cmd.OutOrStdout(), reply.Data)
			return nil
		},
	}
}
