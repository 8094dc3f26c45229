package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"mediarepo/internal/api"
	"mediarepo/internal/notifications"
)

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			sent, err := client.TestNotification(cmd.Context())
			if errors.Is(err, api.ErrDaemonUnavailable) {
				sent = cfg.Notifications.NtfyTopic != ""
				err = notifications.NewService(cfg).TestNotification(cmd.Context())
			}
			if err != nil {
				return fmt.Errorf("send test notification: %w", err)
			}
			if sent {
				fmt.Fprintln(cmd.OutOrStdout(), "Test notification sent")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "Notifications disabled (set notifications.ntfy_topic)")
			}
			return nil
		},
	}
}
