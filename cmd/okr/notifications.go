package main

import (
	"fmt"
	"time"

	"okr-go/internal/okr"

	"github.com/spf13/cobra"
)

var notificationsCmd = &cobra.Command{
	Use:   "notifications",
	Short: "Show notifications",
	RunE: func(cmd *cobra.Command, args []string) error {
		watch, _ := cmd.Flags().GetBool("watch")

		a, err := newApp("Notifications")
		if err != nil {
			return err
		}
		defer a.Close()

		out := cmd.OutOrStdout()
		if !watch {
			list, err := a.Notifications(cmd.Context())
			if err != nil {
				return err
			}
			return renderNotifications(out, list)
		}

		fmt.Fprintln(out, "Watching notifications, press Ctrl-C to stop.")
		return a.WatchNotifications(cmd.Context(), func(u okr.NotificationUpdate) {
			switch {
			case u.Loading:
				return
			case u.Err != nil:
				fmt.Fprintf(cmd.ErrOrStderr(), "%s  refresh failed: %s\n", time.Now().Format(time.TimeOnly), userMessage(u.Err))
			default:
				fmt.Fprintf(out, "\n-- %s --\n", time.Now().Format(time.TimeOnly))
				_ = renderNotifications(out, u.Notifications)
			}
		})
	},
}

func init() {
	notificationsCmd.Flags().BoolP("watch", "w", false, "Keep the list open and refresh it periodically")
	rootCmd.AddCommand(notificationsCmd)
}
