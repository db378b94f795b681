package main

import (
	"errors"
	"fmt"
	"strings"

	"okr-go/internal/okr"

	"github.com/spf13/cobra"
)

var commentCmd = &cobra.Command{
	Use:   "comment",
	Short: "Read and write comments",
}

var commentListCmd = &cobra.Command{
	Use:   "list OKR_ID",
	Short: "List the comments of an objective",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Comments")
		if err != nil {
			return err
		}
		defer a.Close()

		list, err := a.Comments(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return renderComments(cmd.OutOrStdout(), list)
	},
}

var commentAddCmd = &cobra.Command{
	Use:   "add OKR_ID TEXT...",
	Short: "Comment on an objective",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("AddComment")
		if err != nil {
			return err
		}
		defer a.Close()

		c, err := a.AddComment(cmd.Context(), args[0], strings.Join(args[1:], " "))
		if err != nil {
			if errors.Is(err, okr.ErrEmptyComment) {
				return fmt.Errorf("comment text is empty")
			}
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Commented on %s (%s)\n", args[0], c.ID)
		return nil
	},
}

func init() {
	commentCmd.AddCommand(commentListCmd)
	commentCmd.AddCommand(commentAddCmd)
	rootCmd.AddCommand(commentCmd)
}
