package main

import (
	"fmt"

	"okr-go/internal/okr"

	"github.com/spf13/cobra"
)

var krCmd = &cobra.Command{
	Use:   "kr",
	Short: "Manage key results",
}

var krAddCmd = &cobra.Command{
	Use:   "add OKR_ID",
	Short: "Add a key result to an objective",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := okr.KeyResultInput{}
		in.Title, _ = cmd.Flags().GetString("title")
		in.Target, _ = cmd.Flags().GetFloat64("target")
		in.Unit, _ = cmd.Flags().GetString("unit")
		in.CurrentValue, _ = cmd.Flags().GetFloat64("current")

		a, err := newApp("AddKeyResult")
		if err != nil {
			return err
		}
		defer a.Close()

		kr, err := a.AddKeyResult(cmd.Context(), args[0], in)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added %s %q (%d%%)\n", kr.ID, kr.Title, kr.Progress())
		return nil
	},
}

var krUpdateCmd = &cobra.Command{
	Use:   "update ID",
	Short: "Update a key result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("UpdateKeyResult")
		if err != nil {
			return err
		}
		defer a.Close()

		kr, err := a.UpdateKeyResult(cmd.Context(), args[0], func(in *okr.KeyResultInput) {
			flags := cmd.Flags()
			if flags.Changed("title") {
				in.Title, _ = flags.GetString("title")
			}
			if flags.Changed("target") {
				in.Target, _ = flags.GetFloat64("target")
			}
			if flags.Changed("unit") {
				in.Unit, _ = flags.GetString("unit")
			}
			if flags.Changed("current") {
				in.CurrentValue, _ = flags.GetFloat64("current")
			}
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Updated %s %q (%d%%)\n", kr.ID, kr.Title, kr.Progress())
		return nil
	},
}

var krDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a key result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("DeleteKeyResult")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.DeleteKeyResult(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{krAddCmd, krUpdateCmd} {
		c.Flags().String("title", "", "Key result title")
		c.Flags().Float64("target", 0, "Target value")
		c.Flags().String("unit", "", "Unit, e.g. % or users")
		c.Flags().Float64("current", 0, "Current value")
	}

	krCmd.AddCommand(krAddCmd)
	krCmd.AddCommand(krUpdateCmd)
	krCmd.AddCommand(krDeleteCmd)
	rootCmd.AddCommand(krCmd)
}
