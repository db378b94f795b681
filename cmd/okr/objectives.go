package main

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"okr-go/internal/app"
	"okr-go/internal/okr"

	"github.com/spf13/cobra"
)

// parseKeyResultSpec parses "title:target:unit". The title may contain
// colons; target and unit are taken from the end.
func parseKeyResultSpec(s string) (okr.KeyResultDraft, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 3 {
		return okr.KeyResultDraft{}, fmt.Errorf("key result %q: want title:target:unit", s)
	}
	n := len(parts)
	target, err := parseNumber(parts[n-2])
	if err != nil {
		return okr.KeyResultDraft{}, fmt.Errorf("key result %q: target must be a number", s)
	}
	return okr.KeyResultDraft{
		Title:  strings.Join(parts[:n-2], ":"),
		Target: target,
		Unit:   parts[n-1],
	}, nil
}

// parseAssignment parses "ID=value" into its parts.
func parseAssignment(s string) (string, float64, error) {
	id, raw, ok := strings.Cut(s, "=")
	if !ok || id == "" {
		return "", 0, fmt.Errorf("%q: want ID=value", s)
	}
	v, err := parseNumber(raw)
	if err != nil {
		return "", 0, fmt.Errorf("%q: value must be a number", s)
	}
	return id, v, nil
}

// parseNumber parses a finite number. NaN and infinities are rejected.
func parseNumber(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%q is not a finite number", s)
	}
	return v, nil
}

func filtersFromFlags(cmd *cobra.Command) (okr.FilterState, error) {
	f := okr.DefaultFilters()
	f.Search, _ = cmd.Flags().GetString("search")
	f.Owner, _ = cmd.Flags().GetString("owner")

	statuses, _ := cmd.Flags().GetStringSlice("status")
	for _, s := range statuses {
		st := okr.Status(s)
		if !st.Valid() {
			return f, fmt.Errorf("unknown status %q", s)
		}
		f.ToggleStatus(st)
	}

	period, _ := cmd.Flags().GetString("period")
	switch p := okr.Period(period); p {
	case okr.PeriodCurrent, okr.PeriodPrevious, okr.PeriodAll:
		f.Period = p
	default:
		return f, fmt.Errorf("unknown period %q", period)
	}
	return f, nil
}

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "Show the OKR dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		filters, err := filtersFromFlags(cmd)
		if err != nil {
			return err
		}
		offline, _ := cmd.Flags().GetBool("offline")
		expand, _ := cmd.Flags().GetBool("expand")

		a, err := newApp("Dashboard")
		if err != nil {
			return err
		}
		defer a.Close()

		out := cmd.OutOrStdout()
		var d okr.Dashboard
		if offline {
			var fetchedAt time.Time
			d, fetchedAt, err = a.OfflineDashboard(filters)
			if err != nil {
				return fmt.Errorf("no offline copy (run `okr list` while online first): %w", err)
			}
			fmt.Fprintf(out, "Offline copy from %s\n", fetchedAt.Local().Format(time.DateTime))
		} else {
			d, err = a.Dashboard(cmd.Context(), filters)
			if err != nil {
				return err
			}
		}

		renderSummary(out, d)
		return renderObjectives(out, d.Visible, expand)
	},
}

var showCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show one objective with its key results",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ShowObjective")
		if err != nil {
			return err
		}
		defer a.Close()

		card, err := a.ShowObjective(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		renderCard(cmd.OutOrStdout(), card)
		return nil
	},
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an objective with key results",
	RunE: func(cmd *cobra.Command, args []string) error {
		specs, _ := cmd.Flags().GetStringArray("kr")
		rows := make([]okr.KeyResultDraft, 0, len(specs))
		for _, s := range specs {
			row, err := parseKeyResultSpec(s)
			if err != nil {
				return err
			}
			rows = append(rows, row)
		}

		a, err := newApp("CreateObjective")
		if err != nil {
			return err
		}
		defer a.Close()

		obj, err := a.CreateObjective(cmd.Context(), func(f *okr.CreateObjectiveForm) error {
			f.Title, _ = cmd.Flags().GetString("title")
			f.Description, _ = cmd.Flags().GetString("description")
			f.Responsible, _ = cmd.Flags().GetString("responsible")
			f.DueDate, _ = cmd.Flags().GetString("due")
			f.Compensate, _ = cmd.Flags().GetBool("compensate")
			for i, row := range rows {
				if i > 0 {
					f.AddRow()
				}
				if err := f.SetRow(i, row); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Created %s %q with %d key result(s)\n", obj.ID, obj.Title, len(obj.KeyResults))
		return nil
	},
}

var editCmd = &cobra.Command{
	Use:   "edit ID",
	Short: "Edit an objective and its key results",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sets, _ := cmd.Flags().GetStringArray("kr-set")
		removes, _ := cmd.Flags().GetStringArray("kr-remove")
		adds, _ := cmd.Flags().GetStringArray("kr-add")

		a, err := newApp("EditObjective")
		if err != nil {
			return err
		}
		defer a.Close()

		obj, err := a.EditObjective(cmd.Context(), args[0], func(f *okr.EditObjectiveForm, remove app.RowRemover) error {
			for flag, field := range map[string]*string{
				"title":       &f.Title,
				"description": &f.Description,
				"responsible": &f.Responsible,
				"due":         &f.DueDate,
			} {
				if cmd.Flags().Changed(flag) {
					*field, _ = cmd.Flags().GetString(flag)
				}
			}

			for _, s := range sets {
				id, v, err := parseAssignment(s)
				if err != nil {
					return err
				}
				row, ok := f.Row(id)
				if !ok {
					return fmt.Errorf("key result %s: %w", id, okr.ErrNotFound)
				}
				row.CurrentValue = v
				if err := f.SetRow(id, row); err != nil {
					return err
				}
			}
			for _, id := range removes {
				if err := remove(id); err != nil {
					return err
				}
			}
			for _, s := range adds {
				row, err := parseKeyResultSpec(s)
				if err != nil {
					return err
				}
				if err := f.SetRow(f.AddRow(), row); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Updated %s %q (%d key result(s), %d%%)\n",
			obj.ID, obj.Title, len(obj.KeyResults), obj.Progress())
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete an objective",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			ok, err := newPrompter(cmd).confirm(fmt.Sprintf("Delete objective %s and all its key results?", args[0]))
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
				return nil
			}
		}

		a, err := newApp("DeleteObjective")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.DeleteObjective(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
		return nil
	},
}

func init() {
	listCmd.Flags().StringP("search", "s", "", "Match title, description or responsible")
	listCmd.Flags().StringSlice("status", nil, "Only these statuses (on-track, at-risk, behind, completed)")
	listCmd.Flags().String("owner", "", "Responsible contains this text")
	listCmd.Flags().String("period", string(okr.PeriodCurrent), "Period: current, previous or all")
	listCmd.Flags().Bool("offline", false, "Show the last fetched list without contacting the server")
	listCmd.Flags().BoolP("expand", "x", false, "Show key results under each objective")

	createCmd.Flags().String("title", "", "Objective title")
	createCmd.Flags().String("description", "", "Objective description")
	createCmd.Flags().String("responsible", "", "Responsible person")
	createCmd.Flags().String("due", "", "Due date (YYYY-MM-DD)")
	createCmd.Flags().StringArray("kr", nil, "Key result as title:target:unit (repeatable)")
	createCmd.Flags().Bool("compensate", false, "Delete the objective again if a key result fails")

	editCmd.Flags().String("title", "", "New title")
	editCmd.Flags().String("description", "", "New description")
	editCmd.Flags().String("responsible", "", "New responsible person")
	editCmd.Flags().String("due", "", "New due date (YYYY-MM-DD)")
	editCmd.Flags().StringArray("kr-set", nil, "Set a key result's current value as ID=value (repeatable)")
	editCmd.Flags().StringArray("kr-remove", nil, "Delete a key result by ID (repeatable)")
	editCmd.Flags().StringArray("kr-add", nil, "Add a key result as title:target:unit (repeatable)")

	deleteCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(editCmd)
	rootCmd.AddCommand(deleteCmd)
}
