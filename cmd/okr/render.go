package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"okr-go/internal/okr"
)

const barWidth = 20

// progressBar draws p percent as a fixed-width bar.
func progressBar(p int) string {
	p = max(0, min(100, p))
	filled := p * barWidth / 100
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", barWidth-filled) + "]"
}

func renderSummary(w io.Writer, d okr.Dashboard) {
	fmt.Fprintf(w, "Total: %d   On track: %d   Team: %d   Completed: %d\n",
		d.Summary.Total, d.Summary.OnTrack, d.Summary.Team, d.Summary.Completed)
	if n := d.Filters.ActiveCount(); n > 0 {
		fmt.Fprintf(w, "Filters: %d active, showing %d of %d (%s)\n",
			n, len(d.Visible), len(d.All), d.Filters.Period.Label())
	}
	fmt.Fprintln(w)
}

// renderObjectives prints one row per objective and, when expand is set,
// the key-result breakdown under each.
func renderObjectives(w io.Writer, list []okr.Objective, expand bool) error {
	if len(list) == 0 {
		fmt.Fprintln(w, "No objectives found.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tRESPONSIBLE\tDUE\tSTATUS\tPROGRESS\tCOMMENTS")
	for _, o := range list {
		card := okr.NewCard(o)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s %3d%%\t%d\n",
			o.ID, o.Title, o.Responsible, okr.NormalizeDate(o.DueDate), o.Status.Label(),
			progressBar(card.Progress), card.Progress, card.CommentCount())
		if expand {
			card.Toggle()
			for _, line := range card.Breakdown() {
				fmt.Fprintf(tw, "\t  - %s\t\t\t\t\t\n", line)
			}
		}
	}
	return tw.Flush()
}

func renderCard(w io.Writer, c *okr.Card) {
	o := c.Objective
	fmt.Fprintf(w, "%s\n", o.Title)
	if o.Description != "" {
		fmt.Fprintf(w, "  %s\n", o.Description)
	}
	fmt.Fprintf(w, "\n  ID:          %s\n", o.ID)
	fmt.Fprintf(w, "  Responsible: %s\n", o.Responsible)
	fmt.Fprintf(w, "  Due:         %s\n", okr.NormalizeDate(o.DueDate))
	fmt.Fprintf(w, "  Status:      %s\n", o.Status.Label())
	fmt.Fprintf(w, "  Progress:    %s %d%%\n", progressBar(c.Progress), c.Progress)

	fmt.Fprintf(w, "\n  Key results (%d):\n", len(o.KeyResults))
	for i, line := range c.Breakdown() {
		fmt.Fprintf(w, "    %s  %s\n", o.KeyResults[i].ID, line)
	}
	fmt.Fprintf(w, "\n  Comments: %d\n", c.CommentCount())
}

func renderComments(w io.Writer, list []okr.Comment) error {
	if len(list) == 0 {
		fmt.Fprintln(w, "No comments yet.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, c := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", c.CreatedAt.Local().Format(time.DateTime), c.AuthorName(), c.Content)
	}
	return tw.Flush()
}

// eventTag is the text stand-in for the per-event-type notification icon.
func eventTag(e okr.EventType) string {
	switch e.Normalize() {
	case okr.EventUpdate:
		return "[update]"
	case okr.EventComment:
		return "[comment]"
	case okr.EventDeadline:
		return "[deadline]"
	default:
		return "[info]"
	}
}

func renderNotifications(w io.Writer, list []okr.Notification) error {
	if len(list) == 0 {
		fmt.Fprintln(w, "No notifications.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, n := range list {
		unread := " "
		if !n.IsRead {
			unread = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", unread, n.CreatedAt.Local().Format(time.DateTime), eventTag(n.EventType), n.Message)
	}
	return tw.Flush()
}
