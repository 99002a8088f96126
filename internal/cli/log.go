package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/puffquest/puffquest/internal/app/tracking"
	"github.com/puffquest/puffquest/internal/domain"
)

func init() {
	logCmd.Flags().StringVar(&logType, "type", "", "Entry type: cig or puff (default: your method's unit)")
	logCmd.Flags().Float64Var(&logCost, "cost", 0, "Cost of this entry (default: pack price per unit)")
	logCmd.Flags().StringVar(&logAt, "at", "", "When it happened: RFC 3339 or HH:MM today (default: now)")
	rootCmd.AddCommand(logCmd)
}

var (
	logType string
	logCost float64
	logAt   string
)

var logCmd = &cobra.Command{
	Use:     "log",
	Aliases: []string{"add"},
	Short:   "Record one cigarette or puff",
	Args:    cobra.NoArgs,
	RunE:    runLog,
}

func runLog(cmd *cobra.Command, args []string) error {
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	ctx := context.Background()
	u, err := currentUser(ctx, d)
	if err != nil {
		return err
	}

	req := tracking.EntryRequest{Type: domain.EntryType(logType)}
	if cmd.Flags().Changed("cost") {
		cost := logCost
		req.Cost = &cost
	}
	if req.At, err = parseAt(d, logAt); err != nil {
		return err
	}

	rec, err := d.Tracking.AddEntry(ctx, u.ID, req)
	if err != nil {
		return err
	}

	fb := rec.Feedback
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Logged 1 %s at %s.\n", rec.Entry.Type, rec.Entry.CreatedAt.In(d.Stats.Calendar().Location).Format("15:04"))
	switch fb.Status {
	case domain.DayOver, domain.DayNear:
		fmt.Fprintf(out, "%d of %d today, %d over your limit.\n", fb.Count, fb.Limit, fb.Count-fb.Limit)
	default:
		fmt.Fprintf(out, "%d of %d today, %d left.\n", fb.Count, fb.Limit, fb.Remaining)
	}
	return nil
}
