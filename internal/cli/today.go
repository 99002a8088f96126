package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func init() {
	todayCmd.Flags().StringVar(&todayDate, "date", "", "Day to show, YYYY-MM-DD (default: today)")
	calendarCmd.Flags().StringVar(&calendarMonth, "month", "", "Month to show, YYYY-MM (default: this month)")
	rootCmd.AddCommand(todayCmd)
	rootCmd.AddCommand(weekCmd)
	rootCmd.AddCommand(calendarCmd)
}

var (
	todayDate     string
	calendarMonth string
)

var todayCmd = &cobra.Command{
	Use:   "today",
	Short: "Show today's count against your limit",
	Args:  cobra.NoArgs,
	RunE:  runToday,
}

var weekCmd = &cobra.Command{
	Use:   "week",
	Short: "Show the last seven days",
	Args:  cobra.NoArgs,
	RunE:  runWeek,
}

var calendarCmd = &cobra.Command{
	Use:     "calendar",
	Aliases: []string{"cal"},
	Short:   "Show a month of daily counts",
	Args:    cobra.NoArgs,
	RunE:    runCalendar,
}

func runToday(cmd *cobra.Command, args []string) error {
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
	day, err := parseDay(d, todayDate, d.Stats.Today())
	if err != nil {
		return fmt.Errorf("--date: %w", err)
	}

	typ := u.EntryType()
	n, err := d.Stats.CountForDay(ctx, u, day, typ)
	if err != nil {
		return err
	}
	cal := d.Stats.Calendar()
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d %s of %d (%s)\n", cal.DayKey(day), n, unit(typ, n), u.DailyLimit, statusFor(n, u.DailyLimit))
	return nil
}

func runWeek(cmd *cobra.Command, args []string) error {
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
	week, err := d.Stats.WeekSummary(ctx, u)
	if err != nil {
		return err
	}

	cal := d.Stats.Calendar()
	out := cmd.OutOrStdout()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DAY\tCOUNT\tSTATUS")
	for _, t := range week.Days {
		fmt.Fprintf(w, "%s\t%d\t%s\n", cal.DayKey(t.Day), t.Count, statusFor(t.Count, week.Limit))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "Total %d, average %.1f per day, %d of %d days within your limit of %d.\n",
		week.Total, week.Average, week.WithinDays, len(week.Days), week.Limit)
	return nil
}

func runCalendar(cmd *cobra.Command, args []string) error {
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
	day := d.Stats.Today()
	if calendarMonth != "" {
		if day, err = d.Stats.Calendar().ParseDay(calendarMonth + "-01"); err != nil {
			return fmt.Errorf("--month %q: want YYYY-MM", calendarMonth)
		}
	}
	month, err := d.Stats.Month(ctx, u, day)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s (limit %d)\n", month.Month, month.Limit)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DAY\tCOUNT\tSTATUS")
	for _, c := range month.Days {
		if c.Future {
			fmt.Fprintf(w, "%s\t-\t\n", c.Day)
			continue
		}
		fmt.Fprintf(w, "%s\t%d\t%s\n", c.Day, c.Count, c.Status)
	}
	return w.Flush()
}
