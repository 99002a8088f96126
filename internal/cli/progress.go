package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/puffquest/puffquest/internal/app/engagement"
	"github.com/puffquest/puffquest/internal/domain"
)

func init() {
	recalcCmd.Flags().StringVar(&recalcDate, "date", "", "Finished day to score, YYYY-MM-DD (default: yesterday)")
	rootCmd.AddCommand(recalcCmd)
	rootCmd.AddCommand(progressCmd)
}

var recalcDate string

var recalcCmd = &cobra.Command{
	Use:   "recalc",
	Short: "Score a finished day for XP, coins, streak and achievements",
	Long: `Score a finished day. Unscored days before it are scored first, oldest
first. Each day is applied once; running it again for the same or an
earlier day changes nothing. 'puffquest serve' does this automatically
after midnight.`,
	Args: cobra.NoArgs,
	RunE: runRecalc,
}

var progressCmd = &cobra.Command{
	Use:     "progress",
	Aliases: []string{"status"},
	Short:   "Show level, coins, streak, savings and achievements",
	Args:    cobra.NoArgs,
	RunE:    runProgress,
}

func runRecalc(cmd *cobra.Command, args []string) error {
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
	today := d.Stats.Today()
	day, err := parseDay(d, recalcDate, d.Stats.Calendar().AddDays(today, -1))
	if err != nil {
		return fmt.Errorf("--date: %w", err)
	}
	if !day.Before(today) {
		return fmt.Errorf("--date %s has not finished yet", d.Stats.Calendar().DayKey(day))
	}

	results, err := d.Game.RecalcThrough(ctx, u.ID, day)
	out := cmd.OutOrStdout()
	for _, res := range results {
		printRecalc(out, res)
	}
	return err
}

func printRecalc(out io.Writer, res domain.RecalcResult) {
	if res.Skipped {
		fmt.Fprintf(out, "%s already scored (last scored day %s).\n", res.Day, res.User.LastRecalcDay)
		return
	}
	verdict := "over the limit"
	if res.WithinLimit {
		verdict = "within the limit"
	}
	fmt.Fprintf(out, "%s: %d of %d, %s.\n", res.Day, res.Count, res.Limit, verdict)
	fmt.Fprintf(out, "+%d XP, +%d coins, streak %d (best %d).\n",
		res.XPGained, res.CoinsGained, res.Streak.CurrentLength, res.Streak.BestLength)
	if len(res.Unlocked) > 0 {
		fmt.Fprintf(out, "Unlocked: %s\n", strings.Join(res.Unlocked, ", "))
	}
}

func runProgress(cmd *cobra.Command, args []string) error {
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
	snap, err := d.Game.Progress(ctx, u.ID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Level %d  (%d / %d XP, %.0f%%)\n",
		snap.Level.Level, snap.Level.CurrentXP, snap.Level.NextLevelXP, engagement.ProgressPct(snap.Level.CurrentXP))
	fmt.Fprintf(out, "Coins %d\n", snap.Coins)
	fmt.Fprintf(out, "Streak %d days (best %d)\n", snap.Streak.CurrentLength, snap.Streak.BestLength)
	fmt.Fprintf(out, "Saved %d %s\n", snap.MoneySaved, snap.Currency)

	if len(snap.Achievements) == 0 {
		return nil
	}
	fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ACHIEVEMENT\tPROGRESS\tUNLOCKED")
	for _, a := range snap.Achievements {
		unlocked := "-"
		if a.AchievedAt != nil {
			unlocked = a.AchievedAt.In(d.Stats.Calendar().Location).Format("2006-01-02")
		}
		fmt.Fprintf(w, "%s\t%d/%d\t%s\n", a.Title, min(a.Progress, a.Threshold), a.Threshold, unlocked)
	}
	return w.Flush()
}
