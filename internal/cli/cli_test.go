package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupHome(t *testing.T) {
	t.Helper()
	t.Setenv("PUFFQUEST_HOME", t.TempDir())
	t.Setenv("PUFFQUEST_TIMEZONE", "UTC")
}

// resetFlags restores every flag to its default so runs do not leak state.
func resetFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	})
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func onboard(t *testing.T) {
	t.Helper()
	out, err := run(t, "onboard", "--name", "Alex", "--method", "cigarettes",
		"--limit", "10", "--pack-size", "20", "--pack-cost", "8")
	require.NoError(t, err)
	require.Contains(t, out, "Welcome, Alex!")
	require.Contains(t, out, "0.40 USD")
}

func TestCommandsRequireUser(t *testing.T) {
	setupHome(t)
	for _, args := range [][]string{{"log"}, {"today"}, {"week"}, {"progress"}, {"recalc"}} {
		_, err := run(t, args...)
		assert.ErrorIs(t, err, errNoUser, "%v", args)
	}
}

func TestOnboard_Twice(t *testing.T) {
	setupHome(t)
	onboard(t)

	_, err := run(t, "onboard", "--name", "Sam", "--limit", "5")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already onboarded")
}

func TestOnboard_Invalid(t *testing.T) {
	setupHome(t)
	_, err := run(t, "onboard", "--name", "Alex", "--limit", "0")
	assert.Error(t, err)

	_, err = run(t, "onboard", "--name", "Alex", "--method", "pipe")
	assert.Error(t, err)
}

func TestLogAndToday(t *testing.T) {
	setupHome(t)
	onboard(t)

	out, err := run(t, "log")
	require.NoError(t, err)
	assert.Contains(t, out, "1 of 10 today, 9 left.")

	out, err = run(t, "log", "--cost", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "2 of 10 today")

	out, err = run(t, "today")
	require.NoError(t, err)
	assert.Contains(t, out, "2 cigs of 10 (within)")

	_, err = run(t, "log", "--type", "pipe")
	assert.Error(t, err)
	_, err = run(t, "log", "--at", "noon")
	assert.Error(t, err)
}

func TestWeekAndCalendar(t *testing.T) {
	setupHome(t)
	onboard(t)
	_, err := run(t, "log")
	require.NoError(t, err)

	out, err := run(t, "week")
	require.NoError(t, err)
	assert.Contains(t, out, "DAY")
	assert.Contains(t, out, "Total 1,")

	out, err = run(t, "calendar", "--month", "2025-02")
	require.NoError(t, err)
	assert.Contains(t, out, "2025-02 (limit 10)")
	assert.Contains(t, out, "2025-02-28")
	assert.NotContains(t, out, "2025-02-29")

	_, err = run(t, "calendar", "--month", "Feb")
	assert.Error(t, err)
}

func TestRecalcAndProgress(t *testing.T) {
	setupHome(t)
	onboard(t)

	yesterday := time.Now().UTC().AddDate(0, 0, -1).Format(time.RFC3339)
	_, err := run(t, "log", "--at", yesterday)
	require.NoError(t, err)

	out, err := run(t, "recalc")
	require.NoError(t, err)
	assert.Contains(t, out, "1 of 10, within the limit.")
	assert.Contains(t, out, "streak 1 (best 1)")

	out, err = run(t, "recalc")
	require.NoError(t, err)
	assert.Contains(t, out, "already scored")

	today := time.Now().UTC().Format("2006-01-02")
	_, err = run(t, "recalc", "--date", today)
	assert.Error(t, err)

	out, err = run(t, "progress")
	require.NoError(t, err)
	assert.Contains(t, out, "Streak 1 days (best 1)")
	assert.Contains(t, out, "ACHIEVEMENT")
}

func TestReset(t *testing.T) {
	setupHome(t)
	onboard(t)

	_, err := run(t, "reset")
	require.Error(t, err)

	out, err := run(t, "reset", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed Alex")

	_, err = run(t, "today")
	assert.ErrorIs(t, err, errNoUser)
}
