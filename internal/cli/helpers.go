package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/puffquest/puffquest/internal/daemon"
	"github.com/puffquest/puffquest/internal/domain"
)

// errNoUser is returned by commands that need an onboarded user.
var errNoUser = errors.New("no user yet, run 'puffquest onboard' first")

// openDaemon wires the services for a one-shot command. Logs go to the
// configured file; only warnings reach the terminal.
func openDaemon() (*daemon.Daemon, error) {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.Logging.Level != "debug" {
		cfg.Logging.Level = "warn"
	}
	logger, err := daemon.NewLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return daemon.NewWithConfig(cfg, logger)
}

// currentUser returns the onboarded user.
func currentUser(ctx context.Context, d *daemon.Daemon) (domain.User, error) {
	u, err := d.Accounts.CurrentUser(ctx)
	if err != nil {
		return domain.User{}, err
	}
	if u == nil {
		return domain.User{}, errNoUser
	}
	return *u, nil
}

// parseAt accepts RFC 3339 or a "15:04" time of today.
func parseAt(d *daemon.Daemon, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	clock, err := time.Parse("15:04", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("--at %q: want RFC 3339 or HH:MM", s)
	}
	today := d.Stats.Today()
	return today.Add(time.Duration(clock.Hour())*time.Hour + time.Duration(clock.Minute())*time.Minute), nil
}

// parseDay parses "YYYY-MM-DD" in the configured calendar; "" means def.
func parseDay(d *daemon.Daemon, s string, def time.Time) (time.Time, error) {
	if s == "" {
		return def, nil
	}
	return d.Stats.Calendar().ParseDay(s)
}

func unit(typ domain.EntryType, n int) string {
	name := string(typ)
	if n != 1 {
		name += "s"
	}
	return name
}

func statusFor(count, limit int) string {
	return string(domain.StatusFor(count, limit))
}
