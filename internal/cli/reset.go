package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	resetCmd.Flags().BoolVar(&resetYes, "yes", false, "Confirm deleting all data")
	rootCmd.AddCommand(resetCmd)
}

var resetYes bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete your profile, entries and progress",
	Args:  cobra.NoArgs,
	RunE:  runReset,
}

func runReset(cmd *cobra.Command, args []string) error {
	if !resetYes {
		return errors.New("this deletes all your data; pass --yes to confirm")
	}

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
	if err := d.Accounts.Reset(ctx, u.ID); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Removed %s and all their data.\n", u.DisplayName)
	return nil
}
