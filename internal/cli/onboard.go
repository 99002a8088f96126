package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/puffquest/puffquest/internal/domain"
)

func init() {
	f := onboardCmd.Flags()
	f.StringVar(&onboardName, "name", "", "Display name")
	f.StringVar(&onboardMethod, "method", string(domain.MethodCigarettes), "What you use: cigarettes, heated_tobacco, snus, disposable_vape, refillable_vape")
	f.IntVar(&onboardLimit, "limit", 10, "Daily limit you commit to")
	f.IntVar(&onboardPackSize, "pack-size", 0, "Units per pack (cigarettes only)")
	f.Float64Var(&onboardPackCost, "pack-cost", 0, "Price of one pack")
	f.StringVar(&onboardCurrency, "currency", "", "ISO currency code (default USD)")
	rootCmd.AddCommand(onboardCmd)
}

var (
	onboardName     string
	onboardMethod   string
	onboardLimit    int
	onboardPackSize int
	onboardPackCost float64
	onboardCurrency string
)

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Set up your profile and daily limit",
	Example: `  puffquest onboard --name Alex --method cigarettes --limit 10 --pack-size 20 --pack-cost 8.50
  puffquest onboard --name Sam --method vape --limit 200`,
	Args: cobra.NoArgs,
	RunE: runOnboard,
}

func runOnboard(cmd *cobra.Command, args []string) error {
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	ctx := context.Background()
	existing, err := d.Accounts.CurrentUser(ctx)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("already onboarded as %q; run 'puffquest reset --yes' to start over", existing.DisplayName)
	}

	u, err := d.Accounts.CompleteOnboarding(ctx, domain.OnboardingData{
		DisplayName: onboardName,
		Method:      domain.Method(onboardMethod),
		DailyLimit:  onboardLimit,
		PackSize:    onboardPackSize,
		PackCost:    onboardPackCost,
		Currency:    onboardCurrency,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Welcome, %s!\n", u.DisplayName)
	fmt.Fprintf(out, "Tracking %s against a limit of %d per day.\n", unit(u.EntryType(), 2), u.DailyLimit)
	if u.HasPackPricing() {
		fmt.Fprintf(out, "Each cigarette costs %.2f %s.\n", u.PackUnitCost(), u.Currency)
	}
	return nil
}
