package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/harborline/quotebuilder/internal/utils"
	"github.com/harborline/quotebuilder/pkg/builder"
	"github.com/harborline/quotebuilder/pkg/quote"
	"github.com/harborline/quotebuilder/pkg/recovery"
	"github.com/harborline/quotebuilder/pkg/storage"
)

var quoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "Inspect and edit the stored quote",
}

// runSession opens the configured quote, runs fn and flushes before exit.
func runSession(cmd *cobra.Command, write bool, fn func(ctx context.Context, e *env, s *builder.Session) error) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	run := func() error {
		ctx := context.Background()
		s := e.newSession(e.quoteGateway(cmd))
		st, err := s.Open(ctx)
		if err != nil {
			return err
		}
		if st == recovery.Emergency {
			_ = s.Close(ctx)
			return fmt.Errorf("quote did not load within %s; try 'quotebuilder quote recover'", recoveryConfig().Timeout)
		}
		ferr := fn(ctx, e, s)
		if err := s.Close(ctx); err != nil && ferr == nil {
			ferr = err
		}
		return ferr
	}
	return withLock(write, run)
}

var quoteShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the stored quote, its progress and totals",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		return runSession(cmd, false, func(ctx context.Context, e *env, s *builder.Session) error {
			report, err := e.quoteGateway(cmd).Inspect(ctx)
			if err != nil {
				return err
			}
			switch {
			case report.Corrupt != "":
				fmt.Printf("Stored quote %s is unreadable: %s\n", report.Key, report.Corrupt)
				return nil
			case !report.Present:
				fmt.Printf("No quote stored under %s\n", report.Key)
				return nil
			case report.Stale:
				fmt.Printf("Stored quote %s is older than %s and will not be resumed\n", report.Key, e.staleAfter)
				return nil
			}

			sum := s.Summary()
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					Meta    storage.Meta    `json:"meta"`
					Summary builder.Summary `json:"summary"`
				}{report.Meta, sum})
			}
			printSummary(report.Key, report.Meta.LastActivity, sum)
			return nil
		})
	},
}

func printSummary(key string, lastActivity time.Time, sum builder.Summary) {
	c := sum.Config
	ev := sum.Evaluation

	fmt.Printf("Quote %s (last activity %s)\n", key, lastActivity.Local().Format(time.RFC822))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	motor := "-"
	if c.Motor != nil {
		motor = fmt.Sprintf("%s (%s)", c.Motor.Model, c.Motor.ID)
	}
	path := string(c.PurchasePath)
	if path == "" {
		path = "-"
	}
	fmt.Fprintf(w, "Motor\t%s\t\n", motor)
	fmt.Fprintf(w, "Path\t%s\t\n", path)
	fmt.Fprintf(w, "Progress\t%d/%d (%d%%)\t\n", ev.CompletedCount, ev.TotalSteps, ev.Percentage)
	fmt.Fprintf(w, "Next\t%s\t\n", ev.NextRoute)
	if c.PromoDetails != nil {
		fmt.Fprintf(w, "Promotion\t%s\t\n", c.PromoDetails.Option)
	}
	fmt.Fprintln(w, " \t \t")

	t := sum.Totals
	for _, line := range []struct {
		name  string
		value float64
	}{
		{"Motor", t.Motor},
		{"Options", t.Options},
		{"Installation", t.Installation},
		{"Fuel tank", t.FuelTank},
		{"Warranty", t.Warranty},
		{"Battery", t.Battery},
		{"Trade-in", -t.TradeIn},
		{"Rebate", -t.Rebate},
	} {
		if line.value != 0 {
			fmt.Fprintf(w, "%s\t%.2f\t\n", line.name, line.value)
		}
	}
	fmt.Fprintf(w, "SUBTOTAL\t%.2f\t\n", t.Subtotal)
	if sum.Payment.Applicable {
		fmt.Fprintf(w, "Monthly\t%.2f x %d @ %.2f%%\t\n", sum.Payment.Monthly, sum.Payment.Term, sum.Payment.Rate)
	}
	w.Flush()

	for _, o := range sum.Offers {
		fmt.Printf("  offer: %s\n", o.DisplayValue)
	}
}

var quoteClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the stored quote",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		gw := e.quoteGateway(cmd)
		return withWriteLock(func() error {
			if err := gw.Clear(context.Background()); err != nil {
				return err
			}
			utils.Log.Infof("Cleared quote %s", gw.Key())
			return nil
		})
	},
}

var quoteSetMotorCmd = &cobra.Command{
	Use:   "set-motor <id>",
	Short: "Select a catalog motor for the quote",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSession(cmd, true, func(ctx context.Context, _ *env, s *builder.Session) error {
			cfg, err := s.SelectMotor(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Selected %s at %.2f\n", cfg.Motor.Model, cfg.Motor.Price)
			return nil
		})
	},
}

var quoteAdvanceCmd = &cobra.Command{
	Use:   "advance <step>",
	Short: "Mark a step complete and move to the next one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		step, err := strconv.Atoi(args[0])
		if err != nil || step < quote.StepMotor || step > quote.StepSummary {
			return fmt.Errorf("step must be a number between %d and %d", quote.StepMotor, quote.StepSummary)
		}
		return runSession(cmd, true, func(ctx context.Context, _ *env, s *builder.Session) error {
			ev, err := s.Advance(ctx, step)
			if err != nil {
				return err
			}
			fmt.Printf("Progress %d%%, next: %s\n", ev.Percentage, ev.NextRoute)
			return nil
		})
	},
}

var quoteApplyCmd = &cobra.Command{
	Use:   "apply <action-json>",
	Short: `Apply an action, e.g. '{"type":"SET_PURCHASE_PATH","payload":{"path":"loose"}}'`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var envelope quote.Envelope
		if err := json.Unmarshal([]byte(args[0]), &envelope); err != nil {
			return fmt.Errorf("invalid action: %w", err)
		}
		a, err := quote.DecodeAction(envelope)
		if err != nil {
			return err
		}
		return runSession(cmd, true, func(ctx context.Context, _ *env, s *builder.Session) error {
			if _, err := s.Apply(a); err != nil {
				return err
			}
			ev := s.Evaluate()
			fmt.Printf("Applied %s, progress %d%%\n", a.Kind(), ev.Percentage)
			return nil
		})
	},
}

var quotePromoCmd = &cobra.Command{
	Use:   "promo <option>",
	Short: "Choose a promotion option (no_payments, special_financing, cash_rebate)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSession(cmd, true, func(ctx context.Context, _ *env, s *builder.Session) error {
			cfg, err := s.ChoosePromo(quote.PromoOption(args[0]))
			if err != nil {
				return err
			}
			fmt.Printf("Chose %s\n", cfg.PromoDetails.Option)
			return nil
		})
	},
}

var quoteRecoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Start fresh when the stored quote cannot be loaded",
	Long: `Runs the emergency action that the loader offers when loading hangs.
  force_start_new     start with an empty quote and keep the stored one
  clear_and_restart   delete the stored quote and load again
  reload              try loading again`,
	RunE: func(cmd *cobra.Command, args []string) error {
		action, _ := cmd.Flags().GetString("action")

		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		return withWriteLock(func() error {
			ctx := context.Background()
			s := e.newSession(e.quoteGateway(cmd))
			defer s.Close(ctx)

			st, err := s.Open(ctx)
			if err != nil {
				return err
			}
			if st == recovery.Ready {
				fmt.Println("Quote loaded normally, nothing to recover")
				return nil
			}
			st, err = s.Recover(ctx, recovery.Action(action))
			if err != nil {
				return err
			}
			fmt.Printf("Loader is %s\n", st)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(quoteCmd)
	quoteCmd.AddCommand(quoteShowCmd, quoteClearCmd, quoteSetMotorCmd, quoteAdvanceCmd,
		quoteApplyCmd, quotePromoCmd, quoteRecoverCmd)

	quoteShowCmd.Flags().Bool("json", false, "Print JSON instead of a table")
	quoteRecoverCmd.Flags().String("action", string(recovery.ActionForceStartNew), "Recovery action")
}
