package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/harborline/quotebuilder/pkg/builder"
	"github.com/harborline/quotebuilder/pkg/recovery"
	"github.com/harborline/quotebuilder/pkg/storage"
)

// priceCmd prints every catalog item priced against today's promotions.
var priceCmd = &cobra.Command{
	Use:   "price",
	Short: "Price the catalog against the promotions running today",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		filter, _ := cmd.Flags().GetString("model")

		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		// Pricing never touches the stored quote.
		ctx := context.Background()
		s := e.newSession(storage.NewGateway(storage.NewMemory(), storage.Options{}))
		defer s.Close(ctx)
		st, err := s.Open(ctx)
		if err != nil {
			return err
		}
		if st == recovery.Emergency {
			return fmt.Errorf("catalog did not load within %s", recoveryConfig().Timeout)
		}

		var prices []builder.ItemPrice
		for _, p := range s.PriceAll() {
			if filter != "" && !strings.Contains(strings.ToLower(p.Motor.Label()), strings.ToLower(filter)) {
				continue
			}
			prices = append(prices, p)
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(prices)
		}
		if len(prices) == 0 {
			fmt.Println("No catalog items to price.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight)
		fmt.Fprintln(w, "ID\tMODEL\tHP\tLIST\tPRICE\tSAVINGS\tMONTHLY\tPROMOTIONS\t")
		for _, p := range prices {
			monthly := "-"
			if p.Payment.Applicable {
				monthly = fmt.Sprintf("%.2f", p.Payment.Monthly)
			}
			fmt.Fprintf(w, "%s\t%s\t%g\t%.2f\t%.2f\t%.2f\t%s\t%s\t\n",
				p.Motor.ID, p.Motor.Label(), p.Motor.Horsepower,
				p.Price.StartingPrice, p.Price.EffectivePrice, p.Price.Savings,
				monthly, strings.Join(p.Price.AppliedLabels, ", "))
		}
		w.Flush()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(priceCmd)
	priceCmd.Flags().Bool("json", false, "Print JSON instead of a table")
	priceCmd.Flags().String("model", "", "Only price items whose model contains this text")
}
