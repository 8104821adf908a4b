package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/harborline/quotebuilder/pkg/builder"
	"github.com/harborline/quotebuilder/pkg/catalog"
	"github.com/harborline/quotebuilder/pkg/quote"
	"github.com/harborline/quotebuilder/pkg/storage"
)

func main() {
	// Usage: go run *.go -catalog snapshot.json -motor f115

	catalogFlag := flag.String("catalog", "", "Catalog snapshot JSON file")
	motorFlag := flag.String("motor", "", "Motor ID to quote")

	// Parse the command-line flags
	flag.Parse()

	if *catalogFlag == "" || *motorFlag == "" {
		fmt.Println("Both -catalog and -motor are required.")
		return
	}

	raw, err := os.ReadFile(*catalogFlag)
	if err != nil {
		fmt.Println(err)
		return
	}
	var snap catalog.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		fmt.Println(err)
		return
	}

	// Any storage.Backend works; the memory one keeps nothing after exit.
	ctx := context.Background()
	s := builder.New(builder.Options{
		Gateway: storage.NewGateway(storage.NewMemory(), storage.Options{}),
		Catalog: catalog.Static(snap),
	})
	defer s.Close(ctx)

	if _, err := s.Open(ctx); err != nil {
		fmt.Println(err)
		return
	}
	if _, err := s.SelectMotor(*motorFlag); err != nil {
		fmt.Println(err)
		return
	}
	s.Dispatch(quote.SetPurchasePath{Path: quote.PathLoose})

	sum := s.Summary()
	fmt.Printf("%s: %.2f\n", sum.Config.Motor.Model, sum.Totals.Subtotal)
	for _, o := range sum.Offers {
		fmt.Println(" ", o.DisplayValue)
	}
	if sum.Payment.Applicable {
		fmt.Printf("  from %.2f/month for %d months\n", sum.Payment.Monthly, sum.Payment.Term)
	}
}
