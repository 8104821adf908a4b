package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/harborline/quotebuilder/internal/utils"
	"github.com/harborline/quotebuilder/pkg/catalog"
	"github.com/harborline/quotebuilder/pkg/polling"
	"github.com/harborline/quotebuilder/pkg/storage"
)

// dbCmd represents the db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Interact with the quote store and the catalog database",
}

// shellCmd represents the shell command
var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start an interactive sqlite shell on the quote store or the catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		useCatalog, _ := cmd.Flags().GetBool("catalog")

		var dbPath string
		var err error
		if useCatalog {
			if viper.GetString("catalog.driver") != "sqlite" {
				return fmt.Errorf("db shell only supports a sqlite catalog")
			}
			dbPath, err = dataPath(viper.GetString("catalog.dsn"), "catalog.sqlite")
		} else {
			if viper.GetString("storage.backend") != "sqlite" {
				return fmt.Errorf("db shell only supports the sqlite storage backend")
			}
			dbPath, err = storagePath()
		}
		if err != nil {
			return err
		}

		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return fmt.Errorf("database file not found: %s", dbPath)
		}

		// Check if sqlite3 is in PATH
		sqlitePath, err := exec.LookPath("sqlite3")
		if err != nil {
			return fmt.Errorf("sqlite3 command not found in your PATH. Please install it to use the db shell")
		}

		// Print schema first
		fmt.Println("--> Database schema:")
		schemaCmd := exec.Command(sqlitePath, dbPath, ".schema")
		schemaCmd.Stdout = os.Stdout
		schemaCmd.Stderr = os.Stderr
		if err := schemaCmd.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: couldn't retrieve schema: %v\n", err)
		}
		fmt.Println("\n--> Starting interactive shell... (Ctrl+D to exit)")

		c := exec.Command(sqlitePath, dbPath)
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr

		return c.Run()
	},
}

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Prints statistics about stored quotes and the catalog.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		backend, err := openBackend()
		if err != nil {
			return err
		}
		defer backend.Close()

		gw := storage.NewGateway(backend, storage.Options{
			StaleAfter: viper.GetDuration("storage.stale_after"),
			Logger:     utils.Log,
		})
		keys, err := gw.Keys(ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight)
		fmt.Fprintln(w, "KEY\tBYTES\tSTEPS\tLAST ACTIVITY\tSTATUS\t")
		var stale, corrupt int
		for _, key := range keys {
			r, err := gw.WithKey(key).Inspect(ctx)
			if err != nil {
				return err
			}
			status, last := "ok", "-"
			switch {
			case r.Corrupt != "":
				status = "corrupt"
				corrupt++
			case r.Stale:
				status = "stale"
				stale++
			}
			if !r.Meta.LastActivity.IsZero() {
				last = r.Meta.LastActivity.Local().Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\t\n", key, r.Size, len(r.State.CompletedSteps), last, status)
		}
		fmt.Fprintln(w, " \t \t \t \t \t")
		fmt.Fprintf(w, "TOTAL\t%d\t \tstale %d\tcorrupt %d\t\n", len(keys), stale, corrupt)
		w.Flush()

		if db, ok := backend.(*storage.DB); ok {
			bs, err := db.Stats(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("\nQuote store: %d blobs, %d bytes", bs.Count, bs.TotalBytes)
			if !bs.LastUpdated.IsZero() {
				fmt.Printf(", last write %s", bs.LastUpdated.Format(time.RFC3339))
			}
			fmt.Println()
		}

		if viper.GetString("catalog.driver") == "http" {
			return nil
		}
		store, err := openCatalogStore()
		if err != nil {
			return err
		}
		defer store.Close()
		cs, err := store.Stats(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Catalog: %d motors, %d promotions (%d active), %d rules\n",
			cs.Motors, cs.Promotions, cs.ActivePromotions, cs.Rules)
		return nil
	},
}

// importCmd loads a catalog snapshot from JSON into the catalog database.
var importCmd = &cobra.Command{
	Use:   "import <snapshot.json>",
	Short: "Import motors, promotions and rules into the catalog database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		var snap catalog.Snapshot
		if err := json.NewDecoder(f).Decode(&snap); err != nil {
			return fmt.Errorf("parse %s: %w", args[0], err)
		}

		store, err := openCatalogStore()
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Import(context.Background(), snap); err != nil {
			return err
		}
		utils.Log.Infof("Imported %d motors, %d promotions and %d rules", len(snap.Motors), len(snap.Promotions), len(snap.Rules))
		return nil
	},
}

// syncCmd mirrors the HTTP catalog into the local catalog database.
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Mirror the remote catalog (catalog.url) into the local catalog database",
	RunE: func(cmd *cobra.Command, args []string) error {
		every, _ := cmd.Flags().GetDuration("every")
		url := viper.GetString("catalog.url")
		if url == "" {
			return fmt.Errorf("catalog.url is required to sync")
		}
		if viper.GetString("catalog.driver") == "http" {
			// The local mirror is sqlite unless a database driver is configured.
			viper.Set("catalog.driver", "sqlite")
		}

		store, err := openCatalogStore()
		if err != nil {
			return err
		}
		defer store.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		err = polling.Run(ctx, polling.Config{
			Source: catalog.NewHTTPSource(url, viper.GetString("catalog.token"),
				viper.GetInt("catalog.retries"), viper.GetDuration("catalog.timeout")),
			Destination: store,
			Interval:    every,
			Log:         utils.Log,
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(syncCmd)
	syncCmd.Flags().Duration("every", 0, "Keep syncing at this interval (0 syncs once)")
	dbCmd.AddCommand(shellCmd)
	dbCmd.AddCommand(statsCmd)
	dbCmd.AddCommand(importCmd)
	shellCmd.Flags().Bool("catalog", false, "Open the catalog database instead of the quote store")
}
