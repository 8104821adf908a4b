package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/harborline/quotebuilder/internal/utils"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "quotebuilder",
	Short: "Build, price and resume outboard motor quotes.",
	Long: `quotebuilder keeps an in-progress motor quote on disk, prices the catalog against
the promotions running today and serves the quote builder over HTTP.`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.quotebuilder.yaml)")

	// Global flags
	rootCmd.PersistentFlags().StringP("loglevel", "l", "info", "Set log level. Available: debug, info, warn, error, fatal")
	rootCmd.PersistentFlags().String("logformat", "text", "Log format. Available: text, json")
	rootCmd.PersistentFlags().String("key", "", "Storage key of the quote (default from storage.key)")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".quotebuilder")
		viper.SetConfigType("yaml")
	}

	viper.AutomaticEnv()

	setDefaults()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; create it with defaults.
			home, _ := homedir.Dir()
			configPath := filepath.Join(home, ".quotebuilder.yaml")
			if err := viper.SafeWriteConfigAs(configPath); err != nil {
				fmt.Printf("Error creating config file: %s", err)
			}
		}
	}

	// Init log library
	levelString, _ := rootCmd.PersistentFlags().GetString("loglevel")
	if err := utils.SetLogLevel(levelString); err != nil {
		utils.Log.Fatal(err)
	}
	formatString, _ := rootCmd.PersistentFlags().GetString("logformat")
	if err := utils.SetLogFormat(formatString); err != nil {
		utils.Log.Fatal(err)
	}
}

func setDefaults() {
	viper.SetDefault("storage.backend", "sqlite")
	viper.SetDefault("storage.path", "")
	viper.SetDefault("storage.key", "quoteBuilder")
	viper.SetDefault("storage.stale_after", "720h")

	viper.SetDefault("catalog.driver", "sqlite")
	viper.SetDefault("catalog.dsn", "")
	viper.SetDefault("catalog.url", "")
	viper.SetDefault("catalog.token", "")
	viper.SetDefault("catalog.retries", 3)
	viper.SetDefault("catalog.timeout", "10s")

	viper.SetDefault("finance.minimum", 5000)
	viper.SetDefault("finance.default_rate", 7.99)
	viper.SetDefault("finance.default_term", 60)
	viper.SetDefault("finance.deferred_months", 6)

	viper.SetDefault("recovery.timeout", "8s")
	viper.SetDefault("recovery.tick", "2s")

	viper.SetDefault("server.listen", ":8080")
	viper.SetDefault("server.username", "")
	viper.SetDefault("server.password_hash", "")
}
