package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/harborline/quotebuilder/internal/server"
	"github.com/harborline/quotebuilder/internal/utils"
	"github.com/harborline/quotebuilder/pkg/builder"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the quote builder API",
	Long: `Serves one quote per session over HTTP. Each session is stored under
"<storage.key>:<session id>" so a client can resume it later.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		listen, _ := cmd.Flags().GetString("listen")
		if listen == "" {
			listen = viper.GetString("server.listen")
		}

		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		srv := server.New(func(id string) *builder.Session {
			return e.newSession(e.gateway.WithKey(e.gateway.Key() + ":" + id))
		}, viper.GetString("server.username"), viper.GetString("server.password_hash"))

		if srv.PasswordHash == "" {
			utils.Log.Warn("server.password_hash is not set, the API is open to anyone who can reach it")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := srv.Start(ctx, listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		utils.Log.Info("Server stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("listen", "", "HTTP listen address (default from server.listen)")
}
