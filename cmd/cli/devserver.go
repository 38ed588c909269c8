package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/JayanthReddyKonda/recovery-ease-frontend/internal/devserver"
	"github.com/JayanthReddyKonda/recovery-ease-frontend/internal/observability"
)

var (
	flagPort    int
	flagMigrate bool
)

var devserverCmd = &cobra.Command{
	Use:     "devserver",
	Aliases: []string{"serve"},
	Short:   "Run the local RecoverEase backend (REST + WebSocket)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		dc := cfg.DevServer
		if flagPort > 0 {
			dc.Port = flagPort
		}

		var store devserver.Store
		if dc.Database.Enabled {
			db, err := devserver.OpenDB(dc.Database)
			if err != nil {
				return err
			}
			if flagMigrate {
				if err := devserver.Migrate(db); err != nil {
					return fmt.Errorf("migrate: %w", err)
				}
			}
			store = devserver.NewGormStore(db, logrus.StandardLogger())
			logrus.WithField("database", dc.Database.Name).Info("Using PostgreSQL store")
		} else {
			logrus.Info("Using in-memory store")
		}

		srv := devserver.New(devserver.Options{
			Config:      dc,
			ServiceName: observability.ServiceName(cfg.Monitoring.Tracing, "devserver"),
			Version:     Version,
			Debug:       debug,
			Store:       store,
			Logger:      logrus.StandardLogger(),
		})
		if err := srv.Run(ctx); err != nil {
			return err
		}
		logrus.Info("Devserver exited")
		return nil
	},
}

// ExecuteCommand runs the named subcommand with the process arguments, for
// binaries that expose a single command.
func ExecuteCommand(name string) {
	rootCmd.SetArgs(append([]string{name}, os.Args[1:]...))
	Execute()
}

func init() {
	devserverCmd.Flags().IntVarP(&flagPort, "port", "p", 0, "listen port (overrides devserver.port)")
	devserverCmd.Flags().BoolVar(&flagMigrate, "migrate", true, "auto-migrate tables when the database store is enabled")
	rootCmd.AddCommand(devserverCmd)
}
