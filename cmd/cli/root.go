package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/JayanthReddyKonda/recovery-ease-frontend/internal/config"
	"github.com/JayanthReddyKonda/recovery-ease-frontend/internal/models"
	"github.com/JayanthReddyKonda/recovery-ease-frontend/internal/observability"
	"github.com/JayanthReddyKonda/recovery-ease-frontend/pkg/recoverapi"
)

var (
	cfgFile string
	debug   bool

	cfg             *config.Config
	shutdownTracing observability.ShutdownFunc
)

var rootCmd = &cobra.Command{
	Use:   "recoverease",
	Short: "RecoverEase chat client and local development backend",
	Long: `RecoverEase connects patients with their doctors and an AI recovery assistant.

The chat command opens an interactive session against the configured backend;
devserver runs a local backend with the same REST and WebSocket contract.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initConfig(); err != nil {
			return err
		}
		shutdown, err := observability.SetupTracing(cmd.Context(), cfg.Monitoring.Tracing, tracingComponent(cmd))
		if err != nil {
			logrus.Warnf("Tracing disabled: %v", err)
			shutdown = func(context.Context) error { return nil }
		}
		shutdownTracing = shutdown
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if shutdownTracing != nil {
			return shutdownTracing(context.Background())
		}
		return nil
	},
}

func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().String("api", "", "REST base URL, e.g. http://localhost:8080/api")
	rootCmd.PersistentFlags().String("ws", "", "WebSocket URL, e.g. ws://localhost:8080/ws")
	rootCmd.PersistentFlags().String("token", "", "bearer token")

	_ = viper.BindPFlag("api.base_url", rootCmd.PersistentFlags().Lookup("api"))
	_ = viper.BindPFlag("realtime.url", rootCmd.PersistentFlags().Lookup("ws"))
	_ = viper.BindPFlag("api.token", rootCmd.PersistentFlags().Lookup("token"))
}

// tracingComponent 开发后端使用独立的服务名上报追踪
func tracingComponent(cmd *cobra.Command) string {
	if cmd.Name() == "devserver" {
		return "devserver"
	}
	return "cli"
}

func initConfig() error {
	if err := config.InitViper(viper.GetViper(), cfgFile); err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	loaded, err := config.LoadFrom(viper.GetViper())
	if err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if debug {
		loaded.Log.Level = "debug"
	}
	if err := config.InitLogger(loaded); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	cfg = loaded
	return nil
}

// newAPIClient 按配置创建 REST 客户端
func newAPIClient() *recoverapi.Client {
	return recoverapi.NewClient(&recoverapi.Config{
		BaseURL:    cfg.API.BaseURL,
		Token:      cfg.API.Token,
		Timeout:    cfg.API.Timeout,
		MaxRetries: cfg.API.MaxRetries,
		RetryDelay: cfg.API.RetryDelay,
	}, logrus.StandardLogger())
}

// resolveIdentity returns the configured identity, asking the backend when
// the config does not carry one.
func resolveIdentity(ctx context.Context, api *recoverapi.Client) (models.SafeUser, error) {
	if api.Token() == "" {
		return models.SafeUser{}, fmt.Errorf("not signed in: run `recoverease login` or set %s_API_TOKEN", config.EnvPrefix)
	}
	if role, ok := models.ParseRole(cfg.Identity.Role); ok && cfg.Identity.UserID != "" {
		return models.SafeUser{ID: cfg.Identity.UserID, Name: cfg.Identity.Name, Role: role}, nil
	}
	me, err := api.Me(ctx)
	if err != nil {
		return models.SafeUser{}, fmt.Errorf("%s", recoverapi.UserMessage(err))
	}
	return *me, nil
}
