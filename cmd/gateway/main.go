// Lottie gateway: HTTP backend for the Lottie/Jennie chat client.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sixsideddice/lottie-gateway/internal/api"
	"github.com/sixsideddice/lottie-gateway/internal/domain/chat"
	"github.com/sixsideddice/lottie-gateway/internal/infra/config"
	"github.com/sixsideddice/lottie-gateway/internal/infra/eventbus"
	"github.com/sixsideddice/lottie-gateway/internal/infra/logging"
	"github.com/sixsideddice/lottie-gateway/internal/server"
	"github.com/sixsideddice/lottie-gateway/internal/version"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

type options struct {
	configFile string
	envFile    string
	port       int
}

func run(args []string, out io.Writer) int {
	root := newRootCmd(out)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(out, "error:", err) //nolint:errcheck
		return 1
	}
	return 0
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "gateway",
		Short:         "Lottie AI backend gateway",
		Long:          "Proxies the Lottie chat client to Azure OpenAI, Azure AI Search, Azure Speech, Azure Blob Storage and ElevenLabs.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), opts)
		},
	}
	root.SetOut(out)
	root.SetErr(out)

	root.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "path to an optional YAML config file")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "path to an optional .env file")
	root.PersistentFlags().IntVarP(&opts.port, "port", "p", 0, "listen port (overrides PORT)")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server (default)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), opts)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String()) //nolint:errcheck
		},
	})
	return root
}

func loadConfig(opts *options) (*config.Config, error) {
	cfg, err := config.Load(config.Options{ConfigFile: opts.configFile, EnvFile: opts.envFile})
	if err != nil {
		return nil, err
	}
	if opts.port != 0 {
		cfg.Server.Port = opts.port
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func serve(parent context.Context, opts *options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck
	zap.ReplaceGlobals(logger)

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithContext(ctx, logger)

	bus := eventbus.New()
	defer bus.Close()
	go logUsage(ctx, bus.Subscribe(chat.UsageTopic), logger)

	svc, err := buildServices(cfg, bus)
	if err != nil {
		return err
	}
	router := api.NewRouter(svc, api.RouterConfig{AllowedOrigins: cfg.CORS.AllowedOrigins, Logger: logger})

	srv := server.NewServer(router, serverConfig(cfg.Server), logger)

	logger.Info("lottie gateway starting",
		zap.String("version", version.Version),
		zap.String("addr", srv.Addr()),
		zap.Strings("cors_origins", cfg.CORS.AllowedOrigins),
		zap.Bool("persona_strict", cfg.Chat.PersonaStrict))
	logMissingSettings(cfg, logger)

	errCh := make(chan error, 1)
	// In-flight requests keep running after a signal until Shutdown drains them.
	go func() { errCh <- srv.Start(context.WithoutCancel(ctx)) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("server stopped gracefully", zap.Uint64("usage_events_dropped", bus.Dropped()))
	return nil
}

// serverConfig overlays the configured listener settings on the server defaults.
// Zero timeouts keep the default.
func serverConfig(c config.ServerConfig) server.Config {
	sc := server.DefaultConfig()
	if c.Host != "" {
		sc.Host = c.Host
	}
	if c.Port != 0 {
		sc.Port = c.Port
	}
	if c.ReadTimeout > 0 {
		sc.ReadTimeout = c.ReadTimeout
	}
	if c.WriteTimeout > 0 {
		sc.WriteTimeout = c.WriteTimeout
	}
	if c.IdleTimeout > 0 {
		sc.IdleTimeout = c.IdleTimeout
	}
	return sc
}
