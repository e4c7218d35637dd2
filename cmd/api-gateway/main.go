package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/upb/sso-gateway/app"
	"github.com/upb/sso-gateway/config"
	"github.com/upb/sso-gateway/routes"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "sso-gateway",
		Short: "SSO token validation and session issuance gateway",
		Long: `sso-gateway verifies Azure AD / Entra ID credentials against the tenant's
published signing keys, applies organizational policy and issues short-lived
application session tokens.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newCheckConfigCmd(), newSignInEventsCmd(openSignInEvents))
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	}
}

func newCheckConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration and print a redacted summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New(cmd.Context())
			if err != nil {
				return err
			}
			if _, err := parseLevel(cfg.Observability.LogLevel); err != nil {
				return err
			}
			printConfig(cmd.OutOrStdout(), cfg)
			return nil
		},
	}
}

func serve(ctx context.Context) error {
	cfg, err := config.New(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := initLogger()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	deps, err := app.NewDependencies(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      routes.SetupRoutes(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("sso gateway listening",
			zap.String("addr", srv.Addr),
			zap.Bool("tls", cfg.Server.TLS.Enabled),
			zap.String("environment", cfg.Environment))

		var err error
		if cfg.Server.TLS.Enabled {
			err = srv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// SIGHUP drops cached authority metadata, e.g. after a key rollover
	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)
	defer signal.Stop(reload)

	var runErr error
wait:
	for {
		select {
		case <-reload:
			deps.RefreshAuthorityMetadata()
		case <-ctx.Done():
			logger.Info("shutdown signal received")
			break wait
		case err := <-serverErr:
			if err != nil {
				runErr = fmt.Errorf("server error: %w", err)
			}
			break wait
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	if err := deps.Close(shutdownCtx); err != nil {
		logger.Error("dependency shutdown failed", zap.Error(err))
	}

	logger.Info("server exited")
	return runErr
}

// initLogger builds a zap logger from LOG_LEVEL and LOG_FORMAT.
// json (default) uses the production encoder, console the development one.
func initLogger() (*zap.Logger, error) {
	level, err := parseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}

	var zapCfg zap.Config
	if strings.EqualFold(getEnv("LOG_FORMAT", "json"), "console") {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
		zapCfg.EncoderConfig.TimeKey = "timestamp"
		zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}

func parseLevel(raw string) (zapcore.Level, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(raw))); err != nil {
		return level, fmt.Errorf("invalid log level %q: %w", raw, err)
	}
	return level, nil
}

// printConfig writes the effective configuration with secrets redacted
func printConfig(w io.Writer, cfg *config.Config) {
	secret := "<not set>"
	if n := len(cfg.Session.SigningSecret); n > 0 {
		secret = fmt.Sprintf("<redacted, %d bytes>", n)
	}
	audit := "disabled"
	if cfg.AuditDatabase != nil {
		audit = cfg.AuditDatabase.LogString()
	}
	domains := "<any>"
	if len(cfg.Policy.AllowedDomains) > 0 {
		domains = strings.Join(cfg.Policy.AllowedDomains, ",")
	}

	fmt.Fprintf(w, "environment:        %s\n", cfg.Environment)
	fmt.Fprintf(w, "listen:             %s (tls: %t)\n", cfg.Server.Address(), cfg.Server.TLS.Enabled)
	fmt.Fprintf(w, "authority instance: %s\n", cfg.Authority.Instance)
	fmt.Fprintf(w, "tenant id:          %s\n", orUnset(cfg.Authority.TenantID))
	fmt.Fprintf(w, "client id:          %s\n", orUnset(cfg.Authority.ClientID))
	fmt.Fprintf(w, "metadata ttl:       %s\n", cfg.Authority.MetadataTTL)
	fmt.Fprintf(w, "session secret:     %s\n", secret)
	fmt.Fprintf(w, "session lifetime:   %s\n", cfg.Session.SessionTTL())
	fmt.Fprintf(w, "session issuer:     %s\n", orUnset(cfg.Session.Issuer))
	fmt.Fprintf(w, "allowed domains:    %s\n", domains)
	fmt.Fprintf(w, "expected tenant:    %s\n", orUnset(cfg.Policy.ExpectedTenantID))
	fmt.Fprintf(w, "max token age:      %s\n", cfg.Policy.MaxTokenAge())
	fmt.Fprintf(w, "required auth:      %s\n", orUnset(cfg.Policy.RequiredAuthMethod))
	fmt.Fprintf(w, "audit database:     %s\n", audit)

	for _, warning := range cfg.Warnings() {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
}

func orUnset(v string) string {
	if v == "" {
		return "<not set>"
	}
	return v
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
