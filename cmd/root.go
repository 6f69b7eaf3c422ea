// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/operis-e2e/internal/config"
	"github.com/xkilldash9x/operis-e2e/internal/observability"
)

type contextKey string

const viperKey contextKey = "viper"

// osExit is swapped in tests.
var osExit = os.Exit

// newRootCmd builds the command tree. Each call has its own viper instance,
// so tests never share configuration state.
func newRootCmd() *cobra.Command {
	var cfgFile string
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:   "operis-e2e",
		Short: "Operis-E2E verifies the Operis web application end to end in a real browser.",
		// Version is dynamically set at build time. See cmd/version.go.
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// This function runs before any command, setting up config and logging.
			if err := initializeConfig(v, cfgFile); err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "operis-e2e"})
				return err
			}

			var loggerCfg config.LoggerConfig
			if err := v.UnmarshalKey("logger", &loggerCfg); err != nil {
				// Initialize a fallback logger if config unmarshal fails
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "operis-e2e"})
				return fmt.Errorf("failed to unmarshal logger config: %w", err)
			}
			observability.InitializeLogger(loggerCfg)
			observability.GetLogger().Debug("Starting Operis-E2E", zap.String("version", Version))

			cmd.SetContext(context.WithValue(cmd.Context(), viperKey, v))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newProvisionCmd())
	rootCmd.AddCommand(newScenariosCmd())
	rootCmd.AddCommand(newReportCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// Execute runs the CLI with a context canceled on SIGINT or SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	observability.Sync()
	osExit(exitCode(err))
}

// exitCode maps a command error to the process exit status. Failed scenarios
// have already been reported, so only other errors are printed.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if !errors.Is(err, errScenariosFailed) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return 1
}

// initializeConfig reads in config file and ENV variables if set.
func initializeConfig(v *viper.Viper, cfgFile string) error {
	config.SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("OPERIS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults/env vars
	}
	return nil
}

// viperFromContext returns the instance the root command loaded.
func viperFromContext(ctx context.Context) (*viper.Viper, error) {
	v, ok := ctx.Value(viperKey).(*viper.Viper)
	if !ok || v == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	return v, nil
}

// loadConfig builds and validates the configuration, including any flags the
// command bound in PreRunE.
func loadConfig(ctx context.Context) (*config.Config, error) {
	v, err := viperFromContext(ctx)
	if err != nil {
		return nil, err
	}
	cfg, err := config.NewConfigFromViper(v)
	if err != nil {
		return nil, fmt.Errorf("failed to load or validate config: %w", err)
	}
	return cfg, nil
}

// bindFlags binds each named flag of cmd to a configuration key.
func bindFlags(cmd *cobra.Command, bindings map[string]string) error {
	v, err := viperFromContext(cmd.Context())
	if err != nil {
		return err
	}
	for flag, key := range bindings {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("failed to bind flag --%s: %w", flag, err)
		}
	}
	return nil
}
