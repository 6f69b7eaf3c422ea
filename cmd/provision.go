// cmd/provision.go
package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/operis-e2e/internal/config"
	"github.com/xkilldash9x/operis-e2e/internal/identity"
	"github.com/xkilldash9x/operis-e2e/internal/observability"
)

// newProvisionCmd creates the `provision` command.
func newProvisionCmd() *cobra.Command {
	var email, password string

	provisionCmd := &cobra.Command{
		Use:   "provision",
		Short: "Creates a user in the identity emulator",
		Long: `Creates an email/password user in the local identity emulator. A user that
already exists counts as success, so the command can be run repeatedly.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Context())
			if err != nil {
				return err
			}
			return runProvision(cmd.Context(), cfg.Identity, email, password, cmd.OutOrStdout(), observability.GetLogger())
		},
	}

	provisionCmd.Flags().StringVar(&email, "email", "", "Email of the user to create (required)")
	provisionCmd.Flags().StringVar(&password, "password", "", "Password of the user to create (required)")
	_ = provisionCmd.MarkFlagRequired("email")
	_ = provisionCmd.MarkFlagRequired("password")

	return provisionCmd
}

// runProvision contains the testable core of the provision command.
func runProvision(ctx context.Context, cfg config.IdentityConfig, email, password string, out io.Writer, logger *zap.Logger) error {
	if !cfg.Enabled {
		return fmt.Errorf("identity provisioning is disabled (identity.enabled=false)")
	}
	p, err := identity.NewEmulatorProvisioner(cfg, nil, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize identity provisioner: %w", err)
	}
	if err := p.WaitReady(ctx); err != nil {
		return err
	}
	account, err := p.EnsureUser(ctx, email, password)
	if err != nil {
		return err
	}

	state := "created"
	if account.Existed {
		state = "already exists"
	}
	fmt.Fprintf(out, "User %s %s", account.Email, state)
	if account.UserID != "" {
		fmt.Fprintf(out, " (uid %s)", account.UserID)
	}
	fmt.Fprintln(out)
	return nil
}
