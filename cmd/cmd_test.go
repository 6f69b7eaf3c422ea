// File: cmd/cmd_test.go
package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/operis-e2e/internal/config"
	"github.com/xkilldash9x/operis-e2e/internal/observability"
)

func TestMain(m *testing.M) {
	// Keep test output quiet; the root command's own initialization is then a no-op.
	observability.InitializeLogger(config.LoggerConfig{Level: "fatal", Format: "console", ServiceName: "test"})
	os.Exit(m.Run())
}

// executeCommand runs a fresh command tree with args and returns its output.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

// createTempConfig writes content to a config file in a temp dir.
func createTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// findCommand returns the subcommand of root named use.
func findCommand(t *testing.T, root *cobra.Command, name string) *cobra.Command {
	t.Helper()
	for _, c := range root.Commands() {
		if c.Name() == name {
			return c
		}
	}
	t.Fatalf("command %q not registered", name)
	return nil
}

func TestRootCmd_VersionFlag(t *testing.T) {
	output, err := executeCommand(t, "--version")
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", output)
}

func TestVersionCmd(t *testing.T) {
	output, err := executeCommand(t, "version")
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", output)
}

func TestRootCmd_NoArgs(t *testing.T) {
	output, err := executeCommand(t)
	require.NoError(t, err)
	assert.Contains(t, output, "verifies the Operis web application")
	assert.Contains(t, output, "run")
	assert.Contains(t, output, "provision")
}

func TestScenariosCmd(t *testing.T) {
	output, err := executeCommand(t, "scenarios")
	require.NoError(t, err)
	assert.Contains(t, output, "complete-order")
	assert.Contains(t, output, "products-pagination")
	assert.Contains(t, output, "pending production order")
}

func TestProvisionCmd_RequiredFlags(t *testing.T) {
	_, err := executeCommand(t, "provision")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required flag(s) "email", "password" not set`)
}

func TestReportCmd_RequiredFlags(t *testing.T) {
	_, err := executeCommand(t, "report")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required flag(s) "from" not set`)
}

func TestRunCmd_UnknownScenario(t *testing.T) {
	_, err := executeCommand(t, "run", "checkout")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown scenario(s) checkout")
}

func TestRunCmd_InvalidConfigFile(t *testing.T) {
	path := createTempConfig(t, "app:\n  base_url: \"\"\n")
	_, err := executeCommand(t, "--config", path, "run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "app.base_url is a required configuration field")
}

func TestRunCmd_ConfigPrecedence(t *testing.T) {
	path := createTempConfig(t, `
app:
  base_url: http://from-file:8000
artifacts:
  dir: /tmp/from-file
report:
  format: json
`)
	t.Setenv("OPERIS_ARTIFACTS_DIR", "/tmp/from-env")

	root := newRootCmd()
	runCmd := findCommand(t, root, "run")

	var captured *config.Config
	runCmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd.Context())
		captured = cfg
		return err
	}

	root.SetOut(new(bytes.Buffer))
	root.SetArgs([]string{"--config", path, "run", "--base-url", "http://from-flag:9000", "--report-format", "junit"})
	require.NoError(t, root.ExecuteContext(context.Background()))
	require.NotNil(t, captured)

	assert.Equal(t, "http://from-flag:9000", captured.App.BaseURL, "a flag overrides the file")
	assert.Equal(t, "/tmp/from-env", captured.Artifacts.Dir, "env overrides the file")
	assert.Equal(t, config.ReportFormatJUnit, captured.Report.Format)
	assert.True(t, captured.Browser.Headless, "an unset flag keeps the default")
	assert.Equal(t, "hcali", captured.Scenarios.ProductsPagination.Credentials.Tenant)
}

func TestDisableProvisioning(t *testing.T) {
	cfg := config.NewDefaultConfig()
	disableProvisioning(cfg)
	assert.False(t, cfg.Identity.Enabled)
	assert.False(t, cfg.Scenarios.CompleteOrder.Provision)
	assert.False(t, cfg.Scenarios.ProductsPagination.Provision)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, 1, exitCode(errScenariosFailed))
	assert.Equal(t, 1, exitCode(assert.AnError))
}
