package migrate

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyland-inc/mucclaw/pkg/config"
	"github.com/tinyland-inc/mucclaw/pkg/migrate"
)

func TestNewMigrateCommand(t *testing.T) {
	cmd := NewMigrateCommand()

	require.NotNil(t, cmd)

	assert.Equal(t, "migrate", cmd.Use)
	assert.Equal(t, "Migrate configuration between formats", cmd.Short)
	assert.True(t, cmd.HasExample())
	assert.True(t, cmd.HasSubCommands())
	assert.Nil(t, cmd.RunE)
}

func TestNewMigrateCommand_ToDhallSubcommand(t *testing.T) {
	cmd := NewMigrateCommand()

	toDhall, _, err := cmd.Find([]string{"to-dhall"})
	require.NoError(t, err)
	assert.Equal(t, "to-dhall", toDhall.Use)
	assert.NotNil(t, toDhall.RunE)

	for _, flag := range []string{"output", "dry-run", "force"} {
		assert.NotNil(t, toDhall.Flags().Lookup(flag), flag)
	}
}

func TestToDhallCmd_ReportsWarnings(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "config.json")
	cfg := config.DefaultConfig()
	cfg.Account.Password = "hunter2"
	require.NoError(t, config.SaveConfig(src, cfg))

	var out bytes.Buffer
	require.NoError(t, toDhallCmd(migrate.ToDhallOptions{ConfigPath: src, Out: &out}))

	assert.Contains(t, out.String(), filepath.Join(dir, "config.dhall"))
	assert.Contains(t, out.String(), "account.password")

	data, err := os.ReadFile(filepath.Join(dir, "config.dhall"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hunter2")
}
