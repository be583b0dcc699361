package run

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyland-inc/mucclaw/pkg/e2ee"
	"github.com/tinyland-inc/mucclaw/pkg/e2ee/sealed"
	"github.com/tinyland-inc/mucclaw/pkg/providers"
	"github.com/tinyland-inc/mucclaw/pkg/storage"
	"github.com/tinyland-inc/mucclaw/pkg/testutil"
)

func TestNewRunCommand(t *testing.T) {
	cmd := NewRunCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "run", cmd.Use)
	assert.Equal(t, []string{"r"}, cmd.Aliases)
	assert.Nil(t, cmd.Run)
	assert.NotNil(t, cmd.RunE)
	assert.NotNil(t, cmd.Flags().Lookup("debug"))
}

func TestRunCmd_RejectsIncompleteConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"room":{"nick":"x"}}`), 0o600))

	err := runCmd(path, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "account.jid is required")
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "echo", describeResponder(providers.Echo{}))
	assert.Equal(t, "echo", describeResponder(providers.Trimmed{Inner: providers.Echo{}}))
	assert.Contains(t, describeCrypto(e2ee.None{}), "disabled")
	assert.Equal(t, "Fake", describeCrypto(&testutil.Crypto{}))

	sp, err := sealed.New(storage.NewMemory(), "bot@example.org/mucclaw", sealed.Options{})
	require.NoError(t, err)
	got := describeCrypto(sp)
	assert.Equal(t, sealed.Name+", device "+sealed.FormatFingerprint(sp.Fingerprint()), got)
	assert.NotContains(t, got, "OMEMO")
}
