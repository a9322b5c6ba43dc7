package vault

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sebcib/codescope/internal/config"
)

func TestLoadSecret_PassphraseWins(t *testing.T) {
	dir := t.TempDir()

	secret, err := LoadSecret(config.VaultConfig{Passphrase: "hunter2"}, dir)
	require.NoError(t, err)
	assert.Equal(t, []byte("hunter2"), secret)

	_, err = os.Stat(filepath.Join(dir, machineSecretFile))
	assert.True(t, os.IsNotExist(err), "no machine secret file when a passphrase is set")
}

func TestLoadSecret_GeneratesAndReusesMachineSecret(t *testing.T) {
	dir := t.TempDir()

	first, err := LoadSecret(config.VaultConfig{}, dir)
	require.NoError(t, err)
	assert.Len(t, first, 32)

	info, err := os.Stat(filepath.Join(dir, machineSecretFile))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	second, err := LoadSecret(config.VaultConfig{}, dir)
	require.NoError(t, err)
	assert.Equal(t, first, second, "secret must survive restarts")
}

func TestLoadSecret_RejectsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, machineSecretFile), []byte("not hex"), 0o600))

	_, err := LoadSecret(config.VaultConfig{}, dir)
	assert.Error(t, err)
}
