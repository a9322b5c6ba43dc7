package vault

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sebcib/codescope/internal/config"
)

const machineSecretFile = "machine.secret"

// LoadSecret resolves the locally held secret the encryption key is derived
// from. A configured passphrase wins; otherwise a random machine secret is
// generated once under the data directory and reused on every start.
func LoadSecret(cfg config.VaultConfig, dataDir string) ([]byte, error) {
	if cfg.Passphrase != "" {
		return []byte(cfg.Passphrase), nil
	}

	path := filepath.Join(dataDir, machineSecretFile)
	if raw, err := os.ReadFile(path); err == nil {
		secret, err := hex.DecodeString(strings.TrimSpace(string(raw)))
		if err != nil {
			return nil, fmt.Errorf("machine secret at %s is not valid hex: %w", path, err)
		}
		return secret, nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading machine secret: %w", err)
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generating machine secret: %w", err)
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(secret)+"\n"), 0o600); err != nil {
		return nil, fmt.Errorf("writing machine secret: %w", err)
	}
	return secret, nil
}
