// Package vault encrypts the remote suggestion-service API key at rest.
// The key is sealed with XChaCha20-Poly1305 under a key derived from a
// locally held secret via Argon2id; only the ciphertext and the derivation
// parameters are ever persisted.
package vault

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/sebcib/codescope/pkg/models"
)

// Argon2id parameters for newly stored credentials. Retrieval always uses
// the parameters persisted alongside the ciphertext, so these can change
// without breaking old installs.
const (
	kdfTime      = 1
	kdfMemoryKiB = 64 * 1024
	kdfThreads   = 4
	kdfKeyLen    = 32
	saltLen      = 16
)

// CredentialStore is the narrow slice of the backend the vault needs.
type CredentialStore interface {
	PutCredential(ctx context.Context, cred *models.Credential) error
	GetCredential(ctx context.Context) (*models.Credential, error)
}

// Vault encrypts and decrypts the API credential. The decrypted value is
// cached in memory for the process lifetime only; it is never logged and
// never persisted in plaintext.
type Vault struct {
	store  CredentialStore
	secret []byte
	logger *slog.Logger

	mu     sync.Mutex
	cached []byte
}

// New creates a Vault over the given credential store. secret is the
// locally held secret the encryption key is derived from; see LoadSecret.
func New(store CredentialStore, secret []byte) *Vault {
	return &Vault{
		store:  store,
		secret: secret,
		logger: slog.Default().With("component", "vault"),
	}
}

// Store derives a fresh key, seals plaintext and persists the result.
func (v *Vault) Store(ctx context.Context, plaintext string) error {
	if plaintext == "" {
		return fmt.Errorf("credential must not be empty")
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("generating salt: %w", err)
	}

	params := models.KeyDerivationParams{
		Algorithm: "argon2id",
		Salt:      salt,
		Time:      kdfTime,
		MemoryKiB: kdfMemoryKiB,
		Threads:   kdfThreads,
	}

	aead, err := chacha20poly1305.NewX(deriveKey(v.secret, params))
	if err != nil {
		return fmt.Errorf("initializing cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("generating nonce: %w", err)
	}

	cred := &models.Credential{
		Ciphertext: aead.Seal(nonce, nonce, []byte(plaintext), nil),
		Params:     params,
		Version:    models.CredentialVersion,
		UpdatedAt:  time.Now().UTC(),
	}

	if err := v.store.PutCredential(ctx, cred); err != nil {
		return fmt.Errorf("%w: %v", ErrVaultWrite, err)
	}

	v.mu.Lock()
	zero(v.cached)
	v.cached = []byte(plaintext)
	v.mu.Unlock()

	v.logger.Info("credential stored", "version", cred.Version)
	return nil
}

// Retrieve decrypts and returns the stored credential. The result is cached
// for subsequent calls within this session.
func (v *Vault) Retrieve(ctx context.Context) (string, error) {
	v.mu.Lock()
	if v.cached != nil {
		key := string(v.cached)
		v.mu.Unlock()
		return key, nil
	}
	v.mu.Unlock()

	cred, err := v.store.GetCredential(ctx)
	if errors.Is(err, models.ErrNotFound) {
		return "", ErrVaultEmpty
	}
	if err != nil {
		return "", fmt.Errorf("loading credential: %w", err)
	}
	if len(cred.Ciphertext) == 0 {
		return "", ErrVaultEmpty
	}
	if cred.Params.Algorithm != "argon2id" {
		return "", fmt.Errorf("unsupported derivation algorithm %q", cred.Params.Algorithm)
	}

	aead, err := chacha20poly1305.NewX(deriveKey(v.secret, cred.Params))
	if err != nil {
		return "", fmt.Errorf("initializing cipher: %w", err)
	}
	if len(cred.Ciphertext) < aead.NonceSize() {
		return "", ErrVaultCorrupt
	}

	nonce, sealed := cred.Ciphertext[:aead.NonceSize()], cred.Ciphertext[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrVaultCorrupt
	}

	v.mu.Lock()
	v.cached = plaintext
	v.mu.Unlock()
	return string(plaintext), nil
}

// Clear overwrites the stored record with a zeroed one and invalidates the
// in-memory cache. Retrieve after Clear fails with ErrVaultEmpty.
func (v *Vault) Clear(ctx context.Context) error {
	cred := &models.Credential{
		Ciphertext: []byte{},
		Version:    models.CredentialVersion,
		UpdatedAt:  time.Now().UTC(),
	}
	if err := v.store.PutCredential(ctx, cred); err != nil {
		return fmt.Errorf("%w: %v", ErrVaultWrite, err)
	}

	v.mu.Lock()
	zero(v.cached)
	v.cached = nil
	v.mu.Unlock()

	v.logger.Info("credential cleared")
	return nil
}

// Acquire returns a session-scoped handle on the decrypted credential.
// Callers release the handle when done; components receive handles rather
// than reading ambient global state.
func (v *Vault) Acquire(ctx context.Context) (*Handle, error) {
	key, err := v.Retrieve(ctx)
	if err != nil {
		return nil, err
	}
	return &Handle{key: []byte(key)}, nil
}

// Handle is a session-scoped view of the decrypted credential.
type Handle struct {
	mu  sync.Mutex
	key []byte
}

// Key returns the plaintext credential, or "" after Release.
func (h *Handle) Key() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return string(h.key)
}

// Release zeroes this handle's copy of the credential.
func (h *Handle) Release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	zero(h.key)
	h.key = nil
}

func deriveKey(secret []byte, p models.KeyDerivationParams) []byte {
	return argon2.IDKey(secret, p.Salt, p.Time, p.MemoryKiB, p.Threads, kdfKeyLen)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
