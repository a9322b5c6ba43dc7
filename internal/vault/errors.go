package vault

import "errors"

var (
	// ErrVaultEmpty is returned when no credential has ever been stored, or
	// the stored record has been cleared.
	ErrVaultEmpty = errors.New("no credential stored")

	// ErrVaultCorrupt is returned when authentication of the ciphertext
	// fails: the record was tampered with or truncated.
	ErrVaultCorrupt = errors.New("credential ciphertext failed authentication")

	// ErrVaultWrite is returned when persisting the encrypted credential
	// fails.
	ErrVaultWrite = errors.New("credential write failed")
)
