package models

import "time"

// CredentialVersion is the current on-disk format of the encrypted
// credential. Bump when the derivation parameters or cipher change so old
// installs can be re-encrypted instead of rejected.
const CredentialVersion = 1

// KeyDerivationParams holds everything needed to re-derive the decryption
// key. The derived key itself is never stored.
type KeyDerivationParams struct {
	Algorithm string `json:"algorithm"`
	Salt      []byte `json:"salt"`
	Time      uint32 `json:"time"`
	MemoryKiB uint32 `json:"memory_kib"`
	Threads   uint8  `json:"threads"`
}

// Credential is the singleton encrypted API key for the remote suggestion
// service. A zeroed Ciphertext means the credential has been cleared.
type Credential struct {
	Ciphertext []byte              `json:"ciphertext"`
	Params     KeyDerivationParams `json:"params"`
	Version    int                 `json:"version"`
	UpdatedAt  time.Time           `json:"updated_at"`
}
