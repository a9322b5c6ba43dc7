package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sebcib/codescope/internal/api/response"
	"github.com/sebcib/codescope/internal/vault"
)

type credentialRequest struct {
	Key string `json:"key"`
}

type credentialStatus struct {
	Configured bool   `json:"configured"`
	Detail     string `json:"detail,omitempty"`
}

// StoreCredential encrypts and persists the service key. The plaintext is
// never echoed back and never logged.
func StoreCredential(v *vault.Vault) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req credentialRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR",
				"Request body must be JSON with a key field", nil)
			return
		}
		if req.Key == "" {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR",
				"key is required", map[string][]string{"key": {"key is required"}})
			return
		}

		if err := v.Store(r.Context(), req.Key); err != nil {
			response.Error(w, http.StatusInternalServerError, "VAULT_WRITE_ERROR",
				"Failed to store credential", nil)
			return
		}
		response.JSON(w, credentialStatus{Configured: true})
	}
}

// CredentialStatus reports whether a usable credential exists without
// revealing it.
func CredentialStatus(v *vault.Vault) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		handle, err := v.Acquire(r.Context())
		if errors.Is(err, vault.ErrVaultEmpty) {
			response.JSON(w, credentialStatus{Configured: false,
				Detail: "no credential stored"})
			return
		}
		if errors.Is(err, vault.ErrVaultCorrupt) {
			response.Error(w, http.StatusConflict, "VAULT_CORRUPT",
				"Stored credential cannot be decrypted; re-enter the key", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "VAULT_READ_ERROR",
				"Failed to read credential", nil)
			return
		}
		handle.Release()
		response.JSON(w, credentialStatus{Configured: true})
	}
}

// ClearCredential removes the stored key and drops any cached plaintext.
func ClearCredential(v *vault.Vault) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := v.Clear(r.Context()); err != nil {
			response.Error(w, http.StatusInternalServerError, "VAULT_WRITE_ERROR",
				"Failed to clear credential", nil)
			return
		}
		response.NoContent(w)
	}
}
