package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aussiebroadwan/signet/pkg/httpx"
	"github.com/aussiebroadwan/signet/pkg/keyvault"
	"github.com/aussiebroadwan/signet/pkg/slogx"
)

// KeysHandler exposes key pair generation. Only public material and an
// opaque private key handle ever leave the service.
type KeysHandler struct {
	Vault *keyvault.Vault
}

type generateKeyRequest struct {
	NamePrefix string `json:"name_prefix,omitempty"`
}

type generateKeyResponse struct {
	Handle             string `json:"private_key_handle"`
	PublicKeyPEM       string `json:"public_key_pem"`
	PublicKeyDERBase64 string `json:"public_key_der_base64"`
}

// HandleGenerate handles POST /v1/keys.
func (h *KeysHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req generateKeyRequest
	if r.Body != nil {
		// An empty body means an auto-generated name prefix.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	pair, err := h.Vault.Generate(ctx, req.NamePrefix)
	if err != nil {
		if errors.Is(err, keyvault.ErrKeyExists) {
			httpx.WriteError(w, http.StatusConflict, "key_exists", "a key with that name already exists")
			return
		}
		log.Error("key generation failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "could not generate key pair")
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, generateKeyResponse{
		Handle:             pair.Handle,
		PublicKeyPEM:       pair.PublicKeyPEM,
		PublicKeyDERBase64: pair.PublicKeyDERBase64,
	})
}
