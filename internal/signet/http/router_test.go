package http_test

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	api "github.com/aussiebroadwan/signet/internal/signet/http"
	"github.com/aussiebroadwan/signet/internal/signet/service"
	"github.com/aussiebroadwan/signet/internal/signet/store/drivers/memory"
	"github.com/aussiebroadwan/signet/pkg/keyvault"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	st := memory.NewStore()
	vault, err := keyvault.New(keyvault.Options{Dir: t.TempDir()})
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	router := api.NewRouter(st, vault, "test", logger)
	router.FactorService = &service.FactorService{Store: st, Issuer: "Signet"}
	router.SigningService = &service.SigningService{
		Store:  st,
		Factor: router.FactorService,
		Vault:  vault,
		Logger: logger,
	}
	router.ApplyRoutes()

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/livez")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/readyz")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestSigningFlowOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	// Generate a signing key pair.
	resp := postJSON(t, srv.URL+"/v1/keys", map[string]string{"name_prefix": "api"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var key struct {
		Handle       string `json:"private_key_handle"`
		PublicKeyPEM string `json:"public_key_pem"`
	}
	decodeJSON(t, resp, &key)
	require.NotEmpty(t, key.Handle)
	require.Contains(t, key.PublicKeyPEM, "BEGIN PUBLIC KEY")

	// Issue a factor session. The code comes back in the response here
	// because no delivery address was given.
	resp = postJSON(t, srv.URL+"/v1/otp/sessions", map[string]string{
		"user_id": "user-1",
		"method":  "email",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var issued struct {
		ID   string `json:"id"`
		Code string `json:"code"`
	}
	decodeJSON(t, resp, &issued)
	require.NotEmpty(t, issued.ID)
	require.Len(t, issued.Code, 6)

	// Signing before verification is refused.
	digest := sha256.Sum256([]byte("contract body"))
	signReq := map[string]string{
		"artifact_ref":  "doc://contract-v1",
		"digest_base64": base64.StdEncoding.EncodeToString(digest[:]),
		"key_handle":    key.Handle,
		"session_id":    issued.ID,
		"signer_name":   "Ada Lovelace",
	}
	resp = postJSON(t, srv.URL+"/v1/signatures", signReq)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	// Verify the factor.
	resp = postJSON(t, srv.URL+"/v1/otp/sessions/"+issued.ID+"/verify", map[string]string{"code": issued.Code})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Now signing succeeds.
	resp = postJSON(t, srv.URL+"/v1/signatures", signReq)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var record struct {
		ID              string `json:"id"`
		SignatureBase64 string `json:"signature_base64"`
		Status          string `json:"status"`
	}
	decodeJSON(t, resp, &record)
	require.NotEmpty(t, record.ID)
	require.NotEmpty(t, record.SignatureBase64)
	require.Equal(t, "pending", record.Status)

	// A second signing on the spent session is a conflict.
	resp = postJSON(t, srv.URL+"/v1/signatures", signReq)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	// The record can be fetched, listed by artifact, and re-verified.
	resp, err := http.Get(srv.URL + "/v1/signatures/" + record.ID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/v1/signatures?artifact_ref=" + url.QueryEscape("doc://contract-v1"))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var records []struct {
		ID string `json:"id"`
	}
	decodeJSON(t, resp, &records)
	require.Len(t, records, 1)
	require.Equal(t, record.ID, records[0].ID)

	resp = postJSON(t, srv.URL+"/v1/signatures/"+record.ID+"/reverify", map[string]string{
		"digest_base64": base64.StdEncoding.EncodeToString(digest[:]),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	decodeJSON(t, resp, &record)
	require.Equal(t, "valid", record.Status)
}

func TestVerifyErrors(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/otp/sessions", map[string]string{
		"user_id": "user-1",
		"method":  "email",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var issued struct {
		ID   string `json:"id"`
		Code string `json:"code"`
	}
	decodeJSON(t, resp, &issued)

	// Wrong code.
	resp = postJSON(t, srv.URL+"/v1/otp/sessions/"+issued.ID+"/verify", map[string]string{"code": "000000"})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	// Unknown session.
	resp = postJSON(t, srv.URL+"/v1/otp/sessions/nope/verify", map[string]string{"code": issued.Code})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	// Double verification.
	resp = postJSON(t, srv.URL+"/v1/otp/sessions/"+issued.ID+"/verify", map[string]string{"code": issued.Code})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/v1/otp/sessions/"+issued.ID+"/verify", map[string]string{"code": issued.Code})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestKeyGenerationConflict(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/keys", map[string]string{"name_prefix": "dup"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/v1/keys", map[string]string{"name_prefix": "dup"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}
