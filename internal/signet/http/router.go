package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/signet/internal/signet/service"
	"github.com/aussiebroadwan/signet/internal/signet/store"
	"github.com/aussiebroadwan/signet/pkg/httpx"
	"github.com/aussiebroadwan/signet/pkg/keyvault"
	"github.com/aussiebroadwan/signet/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store          store.Store
	FactorService  *service.FactorService
	SigningService *service.SigningService
	Vault          *keyvault.Vault
}

func NewRouter(st store.Store, vault *keyvault.Vault, buildVersion string, logger *slog.Logger) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		Vault:        vault,
		logger:       logger,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerFactor()
	r.registerKeys()
	r.registerSignatures()
	r.registerSystem()
}

func (r *Router) registerFactor() {
	h := &FactorHandler{FactorService: r.FactorService}

	r.Mux.HandleFunc("POST /v1/otp/sessions", h.HandleCreateSession)
	r.Mux.HandleFunc("POST /v1/otp/sessions/{id}/verify", h.HandleVerifySession)
	r.Mux.HandleFunc("GET /v1/otp/sessions/{id}", h.HandleGetSession)
	r.Mux.HandleFunc("POST /v1/totp/enroll", h.HandleEnrollTOTP)
	r.Mux.HandleFunc("POST /v1/totp/confirm", h.HandleConfirmTOTP)
}

func (r *Router) registerKeys() {
	h := &KeysHandler{Vault: r.Vault}

	r.Mux.HandleFunc("POST /v1/keys", h.HandleGenerate)
}

func (r *Router) registerSignatures() {
	h := &SignaturesHandler{SigningService: r.SigningService}

	r.Mux.HandleFunc("POST /v1/signatures", h.HandleSign)
	r.Mux.HandleFunc("GET /v1/signatures", h.HandleList)
	r.Mux.HandleFunc("GET /v1/signatures/{id}", h.HandleGet)
	r.Mux.HandleFunc("POST /v1/signatures/{id}/reverify", h.HandleReverify)
}

func (r *Router) registerSystem() {
	r.Mux.HandleFunc("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.HandleFunc("GET /readyz", ReadyzHandler(r.store))
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}
