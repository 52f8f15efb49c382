package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/xelth-com/wingetpro/internal/apperr"
	"github.com/xelth-com/wingetpro/internal/buildinfo"
	"github.com/xelth-com/wingetpro/internal/config"
	"github.com/xelth-com/wingetpro/internal/installers"
	"github.com/xelth-com/wingetpro/internal/manifest"
	"github.com/xelth-com/wingetpro/internal/metrics"
	"github.com/xelth-com/wingetpro/internal/middleware"
	"github.com/xelth-com/wingetpro/internal/search"
	"github.com/xelth-com/wingetpro/internal/store"
)

// maxBodyBytes bounds JSON request bodies
const maxBodyBytes = 1 << 20

// Deps are the collaborators the router serves
type Deps struct {
	Config     *config.Config
	Store      *store.Store
	Search     *search.Engine
	Manifests  *manifest.Resolver
	Installers *installers.Service
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
	// Ping reports database health; nil means always healthy
	Ping func() error
}

// Router wraps the mux router and the services behind it
type Router struct {
	*mux.Router
	cfg        *config.Config
	store      *store.Store
	search     *search.Engine
	manifests  *manifest.Resolver
	installers *installers.Service
	metrics    *metrics.Metrics
	logger     *zap.Logger
	ping       func() error
}

// NewRouter creates a new HTTP router with all routes
func NewRouter(d Deps) *Router {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Router{
		Router:     mux.NewRouter(),
		cfg:        d.Config,
		store:      d.Store,
		search:     d.Search,
		manifests:  d.Manifests,
		installers: d.Installers,
		metrics:    d.Metrics,
		logger:     logger,
		ping:       d.Ping,
	}

	r.Use(middleware.RequestID, middleware.Recovery(logger), middleware.Logging(logger), middleware.Metrics(d.Metrics))

	// Ops
	r.HandleFunc("/health", r.healthCheck).Methods("GET")
	r.Handle("/metrics", d.Metrics.Handler()).Methods("GET")

	// Installer binaries
	mediaURL := "/" + strings.Trim(r.cfg.Media.URL, "/") + "/"
	r.PathPrefix(mediaURL).Handler(http.StripPrefix(mediaURL, noDirListing(http.FileServer(http.Dir(r.cfg.Media.Root))))).Methods("GET", "HEAD")

	// Winget REST source, one per tenant
	t := r.PathPrefix("/{tenant}").Subrouter()
	t.Use(middleware.TenantMiddleware(d.Store, logger))
	t.HandleFunc("/", r.index).Methods("GET")
	t.HandleFunc("/source.png", r.sourceQR).Methods("GET")
	t.HandleFunc("/information", r.information).Methods("GET")
	t.HandleFunc("/manifestSearch", r.manifestSearch).Methods("POST")
	t.HandleFunc("/packageManifests/{identifier}", r.packageManifest).Methods("GET")
	t.HandleFunc("/auth/login", r.login).Methods("POST")

	// Management API (protected)
	api := t.PathPrefix("/api").Subrouter()
	api.Use(middleware.AuthMiddleware(r.cfg.JWTSecret))
	api.HandleFunc("/packages", r.listPackages).Methods("GET")
	api.HandleFunc("/packages", r.createPackage).Methods("POST")
	api.HandleFunc("/packages/{identifier}", r.getPackage).Methods("GET")
	api.HandleFunc("/packages/{identifier}", r.updatePackage).Methods("PUT")
	api.HandleFunc("/packages/{identifier}", r.deletePackage).Methods("DELETE")
	api.HandleFunc("/packages/{identifier}/versions", r.listVersions).Methods("GET")
	api.HandleFunc("/packages/{identifier}/versions", r.createVersion).Methods("POST")
	api.HandleFunc("/versions/{id:[0-9]+}", r.deleteVersion).Methods("DELETE")
	api.HandleFunc("/versions/{id:[0-9]+}/installers", r.listInstallers).Methods("GET")
	api.HandleFunc("/installers/{id:[0-9]+}", r.getInstaller).Methods("GET")
	api.HandleFunc("/installers/{id:[0-9]+}", r.updateInstaller).Methods("PATCH")
	api.HandleFunc("/installers/{id:[0-9]+}", r.deleteInstaller).Methods("DELETE")
	api.HandleFunc("/installers/{id:[0-9]+}/verify", r.verifyInstaller).Methods("POST")

	return r
}

// healthCheck returns the health status of the API
func (r *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	status, dbStatus, code := "ok", "ok", http.StatusOK
	if r.ping != nil {
		if err := r.ping(); err != nil {
			r.logger.Warn("Health check: database unreachable", zap.Error(err))
			status, dbStatus, code = "degraded", "unreachable", http.StatusServiceUnavailable
		}
	}
	respondJSON(w, code, map[string]string{
		"status":     status,
		"database":   dbStatus,
		"buildTime":  buildinfo.BuildTime,
		"commitHash": buildinfo.CommitHash,
		"commitTime": buildinfo.CommitTime,
		"startTime":  buildinfo.StartTime,
	})
}

// noDirListing hides directory indexes so blob paths cannot be enumerated
func noDirListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path == "" || strings.HasSuffix(req.URL.Path, "/") {
			http.NotFound(w, req)
			return
		}
		next.ServeHTTP(w, req)
	})
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondData wraps data in the winget {"Data": ...} envelope
func respondData(w http.ResponseWriter, data interface{}) {
	respondJSON(w, http.StatusOK, map[string]interface{}{"Data": data})
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]interface{}{
		"ErrorCode":    status,
		"ErrorMessage": message,
	})
}

// handleError maps err through apperr. Unexpected errors are logged and
// reported without detail.
func (r *Router) handleError(w http.ResponseWriter, req *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		r.logger.Error("Request failed",
			zap.String("path", req.URL.Path),
			zap.String("request_id", middleware.RequestIDFromContext(req.Context())),
			zap.Error(err),
		)
		respondError(w, status, "Internal server error")
		return
	}
	respondError(w, status, err.Error())
}

// decodeJSON reads a bounded JSON body into v
func decodeJSON(w http.ResponseWriter, req *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return apperr.Invalid("body", "invalid JSON: %v", err)
	}
	return nil
}

// requestOrigin is the scheme and host the client used to reach us. Proxy
// headers are honoured only when configured.
func requestOrigin(req *http.Request, trustProxy bool) string {
	scheme := "http"
	if req.TLS != nil {
		scheme = "https"
	}
	host := req.Host
	if trustProxy {
		if proto := firstHeaderValue(req.Header.Get("X-Forwarded-Proto")); proto != "" {
			scheme = proto
		}
		if fwdHost := firstHeaderValue(req.Header.Get("X-Forwarded-Host")); fwdHost != "" {
			host = fwdHost
		}
	}
	return scheme + "://" + host
}

func firstHeaderValue(v string) string {
	if i := strings.IndexByte(v, ','); i >= 0 {
		v = v[:i]
	}
	return strings.TrimSpace(v)
}
