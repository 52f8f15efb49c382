package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/xelth-com/wingetpro/internal/middleware"
	"github.com/xelth-com/wingetpro/internal/search"
)

// SourceInformation is the Data object of GET /information
type SourceInformation struct {
	SourceIdentifier        string   `json:"SourceIdentifier"`
	ServerSupportedVersions []string `json:"ServerSupportedVersions"`
}

// information reports the source identity and protocol versions
func (r *Router) information(w http.ResponseWriter, req *http.Request) {
	respondData(w, SourceInformation{
		SourceIdentifier:        r.cfg.Source.Identifier,
		ServerSupportedVersions: r.cfg.Source.SupportedVersions,
	})
}

// manifestSearch runs a search request against the tenant's packages
func (r *Router) manifestSearch(w http.ResponseWriter, req *http.Request) {
	tenant, _ := middleware.TenantFromContext(req.Context())

	var body search.Request
	if err := decodeJSON(w, req, &body); err != nil {
		r.handleError(w, req, err)
		return
	}

	hits, err := r.search.Search(req.Context(), tenant.ID, body)
	if err != nil {
		r.handleError(w, req, err)
		return
	}
	respondData(w, hits)
}

// packageManifest returns the full manifest. An unknown package is answered
// with 204 No Content: the winget client handles that, but not a 404.
func (r *Router) packageManifest(w http.ResponseWriter, req *http.Request) {
	tenant, _ := middleware.TenantFromContext(req.Context())
	identifier := mux.Vars(req)["identifier"]

	m, found, err := r.manifests.Resolve(req.Context(), tenant.ID, identifier, requestOrigin(req, r.cfg.Source.TrustProxyHeaders))
	if err != nil {
		r.handleError(w, req, err)
		return
	}
	if !found {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	respondData(w, m)
}
