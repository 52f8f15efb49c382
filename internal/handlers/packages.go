package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/xelth-com/wingetpro/internal/apperr"
	"github.com/xelth-com/wingetpro/internal/installers"
	"github.com/xelth-com/wingetpro/internal/middleware"
	"github.com/xelth-com/wingetpro/internal/models"
)

// PackageRequest is the body of package create and update
type PackageRequest struct {
	Identifier  string `json:"identifier"`
	Name        string `json:"name"`
	Publisher   string `json:"publisher"`
	Description string `json:"description"`
}

// VersionRequest is the body of version create
type VersionRequest struct {
	Version string `json:"version"`
}

// InstallerRequest changes installer metadata. Content is replaced only
// through the provisioning CLI.
type InstallerRequest struct {
	Architecture *models.Architecture  `json:"architecture"`
	Type         *models.InstallerType `json:"type"`
	Scope        *models.Scope         `json:"scope"`
}

func tenantID(req *http.Request) string {
	tenant, _ := middleware.TenantFromContext(req.Context())
	return tenant.ID
}

func idVar(req *http.Request) (uint, error) {
	id, err := strconv.ParseUint(mux.Vars(req)["id"], 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.Invalid("id", "must be a positive integer")
	}
	return uint(id), nil
}

// listPackages returns the tenant's packages with their versions
func (r *Router) listPackages(w http.ResponseWriter, req *http.Request) {
	pkgs, err := r.store.ListPackages(req.Context(), tenantID(req))
	if err != nil {
		r.handleError(w, req, err)
		return
	}
	if pkgs == nil {
		pkgs = []models.Package{}
	}
	respondJSON(w, http.StatusOK, pkgs)
}

// createPackage creates a package for the tenant
func (r *Router) createPackage(w http.ResponseWriter, req *http.Request) {
	var body PackageRequest
	if err := decodeJSON(w, req, &body); err != nil {
		r.handleError(w, req, err)
		return
	}

	pkg := &models.Package{
		TenantID:    tenantID(req),
		Identifier:  body.Identifier,
		Name:        body.Name,
		Publisher:   body.Publisher,
		Description: body.Description,
	}
	if err := r.store.CreatePackage(req.Context(), pkg); err != nil {
		r.handleError(w, req, err)
		return
	}
	respondJSON(w, http.StatusCreated, pkg)
}

// getPackage returns one package with its versions and installers
func (r *Router) getPackage(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	pkg, err := r.store.FindPackage(ctx, tenantID(req), mux.Vars(req)["identifier"])
	if err != nil {
		r.handleError(w, req, err)
		return
	}
	versions, err := r.store.ListVersions(ctx, pkg.ID)
	if err != nil {
		r.handleError(w, req, err)
		return
	}
	for i := range versions {
		if versions[i].Installers, err = r.store.ListInstallers(ctx, versions[i].ID); err != nil {
			r.handleError(w, req, err)
			return
		}
	}
	pkg.Versions = versions
	respondJSON(w, http.StatusOK, pkg)
}

// updatePackage replaces the package's own fields
func (r *Router) updatePackage(w http.ResponseWriter, req *http.Request) {
	pkg, err := r.store.FindPackage(req.Context(), tenantID(req), mux.Vars(req)["identifier"])
	if err != nil {
		r.handleError(w, req, err)
		return
	}

	var body PackageRequest
	if err := decodeJSON(w, req, &body); err != nil {
		r.handleError(w, req, err)
		return
	}
	if body.Identifier != "" {
		pkg.Identifier = body.Identifier
	}
	pkg.Name = body.Name
	pkg.Publisher = body.Publisher
	pkg.Description = body.Description

	if err := r.store.UpdatePackage(req.Context(), pkg); err != nil {
		r.handleError(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, pkg)
}

// deletePackage removes the package, its versions, installers and blobs
func (r *Router) deletePackage(w http.ResponseWriter, req *http.Request) {
	if err := r.installers.DeletePackage(req.Context(), tenantID(req), mux.Vars(req)["identifier"]); err != nil {
		r.handleError(w, req, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// listVersions returns the package's versions in creation order
func (r *Router) listVersions(w http.ResponseWriter, req *http.Request) {
	pkg, err := r.store.FindPackage(req.Context(), tenantID(req), mux.Vars(req)["identifier"])
	if err != nil {
		r.handleError(w, req, err)
		return
	}
	versions, err := r.store.ListVersions(req.Context(), pkg.ID)
	if err != nil {
		r.handleError(w, req, err)
		return
	}
	if versions == nil {
		versions = []models.Version{}
	}
	respondJSON(w, http.StatusOK, versions)
}

// createVersion adds a version to the package
func (r *Router) createVersion(w http.ResponseWriter, req *http.Request) {
	pkg, err := r.store.FindPackage(req.Context(), tenantID(req), mux.Vars(req)["identifier"])
	if err != nil {
		r.handleError(w, req, err)
		return
	}

	var body VersionRequest
	if err := decodeJSON(w, req, &body); err != nil {
		r.handleError(w, req, err)
		return
	}

	v := &models.Version{PackageID: pkg.ID, Version: body.Version}
	if err := r.store.CreateVersion(req.Context(), v); err != nil {
		r.handleError(w, req, err)
		return
	}
	respondJSON(w, http.StatusCreated, v)
}

// deleteVersion removes the version with its installers and blobs
func (r *Router) deleteVersion(w http.ResponseWriter, req *http.Request) {
	id, err := idVar(req)
	if err != nil {
		r.handleError(w, req, err)
		return
	}
	if err := r.installers.DeleteVersion(req.Context(), tenantID(req), id); err != nil {
		r.handleError(w, req, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// listInstallers returns the installers of one version
func (r *Router) listInstallers(w http.ResponseWriter, req *http.Request) {
	id, err := idVar(req)
	if err != nil {
		r.handleError(w, req, err)
		return
	}
	v, err := r.store.GetVersion(req.Context(), tenantID(req), id)
	if err != nil {
		r.handleError(w, req, err)
		return
	}
	list, err := r.store.ListInstallers(req.Context(), v.ID)
	if err != nil {
		r.handleError(w, req, err)
		return
	}
	if list == nil {
		list = []models.Installer{}
	}
	respondJSON(w, http.StatusOK, list)
}

// getInstaller returns one installer
func (r *Router) getInstaller(w http.ResponseWriter, req *http.Request) {
	id, err := idVar(req)
	if err != nil {
		r.handleError(w, req, err)
		return
	}
	inst, err := r.store.GetInstaller(req.Context(), tenantID(req), id)
	if err != nil {
		r.handleError(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, inst)
}

// updateInstaller changes architecture, type or scope. The digest is
// recomputed from the stored blob as part of the update.
func (r *Router) updateInstaller(w http.ResponseWriter, req *http.Request) {
	id, err := idVar(req)
	if err != nil {
		r.handleError(w, req, err)
		return
	}
	var body InstallerRequest
	if err := decodeJSON(w, req, &body); err != nil {
		r.handleError(w, req, err)
		return
	}

	inst, err := r.installers.Update(req.Context(), tenantID(req), id, installers.Change{
		Architecture: body.Architecture,
		Type:         body.Type,
		Scope:        body.Scope,
	})
	if err != nil {
		r.handleError(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, inst)
}

// deleteInstaller removes the installer and its blob
func (r *Router) deleteInstaller(w http.ResponseWriter, req *http.Request) {
	id, err := idVar(req)
	if err != nil {
		r.handleError(w, req, err)
		return
	}
	if err := r.installers.Delete(req.Context(), tenantID(req), id); err != nil {
		r.handleError(w, req, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// verifyInstaller re-hashes the stored blob and compares it with the row
func (r *Router) verifyInstaller(w http.ResponseWriter, req *http.Request) {
	id, err := idVar(req)
	if err != nil {
		r.handleError(w, req, err)
		return
	}
	ok, err := r.installers.Verify(req.Context(), tenantID(req), id)
	if err != nil {
		r.handleError(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"id":    id,
		"valid": ok,
	})
}
