// Package manifest assembles the nested packageManifests response for one
// package.
package manifest

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/xelth-com/wingetpro/internal/apperr"
	"github.com/xelth-com/wingetpro/internal/metrics"
	"github.com/xelth-com/wingetpro/internal/models"
)

// DefaultLocale is the only locale the source publishes.
const DefaultLocale = "en-us"

// Manifest is the packageManifests Data object.
type Manifest struct {
	PackageIdentifier string    `json:"PackageIdentifier"`
	Versions          []Version `json:"Versions"`
}

type Version struct {
	PackageVersion string      `json:"PackageVersion"`
	DefaultLocale  Locale      `json:"DefaultLocale"`
	Installers     []Installer `json:"Installers"`
}

type Locale struct {
	PackageLocale    string `json:"PackageLocale"`
	Publisher        string `json:"Publisher"`
	PackageName      string `json:"PackageName"`
	ShortDescription string `json:"ShortDescription"`
}

// Installer is one (installer, scope) pair. An installer declared for both
// scopes appears twice.
type Installer struct {
	Architecture    models.Architecture  `json:"Architecture"`
	InstallerType   models.InstallerType `json:"InstallerType"`
	InstallerURL    string               `json:"InstallerUrl"`
	InstallerSha256 string               `json:"InstallerSha256"`
	Scope           models.Scope         `json:"Scope"`
}

// Catalog is the read side of the entity store the resolver needs.
type Catalog interface {
	FindPackage(ctx context.Context, tenantID, identifier string) (*models.Package, error)
	ListVersions(ctx context.Context, packageID uint) ([]models.Version, error)
	ListInstallers(ctx context.Context, versionID uint) ([]models.Installer, error)
}

// URLMapper turns a stored blob path into the request path it is served at.
type URLMapper interface {
	URLPath(p string) string
}

type Resolver struct {
	catalog Catalog
	urls    URLMapper
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewResolver(catalog Catalog, urls URLMapper, m *metrics.Metrics, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{catalog: catalog, urls: urls, metrics: m, logger: logger}
}

// Resolve builds the manifest of the tenant's package. origin is the
// scheme and host of the incoming request ("https://example.com") and is
// used to make installer URLs absolute.
//
// A missing package is reported as (nil, false, nil), never as an error;
// clients expect no content rather than not found.
func (r *Resolver) Resolve(ctx context.Context, tenantID, identifier, origin string) (*Manifest, bool, error) {
	pkg, err := r.catalog.FindPackage(ctx, tenantID, identifier)
	if errors.Is(err, apperr.ErrNotFound) {
		r.metrics.RecordManifest(false)
		r.logger.Debug("Manifest requested for unknown package",
			zap.String("tenant", tenantID),
			zap.String("identifier", identifier),
		)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	versions, err := r.catalog.ListVersions(ctx, pkg.ID)
	if err != nil {
		return nil, false, err
	}

	m := &Manifest{
		PackageIdentifier: pkg.Identifier,
		Versions:          make([]Version, 0, len(versions)),
	}
	for _, v := range versions {
		installers, err := r.catalog.ListInstallers(ctx, v.ID)
		if err != nil {
			return nil, false, err
		}
		entry := Version{
			PackageVersion: v.Version,
			DefaultLocale: Locale{
				PackageLocale:    DefaultLocale,
				Publisher:        pkg.Publisher,
				PackageName:      pkg.Name,
				ShortDescription: pkg.Description,
			},
			Installers: make([]Installer, 0, len(installers)),
		}
		for _, inst := range installers {
			u, err := r.installerURL(origin, inst.File)
			if err != nil {
				return nil, false, err
			}
			for _, scope := range inst.Scopes() {
				entry.Installers = append(entry.Installers, Installer{
					Architecture:    inst.Architecture,
					InstallerType:   inst.Type,
					InstallerURL:    u,
					InstallerSha256: inst.SHA256,
					Scope:           scope,
				})
			}
		}
		m.Versions = append(m.Versions, entry)
	}

	r.metrics.RecordManifest(true)
	return m, true, nil
}

func (r *Resolver) installerURL(origin, file string) (string, error) {
	base, err := url.Parse(strings.TrimSuffix(origin, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return "", fmt.Errorf("invalid request origin %q", origin)
	}
	ref := &url.URL{Path: r.urls.URLPath(file)}
	return base.ResolveReference(ref).String(), nil
}
