// Package search implements the winget manifestSearch operation on top of
// the query predicate tree.
package search

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xelth-com/wingetpro/internal/metrics"
	"github.com/xelth-com/wingetpro/internal/models"
	"github.com/xelth-com/wingetpro/internal/query"
)

// MatchField names the package attribute a RequestMatch targets. The set is
// closed; values outside it are treated by the rules in BuildPredicate.
type MatchField string

const (
	FieldPackageIdentifier                 MatchField = "PackageIdentifier"
	FieldPackageName                       MatchField = "PackageName"
	FieldMoniker                           MatchField = "Moniker"
	FieldCommand                           MatchField = "Command"
	FieldTag                               MatchField = "Tag"
	FieldPackageFamilyName                 MatchField = "PackageFamilyName"
	FieldProductCode                       MatchField = "ProductCode"
	FieldNormalizedPackageNameAndPublisher MatchField = "NormalizedPackageNameAndPublisher"
	FieldMarket                            MatchField = "Market"
)

// MatchFields lists every field the protocol defines.
var MatchFields = []MatchField{
	FieldPackageIdentifier, FieldPackageName, FieldMoniker, FieldCommand, FieldTag,
	FieldPackageFamilyName, FieldProductCode, FieldNormalizedPackageNameAndPublisher, FieldMarket,
}

// Known reports whether f is one of MatchFields.
func (f MatchField) Known() bool {
	for _, v := range MatchFields {
		if f == v {
			return true
		}
	}
	return false
}

// inclusionColumn maps an inclusion field to the column it is matched
// against. The model has no product code or family name, so ProductCode
// matches the identifier and PackageFamilyName the name.
func (f MatchField) inclusionColumn() (query.Column, bool) {
	switch f {
	case FieldPackageName, FieldPackageFamilyName:
		return query.ColumnName, true
	case FieldProductCode:
		return query.ColumnIdentifier, true
	}
	return "", false
}

func (f MatchField) filterColumn() (query.Column, bool) {
	switch f {
	case FieldPackageIdentifier:
		return query.ColumnIdentifier, true
	}
	return "", false
}

// RequestMatch is the keyword half of a match clause. MatchType is accepted
// for protocol compatibility; every match is a case-insensitive substring
// match.
type RequestMatch struct {
	KeyWord   string `json:"KeyWord"`
	MatchType string `json:"MatchType,omitempty"`
}

// PackageMatchFilter is one inclusion or filter clause.
type PackageMatchFilter struct {
	PackageMatchField MatchField   `json:"PackageMatchField"`
	RequestMatch      RequestMatch `json:"RequestMatch"`
}

// Request is the manifestSearch body.
type Request struct {
	MaximumResults    int                  `json:"MaximumResults,omitempty"`
	FetchAllManifests bool                 `json:"FetchAllManifests,omitempty"`
	Query             *RequestMatch        `json:"Query,omitempty"`
	Inclusions        []PackageMatchFilter `json:"Inclusions,omitempty"`
	Filters           []PackageMatchFilter `json:"Filters,omitempty"`
}

// VersionSummary is one entry of PackageSummary.Versions.
type VersionSummary struct {
	PackageVersion string `json:"PackageVersion"`
}

// PackageSummary is one search hit.
type PackageSummary struct {
	PackageIdentifier string           `json:"PackageIdentifier"`
	PackageName       string           `json:"PackageName"`
	Publisher         string           `json:"Publisher"`
	Versions          []VersionSummary `json:"Versions"`
}

// BuildPredicate turns req into
//
//	has-versions AND name~Query AND OR(inclusions) AND AND(filters)
//
// where absent parts are dropped. An inclusion on a field with no column
// mapping never matches; a filter on a field other than PackageIdentifier
// is skipped.
func BuildPredicate(req Request) query.Predicate {
	preds := []query.Predicate{query.HasVersions()}

	if req.Query != nil {
		preds = append(preds, query.Contains(query.ColumnName, req.Query.KeyWord))
	}

	if len(req.Inclusions) > 0 {
		alts := make([]query.Predicate, 0, len(req.Inclusions))
		for _, inc := range req.Inclusions {
			col, ok := inc.PackageMatchField.inclusionColumn()
			if !ok {
				alts = append(alts, query.None())
				continue
			}
			alts = append(alts, query.Contains(col, inc.RequestMatch.KeyWord))
		}
		preds = append(preds, query.Or(alts...))
	}

	for _, f := range req.Filters {
		col, ok := f.PackageMatchField.filterColumn()
		if !ok {
			continue
		}
		preds = append(preds, query.Contains(col, f.RequestMatch.KeyWord))
	}

	return query.And(preds...)
}

// Catalog is the read side of the entity store the engine needs.
type Catalog interface {
	ListPackagesMatching(ctx context.Context, tenantID string, pred query.Predicate) ([]models.Package, error)
}

// Engine answers manifest searches for one tenant at a time.
type Engine struct {
	catalog Catalog
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewEngine(catalog Catalog, m *metrics.Metrics, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{catalog: catalog, metrics: m, logger: logger}
}

// Search returns the tenant's packages matching req. The result is never
// nil. When MaximumResults is positive the list is truncated to it.
func (e *Engine) Search(ctx context.Context, tenantID string, req Request) ([]PackageSummary, error) {
	for _, f := range req.Filters {
		if _, ok := f.PackageMatchField.filterColumn(); !ok {
			e.logger.Debug("Skipping unsupported search filter",
				zap.String("field", string(f.PackageMatchField)),
				zap.Bool("known", f.PackageMatchField.Known()),
			)
		}
	}

	pkgs, err := e.catalog.ListPackagesMatching(ctx, tenantID, BuildPredicate(req))
	if err != nil {
		return nil, fmt.Errorf("search tenant %s: %w", tenantID, err)
	}
	if req.MaximumResults > 0 && len(pkgs) > req.MaximumResults {
		pkgs = pkgs[:req.MaximumResults]
	}

	out := make([]PackageSummary, 0, len(pkgs))
	for _, p := range pkgs {
		out = append(out, Summarize(p))
	}
	e.metrics.RecordSearch(len(out))
	return out, nil
}

// Summarize shapes a package with loaded versions into a search hit.
func Summarize(p models.Package) PackageSummary {
	versions := make([]VersionSummary, 0, len(p.Versions))
	for _, v := range p.Versions {
		versions = append(versions, VersionSummary{PackageVersion: v.Version})
	}
	return PackageSummary{
		PackageIdentifier: p.Identifier,
		PackageName:       p.Name,
		Publisher:         p.Publisher,
		Versions:          versions,
	}
}
