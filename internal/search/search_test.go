package search

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xelth-com/wingetpro/internal/models"
	"github.com/xelth-com/wingetpro/internal/query"
	"github.com/xelth-com/wingetpro/internal/store"
	"github.com/xelth-com/wingetpro/internal/testutil"
)

// memCatalog evaluates predicates in-process.
type memCatalog []models.Package

func (m memCatalog) ListPackagesMatching(_ context.Context, _ string, pred query.Predicate) ([]models.Package, error) {
	return query.Filter(m, pred), nil
}

func fooBar() memCatalog {
	return memCatalog{
		{Identifier: "com.foo.editor", Name: "Foo Editor", Publisher: "Foo Inc", Versions: []models.Version{{Version: "1.0"}, {Version: "1.1"}}},
		{Identifier: "com.bar.tool", Name: "Bar Tool", Publisher: "Bar LLC", Versions: []models.Version{{Version: "2.0"}}},
		{Identifier: "com.foo.empty", Name: "Foo Empty", Publisher: "Foo Inc"},
	}
}

// seedStore creates the same catalog in a real database.
func seedStore(t *testing.T) (*store.Store, string) {
	t.Helper()
	ctx := context.Background()
	st := store.New(testutil.OpenDB(t))
	tenant := &models.Tenant{Name: "Acme"}
	require.NoError(t, st.CreateTenant(ctx, tenant))

	other := &models.Tenant{Name: "Other"}
	require.NoError(t, st.CreateTenant(ctx, other))

	for _, p := range fooBar() {
		pkg := &models.Package{TenantID: tenant.ID, Identifier: p.Identifier, Name: p.Name, Publisher: p.Publisher, Description: "for tests"}
		require.NoError(t, st.CreatePackage(ctx, pkg))
		for _, v := range p.Versions {
			require.NoError(t, st.CreateVersion(ctx, &models.Version{PackageID: pkg.ID, Version: v.Version}))
		}
	}

	// Same name in another tenant must never leak.
	leak := &models.Package{TenantID: other.ID, Identifier: "com.foo.other", Name: "Foo Other", Publisher: "Other", Description: "for tests"}
	require.NoError(t, st.CreatePackage(ctx, leak))
	require.NoError(t, st.CreateVersion(ctx, &models.Version{PackageID: leak.ID, Version: "9"}))

	return st, tenant.ID
}

func identifiers(hits []PackageSummary) []string {
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.PackageIdentifier)
	}
	return out
}

var combinationCases = []struct {
	name string
	req  Request
	want []string
}{
	{
		name: "keyword matches name",
		req:  Request{Query: &RequestMatch{KeyWord: "foo"}},
		want: []string{"com.foo.editor"},
	},
	{
		name: "product code matches identifier",
		req: Request{Inclusions: []PackageMatchFilter{
			{PackageMatchField: FieldProductCode, RequestMatch: RequestMatch{KeyWord: "bar.tool"}},
		}},
		want: []string{"com.bar.tool"},
	},
	{
		name: "keyword with failing filter",
		req: Request{
			Query:   &RequestMatch{KeyWord: "foo"},
			Filters: []PackageMatchFilter{{PackageMatchField: FieldPackageIdentifier, RequestMatch: RequestMatch{KeyWord: "nonexistent"}}},
		},
		want: []string{},
	},
	{
		name: "inclusion with failing filter",
		req: Request{
			Inclusions: []PackageMatchFilter{{PackageMatchField: FieldProductCode, RequestMatch: RequestMatch{KeyWord: "bar.tool"}}},
			Filters:    []PackageMatchFilter{{PackageMatchField: FieldPackageIdentifier, RequestMatch: RequestMatch{KeyWord: "nonexistent"}}},
		},
		want: []string{},
	},
	{
		name: "inclusions are or-ed",
		req: Request{Inclusions: []PackageMatchFilter{
			{PackageMatchField: FieldPackageName, RequestMatch: RequestMatch{KeyWord: "EDITOR"}},
			{PackageMatchField: FieldPackageFamilyName, RequestMatch: RequestMatch{KeyWord: "bar"}},
		}},
		want: []string{"com.foo.editor", "com.bar.tool"},
	},
	{
		name: "unknown inclusion never matches",
		req: Request{Inclusions: []PackageMatchFilter{
			{PackageMatchField: FieldMoniker, RequestMatch: RequestMatch{KeyWord: "foo"}},
		}},
		want: []string{},
	},
	{
		name: "unsupported filter is skipped",
		req: Request{
			Query:   &RequestMatch{KeyWord: "tool"},
			Filters: []PackageMatchFilter{{PackageMatchField: FieldTag, RequestMatch: RequestMatch{KeyWord: "nonexistent"}}},
		},
		want: []string{"com.bar.tool"},
	},
	{
		name: "identifier filter alone",
		req:  Request{Filters: []PackageMatchFilter{{PackageMatchField: FieldPackageIdentifier, RequestMatch: RequestMatch{KeyWord: "COM.FOO"}}}},
		want: []string{"com.foo.editor"},
	},
	{
		name: "empty request lists installable packages",
		req:  Request{},
		want: []string{"com.foo.editor", "com.bar.tool"},
	},
}

func TestSearchInProcess(t *testing.T) {
	engine := NewEngine(fooBar(), nil, nil)
	for _, tc := range combinationCases {
		t.Run(tc.name, func(t *testing.T) {
			hits, err := engine.Search(context.Background(), "tenant", tc.req)
			require.NoError(t, err)
			assert.Equal(t, tc.want, identifiers(hits))
		})
	}
}

func TestSearchPushedDown(t *testing.T) {
	st, tenantID := seedStore(t)
	engine := NewEngine(st, nil, nil)
	for _, tc := range combinationCases {
		t.Run(tc.name, func(t *testing.T) {
			hits, err := engine.Search(context.Background(), tenantID, tc.req)
			require.NoError(t, err)
			assert.ElementsMatch(t, tc.want, identifiers(hits))
		})
	}
}

func TestSearchExcludesPackagesWithoutVersions(t *testing.T) {
	st, tenantID := seedStore(t)
	engine := NewEngine(st, nil, nil)

	hits, err := engine.Search(context.Background(), tenantID, Request{Query: &RequestMatch{KeyWord: "Foo Empty"}})
	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.NotNil(t, hits)
}

func TestSearchSummaryShape(t *testing.T) {
	st, tenantID := seedStore(t)
	engine := NewEngine(st, nil, nil)

	hits, err := engine.Search(context.Background(), tenantID, Request{Query: &RequestMatch{KeyWord: "editor"}})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, PackageSummary{
		PackageIdentifier: "com.foo.editor",
		PackageName:       "Foo Editor",
		Publisher:         "Foo Inc",
		Versions:          []VersionSummary{{PackageVersion: "1.0"}, {PackageVersion: "1.1"}},
	}, hits[0])
}

func TestSearchMaximumResults(t *testing.T) {
	engine := NewEngine(fooBar(), nil, nil)

	hits, err := engine.Search(context.Background(), "tenant", Request{MaximumResults: 1})
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestRequestDecodesProtocolBody(t *testing.T) {
	body := `{
		"MaximumResults": 50,
		"FetchAllManifests": false,
		"Query": {"KeyWord": "foo", "MatchType": "Substring"},
		"Inclusions": [{"PackageMatchField": "ProductCode", "RequestMatch": {"KeyWord": "bar", "MatchType": "Exact"}}],
		"Filters": [{"PackageMatchField": "PackageIdentifier", "RequestMatch": {"KeyWord": "com"}}]
	}`
	var req Request
	require.NoError(t, json.Unmarshal([]byte(body), &req))
	assert.Equal(t, 50, req.MaximumResults)
	require.NotNil(t, req.Query)
	assert.Equal(t, "foo", req.Query.KeyWord)
	assert.Equal(t, FieldProductCode, req.Inclusions[0].PackageMatchField)
	assert.Equal(t, "com", req.Filters[0].RequestMatch.KeyWord)
}

func TestMatchFieldKnown(t *testing.T) {
	assert.True(t, FieldMarket.Known())
	assert.False(t, MatchField("Nonsense").Known())
}
