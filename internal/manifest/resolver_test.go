package manifest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xelth-com/wingetpro/internal/apperr"
	"github.com/xelth-com/wingetpro/internal/models"
	"github.com/xelth-com/wingetpro/internal/store"
	"github.com/xelth-com/wingetpro/internal/testutil"
)

var digest = strings.Repeat("0f", 32)

type prefixURLs string

func (p prefixURLs) URLPath(file string) string { return string(p) + file }

func seed(t *testing.T) (*store.Store, *models.Tenant, *models.Package) {
	t.Helper()
	ctx := context.Background()
	st := store.New(testutil.OpenDB(t))

	tenant := &models.Tenant{Name: "Acme"}
	require.NoError(t, st.CreateTenant(ctx, tenant))
	pkg := &models.Package{
		TenantID:    tenant.ID,
		Identifier:  "Acme.Tool",
		Name:        "Acme Tool",
		Publisher:   "Acme Corp",
		Description: "Does things",
	}
	require.NoError(t, st.CreatePackage(ctx, pkg))
	return st, tenant, pkg
}

func addInstaller(t *testing.T, st *store.Store, versionID uint, arch models.Architecture, scope models.Scope, file string) {
	t.Helper()
	require.NoError(t, st.SaveInstaller(context.Background(), &models.Installer{
		VersionID:    versionID,
		Architecture: arch,
		Type:         models.TypeMSI,
		Scope:        scope,
		File:         file,
		Size:         1,
		SHA256:       digest,
	}))
}

func TestResolveUnknownPackageIsAbsent(t *testing.T) {
	st, tenant, _ := seed(t)
	r := NewResolver(st, prefixURLs("/media/"), nil, nil)

	m, found, err := r.Resolve(context.Background(), tenant.ID, "Nope.Nothing", "https://example.com")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, m)
}

func TestResolveOtherTenantIsAbsent(t *testing.T) {
	ctx := context.Background()
	st, _, pkg := seed(t)
	other := &models.Tenant{Name: "Other"}
	require.NoError(t, st.CreateTenant(ctx, other))
	r := NewResolver(st, prefixURLs("/media/"), nil, nil)

	_, found, err := r.Resolve(ctx, other.ID, pkg.Identifier, "https://example.com")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestResolveExpandsBothScope(t *testing.T) {
	ctx := context.Background()
	st, tenant, pkg := seed(t)
	v := &models.Version{PackageID: pkg.ID, Version: "1.0.0"}
	require.NoError(t, st.CreateVersion(ctx, v))
	addInstaller(t, st, v.ID, models.ArchX64, models.ScopeBoth, "t/abc/setup.msi")

	r := NewResolver(st, prefixURLs("/media/"), nil, nil)
	m, found, err := r.Resolve(ctx, tenant.ID, pkg.Identifier, "https://winget.example.com")
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, m.Versions, 1)

	installers := m.Versions[0].Installers
	require.Len(t, installers, 2)
	assert.Equal(t, models.ScopeUser, installers[0].Scope)
	assert.Equal(t, models.ScopeMachine, installers[1].Scope)
	for _, inst := range installers {
		assert.Equal(t, digest, inst.InstallerSha256)
		assert.Equal(t, "https://winget.example.com/media/t/abc/setup.msi", inst.InstallerURL)
		assert.Equal(t, models.ArchX64, inst.Architecture)
		assert.Equal(t, models.TypeMSI, inst.InstallerType)
	}
}

func TestResolveShape(t *testing.T) {
	ctx := context.Background()
	st, tenant, pkg := seed(t)
	v1 := &models.Version{PackageID: pkg.ID, Version: "1.0"}
	require.NoError(t, st.CreateVersion(ctx, v1))
	v2 := &models.Version{PackageID: pkg.ID, Version: "2.0"}
	require.NoError(t, st.CreateVersion(ctx, v2))
	addInstaller(t, st, v2.ID, models.ArchX86, models.ScopeUser, "t/1/a.msi")
	addInstaller(t, st, v2.ID, models.ArchArm64, models.ScopeMachine, "t/2/b.msi")

	r := NewResolver(st, prefixURLs("/media/"), nil, nil)
	m, found, err := r.Resolve(ctx, tenant.ID, pkg.Identifier, "http://localhost:8080/")
	require.NoError(t, err)
	require.True(t, found)

	assert.Equal(t, "Acme.Tool", m.PackageIdentifier)
	require.Len(t, m.Versions, 2)
	assert.Equal(t, "1.0", m.Versions[0].PackageVersion)
	assert.Empty(t, m.Versions[0].Installers)
	assert.Equal(t, Locale{
		PackageLocale:    "en-us",
		Publisher:        "Acme Corp",
		PackageName:      "Acme Tool",
		ShortDescription: "Does things",
	}, m.Versions[1].DefaultLocale)

	require.Len(t, m.Versions[1].Installers, 2)
	assert.Equal(t, "http://localhost:8080/media/t/1/a.msi", m.Versions[1].Installers[0].InstallerURL)
	assert.Equal(t, models.ScopeUser, m.Versions[1].Installers[0].Scope)
	assert.Equal(t, models.ScopeMachine, m.Versions[1].Installers[1].Scope)
}

type brokenCatalog struct{ Catalog }

func (brokenCatalog) FindPackage(context.Context, string, string) (*models.Package, error) {
	return nil, errors.New("connection refused")
}

func TestResolvePropagatesStoreFailures(t *testing.T) {
	r := NewResolver(brokenCatalog{}, prefixURLs("/media/"), nil, nil)

	_, found, err := r.Resolve(context.Background(), "t", "x", "https://example.com")
	require.Error(t, err)
	assert.False(t, found)
	assert.False(t, errors.Is(err, apperr.ErrNotFound))
}

func TestResolveRejectsBadOrigin(t *testing.T) {
	ctx := context.Background()
	st, tenant, pkg := seed(t)
	v := &models.Version{PackageID: pkg.ID}
	require.NoError(t, st.CreateVersion(ctx, v))
	addInstaller(t, st, v.ID, models.ArchX64, models.ScopeUser, "t/1/a.msi")

	r := NewResolver(st, prefixURLs("/media/"), nil, nil)
	_, _, err := r.Resolve(ctx, tenant.ID, pkg.Identifier, "not a url")
	assert.Error(t, err)
}
