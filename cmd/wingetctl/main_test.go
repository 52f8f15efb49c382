package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/xelth-com/wingetpro/internal/apperr"
	"github.com/xelth-com/wingetpro/internal/blob"
	"github.com/xelth-com/wingetpro/internal/installers"
	"github.com/xelth-com/wingetpro/internal/models"
	"github.com/xelth-com/wingetpro/internal/store"
	"github.com/xelth-com/wingetpro/internal/testutil"
	"github.com/xelth-com/wingetpro/internal/utils"
)

const testSecret = "wingetctl-test-secret"

type fixture struct {
	app   *app
	db    *gorm.DB
	out   *bytes.Buffer
	media string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.OpenDB(t)
	st := store.New(db)
	media := t.TempDir()
	blobs, err := blob.NewFileStore(media, "/media/", nil)
	require.NoError(t, err)

	out := &bytes.Buffer{}
	return &fixture{
		app: &app{
			store:      st,
			installers: installers.NewService(st, blobs, nil, nil),
			out:        out,
			jwtSecret:  testSecret,
		},
		db:    db,
		out:   out,
		media: media,
	}
}

func (f *fixture) run(t *testing.T, args ...string) error {
	t.Helper()
	f.out.Reset()
	return f.app.dispatch(context.Background(), args)
}

func (f *fixture) tenant(t *testing.T, name string) models.Tenant {
	t.Helper()
	var tenant models.Tenant
	require.NoError(t, f.db.Where("name = ?", name).First(&tenant).Error)
	return tenant
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestProvisioningFlow(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.run(t, "tenant", "create", "--name", "Acme Corp", "--password", "hunter2"))
	tenant := f.tenant(t, "Acme Corp")
	assert.Contains(t, f.out.String(), tenant.ID)
	assert.True(t, utils.CheckPasswordHash("hunter2", tenant.PasswordHash))

	require.NoError(t, f.run(t, "package", "create",
		"--tenant", tenant.ID,
		"--identifier", "Acme.Tool",
		"--name", "Acme Tool",
		"--publisher", "Acme",
		"--description", "Does things"))
	require.NoError(t, f.run(t, "version", "create", "--tenant", tenant.ID, "--package", "Acme.Tool", "--version", "1.2.0"))

	file := writeFile(t, "setup.msi", "abc")
	require.NoError(t, f.run(t, "installer", "add",
		"--tenant", tenant.ID,
		"--package", "Acme.Tool",
		"--version", "1.2.0",
		"--arch", "x64",
		"--type", "msi",
		"--file", file))
	assert.Contains(t, f.out.String(), "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad")

	pkg, err := f.app.store.FindPackage(context.Background(), tenant.ID, "Acme.Tool")
	require.NoError(t, err)
	v, err := f.app.store.FindVersion(context.Background(), pkg.ID, "1.2.0")
	require.NoError(t, err)
	list, err := f.app.store.ListInstallers(context.Background(), v.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.ScopeBoth, list[0].Scope)
	assert.Equal(t, int64(3), list[0].Size)
}

func TestInstallerAddReportsClaimedDigestMismatch(t *testing.T) {
	f := newFixture(t)
	tenant := provision(t, f)

	file := writeFile(t, "tool.exe", "abc")
	require.NoError(t, f.run(t, "installer", "add",
		"--tenant", tenant.ID,
		"--package", "Acme.Tool",
		"--arch", "arm64",
		"--type", "exe",
		"--scope", "user",
		"--sha256", strings.Repeat("0", 64),
		"--file", file))
	assert.Contains(t, f.out.String(), "warning")
}

func TestInstallerVerifyAndReplace(t *testing.T) {
	f := newFixture(t)
	tenant := provision(t, f)

	file := writeFile(t, "tool.msi", "original")
	require.NoError(t, f.run(t, "installer", "add",
		"--tenant", tenant.ID, "--package", "Acme.Tool",
		"--arch", "x64", "--type", "msi", "--file", file))

	var inst models.Installer
	require.NoError(t, f.db.First(&inst).Error)
	id := strconv.FormatUint(uint64(inst.ID), 10)

	require.NoError(t, f.run(t, "installer", "verify", "--tenant", tenant.ID, "--id", id))
	assert.Contains(t, f.out.String(), "ok")

	require.NoError(t, os.WriteFile(filepath.Join(f.media, filepath.FromSlash(inst.File)), []byte("tampered"), 0o644))
	err := f.run(t, "installer", "verify", "--tenant", tenant.ID, "--id", id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match")

	replacement := writeFile(t, "tool-2.msi", "abc")
	require.NoError(t, f.run(t, "installer", "replace", "--tenant", tenant.ID, "--id", id, "--file", replacement))
	require.NoError(t, f.run(t, "installer", "verify", "--tenant", tenant.ID, "--id", id))

	// Another tenant cannot see the installer.
	require.NoError(t, f.run(t, "tenant", "create", "--name", "Other"))
	other := f.tenant(t, "Other")
	err = f.run(t, "installer", "verify", "--tenant", other.ID, "--id", id)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestTokenCommand(t *testing.T) {
	f := newFixture(t)
	tenant := provision(t, f)

	require.NoError(t, f.run(t, "token", "--tenant", tenant.ID, "--ttl", "1h"))
	claims, err := utils.ValidateToken(strings.TrimSpace(f.out.String()), testSecret)
	require.NoError(t, err)
	got, ok := utils.TenantFromClaims(claims)
	require.True(t, ok)
	assert.Equal(t, tenant.ID, got)

	exp, err := claims.GetExpirationTime()
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp.Time, time.Minute)

	assert.ErrorIs(t, f.run(t, "token", "--tenant", "missing"), apperr.ErrNotFound)

	f.app.jwtSecret = ""
	assert.Error(t, f.run(t, "token", "--tenant", tenant.ID))
}

func TestTenantPassword(t *testing.T) {
	f := newFixture(t)
	tenant := provision(t, f)

	require.NoError(t, f.run(t, "tenant", "password", "--tenant", tenant.ID, "--password", "new-pass"))
	assert.True(t, utils.CheckPasswordHash("new-pass", f.tenant(t, "Acme").PasswordHash))

	assert.ErrorIs(t, f.run(t, "tenant", "password", "--tenant", "missing", "--password", "x"), apperr.ErrNotFound)
}

func TestCommandErrors(t *testing.T) {
	f := newFixture(t)

	err := f.run(t, "package", "create", "--tenant", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--identifier")

	err = f.run(t, "frobnicate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")

	assert.Error(t, f.run(t, "tenant", "create", "--bogus"))

	// Unknown tenant is reported before anything is written.
	err = f.run(t, "package", "create", "--tenant", "missing", "--identifier", "A.B", "--name", "Ab", "--publisher", "Bc", "--description", "Does things")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRunHelpAndVersion(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(nil, &out))
	assert.Contains(t, out.String(), "installer add")

	out.Reset()
	require.NoError(t, run([]string{"--version"}, &out))
	assert.True(t, strings.HasPrefix(out.String(), "wingetctl "))
}

// provision creates tenant "Acme" with package Acme.Tool and one unnamed version.
func provision(t *testing.T, f *fixture) models.Tenant {
	t.Helper()
	require.NoError(t, f.run(t, "tenant", "create", "--name", "Acme"))
	tenant := f.tenant(t, "Acme")
	require.NoError(t, f.run(t, "package", "create",
		"--tenant", tenant.ID, "--identifier", "Acme.Tool", "--name", "Acme Tool", "--publisher", "Acme", "--description", "Does things"))
	require.NoError(t, f.run(t, "version", "create", "--tenant", tenant.ID, "--package", "Acme.Tool"))
	return tenant
}
