package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/xelth-com/wingetpro/internal/installers"
	"github.com/xelth-com/wingetpro/internal/models"
	"github.com/xelth-com/wingetpro/internal/store"
	"github.com/xelth-com/wingetpro/internal/utils"
)

type app struct {
	store      *store.Store
	installers *installers.Service
	out        io.Writer
	jwtSecret  string
}

type command func(ctx context.Context, args []string) error

func (a *app) commands() map[string]command {
	return map[string]command{
		"tenant create":     a.tenantCreate,
		"tenant password":   a.tenantPassword,
		"package create":    a.packageCreate,
		"version create":    a.versionCreate,
		"installer add":     a.installerAdd,
		"installer replace": a.installerReplace,
		"installer verify":  a.installerVerify,
		"token":             a.token,
	}
}

// dispatch matches one or two leading words against the command table.
func (a *app) dispatch(ctx context.Context, args []string) error {
	cmds := a.commands()
	if len(args) >= 2 {
		if cmd, ok := cmds[args[0]+" "+args[1]]; ok {
			return cmd(ctx, args[2:])
		}
	}
	if len(args) >= 1 {
		if cmd, ok := cmds[args[0]]; ok {
			return cmd(ctx, args[1:])
		}
	}
	return fmt.Errorf("unknown command %q (run 'wingetctl help')", strings.Join(args, " "))
}

func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func required(fs *pflag.FlagSet, names ...string) error {
	var missing []string
	for _, name := range names {
		if f := fs.Lookup(name); f == nil || !f.Changed {
			missing = append(missing, "--"+name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s: missing %s", fs.Name(), strings.Join(missing, ", "))
	}
	return nil
}

func (a *app) tenantCreate(ctx context.Context, args []string) error {
	var name, password string
	fs := newFlagSet("tenant create")
	fs.StringVar(&name, "name", "", "display name of the tenant")
	fs.StringVar(&password, "password", "", "management API password (optional)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "name"); err != nil {
		return err
	}

	tenant := &models.Tenant{Name: name}
	if password != "" {
		hash, err := utils.HashPassword(password)
		if err != nil {
			return err
		}
		tenant.PasswordHash = hash
	}
	if err := a.store.CreateTenant(ctx, tenant); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "tenant %s created: %s\n", tenant.Name, tenant.ID)
	return nil
}

func (a *app) tenantPassword(ctx context.Context, args []string) error {
	var tenantID, password string
	fs := newFlagSet("tenant password")
	fs.StringVar(&tenantID, "tenant", "", "tenant ID")
	fs.StringVar(&password, "password", "", "new management API password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "tenant", "password"); err != nil {
		return err
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return err
	}
	if err := a.store.UpdateTenantPassword(ctx, tenantID, hash); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "password updated for tenant %s\n", tenantID)
	return nil
}

func (a *app) packageCreate(ctx context.Context, args []string) error {
	var pkg models.Package
	fs := newFlagSet("package create")
	fs.StringVar(&pkg.TenantID, "tenant", "", "tenant ID")
	fs.StringVar(&pkg.Identifier, "identifier", "", "package identifier, e.g. Acme.Tool")
	fs.StringVar(&pkg.Name, "name", "", "display name")
	fs.StringVar(&pkg.Publisher, "publisher", "", "publisher")
	fs.StringVar(&pkg.Description, "description", "", "short description")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "tenant", "identifier", "name", "publisher", "description"); err != nil {
		return err
	}

	if _, err := a.store.GetTenant(ctx, pkg.TenantID); err != nil {
		return err
	}
	if err := a.store.CreatePackage(ctx, &pkg); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "package %s created (id %d)\n", pkg.Identifier, pkg.ID)
	return nil
}

func (a *app) versionCreate(ctx context.Context, args []string) error {
	var tenantID, identifier, version string
	fs := newFlagSet("version create")
	fs.StringVar(&tenantID, "tenant", "", "tenant ID")
	fs.StringVar(&identifier, "package", "", "package identifier")
	fs.StringVar(&version, "version", "", "version string; may be empty")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "tenant", "package"); err != nil {
		return err
	}

	pkg, err := a.store.FindPackage(ctx, tenantID, identifier)
	if err != nil {
		return err
	}
	v := &models.Version{PackageID: pkg.ID, Version: version}
	if err := a.store.CreateVersion(ctx, v); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "version %q of %s created (id %d)\n", v.Version, pkg.Identifier, v.ID)
	return nil
}

func (a *app) installerAdd(ctx context.Context, args []string) error {
	var tenantID, identifier, version, arch, typ, scope, file, digest string
	fs := newFlagSet("installer add")
	fs.StringVar(&tenantID, "tenant", "", "tenant ID")
	fs.StringVar(&identifier, "package", "", "package identifier")
	fs.StringVar(&version, "version", "", "version string of an existing version")
	fs.StringVar(&arch, "arch", "", "x86, x64, arm or arm64")
	fs.StringVar(&typ, "type", "", "msix, msi, appx, exe, zip, inno, nullsoft, wix, burn or pwa")
	fs.StringVar(&scope, "scope", string(models.ScopeBoth), "user, machine or both")
	fs.StringVar(&file, "file", "", "path of the installer binary")
	fs.StringVar(&digest, "sha256", "", "expected SHA-256; a mismatch is reported, the stored digest is always computed")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "tenant", "package", "arch", "type", "file"); err != nil {
		return err
	}

	pkg, err := a.store.FindPackage(ctx, tenantID, identifier)
	if err != nil {
		return err
	}
	v, err := a.store.FindVersion(ctx, pkg.ID, version)
	if err != nil {
		return err
	}

	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	inst, err := a.installers.Create(ctx, tenantID, installers.Upload{
		VersionID:    v.ID,
		Architecture: models.Architecture(arch),
		Type:         models.InstallerType(typ),
		Scope:        models.Scope(scope),
		Filename:     filepath.Base(file),
		Content:      f,
		SHA256:       digest,
	})
	if err != nil {
		return err
	}
	a.printInstaller(inst, digest)
	return nil
}

func (a *app) installerReplace(ctx context.Context, args []string) error {
	var tenantID, file, digest string
	var id uint
	fs := newFlagSet("installer replace")
	fs.StringVar(&tenantID, "tenant", "", "tenant ID")
	fs.UintVar(&id, "id", 0, "installer ID")
	fs.StringVar(&file, "file", "", "path of the new installer binary")
	fs.StringVar(&digest, "sha256", "", "expected SHA-256 of the new binary")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "tenant", "id", "file"); err != nil {
		return err
	}

	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	inst, err := a.installers.Update(ctx, tenantID, id, installers.Change{
		Filename: filepath.Base(file),
		Content:  f,
		SHA256:   digest,
	})
	if err != nil {
		return err
	}
	a.printInstaller(inst, digest)
	return nil
}

func (a *app) printInstaller(inst *models.Installer, claimed string) {
	fmt.Fprintf(a.out, "installer %d stored: %s (%d bytes)\n", inst.ID, inst.File, inst.Size)
	fmt.Fprintf(a.out, "sha256 %s\n", inst.SHA256)
	if claimed != "" && !strings.EqualFold(claimed, inst.SHA256) {
		fmt.Fprintf(a.out, "warning: supplied sha256 %s does not match the stored file\n", claimed)
	}
}

func (a *app) installerVerify(ctx context.Context, args []string) error {
	var tenantID string
	var id uint
	fs := newFlagSet("installer verify")
	fs.StringVar(&tenantID, "tenant", "", "tenant ID")
	fs.UintVar(&id, "id", 0, "installer ID")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "tenant", "id"); err != nil {
		return err
	}

	ok, err := a.installers.Verify(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("installer %d: stored file does not match its recorded sha256", id)
	}
	fmt.Fprintf(a.out, "installer %d ok\n", id)
	return nil
}

func (a *app) token(ctx context.Context, args []string) error {
	var tenantID string
	var ttl time.Duration
	fs := newFlagSet("token")
	fs.StringVar(&tenantID, "tenant", "", "tenant ID")
	fs.DurationVar(&ttl, "ttl", utils.TokenTTL, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "tenant"); err != nil {
		return err
	}
	if a.jwtSecret == "" {
		return errors.New("JWT_SECRET is not set")
	}
	if _, err := a.store.GetTenant(ctx, tenantID); err != nil {
		return err
	}

	token, err := utils.GenerateTenantToken(tenantID, a.jwtSecret, ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, token)
	return nil
}
