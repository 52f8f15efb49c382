// Package store is the entity store for tenants, packages, versions and
// installers. It enforces the uniqueness and referential invariants of the
// model and translates driver errors into the apperr taxonomy.
package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/xelth-com/wingetpro/internal/apperr"
	"github.com/xelth-com/wingetpro/internal/integrity"
	"github.com/xelth-com/wingetpro/internal/models"
	"github.com/xelth-com/wingetpro/internal/query"
)

// Store reads and writes the package catalog through gorm.
type Store struct {
	db *gorm.DB
}

// New wraps an open gorm connection. The connection should be opened with
// TranslateError enabled so constraint violations surface as gorm errors.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate synchronizes the schema for every catalog model.
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(models.All()...)
}

func (s *Store) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

// translate maps gorm errors to apperr sentinels, keeping the original
// error in the chain for logging.
func translate(err error, kind, key string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperr.NotFound(kind, key)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apperr.Conflict("%s %q already exists", kind, key)
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return fmt.Errorf("%s %q references a missing parent: %w", kind, key, apperr.ErrNotFound)
	}
	return fmt.Errorf("%s %q: %w", kind, key, err)
}

// --- Tenants ---

// CreateTenant inserts a tenant. The ID is generated when empty.
func (s *Store) CreateTenant(ctx context.Context, t *models.Tenant) error {
	if err := t.Validate(); err != nil {
		return err
	}
	return translate(s.conn(ctx).Create(t).Error, "tenant", t.Name)
}

// GetTenant loads a tenant by ID.
func (s *Store) GetTenant(ctx context.Context, id string) (*models.Tenant, error) {
	var t models.Tenant
	if err := s.conn(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, translate(err, "tenant", id)
	}
	return &t, nil
}

// UpdateTenantPassword replaces the stored bcrypt hash.
func (s *Store) UpdateTenantPassword(ctx context.Context, id, passwordHash string) error {
	res := s.conn(ctx).Model(&models.Tenant{}).Where("id = ?", id).Update("password_hash", passwordHash)
	if res.Error != nil {
		return translate(res.Error, "tenant", id)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("tenant", id)
	}
	return nil
}

// --- Packages ---

// FindPackage returns the tenant's package with the given identifier.
func (s *Store) FindPackage(ctx context.Context, tenantID, identifier string) (*models.Package, error) {
	var p models.Package
	err := s.conn(ctx).
		Where("tenant_id = ? AND identifier = ?", tenantID, identifier).
		First(&p).Error
	if err != nil {
		return nil, translate(err, "package", identifier)
	}
	return &p, nil
}

// ListPackages returns every package of the tenant with versions loaded.
func (s *Store) ListPackages(ctx context.Context, tenantID string) ([]models.Package, error) {
	return s.ListPackagesMatching(ctx, tenantID, query.All())
}

// ListPackagesMatching returns the tenant's packages selected by pred, with
// their versions preloaded in creation order. The predicate is pushed down
// into the WHERE clause.
func (s *Store) ListPackagesMatching(ctx context.Context, tenantID string, pred query.Predicate) ([]models.Package, error) {
	var pkgs []models.Package
	err := s.conn(ctx).
		Where("packages.tenant_id = ?", tenantID).
		Clauses(clause.Where{Exprs: []clause.Expression{pred.Expression()}}).
		Preload("Versions", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		Order("packages.id ASC").
		Find(&pkgs).Error
	if err != nil {
		return nil, fmt.Errorf("list packages for tenant %s: %w", tenantID, err)
	}
	return pkgs, nil
}

// CreatePackage validates and inserts p. A second package with the same
// identifier in the same tenant fails with apperr.ErrConflict.
func (s *Store) CreatePackage(ctx context.Context, p *models.Package) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		var tenants int64
		if err := tx.Model(&models.Tenant{}).Where("id = ?", p.TenantID).Count(&tenants).Error; err != nil {
			return translate(err, "tenant", p.TenantID)
		}
		if tenants == 0 {
			return apperr.NotFound("tenant", p.TenantID)
		}
		if err := ensureUniquePackage(tx, p); err != nil {
			return err
		}
		return translate(tx.Omit(clause.Associations).Create(p).Error, "package", p.Identifier)
	})
}

// UpdatePackage validates and saves p's own columns. Associations are
// left untouched.
func (s *Store) UpdatePackage(ctx context.Context, p *models.Package) error {
	if p.ID == 0 {
		return apperr.Invalid("id", "is required")
	}
	if err := p.Validate(); err != nil {
		return err
	}
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureUniquePackage(tx, p); err != nil {
			return err
		}
		res := tx.Model(&models.Package{}).
			Where("id = ? AND tenant_id = ?", p.ID, p.TenantID).
			Updates(map[string]interface{}{
				"identifier":  p.Identifier,
				"name":        p.Name,
				"publisher":   p.Publisher,
				"description": p.Description,
			})
		if res.Error != nil {
			return translate(res.Error, "package", p.Identifier)
		}
		if res.RowsAffected == 0 {
			return apperr.NotFound("package", p.Identifier)
		}
		return nil
	})
}

func ensureUniquePackage(tx *gorm.DB, p *models.Package) error {
	var n int64
	err := tx.Model(&models.Package{}).
		Where("tenant_id = ? AND identifier = ? AND id <> ?", p.TenantID, p.Identifier, p.ID).
		Count(&n).Error
	if err != nil {
		return translate(err, "package", p.Identifier)
	}
	if n > 0 {
		return apperr.Conflict("package %q already exists for this tenant", p.Identifier)
	}
	return nil
}

// DeletePackage removes a package with its versions and installers and
// returns the blob paths the removed installers referenced.
func (s *Store) DeletePackage(ctx context.Context, tenantID, identifier string) ([]string, error) {
	var files []string
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		var p models.Package
		if err := tx.Where("tenant_id = ? AND identifier = ?", tenantID, identifier).First(&p).Error; err != nil {
			return translate(err, "package", identifier)
		}
		versionIDs := tx.Model(&models.Version{}).Select("id").Where("package_id = ?", p.ID)

		if err := tx.Model(&models.Installer{}).Where("version_id IN (?)", versionIDs).Pluck("file", &files).Error; err != nil {
			return err
		}
		if err := tx.Where("version_id IN (?)", versionIDs).Delete(&models.Installer{}).Error; err != nil {
			return err
		}
		if err := tx.Where("package_id = ?", p.ID).Delete(&models.Version{}).Error; err != nil {
			return err
		}
		return tx.Delete(&p).Error
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// --- Versions ---

// ListVersions returns the package's versions in creation order.
func (s *Store) ListVersions(ctx context.Context, packageID uint) ([]models.Version, error) {
	var versions []models.Version
	err := s.conn(ctx).
		Where("package_id = ?", packageID).
		Order("created_at ASC, id ASC").
		Find(&versions).Error
	if err != nil {
		return nil, fmt.Errorf("list versions of package %d: %w", packageID, err)
	}
	return versions, nil
}

// CreateVersion inserts v. The (package, version) pair must be unique.
func (s *Store) CreateVersion(ctx context.Context, v *models.Version) error {
	if err := v.Validate(); err != nil {
		return err
	}
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.Package{}).Where("id = ?", v.PackageID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return apperr.NotFound("package", fmt.Sprint(v.PackageID))
		}
		if err := tx.Model(&models.Version{}).
			Where("package_id = ? AND version = ?", v.PackageID, v.Version).
			Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return apperr.Conflict("version %q already exists for this package", v.Version)
		}
		return translate(tx.Omit(clause.Associations).Create(v).Error, "version", v.Version)
	})
}

// FindVersion looks a version up by its version string.
func (s *Store) FindVersion(ctx context.Context, packageID uint, version string) (*models.Version, error) {
	var v models.Version
	err := s.conn(ctx).
		Preload("Package").
		Where("package_id = ? AND version = ?", packageID, version).
		First(&v).Error
	if err != nil {
		return nil, translate(err, "version", version)
	}
	return &v, nil
}

// GetVersion loads a version by ID, scoped to the tenant.
func (s *Store) GetVersion(ctx context.Context, tenantID string, id uint) (*models.Version, error) {
	db := s.conn(ctx)
	var v models.Version
	err := db.
		Preload("Package").
		Where("id = ? AND package_id IN (?)", id, db.Model(&models.Package{}).Select("id").Where("tenant_id = ?", tenantID)).
		First(&v).Error
	if err != nil {
		return nil, translate(err, "version", fmt.Sprint(id))
	}
	return &v, nil
}

// DeleteVersion removes a version with its installers and returns the
// blob paths the removed installers referenced.
func (s *Store) DeleteVersion(ctx context.Context, tenantID string, id uint) ([]string, error) {
	v, err := s.GetVersion(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	var files []string
	err = s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Installer{}).Where("version_id = ?", v.ID).Pluck("file", &files).Error; err != nil {
			return err
		}
		if err := tx.Where("version_id = ?", v.ID).Delete(&models.Installer{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Version{}, v.ID).Error
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// --- Installers ---

// ListInstallers returns the version's installers.
func (s *Store) ListInstallers(ctx context.Context, versionID uint) ([]models.Installer, error) {
	var installers []models.Installer
	err := s.conn(ctx).
		Where("version_id = ?", versionID).
		Order("id ASC").
		Find(&installers).Error
	if err != nil {
		return nil, fmt.Errorf("list installers of version %d: %w", versionID, err)
	}
	return installers, nil
}

// GetInstaller loads an installer by ID, scoped to the tenant.
func (s *Store) GetInstaller(ctx context.Context, tenantID string, id uint) (*models.Installer, error) {
	db := s.conn(ctx)
	tenantVersions := db.Table("versions").
		Select("versions.id").
		Joins("JOIN packages ON packages.id = versions.package_id").
		Where("packages.tenant_id = ?", tenantID)

	var inst models.Installer
	err := db.
		Preload("Version.Package").
		Where("id = ? AND version_id IN (?)", id, tenantVersions).
		First(&inst).Error
	if err != nil {
		return nil, translate(err, "installer", fmt.Sprint(id))
	}
	return &inst, nil
}

// FindInstaller looks an installer up by its (architecture, type) key.
func (s *Store) FindInstaller(ctx context.Context, versionID uint, arch models.Architecture, typ models.InstallerType) (*models.Installer, error) {
	var inst models.Installer
	err := s.conn(ctx).
		Where("version_id = ? AND architecture = ? AND type = ?", versionID, arch, typ).
		First(&inst).Error
	if err != nil {
		return nil, translate(err, "installer", fmt.Sprintf("%s/%s", arch, typ))
	}
	return &inst, nil
}

// SaveInstaller inserts (ID == 0) or updates inst in a single row write,
// so File, Size and SHA256 always change together. The caller must have
// computed SHA256 from the stored content.
func (s *Store) SaveInstaller(ctx context.Context, inst *models.Installer) error {
	if err := inst.Validate(); err != nil {
		return err
	}
	if inst.File == "" {
		return apperr.Invalid("file", "is required")
	}
	if !integrity.ValidDigest(inst.SHA256) {
		return apperr.Invalid("sha256", "must be 64 hex characters")
	}

	key := fmt.Sprintf("%s/%s", inst.Architecture, inst.Type)
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.Version{}).Where("id = ?", inst.VersionID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return apperr.NotFound("version", fmt.Sprint(inst.VersionID))
		}
		if err := tx.Model(&models.Installer{}).
			Where("version_id = ? AND architecture = ? AND type = ? AND id <> ?",
				inst.VersionID, inst.Architecture, inst.Type, inst.ID).
			Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return apperr.Conflict("installer %s already exists for this version", key)
		}

		if inst.ID == 0 {
			return translate(tx.Omit(clause.Associations).Create(inst).Error, "installer", key)
		}
		res := tx.Model(&models.Installer{}).Where("id = ?", inst.ID).Updates(map[string]interface{}{
			"architecture": inst.Architecture,
			"type":         inst.Type,
			"scope":        inst.Scope,
			"file":         inst.File,
			"size":         inst.Size,
			"sha256":       inst.SHA256,
		})
		if res.Error != nil {
			return translate(res.Error, "installer", key)
		}
		if res.RowsAffected == 0 {
			return apperr.NotFound("installer", fmt.Sprint(inst.ID))
		}
		return nil
	})
}

// DeleteInstaller removes an installer row and returns its blob path.
func (s *Store) DeleteInstaller(ctx context.Context, tenantID string, id uint) (string, error) {
	inst, err := s.GetInstaller(ctx, tenantID, id)
	if err != nil {
		return "", err
	}
	if err := s.conn(ctx).Delete(&models.Installer{}, inst.ID).Error; err != nil {
		return "", translate(err, "installer", fmt.Sprint(id))
	}
	return inst.File, nil
}
