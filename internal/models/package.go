package models

import (
	"time"
)

// Package is an installable product published by a tenant.
// Identity is the (TenantID, Identifier) pair.
type Package struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	TenantID    string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_package_tenant_identifier" json:"tenantId"`
	Identifier  string    `gorm:"type:varchar(128);not null;uniqueIndex:idx_package_tenant_identifier" json:"identifier"`
	Name        string    `gorm:"type:varchar(256);not null;index" json:"name"`
	Publisher   string    `gorm:"type:varchar(256);not null" json:"publisher"`
	Description string    `gorm:"type:varchar(256);not null" json:"description"`
	CreatedAt   time.Time `gorm:"autoCreateTime;<-:create" json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	Tenant   *Tenant   `gorm:"foreignKey:TenantID;constraint:OnDelete:CASCADE" json:"-"`
	Versions []Version `gorm:"foreignKey:PackageID;constraint:OnDelete:CASCADE" json:"versions,omitempty"`
}

// TableName specifies the table name for Package model
func (Package) TableName() string {
	return "packages"
}

func (p Package) String() string {
	return p.Name
}

// Validate checks field lengths. It runs before every create and update.
func (p *Package) Validate() error {
	if err := checkLength("identifier", p.Identifier, 1, 128); err != nil {
		return err
	}
	if err := checkLength("name", p.Name, 2, 256); err != nil {
		return err
	}
	if err := checkLength("publisher", p.Publisher, 2, 256); err != nil {
		return err
	}
	return checkLength("description", p.Description, 3, 256)
}

// Version is one release of a package. An empty Version string means the
// package has no explicit version.
type Version struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PackageID uint      `gorm:"not null;uniqueIndex:idx_version_package_version" json:"packageId"`
	Version   string    `gorm:"type:varchar(128);not null;default:'';uniqueIndex:idx_version_package_version" json:"version"`
	CreatedAt time.Time `gorm:"autoCreateTime;<-:create" json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Package    *Package    `gorm:"foreignKey:PackageID;constraint:OnDelete:CASCADE" json:"-"`
	Installers []Installer `gorm:"foreignKey:VersionID;constraint:OnDelete:CASCADE" json:"installers,omitempty"`
}

// TableName specifies the table name for Version model
func (Version) TableName() string {
	return "versions"
}

// String renders "<package name> <version>", or just the package name when
// the version string is empty. Package must be loaded.
func (v Version) String() string {
	result := ""
	if v.Package != nil {
		result = v.Package.Name
	}
	if v.Version != "" {
		if result != "" {
			result += " "
		}
		result += v.Version
	}
	return result
}

// Validate checks the version string length.
func (v *Version) Validate() error {
	if v.PackageID == 0 {
		return invalidf("packageId", "is required")
	}
	return checkLength("version", v.Version, 0, 128)
}
