package models

import (
	"time"
)

// Architecture is the CPU architecture an installer targets
type Architecture string

const (
	ArchX86   Architecture = "x86"
	ArchX64   Architecture = "x64"
	ArchArm   Architecture = "arm"
	ArchArm64 Architecture = "arm64"
)

// Architectures lists every accepted architecture
var Architectures = []Architecture{ArchX86, ArchX64, ArchArm, ArchArm64}

// Valid reports whether a is one of Architectures
func (a Architecture) Valid() bool {
	for _, v := range Architectures {
		if a == v {
			return true
		}
	}
	return false
}

// InstallerType is the installer technology
type InstallerType string

const (
	TypeMSIX     InstallerType = "msix"
	TypeMSI      InstallerType = "msi"
	TypeAppx     InstallerType = "appx"
	TypeExe      InstallerType = "exe"
	TypeZip      InstallerType = "zip"
	TypeInno     InstallerType = "inno"
	TypeNullsoft InstallerType = "nullsoft"
	TypeWix      InstallerType = "wix"
	TypeBurn     InstallerType = "burn"
	TypePWA      InstallerType = "pwa"
	TypeMSStore  InstallerType = "msstore"
)

// InstallerTypes lists every accepted installer type
var InstallerTypes = []InstallerType{
	TypeMSIX, TypeMSI, TypeAppx, TypeExe, TypeZip, TypeInno,
	TypeNullsoft, TypeWix, TypeBurn, TypePWA, TypeMSStore,
}

// Valid reports whether t is one of InstallerTypes
func (t InstallerType) Valid() bool {
	for _, v := range InstallerTypes {
		if t == v {
			return true
		}
	}
	return false
}

// Scope is the install scope an installer declares
type Scope string

const (
	ScopeUser    Scope = "user"
	ScopeMachine Scope = "machine"
	// ScopeBoth declares that the same binary installs per-user and
	// machine-wide. It is never reported to clients literally.
	ScopeBoth Scope = "both"
)

// Scopes lists every accepted scope declaration
var Scopes = []Scope{ScopeUser, ScopeMachine, ScopeBoth}

// Valid reports whether s is one of Scopes
func (s Scope) Valid() bool {
	return s == ScopeUser || s == ScopeMachine || s == ScopeBoth
}

// Expand returns the concrete scopes a client may request for s.
func (s Scope) Expand() []Scope {
	if s == ScopeBoth {
		return []Scope{ScopeUser, ScopeMachine}
	}
	return []Scope{s}
}

// Installer is one binary artifact of a version. Identity is the
// (VersionID, Architecture, Type) triple; Scope is not part of the key.
//
// SHA256 is always computed from the stored blob by the installer write
// path and is never accepted from callers.
type Installer struct {
	ID           uint          `gorm:"primaryKey" json:"id"`
	VersionID    uint          `gorm:"not null;uniqueIndex:idx_installer_version_arch_type" json:"versionId"`
	Architecture Architecture  `gorm:"type:varchar(16);not null;uniqueIndex:idx_installer_version_arch_type" json:"architecture"`
	Type         InstallerType `gorm:"column:type;type:varchar(16);not null;uniqueIndex:idx_installer_version_arch_type" json:"type"`
	Scope        Scope         `gorm:"type:varchar(16);not null;default:'both'" json:"scope"`
	File         string        `gorm:"type:varchar(512);not null" json:"file"`
	Size         int64         `gorm:"not null;default:0" json:"size"`
	SHA256       string        `gorm:"column:sha256;type:varchar(64);not null" json:"sha256"`
	CreatedAt    time.Time     `gorm:"autoCreateTime;<-:create" json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`

	Version *Version `gorm:"foreignKey:VersionID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName specifies the table name for Installer model
func (Installer) TableName() string {
	return "installers"
}

// Scopes expands the declared scope for clients.
func (i Installer) Scopes() []Scope {
	return i.Scope.Expand()
}

func (i Installer) String() string {
	return i.File
}

// Validate checks the enumerated fields. An empty Scope is defaulted to
// ScopeBoth.
func (i *Installer) Validate() error {
	if i.VersionID == 0 {
		return invalidf("versionId", "is required")
	}
	if !i.Architecture.Valid() {
		return invalidf("architecture", "must be one of %v", Architectures)
	}
	if !i.Type.Valid() {
		return invalidf("type", "must be one of %v", InstallerTypes)
	}
	if i.Scope == "" {
		i.Scope = ScopeBoth
	}
	if !i.Scope.Valid() {
		return invalidf("scope", "must be one of %v", Scopes)
	}
	return nil
}
