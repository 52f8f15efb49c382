package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Tenant is the isolation boundary of the source. Every package belongs to
// exactly one tenant and the tenant ID is the first path segment of every
// client URL.
type Tenant struct {
	ID           string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name         string    `gorm:"type:varchar(256);not null" json:"name"`
	PasswordHash string    `gorm:"type:varchar(255)" json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// TableName specifies the table name for Tenant model
func (Tenant) TableName() string {
	return "tenants"
}

// BeforeCreate assigns a random UUID when the caller left ID empty
func (t *Tenant) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// Validate checks the tenant's fields before any write
func (t *Tenant) Validate() error {
	if t.ID != "" {
		if _, err := uuid.Parse(t.ID); err != nil {
			return invalidf("id", "must be a UUID")
		}
	}
	return checkLength("name", t.Name, 2, 256)
}
