package models

import (
	"time"

	"gorm.io/datatypes"
)

// PermissionGrants is module -> action -> granted, as stored in user overrides and role tables.
type PermissionGrants map[string]map[string]bool

type User struct {
	ID          int                                  `gorm:"primary_key" json:"id"`
	Username    string                               `gorm:"size:100;not null;unique" json:"username"`
	Name        string                               `gorm:"size:100;not null" json:"name"`
	Email       *string                              `gorm:"size:100;unique" json:"email"`
	Password    string                               `gorm:"size:255;not null" json:"-"`
	Role        UserRole                             `gorm:"size:30;index;not null" json:"role"`
	SupplierId  *int                                 `gorm:"index" json:"supplier_id"`
	IsActive    *bool                                `gorm:"not null;default:true" json:"is_active"`
	Permissions datatypes.JSONType[PermissionGrants] `json:"permissions"`
	LastLoginAt *time.Time                           `json:"last_login_at"`
	LastLoginIP string                               `gorm:"size:64" json:"last_login_ip"`
	CreatedAt   time.Time                            `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time                            `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewUser struct {
	Username   string           `json:"username" validate:"required,max=100"`
	Name       string           `json:"name" validate:"required,max=100"`
	Email      string           `json:"email" validate:"omitempty,email"`
	Password   string           `json:"password" validate:"required,min=8"`
	Role       UserRole         `json:"role" validate:"required"`
	SupplierId *int             `json:"supplier_id"`
	Overrides  PermissionGrants `json:"permissions"`
}

func (u *User) Active() bool {
	return u != nil && u.IsActive != nil && *u.IsActive
}

// Overrides returns the per-user permission table, or nil when the user follows the role defaults.
func (u *User) Overrides() PermissionGrants {
	if u == nil {
		return nil
	}
	g := u.Permissions.Data()
	if len(g) == 0 {
		return nil
	}
	return g
}
