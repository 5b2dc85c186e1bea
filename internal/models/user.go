package models

import "time"

type RoleName string

const (
	RoleSuperAdmin RoleName = "SUPER_ADMIN"
	RoleAdmin      RoleName = "ADMIN"
	RoleManager    RoleName = "MANAGER"
	RoleSupervisor RoleName = "SUPERVISOR"
	RoleOperator   RoleName = "OPERATOR"
	RoleEmployee   RoleName = "EMPLOYEE"
	RoleUser       RoleName = "USER"
)

type User struct {
	ID           uint     `gorm:"primaryKey" json:"id"`
	CompanyID    *uint    `gorm:"index" json:"company_id"`
	Company      *Company `json:"company,omitempty"`
	RoleID       *uint    `json:"role_id"`
	Role         *Role    `json:"role,omitempty"`
	Name         string   `gorm:"size:100;not null" json:"name"`
	Email        string   `gorm:"size:150;uniqueIndex;not null" json:"email"`
	PasswordHash string   `gorm:"size:255;not null" json:"-"`
	IsActive     bool     `gorm:"not null" json:"is_active"`
	LastLoginAt  *time.Time `json:"last_login_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`

	// Direct grants on top of the role's permissions.
	Permissions []Permission `gorm:"many2many:model_has_permissions;" json:"-"`
}

// RoleName is empty when the user has no role assigned.
func (u *User) RoleName() RoleName {
	if u.Role == nil {
		return ""
	}
	return u.Role.Name
}

type Role struct {
	ID          uint         `gorm:"primaryKey" json:"id"`
	Name        RoleName     `gorm:"size:50;uniqueIndex;not null" json:"name"`
	Description string       `gorm:"size:255" json:"description"`
	Permissions []Permission `gorm:"many2many:role_has_permissions;" json:"permissions,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Permission names are "<action>.<Subject>", e.g. "read.Employee".
// "*" and "manage.all" grant everything.
type Permission struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"size:100;uniqueIndex;not null" json:"name"`
	Description string    `gorm:"size:255" json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
