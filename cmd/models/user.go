package models

import (
	"gorm.io/gorm"
)

// User roles understood by the notification pipeline. The wider roster
// surface owns user creation; this service only reads the directory.
const (
	RoleMember = "member"
	RoleDriver = "driver"
	RoleAdmin  = "admin"
)

type User struct {
	gorm.Model
	FullName string `gorm:"type:varchar(100)" json:"fullName"`
	Email    string `gorm:"uniqueIndex;not null" json:"email"`
	Phone    string `gorm:"type:varchar(20)" json:"phone,omitempty"`
	Role     string `gorm:"type:varchar(20);default:'member';index" json:"role"`
	GroupID  *uint  `gorm:"index" json:"groupId,omitempty"`
}
