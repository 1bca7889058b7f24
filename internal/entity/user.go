package entity

import "time"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// DbUser is a platform account.
type DbUser struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Email        string `gorm:"column:email;type:varchar(255);uniqueIndex" json:"email"`
	PasswordHash string `gorm:"column:password_hash;type:varchar(255)" json:"-"`
	DisplayName  string `gorm:"column:display_name;type:varchar(255)" json:"display_name"`
	Role         string `gorm:"column:role;type:varchar(32);default:user" json:"role"`
	IsActive     bool   `gorm:"column:is_active;default:true" json:"is_active"`
}

// TableName sets the table name.
func (DbUser) TableName() string {
	return "users"
}

// IsAdmin reports whether the user has the admin role.
func (u *DbUser) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}
