package entity

import "time"

// DbProject groups generation sessions for a user.
type DbProject struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserID uint   `gorm:"column:user_id;index" json:"user_id"`
	User   *DbUser `gorm:"foreignKey:UserID" json:"-"`

	Name        string `gorm:"column:name;type:varchar(255)" json:"name"`
	Description string `gorm:"column:description;type:text" json:"description"`
}

// TableName sets the table name.
func (DbProject) TableName() string {
	return "projects"
}

// DbSession is a working context inside a project; generations belong to it.
type DbSession struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ProjectID uint       `gorm:"column:project_id;index" json:"project_id"`
	Project   *DbProject `gorm:"foreignKey:ProjectID" json:"-"`
	UserID    uint       `gorm:"column:user_id;index" json:"user_id"`

	Name string `gorm:"column:name;type:varchar(255)" json:"name"`
}

// TableName sets the table name.
func (DbSession) TableName() string {
	return "sessions"
}
