package user

import "time"

type User struct {
	ID            int64     `gorm:"primaryKey"`
	CompanyID     int64     `gorm:"column:company_id;not null;index"`
	Email         string    `gorm:"column:email;uniqueIndex;not null"`
	Name          string    `gorm:"column:name;not null"`
	PasswordHash  string    `gorm:"column:password_hash;not null"`
	Role          string    `gorm:"column:role;not null"`
	ManagerID     *int64    `gorm:"column:manager_id"`
	IsActive      bool      `gorm:"column:is_active"`
	ResetRequired bool      `gorm:"column:reset_required"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (User) TableName() string {
	return "users"
}
