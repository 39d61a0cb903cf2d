package model

import "time"

// Account status values.
const (
	AccountBanned = 0
	AccountNormal = 1
)

// Account holds login credentials. The profile is stored separately and
// created in the same transaction as the account.
type Account struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string    `gorm:"uniqueIndex;size:20;not null" json:"username"`
	PasswordHash string    `gorm:"size:72;not null" json:"-"`
	Status       int       `gorm:"default:1" json:"-"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"createdAt"`
	Profile      Profile   `gorm:"foreignKey:AccountID;constraint:OnDelete:CASCADE" json:"-"`
}

// Profile holds the user-editable fields of an account.
type Profile struct {
	AccountID       int64     `gorm:"primaryKey;autoIncrement:false" json:"accountId"`
	DisplayUsername string    `gorm:"size:20;not null" json:"displayUsername"`
	AboutMe         string    `gorm:"size:200;not null;default:''" json:"aboutMe"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}
