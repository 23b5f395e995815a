package models

import (
	"time"

	"gorm.io/gorm"
)

// APIClient is a merchant system allowed to initiate payments.
type APIClient struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	ClientID   string         `gorm:"size:64;uniqueIndex;not null" json:"client_id"`
	Name       string         `gorm:"size:100" json:"name"`
	SecretHash string         `gorm:"size:255;not null" json:"-"`
	Active     bool           `gorm:"not null;default:true" json:"active"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}

func (APIClient) TableName() string {
	return "api_clients"
}
