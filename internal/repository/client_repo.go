package repository

import (
	"momopay/internal/models"

	"gorm.io/gorm"
)

type ClientRepository struct {
	db *gorm.DB
}

func NewClientRepository(db *gorm.DB) *ClientRepository {
	return &ClientRepository{db: db}
}

func (r *ClientRepository) Create(c *models.APIClient) error {
	return r.db.Create(c).Error
}

func (r *ClientRepository) GetByClientID(clientID string) (*models.APIClient, error) {
	var c models.APIClient
	err := r.db.Where("client_id = ?", clientID).First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}
