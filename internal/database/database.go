package database

import (
	"errors"
	"log"

	"momopay/config"
	"momopay/internal/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func NewDB(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Error),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return db, nil
}

// AutoMigrate runs Gorm auto-migration for the ledger and API client tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Transaction{},
		&models.TransactionEvent{},
		&models.APIClient{},
	)
}

// SeedClient creates the bootstrap API client if it does not exist yet.
func SeedClient(db *gorm.DB, cfg *config.SeedClientConfig) {
	if cfg.ClientID == "" || cfg.Secret == "" {
		return
	}
	var existing models.APIClient
	err := db.Where("client_id = ?", cfg.ClientID).First(&existing).Error
	if err == nil {
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Printf("seed client: %v", err)
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Secret), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("seed client: %v", err)
		return
	}
	c := &models.APIClient{ClientID: cfg.ClientID, Name: cfg.Name, SecretHash: string(hash), Active: true}
	if err := db.Create(c).Error; err != nil {
		log.Printf("seed client: %v", err)
		return
	}
	log.Printf("seeded api client %s", cfg.ClientID)
}
