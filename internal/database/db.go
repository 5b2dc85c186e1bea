package database

import (
	"fmt"

	"snd-backend/internal/config"
	"snd-backend/internal/models"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var DB *gorm.DB

// Init connects to Postgres, migrates the schema and sets DB.
func Init(cfg *config.Config, logger gormlogger.Interface) error {
	db, err := Open(postgres.Open(cfg.DatabaseDSN), logger)
	if err != nil {
		return err
	}
	if err := Migrate(db); err != nil {
		return err
	}
	DB = db
	zap.L().Info("database connected, migration finished")
	return nil
}

func Open(dialector gorm.Dialector, logger gormlogger.Interface) (*gorm.DB, error) {
	gcfg := &gorm.Config{}
	if logger != nil {
		gcfg.Logger = logger
	}
	db, err := gorm.Open(dialector, gcfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// Transaction runs fn inside a transaction on DB.
func Transaction(fn func(tx *gorm.DB) error) error {
	return DB.Transaction(fn)
}
