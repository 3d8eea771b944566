package db

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"blogauth/internal/models"
)

// DefaultCategories are created on first migration.
var DefaultCategories = []string{
	"General", "Technology", "Business", "Health", "Sports", "Entertainment", "Travel",
}

func Open(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, errors.New("DATABASE_DSN required")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	return db, nil
}

func Migrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(
		&models.User{},
		&models.Category{},
		&models.Article{},
		&models.Like{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return seedCategories(ctx, db)
}

func seedCategories(ctx context.Context, db *gorm.DB) error {
	for _, name := range DefaultCategories {
		c := models.Category{Name: name}
		if err := db.WithContext(ctx).Where(models.Category{Name: name}).FirstOrCreate(&c).Error; err != nil {
			return fmt.Errorf("seed category %q: %w", name, err)
		}
	}
	return nil
}
