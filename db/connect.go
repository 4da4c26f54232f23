package db

import (
	"strings"
	"time"

	"github.com/worckguarddev/ton-trip-bonanza/internal/models"
	"github.com/worckguarddev/ton-trip-bonanza/utils"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"

	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

func isPostgres(url string) bool {
	return strings.HasPrefix(url, "postgres://") ||
		strings.HasPrefix(url, "postgresql://") ||
		strings.Contains(url, "host=")
}

// ConnectDb opens postgres for postgres DSNs and a sqlite file otherwise.
func ConnectDb(url string, log *utils.Logger) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Error),
	}

	var dialector gorm.Dialector
	postgresDSN := isPostgres(url)
	if postgresDSN {
		dialector = postgres.New(postgres.Config{
			DSN:                  url,
			PreferSimpleProtocol: true,
		})
	} else {
		dsn := url
		if !strings.Contains(dsn, "?") {
			dsn += "?_busy_timeout=5000"
		}
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, err
	}

	log.Info("✅ Database connection successfully")

	log.Info("📦 Setting database connection pool...")
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	if postgresDSN {
		sqlDB.SetMaxIdleConns(20)
		sqlDB.SetMaxOpenConns(200)
		sqlDB.SetConnMaxLifetime(time.Hour)
	} else {
		// sqlite serializes writers; one connection keeps transactions from
		// tripping over each other with SQLITE_BUSY.
		sqlDB.SetMaxOpenConns(1)
	}

	return db, nil
}

func Migrate(db *gorm.DB, trigger bool, log *utils.Logger) error {
	if trigger {
		log.Info("📦 Migrating database...")
		models := []interface{}{
			&models.TelegramUser{},
			&models.Balance{},
			&models.Card{},
			&models.UserCard{},
			&models.Referral{},
			&models.ReferralReward{},
			&models.LedgerEntry{},
		}

		if err := db.AutoMigrate(models...); err != nil {
			log.Errorf("✖ Failed to migrate database: %v", err)
			return err
		}
	}

	log.Info("✅ Database migrated")
	return nil
}
