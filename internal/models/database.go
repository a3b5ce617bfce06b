package models

import (
	"fmt"
	"time"

	"github.com/fuseproject/fuse/backend/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// Open connects to the configured database. All timestamps written by gorm
// are UTC so slot queries compare like with like.
func Open(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	logMode := logger.Warn
	if cfg.Debug {
		logMode = logger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:  logger.Default.LogMode(logMode),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	return db, nil
}

func InitDB(cfg *config.DatabaseConfig) error {
	db, err := Open(cfg)
	if err != nil {
		return err
	}
	DB = db
	return nil
}

// Migrate creates or updates every table the service uses.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&Organization{},
		&Project{},
		&Team{},
		&RoleAssignment{},
		&GroupApplication{},
		&GroupInvitation{},
		&Interview{},
		&InterviewTemplate{},
		&Notification{},
		&SystemConfig{},
		&SystemLog{},
		&RefreshToken{},
		&SchedulerLock{},
	)
}

func AutoMigrate() error {
	return Migrate(DB)
}

func GetDB() *gorm.DB {
	return DB
}

// SeedDefaultData inserts the runtime settings that are missing.
func SeedDefaultData() error {
	return SeedSystemConfigs(DB)
}

func SeedSystemConfigs(db *gorm.DB) error {
	defaultConfigs := []SystemConfig{
		{Key: ConfigDigestEnabled, Value: "true", Type: "bool", Group: "scheduler", Label: "Send Pending Application Digest"},
		{Key: ConfigDigestTime, Value: "09:00", Type: "string", Group: "scheduler", Label: "Digest Time (HH:MM, UTC)"},
		{Key: ConfigLogRetentionDays, Value: "30", Type: "int", Group: "system", Label: "System Log Retention Days"},
	}

	for _, cfg := range defaultConfigs {
		var count int64
		if err := db.Model(&SystemConfig{}).Where("config_key = ?", cfg.Key).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			if err := db.Create(&cfg).Error; err != nil {
				return err
			}
		}
	}
	return nil
}
