package models

import (
	"encoding/json"
	"fmt"

	"github.com/deedox/platform/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// Open connects to the configured database without touching the global.
func Open(cfg *config.DatabaseConfig, debug bool) (*gorm.DB, error) {
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

	level := logger.Warn
	if debug {
		level = logger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	return db, nil
}

func InitDB(cfg *config.DatabaseConfig, debug bool) error {
	db, err := Open(cfg, debug)
	if err != nil {
		return err
	}
	DB = db
	return nil
}

// AllModels lists every table owned by the platform.
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&RefreshToken{},
		&OTPChallenge{},
		&SiteSetting{},
		&ModelConfig{},
		&SystemCredential{},
		&ChatMessage{},
		&Course{},
		&Notice{},
		&Testimonial{},
		&NewsItem{},
		&Upload{},
		&SystemLog{},
	}
}

func AutoMigrate() error {
	return Migrate(DB)
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(AllModels()...)
}

func GetDB() *gorm.DB {
	return DB
}

// defaultModels are seeded disabled; an admin enables what the account can serve.
var defaultModels = []ModelConfig{
	{ID: "gpt-4o-mini", Name: "GPT-4o mini", Provider: ProviderOpenAI, SortOrder: 1},
	{ID: "gpt-4o", Name: "GPT-4o", Provider: ProviderOpenAI, SortOrder: 2},
	{ID: "claude-3-5-haiku-latest", Name: "Claude 3.5 Haiku", Provider: ProviderAnthropic, SortOrder: 3},
	{ID: "gemini-2.0-flash", Name: "Gemini 2.0 Flash", Provider: ProviderGemini, SortOrder: 4},
	{ID: "llama3.1", Name: "Llama 3.1 (Ollama)", Provider: ProviderOllama, SortOrder: 5},
}

// SeedDefaultData creates the default model allow-list and settings rows
// when they do not exist yet. Existing rows are never overwritten.
func SeedDefaultData(db *gorm.DB) error {
	for _, m := range defaultModels {
		var count int64
		db.Model(&ModelConfig{}).Where(map[string]interface{}{"id": m.ID}).Count(&count)
		if count > 0 {
			continue
		}
		m := m
		if err := db.Create(&m).Error; err != nil {
			return fmt.Errorf("seeding model %s: %w", m.ID, err)
		}
	}

	for key, value := range DefaultSettings() {
		var count int64
		db.Model(&SiteSetting{}).Where(map[string]interface{}{"key": key}).Count(&count)
		if count > 0 {
			continue
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return err
		}
		if err := db.Create(&SiteSetting{Key: key, Value: raw, Revision: 1}).Error; err != nil {
			return fmt.Errorf("seeding setting %s: %w", key, err)
		}
	}

	return nil
}
