// Schema migration tool for the validator's persistence layer. Run
// once against DATABASE_URL before starting the service with history
// persistence enabled.
package main

import (
	"os"
	"time"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/postgres"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

type User struct {
	ID              int64   `gorm:"primary_key"`
	Email           string  `gorm:"type:varchar(255);unique_index;not null"`
	AzureADObjectID *string `gorm:"type:varchar(64)"`
	DisplayName     *string `gorm:"type:varchar(255)"`
	EncryptedAPIKey *string `gorm:"type:text"`
	IsActive        bool    `gorm:"not null;default:true"`
	CreatedAt       time.Time
	LastLoginAt     *time.Time
}

func (User) TableName() string { return "users" }

type ValidationHistory struct {
	ID              int64  `gorm:"primary_key"`
	UserID          int64  `gorm:"index;not null"`
	Filename        string `gorm:"type:varchar(255);not null"`
	MessageType     string `gorm:"type:varchar(32)"`
	Status          string `gorm:"type:varchar(32);not null"`
	ErrorCount      int
	WarningCount    int
	CorrectionCount int
	ReportURL       string    `gorm:"type:text"`
	ValidatedAt     time.Time `gorm:"index;not null"`
}

func (ValidationHistory) TableName() string { return "validation_history" }

func main() {
	_ = godotenv.Load(".env")

	log := zerolog.New(zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) { w.Out = os.Stdout })).With().Timestamp().Logger()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal().Msg("DATABASE_URL is required")
	}

	db, err := gorm.Open("postgres", dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to the database")
	}
	defer db.Close()

	if err := db.AutoMigrate(&User{}, &ValidationHistory{}).Error; err != nil {
		log.Fatal().Err(err).Msg("Migration failed")
	}

	log.Info().Msg("Schema is up to date")
}
