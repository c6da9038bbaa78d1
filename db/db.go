package db

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	// Db is the GORM database instance opened by InitDB.
	Db *gorm.DB
	// Path is the default path to the SQLite database file.
	Path = filepath.Join(os.Getenv("HOME"), ".monitorctl", "monitorctl.db")
)

// InitDB initializes the database and creates the tables if they don't exist.
func InitDB() error {
	if err := createDBDirectory(); err != nil {
		return err
	}

	if err := openDatabase(); err != nil {
		return err
	}

	if err := migrateTables(Db); err != nil {
		return err
	}

	configureLogger()

	log.Info().Str("path", Path).Msg("Database initialized successfully")
	return nil
}

// GetDB returns the database opened by InitDB.
func GetDB() *gorm.DB { return Db }

// Open opens a database at dsn and migrates it without touching the package-level connection.
func Open(dsn string) (*gorm.DB, error) {
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := migrateTables(gdb); err != nil {
		return nil, err
	}
	return gdb, nil
}

// createDBDirectory creates the directory holding the database file when it is missing.
func createDBDirectory() error {
	dir := filepath.Dir(Path)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			log.Error().Err(err).Msg("Failed to create database directory")
			return err
		}
	}
	return nil
}

func openDatabase() error {
	var err error
	Db, err = gorm.Open(sqlite.Open(Path), &gorm.Config{})
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize database")
		return err
	}
	return nil
}

func migrateTables(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(&Token{}, &Server{}); err != nil {
		log.Error().Err(err).Msg("Failed to auto-migrate database")
		return err
	}
	return nil
}

// configureLogger silences GORM unless debug logging is on.
func configureLogger() {
	if zerolog.GlobalLevel() == zerolog.Disabled || zerolog.GlobalLevel() > zerolog.DebugLevel {
		Db.Logger = Db.Logger.LogMode(logger.Silent)
	} else {
		Db.Logger = Db.Logger.LogMode(logger.Info)
	}
}

// CloseDB closes the database connection.
func CloseDB() error {
	if Db == nil {
		return nil
	}
	sqlDB, err := Db.DB()
	if err != nil {
		log.Error().Err(err).Msg("Failed to get raw database connection")
		return err
	}
	return sqlDB.Close()
}
