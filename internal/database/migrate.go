package database

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"example.com/kapitallo/backend/internal/config"
)

//go:embed migrations/*.sql
var migrations embed.FS

// NewMigrator открывает мигратор поверх встроенных файлов migrations/.
// Вызывающий закрывает его через Close.
func NewMigrator(cfg config.DatabaseConfig, logger *slog.Logger) (*migrate.Migrate, error) {
	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("open migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	m.Log = migrateLogger{logger: logger}
	return m, nil
}

// Migrate применяет все непримененные миграции. Грязная версия после сбоя
// возвращается ошибкой: ее нужно исправить через cmd/migrate.
func Migrate(cfg config.DatabaseConfig, logger *slog.Logger) error {
	m, err := NewMigrator(cfg, logger)
	if err != nil {
		return err
	}
	defer CloseMigrator(m, logger)

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("read schema version: %w", err)
	}
	logger.Info("schema is up to date", "version", version, "dirty", dirty)
	return nil
}

// CloseMigrator закрывает источник и подключение мигратора.
func CloseMigrator(m *migrate.Migrate, logger *slog.Logger) {
	srcErr, dbErr := m.Close()
	if srcErr != nil {
		logger.Warn("migrate source close failed", "error", srcErr)
	}
	if dbErr != nil {
		logger.Warn("migrate database close failed", "error", dbErr)
	}
}

type migrateLogger struct {
	logger *slog.Logger
}

func (l migrateLogger) Printf(format string, v ...interface{}) {
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(format, v...)), "component", "migrate")
}

func (l migrateLogger) Verbose() bool {
	return false
}
