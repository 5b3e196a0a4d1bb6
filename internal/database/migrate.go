package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/file"
)

// RunMigrations opens the sqlite file at dbPath and applies every pending up
// migration found at migrationsPath.
func RunMigrations(dbPath, migrationsPath string) error {
	m, err := migrate.New(
		"file://"+migrationsPath,
		fmt.Sprintf("file:%s?_foreign_keys=on", dbPath),
	)
	if err != nil {
		return err
	}
	defer m.Close()
	return upIgnoringNoChange(m)
}

// RunMigrationsWithDB applies pending migrations over an existing connection.
// The migrate handle is never closed here: closing it would close the
// caller's *sql.DB along with it. Only the file source is released.
func RunMigrationsWithDB(db *sql.DB, migrationsPath string) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return err
	}
	src, err := (&file.File{}).Open("file://" + migrationsPath)
	if err != nil {
		return err
	}
	defer src.Close()

	m, err := migrate.NewWithInstance("file", src, "sqlite3", driver)
	if err != nil {
		return err
	}
	return upIgnoringNoChange(m)
}

// A store already at the latest version is not an error.
func upIgnoringNoChange(m *migrate.Migrate) error {
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
