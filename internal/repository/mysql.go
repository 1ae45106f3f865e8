package repository

import (
	"embed"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

//go:embed migrations/*.sql
var migrations embed.FS

type MySQLOptions struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// OpenMySQL connects and verifies the pool. The DSN must carry
// parseTime=true so DATETIME columns scan into time.Time.
func OpenMySQL(opts MySQLOptions) (*sqlx.DB, error) {
	db, err := sqlx.Connect("mysql", opts.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to mysql")
	}
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	return db, nil
}

// MigrateUp applies the embedded migrations.
func MigrateUp(dsn string) error {
	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return errors.Wrap(err, "unable to open embedded migrations")
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, "mysql://"+withMultiStatements(dsn))
	if err != nil {
		return errors.Wrap(err, "unable to create migrate instance")
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "unable to apply migrations")
	}
	return nil
}

func withMultiStatements(dsn string) string {
	if strings.Contains(dsn, "multiStatements=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&multiStatements=true"
	}
	return dsn + "?multiStatements=true"
}
