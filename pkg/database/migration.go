package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	pkgerrors "github.com/pkg/errors"
)

var migrationFilePattern = regexp.MustCompile(`^(\d+)_.*\.up\.sql$`)

// migrateLogger routes golang-migrate output through the service logger
type migrateLogger struct {
	ectologger.Logger
}

func (l migrateLogger) Verbose() bool { return true }

func (l migrateLogger) Printf(format string, v ...any) {
	l.Debugf(format, v...)
}

type MigrationConfig struct {
	FolderPath string
	// Version pins the schema to a version; 0 means latest
	Version uint
	// Force marks the schema clean at this version before migrating
	Force int
	// AutoRollback forces a dirty schema back to the version it started at
	AutoRollback bool
}

// MigrationStatus is the schema version recorded by golang-migrate
type MigrationStatus struct {
	Version uint `json:"version"`
	Dirty   bool `json:"dirty"`
	Latest  uint `json:"latest"`
}

type MigrationService struct {
	config MigrationConfig
	logger ectologger.Logger
}

func NewMigrationService(logger ectologger.Logger, config MigrationConfig) *MigrationService {
	return &MigrationService{config: config, logger: logger}
}

// Up applies the vendor master schema
func (ms *MigrationService) Up(db DB, databaseName string) error {
	m, err := ms.open(db, databaseName)
	if err != nil {
		return err
	}

	if ms.config.Force != 0 {
		ms.logger.Warnf("Forcing schema to version %d", ms.config.Force)
		if err := m.Force(ms.config.Force); err != nil {
			return pkgerrors.Wrapf(err, "failed to force schema to version %d", ms.config.Force)
		}
	}

	startVersion, _, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return pkgerrors.Wrap(err, "failed to read schema version")
	}

	start := time.Now()
	if ms.config.Version != 0 {
		err = m.Migrate(ms.config.Version)
	} else {
		err = m.Up()
	}
	ms.logger.Infof("Database migrations finished in %v", time.Since(start))

	return ms.settle(m, err, startVersion)
}

// Down rolls back a single migration
func (ms *MigrationService) Down(db DB, databaseName string) error {
	m, err := ms.open(db, databaseName)
	if err != nil {
		return err
	}
	if err := m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return pkgerrors.Wrap(err, "failed to roll back migration")
	}
	return nil
}

func (ms *MigrationService) Status(db DB, databaseName string) (MigrationStatus, error) {
	m, err := ms.open(db, databaseName)
	if err != nil {
		return MigrationStatus{}, err
	}

	var status MigrationStatus
	status.Version, status.Dirty, err = m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return MigrationStatus{}, pkgerrors.Wrap(err, "failed to read schema version")
	}
	latest, err := LatestMigrationVersion(ms.folder())
	if err != nil {
		return MigrationStatus{}, err
	}
	status.Latest = latest
	return status, nil
}

func (ms *MigrationService) open(db DB, databaseName string) (*migrate.Migrate, error) {
	folder := ms.folder()
	if _, err := os.Stat(folder); err != nil {
		return nil, pkgerrors.Wrapf(err, "migration folder %s does not exist", folder)
	}

	driver, err := postgres.WithInstance(db.SQLX().DB, &postgres.Config{DatabaseName: databaseName})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to create postgres migration driver")
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+folder, databaseName, driver)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to create migrate instance")
	}
	m.Log = migrateLogger{Logger: ms.logger}
	return m, nil
}

// settle interprets the result of an up migration
func (ms *MigrationService) settle(m *migrate.Migrate, err error, startVersion uint) error {
	switch {
	case err == nil:
		ms.logger.Info("Successfully applied migrations")
		return nil
	case errors.Is(err, migrate.ErrNoChange):
		ms.logger.Info("No new migrations to apply")
		return nil
	}

	// the database is ahead of this build's migration files, usually after a rollback deploy
	if isNoMigrationForVersion(err) {
		latest, latestErr := LatestMigrationVersion(ms.folder())
		if latestErr != nil {
			return pkgerrors.Wrap(err, latestErr.Error())
		}
		ms.logger.Warnf("Schema version %d has no migration file, forcing to %d", startVersion, latest)
		return m.Force(int(latest))
	}

	version, dirty, versionErr := m.Version()
	ms.logger.WithError(err).Errorf("Migration failed, schema at version %d dirty=%t", version, dirty)
	if versionErr == nil && dirty && ms.config.AutoRollback {
		ms.logger.Warnf("Reverting dirty schema to version %d", startVersion)
		if forceErr := m.Force(int(startVersion)); forceErr != nil {
			return pkgerrors.Wrapf(forceErr, "failed to revert schema to version %d", startVersion)
		}
	}
	// reverting still fails startup
	return pkgerrors.Wrap(err, "failed to apply migrations")
}

func (ms *MigrationService) folder() string {
	folder := ms.config.FolderPath
	if filepath.IsAbs(folder) {
		return folder
	}
	if _, err := os.Stat(folder); err == nil {
		if abs, err := filepath.Abs(folder); err == nil {
			return abs
		}
	}
	wd, _ := os.Getwd()
	return filepath.Join(wd, folder)
}

var noMigrationPattern = regexp.MustCompile(`no migration found for version \d+`)

func isNoMigrationForVersion(err error) bool {
	return noMigrationPattern.MatchString(err.Error())
}

// LatestMigrationVersion returns the highest up-migration number in folder
func LatestMigrationVersion(folder string) (uint, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return 0, err
	}

	var versions []uint
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		matches := migrationFilePattern.FindStringSubmatch(entry.Name())
		if len(matches) < 2 {
			continue
		}
		version, err := strconv.ParseUint(matches[1], 10, 64)
		if err != nil {
			return 0, err
		}
		versions = append(versions, uint(version))
	}

	if len(versions) == 0 {
		return 0, fmt.Errorf("no migration files found in %s", folder)
	}
	return slices.Max(versions), nil
}
