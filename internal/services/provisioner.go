package services

import (
	"fmt"
	"log"
	"regexp"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mythicalltd/featherpanel/internal/models"
)

// identifierPattern bounds database and user names sent as raw SQL
// identifiers. Names are panel-generated but checked again here.
var identifierPattern = regexp.MustCompile(`^[a-zA-Z0-9_]{1,63}$`)

// OpenHostFunc connects to an external database host with admin
// credentials. Swappable in tests.
type OpenHostFunc func(host *models.DatabaseHost) (*gorm.DB, error)

// Provisioner creates and drops databases on external database hosts.
// The panel connects directly with the host's admin credentials; the
// daemon is not involved.
type Provisioner struct {
	open OpenHostFunc
}

func NewProvisioner() *Provisioner {
	return &Provisioner{open: openHost}
}

// NewProvisionerWithOpener is used by tests to substitute the
// connection.
func NewProvisionerWithOpener(open OpenHostFunc) *Provisioner {
	return &Provisioner{open: open}
}

func openHost(host *models.DatabaseHost) (*gorm.DB, error) {
	if host.Type != models.DatabaseHostPostgres {
		return nil, fmt.Errorf("unsupported database host type %q", host.Type)
	}
	dsn := fmt.Sprintf("host=%s user=%s password=%s port=%d sslmode=prefer",
		host.Host, host.Username, host.Password, host.Port)
	return gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
}

// Provision creates the database, the user and the grant on the host.
// On failure it attempts compensating drops for whatever was created.
func (p *Provisioner) Provision(host *models.DatabaseHost, dbName, username, password string) error {
	if !identifierPattern.MatchString(dbName) || !identifierPattern.MatchString(username) {
		return fmt.Errorf("invalid database or user name")
	}

	conn, err := p.open(host)
	if err != nil {
		return fmt.Errorf("failed to connect to database host %s: %w", host.Host, err)
	}
	defer closeHost(conn)

	if err := conn.Exec(fmt.Sprintf(`CREATE DATABASE %q`, dbName)).Error; err != nil {
		return fmt.Errorf("failed to create database %s: %w", dbName, err)
	}

	if err := conn.Exec(fmt.Sprintf(`CREATE USER %q WITH ENCRYPTED PASSWORD '%s'`, username, escapeLiteral(password))).Error; err != nil {
		p.rollback(conn, host, dbName, "")
		return fmt.Errorf("failed to create user %s: %w", username, err)
	}

	if err := conn.Exec(fmt.Sprintf(`GRANT ALL PRIVILEGES ON DATABASE %q TO %q`, dbName, username)).Error; err != nil {
		p.rollback(conn, host, dbName, username)
		return fmt.Errorf("failed to grant privileges on %s: %w", dbName, err)
	}
	return nil
}

// Drop removes the database and user from the host. Both drops are
// attempted even if the first fails.
func (p *Provisioner) Drop(host *models.DatabaseHost, dbName, username string) error {
	conn, err := p.open(host)
	if err != nil {
		return fmt.Errorf("failed to connect to database host %s: %w", host.Host, err)
	}
	defer closeHost(conn)

	var firstErr error
	if err := conn.Exec(fmt.Sprintf(`DROP DATABASE IF EXISTS %q`, dbName)).Error; err != nil {
		firstErr = fmt.Errorf("failed to drop database %s: %w", dbName, err)
	}
	if err := conn.Exec(fmt.Sprintf(`DROP USER IF EXISTS %q`, username)).Error; err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to drop user %s: %w", username, err)
	}
	return firstErr
}

// RotatePassword sets a new password for a provisioned user.
func (p *Provisioner) RotatePassword(host *models.DatabaseHost, username, password string) error {
	if !identifierPattern.MatchString(username) {
		return fmt.Errorf("invalid user name")
	}
	conn, err := p.open(host)
	if err != nil {
		return fmt.Errorf("failed to connect to database host %s: %w", host.Host, err)
	}
	defer closeHost(conn)

	if err := conn.Exec(fmt.Sprintf(`ALTER USER %q WITH ENCRYPTED PASSWORD '%s'`, username, escapeLiteral(password))).Error; err != nil {
		return fmt.Errorf("failed to rotate password for %s: %w", username, err)
	}
	return nil
}

// RollbackRemote undoes a provision after a local persistence failure.
// Best effort: failures are logged, never returned, because the caller
// is already handling the original error.
func (p *Provisioner) RollbackRemote(host *models.DatabaseHost, dbName, username string) {
	conn, err := p.open(host)
	if err != nil {
		log.Printf("WARNING: rollback could not connect to database host %s: %v", host.Host, err)
		return
	}
	defer closeHost(conn)
	p.rollback(conn, host, dbName, username)
}

func (p *Provisioner) rollback(conn *gorm.DB, host *models.DatabaseHost, dbName, username string) {
	if dbName != "" {
		if err := conn.Exec(fmt.Sprintf(`DROP DATABASE IF EXISTS %q`, dbName)).Error; err != nil {
			log.Printf("WARNING: failed to drop database %s on %s during rollback: %v", dbName, host.Host, err)
		}
	}
	if username != "" {
		if err := conn.Exec(fmt.Sprintf(`DROP USER IF EXISTS %q`, username)).Error; err != nil {
			log.Printf("WARNING: failed to drop user %s on %s during rollback: %v", username, host.Host, err)
		}
	}
}

func closeHost(conn *gorm.DB) {
	if sqlDB, err := conn.DB(); err == nil {
		sqlDB.Close()
	}
}

func escapeLiteral(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			out = append(out, '\'', '\'')
		} else {
			out = append(out, s[i])
		}
	}
	return string(out)
}
