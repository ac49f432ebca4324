package repositories

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/anonto42/bazaar/backend/internal/models"
	"github.com/jackc/pgx/v5/pgconn"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

// Postgres SQLSTATE codes this package reacts to.
const (
	pgUniqueViolation  = "23505"
	pgUndefinedTable   = "42P01"
	pgUndefinedColumn  = "42703"
	pgInvalidSchema    = "3F000"
	pgAdminShutdown    = "57P01"
	pgCannotConnectNow = "57P03"
)

// isUniqueViolation reports whether err came from a unique index rejecting an insert.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	if mongo.IsDuplicateKeyError(err) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isMissingSchema(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUndefinedTable, pgUndefinedColumn, pgInvalidSchema:
			return true
		}
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "no such table") || strings.Contains(msg, "no such column")
}

func isConnectivity(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, context.DeadlineExceeded) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// class 08 is connection exception
		return strings.HasPrefix(pgErr.Code, "08") || pgErr.Code == pgAdminShutdown || pgErr.Code == pgCannotConnectNow
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return true
	}
	return strings.Contains(err.Error(), "database is closed")
}

// classify maps a driver error onto the store error kinds. Record-not-found is
// left untouched so callers can translate it into their own not-found error.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound), errors.Is(err, mongo.ErrNoDocuments):
		return err
	case errors.Is(err, models.ErrStoreUnavailable), errors.Is(err, models.ErrStoreUnreachable),
		errors.Is(err, models.ErrConversationNotFound), errors.Is(err, models.ErrNotificationNotFound),
		errors.Is(err, models.ErrInvalidInput):
		return err
	case isMissingSchema(err):
		return fmt.Errorf("%w: schema is missing: %v", models.ErrStoreUnavailable, err)
	case isConnectivity(err):
		return fmt.Errorf("%w: %v", models.ErrStoreUnreachable, err)
	default:
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
}
