package mysql

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

const (
	errDuplicateEntry     = 1062
	errLockWaitTimeout    = 1205
	errDeadlock           = 1213
	errRowReferenced      = 1451
	errNoReferencedRow    = 1452
	errTooManyConnections = 1040
)

// dbError satisfies repositories.RepositoryError.
type dbError struct {
	op          string
	err         error
	notFound    bool
	conflict    bool
	duplicate   bool
	unavailable bool
}

func (e *dbError) Error() string {
	return fmt.Sprintf("mysql %s: %v", e.op, e.err)
}

func (e *dbError) Unwrap() error       { return e.err }
func (e *dbError) IsNotFound() bool    { return e.notFound }
func (e *dbError) IsConflict() bool    { return e.conflict }
func (e *dbError) IsDuplicate() bool   { return e.duplicate }
func (e *dbError) IsUnavailable() bool { return e.unavailable }

func notFound(op, what string) error {
	return &dbError{op: op, err: fmt.Errorf("%s not found", what), notFound: true}
}

func conflict(op string, err error) error {
	return &dbError{op: op, err: err, conflict: true}
}

// wrapError classifies driver and gorm errors. Context errors pass through untouched.
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var existing *dbError
	if errors.As(err, &existing) {
		return err
	}

	e := &dbError{op: op, err: err}
	var myErr *mysqldriver.MySQLError
	var netErr net.Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		e.notFound = true
	case errors.As(err, &myErr):
		switch myErr.Number {
		case errDuplicateEntry:
			e.conflict, e.duplicate = true, true
		case errDeadlock, errLockWaitTimeout, errRowReferenced, errNoReferencedRow:
			e.conflict = true
		case errTooManyConnections:
			e.unavailable = true
		}
	case errors.Is(err, driver.ErrBadConn), errors.Is(err, mysqldriver.ErrInvalidConn), errors.As(err, &netErr):
		e.unavailable = true
	}
	return e
}

