package mysql

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"testing"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"github.com/clothmarket/api/internal/repositories"
)

func TestWrapErrorClassification(t *testing.T) {
	cases := []struct {
		name        string
		err         error
		notFound    bool
		conflict    bool
		duplicate   bool
		unavailable bool
	}{
		{name: "record not found", err: gorm.ErrRecordNotFound, notFound: true},
		{name: "duplicate key", err: &mysqldriver.MySQLError{Number: 1062, Message: "Duplicate entry"}, conflict: true, duplicate: true},
		{name: "wrapped duplicate key", err: fmt.Errorf("insert: %w", &mysqldriver.MySQLError{Number: 1062}), conflict: true, duplicate: true},
		{name: "deadlock", err: fmt.Errorf("exec: %w", &mysqldriver.MySQLError{Number: 1213}), conflict: true},
		{name: "lock wait timeout", err: &mysqldriver.MySQLError{Number: 1205}, conflict: true},
		{name: "missing foreign key", err: &mysqldriver.MySQLError{Number: 1452}, conflict: true},
		{name: "too many connections", err: &mysqldriver.MySQLError{Number: 1040}, unavailable: true},
		{name: "bad connection", err: driver.ErrBadConn, unavailable: true},
		{name: "syntax", err: &mysqldriver.MySQLError{Number: 1064}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := wrapError("op", tc.err)
			var repoErr repositories.RepositoryError
			if !errors.As(err, &repoErr) {
				t.Fatalf("expected RepositoryError, got %T", err)
			}
			if repositories.IsDuplicate(err) != tc.duplicate {
				t.Fatalf("unexpected duplicate classification for %v", tc.err)
			}
			if repoErr.IsNotFound() != tc.notFound || repoErr.IsConflict() != tc.conflict || repoErr.IsUnavailable() != tc.unavailable {
				t.Fatalf("unexpected classification for %v: notFound=%v conflict=%v unavailable=%v",
					tc.err, repoErr.IsNotFound(), repoErr.IsConflict(), repoErr.IsUnavailable())
			}
		})
	}
}

func TestWrapErrorPassesContextErrors(t *testing.T) {
	if err := wrapError("op", context.DeadlineExceeded); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if wrapError("op", nil) != nil {
		t.Fatalf("expected nil")
	}
}

func TestNormaliseDSN(t *testing.T) {
	dsn, err := normaliseDSN("market:secret@tcp(127.0.0.1:3306)/market")
	if err != nil {
		t.Fatalf("normaliseDSN: %v", err)
	}
	if !strings.Contains(dsn, "parseTime=true") {
		t.Fatalf("expected parseTime in %q", dsn)
	}
	if !strings.Contains(dsn, "charset=utf8mb4") {
		t.Fatalf("expected charset in %q", dsn)
	}
	if _, err := normaliseDSN("  "); err == nil {
		t.Fatalf("expected error for empty dsn")
	}
}

func TestEscapeLike(t *testing.T) {
	if got := escapeLike(`50%_off\`); got != `50\%\_off\\` {
		t.Fatalf("unexpected escape %q", got)
	}
}
