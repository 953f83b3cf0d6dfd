package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/lib/pq"
	"modernc.org/sqlite"
)

// ErrNotFound is matched by errors.Is for every storage error of kind
// KindNotFound.
var ErrNotFound = errors.New("record not found")

// Kind classifies storage failures so callers can map them without knowing
// the driver.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindConstraint
	KindConnection
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConstraint:
		return "constraint"
	case KindConnection:
		return "connection"
	default:
		return "unknown"
	}
}

// Error wraps a driver error with the entity and operation it happened in.
type Error struct {
	Kind   Kind
	Entity string
	Op     string
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("storage: %s %s: %s", e.Op, e.Entity, e.Kind)
	}
	return fmt.Sprintf("storage: %s %s: %v", e.Op, e.Entity, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrNotFound) match not-found errors whatever they
// wrap.
func (e *Error) Is(target error) bool {
	return target == ErrNotFound && e.Kind == KindNotFound
}

// KindOf returns the Kind of err, KindUnknown when err is not a storage
// error.
func KindOf(err error) Kind {
	var serr *Error
	if errors.As(err, &serr) {
		return serr.Kind
	}
	if errors.Is(err, ErrNotFound) {
		return KindNotFound
	}
	return KindUnknown
}

func notFound(entity, op string) error {
	return &Error{Kind: KindNotFound, Entity: entity, Op: op, Err: ErrNotFound}
}

// wrap classifies a driver error. Context cancellation is returned as is.
func wrap(entity, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &Error{Kind: classify(err), Entity: entity, Op: op, Err: err}
}

const (
	sqliteConstraint = 19
	sqliteBusy       = 5
	sqliteLocked     = 6
	sqliteCantOpen   = 14
)

func classify(err error) Kind {
	if errors.Is(err, sql.ErrNoRows) {
		return KindNotFound
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return KindConnection
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "23":
			return KindConstraint
		case "08", "57":
			return KindConnection
		}
		return KindUnknown
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() & 0xff {
		case sqliteConstraint:
			return KindConstraint
		case sqliteBusy, sqliteLocked, sqliteCantOpen:
			return KindConnection
		}
		return KindUnknown
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindConnection
	}

	// go-sqlite3 needs cgo, so its errors are recognised by message.
	msg := err.Error()
	switch {
	case strings.Contains(msg, "constraint failed"):
		return KindConstraint
	case strings.Contains(msg, "database is locked"), strings.Contains(msg, "connection refused"):
		return KindConnection
	}
	return KindUnknown
}
