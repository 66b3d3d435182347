package warehouse

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	sf "github.com/snowflakedb/gosnowflake"
)

// Snowflake error numbers that mean the object is invisible to the current
// role rather than the warehouse being broken.
const (
	errObjectDoesNotExist     = 2003
	errSchemaDoesNotExist     = 2043
	errInsufficientPrivileges = 90105
)

// IsAccessDenied reports whether err means the requested object does not
// exist or is not visible to the session's role. Catalog listings treat this
// as an empty result, not a failure.
func IsAccessDenied(err error) bool {
	if err == nil {
		return false
	}
	var se *sf.SnowflakeError
	if errors.As(err, &se) {
		switch se.Number {
		case errObjectDoesNotExist, errSchemaDoesNotExist, errInsufficientPrivileges:
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "does not exist") || strings.Contains(msg, "not authorized")
}

// IsUnavailable reports whether err looks like the warehouse itself being
// unreachable: timeouts, refused connections, dropped sockets.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection refused", "connection reset", "i/o timeout", "no such host", "broken pipe"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
