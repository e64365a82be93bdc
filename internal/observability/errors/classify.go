// Package errors turns errors into short, low-cardinality tags for metrics and logs.
package errors

import (
	"context"
	goerrors "errors"
	"net"
	"reflect"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/target/domain-enricher/internal/domain/model"
)

var sentinelTags = []struct {
	err error
	tag string
}{
	{context.DeadlineExceeded, "timeout"},
	{context.Canceled, "canceled"},
	{model.ErrInvocationFailed, "invocation_failed"},
	{model.ErrInvalidStage, "invalid_stage"},
	{model.ErrDomainNotFound, "domain_not_found"},
	{model.ErrNoWorkAvailable, "no_work"},
}

// Classify returns a normalized error type name suitable for tagging metrics/logs.
// Known sentinels and Postgres/network failures get stable names; anything else
// is named after its innermost concrete type.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	for _, s := range sentinelTags {
		if goerrors.Is(err, s.err) {
			return s.tag
		}
	}

	var pgErr *pgconn.PgError
	if goerrors.As(err, &pgErr) {
		return "postgres_" + pgErr.Code
	}
	var netErr net.Error
	if goerrors.As(err, &netErr) {
		if netErr.Timeout() {
			return "timeout"
		}
		return "network"
	}

	for {
		unwrapped := goerrors.Unwrap(err)
		if unwrapped == nil {
			break
		}
		err = unwrapped
	}
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "unknown"
	}
	name := strings.ToLower(strings.ReplaceAll(t.String(), ".", "_"))
	if name == "" {
		return "unknown"
	}
	return name
}
