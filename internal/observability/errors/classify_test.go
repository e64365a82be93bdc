package errors

import (
	"context"
	goerrors "errors"
	"fmt"
	"net"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/target/domain-enricher/internal/domain/model"
)

type customErr struct{}

func (customErr) Error() string { return "custom" }

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"deadline", fmt.Errorf("enrich: %w", context.DeadlineExceeded), "timeout"},
		{"canceled", context.Canceled, "canceled"},
		{"invocation", fmt.Errorf("links: %w", model.ErrInvocationFailed), "invocation_failed"},
		{"postgres", fmt.Errorf("claim: %w", &pgconn.PgError{Code: pgerrcode.SerializationFailure}), "postgres_40001"},
		{"network", &net.OpError{Op: "dial", Err: goerrors.New("connection refused")}, "network"},
		{"concrete type", fmt.Errorf("wrap: %w", customErr{}), "errors_customerr"},
		{"plain", goerrors.New("boom"), "errors_errorstring"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, Classify(tc.err))
		})
	}
}
