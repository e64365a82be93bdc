package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/target/domain-enricher/internal/core"
)

// WorkAddedChannel is the NOTIFY channel fired by the pending_work insert trigger.
const WorkAddedChannel = "work_added"

// WorkNotifier blocks until a new domain is inserted.
type WorkNotifier struct {
	DB *sql.DB
}

var _ core.WorkNotifier = (*WorkNotifier)(nil)

// NewWorkNotifier creates a WorkNotifier on db.
func NewWorkNotifier(db *sql.DB) *WorkNotifier {
	return &WorkNotifier{DB: db}
}

// WaitForWork blocks on a dedicated connection until a work_added notification arrives or ctx ends.
// Failures to UNLISTEN or return the connection are joined onto the result.
func (n *WorkNotifier) WaitForWork(ctx context.Context) (err error) {
	conn, err := n.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire listen conn: %w", err)
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("release listen conn: %w", closeErr))
		}
	}()

	channel := pgx.Identifier{WorkAddedChannel}.Sanitize()
	if _, err := conn.ExecContext(ctx, "LISTEN "+channel); err != nil {
		return fmt.Errorf("listen %s: %w", WorkAddedChannel, err)
	}
	defer func() {
		// ctx may already be done here.
		if _, unlistenErr := conn.ExecContext(context.WithoutCancel(ctx), "UNLISTEN "+channel); unlistenErr != nil {
			err = errors.Join(err, fmt.Errorf("unlisten %s: %w", WorkAddedChannel, unlistenErr))
		}
	}()

	return conn.Raw(func(driverConn any) error {
		pc, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return fmt.Errorf("listen %s: driver conn is %T, want *stdlib.Conn", WorkAddedChannel, driverConn)
		}
		if _, err := pc.Conn().WaitForNotification(ctx); err != nil {
			return fmt.Errorf("wait for %s: %w", WorkAddedChannel, err)
		}
		return nil
	})
}
