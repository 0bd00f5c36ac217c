package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// withTx runs fn in a transaction, rolling back when fn or the commit fails.
func withTx(ctx context.Context, db *sqlx.DB, label string, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s: %w", label, err)
	}
	commit := false
	defer func() {
		if !commit {
			_ = tx.Rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", label, err)
	}
	commit = true
	return nil
}

func pageBounds(page, size int) (limit, offset int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return size, (page - 1) * size
}

// dateRangeConditions appends inclusive day bounds on column to conditions and args.
// Timestamp columns compare against the start of the day after End.
func dateRangeConditions(column string, start, end *time.Time, timestamp bool, conditions []string, args []interface{}) ([]string, []interface{}) {
	if start != nil {
		conditions = append(conditions, fmt.Sprintf("%s >= $%d", column, len(args)+1))
		args = append(args, *start)
	}
	if end != nil {
		if timestamp {
			conditions = append(conditions, fmt.Sprintf("%s < $%d", column, len(args)+1))
			args = append(args, end.AddDate(0, 0, 1))
		} else {
			conditions = append(conditions, fmt.Sprintf("%s <= $%d", column, len(args)+1))
			args = append(args, *end)
		}
	}
	return conditions, args
}

func whereClause(conditions []string) string {
	if len(conditions) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conditions, " AND ")
}
