// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// queryBuilder helps construct SQL queries with filters
type queryBuilder struct {
	baseQuery string
	args      []interface{}
	filters   []string
}

// newQueryBuilder creates a new query builder with a base query.
func newQueryBuilder(baseQuery string) *queryBuilder {
	return &queryBuilder{
		baseQuery: baseQuery,
		args:      make([]interface{}, 0, 8),
		filters:   make([]string, 0, 4),
	}
}

// addDateRangeFilter adds created_at range filtering to the query.
func (qb *queryBuilder) addDateRangeFilter(filter AuditFilter) *queryBuilder {
	if filter.StartDate != nil {
		qb.filters = append(qb.filters, "created_at >= ?")
		qb.args = append(qb.args, *filter.StartDate)
	}
	if filter.EndDate != nil {
		qb.filters = append(qb.filters, "created_at <= ?")
		qb.args = append(qb.args, *filter.EndDate)
	}
	return qb
}

// addActionTypesFilter adds action_type filtering to the query.
func (qb *queryBuilder) addActionTypesFilter(actionTypes []string) *queryBuilder {
	if len(actionTypes) > 0 {
		placeholders := make([]string, len(actionTypes))
		for i, action := range actionTypes {
			placeholders[i] = "?"
			qb.args = append(qb.args, action)
		}
		qb.filters = append(qb.filters, fmt.Sprintf("action_type IN (%s)", strings.Join(placeholders, ",")))
	}
	return qb
}

// addSignatureFilter adds an exact signature filter to the query.
func (qb *queryBuilder) addSignatureFilter(signature string) *queryBuilder {
	if signature != "" {
		qb.filters = append(qb.filters, "signature = ?")
		qb.args = append(qb.args, signature)
	}
	return qb
}

// addStandardFilters applies all standard list_audit filters.
func (qb *queryBuilder) addStandardFilters(filter AuditFilter) *queryBuilder {
	return qb.addDateRangeFilter(filter).
		addActionTypesFilter(filter.ActionTypes).
		addSignatureFilter(filter.Signature)
}

// addFilter adds a custom filter condition
func (qb *queryBuilder) addFilter(condition string, args ...interface{}) {
	qb.filters = append(qb.filters, condition)
	qb.args = append(qb.args, args...)
}

// addLimit adds a LIMIT clause (does not use filters slice)
func (qb *queryBuilder) addLimit(limit int) *queryBuilder {
	qb.args = append(qb.args, limit)
	return qb
}

// build constructs the final query and returns it with args
func (qb *queryBuilder) build(suffix string) (string, []interface{}) {
	query := qb.baseQuery
	if len(qb.filters) > 0 {
		query += " AND " + strings.Join(qb.filters, " AND ")
	}
	if suffix != "" {
		query += " " + suffix
	}
	return query, qb.args
}

// scanFunc is a function that scans a single row into a result type
type scanFunc[T any] func(*sql.Rows) (T, error)

// queryAndScan executes a query and scans all rows using the provided scan function
func queryAndScan[T any](ctx context.Context, db *sql.DB, query string, args []interface{}, scan scanFunc[T]) ([]T, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return results, nil
}
