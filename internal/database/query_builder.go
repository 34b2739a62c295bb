// Airwave - Broadcast Log Identity Resolution
// SPDX-License-Identifier: AGPL-3.0-or-later

package database

import (
	"fmt"
	"strings"
	"time"
)

// buildInClause creates a parameterized IN clause for SQL queries.
// Returns the placeholder string and the arguments slice.
//
// Example:
//
//	placeholders, args := buildInClause([]string{"link", "promote"})
//	// placeholders = "?,?"
//	// args = []interface{}{"link", "promote"}
func buildInClause(items []string) (string, []interface{}) {
	placeholders := make([]string, len(items))
	args := make([]interface{}, len(items))
	for i, item := range items {
		placeholders[i] = "?"
		args[i] = item
	}
	return strings.Join(placeholders, ","), args
}

// AuditFilter narrows a list_audit query.
type AuditFilter struct {
	StartDate   *time.Time
	EndDate     *time.Time
	ActionTypes []string
	Signature   string
}

// buildFilterConditions builds WHERE clause conditions for an
// AuditFilter. Returns SQL conditions (without the leading AND) and
// corresponding arguments; the base query must already filter on
// something so these can be appended with " AND ".
func (f *AuditFilter) buildFilterConditions() (string, []interface{}) {
	var conditions []string
	var args []interface{}

	if f.StartDate != nil {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, *f.StartDate)
	}

	if f.EndDate != nil {
		conditions = append(conditions, "created_at <= ?")
		args = append(args, *f.EndDate)
	}

	if len(f.ActionTypes) > 0 {
		placeholders, actionArgs := buildInClause(f.ActionTypes)
		conditions = append(conditions, fmt.Sprintf("action_type IN (%s)", placeholders))
		args = append(args, actionArgs...)
	}

	if f.Signature != "" {
		conditions = append(conditions, "signature = ?")
		args = append(args, f.Signature)
	}

	if len(conditions) > 0 {
		return " AND " + strings.Join(conditions, " AND "), args
	}

	return "", args
}
