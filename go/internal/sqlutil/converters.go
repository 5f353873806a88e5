package sqlutil

import (
	"database/sql"
	"strings"
)

// Helper functions for converting nullable columns to Go types

// FromSqlString converts sql.NullString to Go string with default
func FromSqlString(val sql.NullString, defaultVal string) string {
	if !val.Valid {
		return defaultVal
	}
	return val.String
}

// FromSqlStringPtr converts sql.NullString to Go string pointer
func FromSqlStringPtr(val sql.NullString) *string {
	if !val.Valid {
		return nil
	}
	return &val.String
}

// FromSqlBool converts sql.NullBool to Go bool with default
func FromSqlBool(val sql.NullBool, defaultVal bool) bool {
	if !val.Valid {
		return defaultVal
	}
	return val.Bool
}

// LikePattern builds a substring ILIKE pattern, escaping the wildcard
// characters of the search text.
func LikePattern(text string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(text) + "%"
}
