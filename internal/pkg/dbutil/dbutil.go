package dbutil

import (
	"strings"

	"github.com/jmoiron/sqlx"
)

// Finalize adapts a query written with "?" placeholders, as produced by the
// sql builder, to the dialect of driver.
func Finalize(driver, query string) string {
	if driver != "postgres" {
		return query
	}
	query = strings.ReplaceAll(query, "`", `"`)
	return sqlx.Rebind(sqlx.DOLLAR, query)
}

// Int64Args converts ids into the []interface{} form expected by "in" clauses.
func Int64Args(ids []int64) []interface{} {
	args := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	return args
}

func BoolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
