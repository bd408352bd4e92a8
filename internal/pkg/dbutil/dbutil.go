package dbutil

import (
	"errors"
	"regexp"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

var limitRegex = regexp.MustCompile(`(?i)LIMIT\s+\?\s*,\s*\?`)

// Finalize turns a gendry query into postgres form. gendry renders `_limit` as
// `LIMIT offset,count`; that becomes `LIMIT count OFFSET offset` before `?` is rebound
// to `$n`.
func Finalize(query string, args []interface{}) (string, []interface{}) {
	if loc := limitRegex.FindStringIndex(query); loc != nil {
		idx := strings.Count(query[:loc[0]], "?")
		if idx+1 < len(args) {
			args[idx], args[idx+1] = args[idx+1], args[idx]
			query = query[:loc[0]] + "LIMIT ? OFFSET ?" + query[loc[1]:]
		}
	}
	return sqlx.Rebind(sqlx.DOLLAR, query), args
}

func IsConflict(err error) bool {
	return hasCode(err, codeUniqueViolation)
}

// IsMissingReference reports a foreign key violation, e.g. fragments written for a
// document that was deleted meanwhile.
func IsMissingReference(err error) bool {
	return hasCode(err, codeForeignKeyViolation)
}

func hasCode(err error, code string) bool {
	var pgErr *pq.Error
	if errors.As(err, &pgErr) {
		return string(pgErr.Code) == code
	}
	return false
}
