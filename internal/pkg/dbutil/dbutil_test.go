package dbutil

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

func TestFinalizeRebindsAndRewritesLimit(t *testing.T) {
	query, args := Finalize("SELECT id FROM fragments WHERE space=? ORDER BY ordinal LIMIT ?,?", []interface{}{"hash-256", 0, 50})
	require.Equal(t, "SELECT id FROM fragments WHERE space=$1 ORDER BY ordinal LIMIT $2 OFFSET $3", query)
	require.Equal(t, []interface{}{"hash-256", 50, 0}, args)
}

func TestFinalizeWithoutLimit(t *testing.T) {
	query, args := Finalize("DELETE FROM rate_windows WHERE reset_at<?", []interface{}{int64(10)})
	require.Equal(t, "DELETE FROM rate_windows WHERE reset_at<$1", query)
	require.Len(t, args, 1)
}

func TestErrorCodes(t *testing.T) {
	unique := fmt.Errorf("insert: %w", &pq.Error{Code: "23505"})
	missing := &pq.Error{Code: "23503"}
	require.True(t, IsConflict(unique))
	require.False(t, IsMissingReference(unique))
	require.True(t, IsMissingReference(missing))
	require.False(t, IsConflict(errors.New("plain")))
}
