package dbutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFinalizeRebindsPlaceholders(t *testing.T) {
	query, args := Finalize("SELECT id FROM documents WHERE id=? AND owner_id=?", []interface{}{"d1", "u1"})
	require.Equal(t, "SELECT id FROM documents WHERE id=$1 AND owner_id=$2", query)
	require.Equal(t, []interface{}{"d1", "u1"}, args)
}

func TestFinalizeRewritesLimit(t *testing.T) {
	query, args := Finalize("SELECT id FROM documents WHERE owner_id=? LIMIT ?,?", []interface{}{"u1", uint(10), uint(5)})
	require.Equal(t, "SELECT id FROM documents WHERE owner_id=$1 LIMIT $2 OFFSET $3", query)
	// gendry emits offset,count; postgres wants count first.
	require.Equal(t, []interface{}{"u1", uint(5), uint(10)}, args)
}
