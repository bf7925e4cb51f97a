package shared

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewPaginationComputesPages(t *testing.T) {
	p := NewPagination(20, 40, 101)
	require.Equal(t, 20, p.Limit)
	require.Equal(t, 40, p.Offset)
	require.Equal(t, 101, p.Total)
	require.Equal(t, 6, p.TotalPages)
}

func TestNewPaginationDefaults(t *testing.T) {
	p := NewPagination(0, -5, 75)
	require.Equal(t, 50, p.Limit)
	require.Equal(t, 0, p.Offset)
	require.Equal(t, 2, p.TotalPages)
}
