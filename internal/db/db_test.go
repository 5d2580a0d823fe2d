package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *DB {
	t.Helper()
	d, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func TestPreferredCity_RoundTrip(t *testing.T) {
	d := openTemp(t)
	ctx := context.Background()

	_, ok, err := d.PreferredCity(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "fresh database has no preference")

	require.NoError(t, d.SetPreferredCity(ctx, "  Chennai "))
	city, ok, err := d.PreferredCity(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Chennai", city)

	require.NoError(t, d.SetPreferredCity(ctx, "Pune"))
	city, _, err = d.PreferredCity(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Pune", city, "second set overwrites")

	require.NoError(t, d.ClearPreferredCity(ctx))
	_, ok, err = d.PreferredCity(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSet_EmptyValueRejected(t *testing.T) {
	d := openTemp(t)
	err := d.Set(context.Background(), KeyPreferredCity, "   ")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmptyValue))
}

func TestGet_NotFound(t *testing.T) {
	d := openTemp(t)
	_, err := d.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.db")
	ctx := context.Background()

	d, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, d.SetPreferredCity(ctx, "Kochi"))
	require.NoError(t, d.Close())

	d, err = Open(path)
	require.NoError(t, err)
	defer d.Close()
	city, ok, err := d.PreferredCity(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Kochi", city)
}

func TestAll_OrderedByKey(t *testing.T) {
	d := openTemp(t)
	ctx := context.Background()
	require.NoError(t, d.Set(ctx, "zeta", "1"))
	require.NoError(t, d.Set(ctx, "alpha", "2"))

	prefs, err := d.All(ctx)
	require.NoError(t, err)
	require.Len(t, prefs, 2)
	assert.Equal(t, "alpha", prefs[0].Key)
	assert.Equal(t, "zeta", prefs[1].Key)
	assert.NotEmpty(t, prefs[0].UpdatedAt)
}

func TestOpen_Memory(t *testing.T) {
	d, err := Open(MemoryPath)
	require.NoError(t, err)
	defer d.Close()
	ctx := context.Background()
	require.NoError(t, d.SetPreferredCity(ctx, "Madurai"))
	city, ok, err := d.PreferredCity(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Madurai", city)
	assert.NoError(t, d.Ping(ctx))
}
