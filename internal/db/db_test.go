package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebind(t *testing.T) {
	pg := &DB{driver: DriverPostgres}
	lite := &DB{driver: DriverSQLite}

	q := "SELECT id FROM vendors WHERE id IN (?,?) AND city = ?"
	assert.Equal(t, "SELECT id FROM vendors WHERE id IN ($1,$2) AND city = $3", pg.Rebind(q))
	assert.Equal(t, q, lite.Rebind(q))
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "", Placeholders(0))
	assert.Equal(t, "?", Placeholders(1))
	assert.Equal(t, "?,?,?", Placeholders(3))
}

func TestNewValidation(t *testing.T) {
	_, err := New(DriverSQLite, "")
	assert.Error(t, err)

	_, err = New("mysql", "root@/vendors")
	assert.Error(t, err)
}

func TestNewSQLiteInMemory(t *testing.T) {
	database, err := New(DriverSQLite, ":memory:")
	require.NoError(t, err)
	defer database.Close()

	assert.Equal(t, DriverSQLite, database.Driver())
	assert.NoError(t, database.HealthCheck(context.Background()))
}
