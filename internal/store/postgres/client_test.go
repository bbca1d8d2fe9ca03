package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:5432/duel?sslmode=disable", DSN(ClientConfig{
		Host: "db", Database: "duel", User: "u", Password: "p",
	}))
	assert.Equal(t, "postgres://u:p@db:6543/duel?sslmode=require", DSN(ClientConfig{
		Host: "db", Port: 6543, Database: "duel", User: "u", Password: "p", SSLMode: "require",
	}))
	assert.Equal(t, "postgres://explicit", DSN(ClientConfig{DSN: "postgres://explicit", Host: "ignored"}))
}

func TestMigrationNamesAreOrdered(t *testing.T) {
	names, err := migrationNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"001_ledger.sql", "002_price_snapshots.sql"}, names)
}
