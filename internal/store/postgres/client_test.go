package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://closer:pw@db:5432/perp?sslmode=disable", DSN(ClientConfig{
		Host: "db", Database: "perp", User: "closer", Password: "pw",
	}))
	assert.Equal(t, "postgres://u:p@h:6543/d?sslmode=require", DSN(ClientConfig{
		Host: "h", Port: 6543, Database: "d", User: "u", Password: "p", SSLMode: "require",
	}))
	assert.Equal(t, "postgres://explicit", DSN(ClientConfig{DSN: " postgres://explicit ", Host: "ignored"}))
}

func TestMigrationsAreEmbedded(t *testing.T) {
	names, err := migrationNames()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "001_init.sql", names[0])
}
