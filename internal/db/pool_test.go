package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDBPool_InvalidPort(t *testing.T) {
	pool, err := NewDBPool(context.Background(), NewDBPoolParams{
		DBHost: "localhost",
		DBPort: "not-a-port",
		DBName: "bulletins",
	})
	assert.Error(t, err)
	assert.Nil(t, pool)
}

func TestNewDBPool_Lazy(t *testing.T) {
	// pgxpool does not dial on creation
	pool, err := NewDBPool(context.Background(), NewDBPoolParams{
		DBHost:         "localhost",
		DBPort:         "5432",
		DBName:         "bulletins",
		DBUser:         "bulletins",
		DBPassword:     "p@ss/word",
		TracingEnabled: true,
	})
	require.NoError(t, err)
	defer pool.Close()

	cfg := pool.Config().ConnConfig
	assert.Equal(t, "bulletins", cfg.User)
	assert.Equal(t, "p@ss/word", cfg.Password)
	assert.Equal(t, "bulletins", cfg.Database)
	assert.Equal(t, uint16(5432), cfg.Port)
	assert.NotNil(t, cfg.Tracer)
}
