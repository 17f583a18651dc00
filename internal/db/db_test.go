package db

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/middlebury/dynamic-add-users/internal/config"
	"github.com/middlebury/dynamic-add-users/internal/db/models"
)

func TestOpenSQLiteMemory(t *testing.T) {
	cfg := &config.Config{DB: config.DB{GormEngine: config.EngineSQLite, Path: ":memory:"}}

	conn, err := Open(cfg, zerolog.Nop())
	require.NoError(t, err)

	for _, m := range models.All() {
		assert.True(t, conn.Migrator().HasTable(m))
	}
}

func TestDialector(t *testing.T) {
	testCases := []struct {
		engine string
		name   string
	}{
		{engine: config.EngineMySQL, name: "mysql"},
		{engine: config.EnginePostgres, name: "postgres"},
		{engine: config.EngineSQLite, name: "sqlite"},
	}

	for _, tc := range testCases {
		t.Run(tc.engine, func(t *testing.T) {
			d, err := Dialector(&config.Config{DB: config.DB{GormEngine: tc.engine}})
			require.NoError(t, err)
			assert.Equal(t, tc.name, d.Name())
		})
	}

	_, err := Dialector(&config.Config{DB: config.DB{GormEngine: "oracle"}})
	require.ErrorIs(t, err, config.ErrUnsupportedGormEngine)
}
