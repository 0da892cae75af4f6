package migration

import (
	"errors"
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestRunMigrationsRequiresDatabase(t *testing.T) {
	status, err := RunMigrations(nil)
	if !errors.Is(err, ErrNilDatabase) {
		t.Fatalf("expected ErrNilDatabase, got %v", err)
	}
	assert.False(t, status.Applied())
}

func TestLatestVersionMatchesEmbeddedSchema(t *testing.T) {
	version, err := LatestVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(3), version)
}

func TestStatusApplied(t *testing.T) {
	assert.True(t, Status{From: 0, To: 3}.Applied())
	assert.False(t, Status{From: 3, To: 3}.Applied())
}

func TestAutoMigrateCreatesTables(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, AutoMigrate(conn))
	for _, table := range []string{"users", "webhook_events", "subscriptions"} {
		assert.True(t, conn.Migrator().HasTable(table), table)
	}
}
