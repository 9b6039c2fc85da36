package vulnkb

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
		},
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&Vulnerability{},
		&CodeExample{},
		&CweCveMapping{},
		&IngestionCheckpoint{},
	)
	require.NoError(t, err)

	return db
}

func TestCheckpointGetCreatesZeroedCheckpoint(t *testing.T) {
	require := require.New(t)
	store := CheckpointStore{DB: testDB(t)}

	cp, err := store.Get("advisory-api", "npm", "high")
	require.NoError(err)

	require.Equal("advisory-api", cp.Source)
	require.Equal("npm", cp.Ecosystem)
	require.Equal("high", cp.Severity)
	require.Equal(1, cp.NextPage)
	require.Equal(0, cp.TotalFetched)
	require.Equal(0, cp.TotalInserted)
	require.False(cp.Exhausted)
}

func TestCheckpointGetIsIdempotent(t *testing.T) {
	require := require.New(t)
	db := testDB(t)
	store := CheckpointStore{DB: db}

	_, err := store.Get("advisory-api", "", "")
	require.NoError(err)
	_, err = store.Get("advisory-api", "", "")
	require.NoError(err)

	var count int64
	require.NoError(db.Model(&IngestionCheckpoint{}).Count(&count).Error)
	require.EqualValues(1, count)
}

func TestCheckpointKeysAreIndependent(t *testing.T) {
	require := require.New(t)
	store := CheckpointStore{DB: testDB(t)}

	require.NoError(store.Update("advisory-api", "npm", "", 5, 100, 10, false))

	cp, err := store.Get("advisory-api", "pip", "")
	require.NoError(err)
	require.Equal(1, cp.NextPage)
}

func TestCheckpointUpdateAddsDeltasAndOverwritesPage(t *testing.T) {
	require := require.New(t)
	store := CheckpointStore{DB: testDB(t)}

	require.NoError(store.Update("advisory-api", "", "", 2, 100, 7, false))
	require.NoError(store.Update("advisory-api", "", "", 3, 100, 5, false))

	cp, err := store.Get("advisory-api", "", "")
	require.NoError(err)
	require.Equal(3, cp.NextPage)
	require.Equal(200, cp.TotalFetched)
	require.Equal(12, cp.TotalInserted)
	require.False(cp.Exhausted)
}

func TestCheckpointUpdatePersistsExhausted(t *testing.T) {
	require := require.New(t)
	store := CheckpointStore{DB: testDB(t)}

	require.NoError(store.Update("advisory-api", "", "", 4, 30, 2, true))

	cp, err := store.Get("advisory-api", "", "")
	require.NoError(err)
	require.True(cp.Exhausted)
	require.Equal(4, cp.NextPage)
}

func TestCheckpointResetRewindsWithoutDeleting(t *testing.T) {
	require := require.New(t)
	db := testDB(t)
	store := CheckpointStore{DB: db}

	require.NoError(store.Update("advisory-api", "", "", 9, 800, 80, true))
	require.NoError(store.SetLastCve("advisory-api", "", "", "CVE-2024-1"))
	require.NoError(store.Reset("advisory-api", "", ""))

	cp, err := store.Get("advisory-api", "", "")
	require.NoError(err)
	require.Equal(1, cp.NextPage)
	require.Equal(0, cp.TotalFetched)
	require.Equal(0, cp.TotalInserted)
	require.Empty(cp.LastCveID)
	require.False(cp.Exhausted)

	var count int64
	require.NoError(db.Model(&IngestionCheckpoint{}).Count(&count).Error)
	require.EqualValues(1, count, "reset must rewind the row, not delete it")
}

func TestCheckpointSetLastCve(t *testing.T) {
	require := require.New(t)
	store := CheckpointStore{DB: testDB(t)}

	require.NoError(store.SetLastCve("batch-file", "", "", "CVE-2024-31337"))

	cp, err := store.Get("batch-file", "", "")
	require.NoError(err)
	require.Equal("CVE-2024-31337", cp.LastCveID)
}
