package storage

import (
	"os"
	"testing"

	"github.com/EcoWatch/EcoWatch-Backend/internal/db"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// TestGormStoreContract runs against a real Postgres and is skipped when
// DATABASE_URL is not set.
func TestGormStoreContract(t *testing.T) {
	_ = godotenv.Load("../../.env.local")
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" || testing.Short() {
		t.Skip("skipping integration test (requires DATABASE_URL)")
	}

	conn, err := db.Connect(dsn, zap.NewNop())
	require.NoError(t, err)

	s := NewGormStore(conn)
	require.NoError(t, s.Migrate())

	runContract(t, s)
}
