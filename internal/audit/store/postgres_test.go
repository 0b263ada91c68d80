package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/goldrouter/internal/audit"
)

func TestDefaultConfig_DisabledByDefault(t *testing.T) {
	cfg := DefaultConfig()
	assert.False(t, cfg.Enabled)
}

func TestOpen_DisabledReturnsNilStore(t *testing.T) {
	s, err := Open(Config{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestOpen_EnabledRequiresDSN(t *testing.T) {
	_, err := Open(Config{Enabled: true})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "DSN is required")
}

func TestStore_AppendInsertsRow(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	db := sqlx.NewDb(mockDB, "postgres")
	s := OpenWithDB(db, time.Second)

	rec := audit.Record{
		Seq:        1,
		Kind:       audit.KindAuthOK,
		Timestamp:  time.Now().UTC(),
		VenueID:    "bitfinex",
		Subject:    "user-1",
		Details:    map[string]any{"success": true},
		PrevHash:   "zero",
		RecordHash: "abc123",
	}

	mock.ExpectExec("INSERT INTO audit_records").
		WithArgs(rec.Seq, rec.Kind, rec.Timestamp, rec.VenueID, rec.Subject,
			sqlmock.AnyArg(), rec.PrevHash, rec.RecordHash).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = s.Append(context.Background(), rec)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SinkWiresIntoJournal(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	db := sqlx.NewDb(mockDB, "postgres")
	s := OpenWithDB(db, time.Second)

	mock.ExpectExec("INSERT INTO audit_records").
		WillReturnResult(sqlmock.NewResult(1, 1))

	j := audit.New()
	j.AttachStore(s.Sink(context.Background()))

	_, err = j.Append(audit.KindAuthOK, audit.AuthDetails{VenueID: "v1", Success: true}, "s1", "v1")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
