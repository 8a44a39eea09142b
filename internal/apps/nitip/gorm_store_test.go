package nitip

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	slotCountQuery = `SELECT count\(\*\) FROM "deposits" WHERE .*slot = `
	codeCountQuery = `SELECT count\(\*\) FROM "deposits" WHERE .*pickup_code = `
	insertDeposit  = `INSERT INTO "deposits"`
	selectDeposit  = `SELECT \* FROM "deposits" WHERE .*id = .*LIMIT`
	updatePickup   = `UPDATE "deposits" SET .*"status"=.* WHERE .*status = `
)

func newGormStoreWithMock(t *testing.T) (*GormStore, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	return NewGormStore(db), mock
}

func countRows(n int64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"count"}).AddRow(n)
}

func depositRows(d Deposit) *sqlmock.Rows {
	var pickedUpAt any
	if d.PickedUpAt != nil {
		pickedUpAt = *d.PickedUpAt
	}
	return sqlmock.NewRows([]string{"id", "app_id", "slot", "pickup_code", "status", "picked_up_at"}).
		AddRow(d.ID.String(), d.AppID, d.Slot, d.PickupCode, d.Status, pickedUpAt)
}

func newDeposit() *Deposit {
	return &Deposit{
		ID:                uuid.New(),
		AppID:             "mall-a",
		OwnerName:         "Budi",
		OwnerPhone:        "081234567890",
		Slot:              7,
		PickupCode:        "K7Q2ZX",
		Status:            StatusActive,
		DepositedAt:       time.Now().UTC(),
		DepositedByUserID: uuid.New(),
	}
}

var uniqueViolation = &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"}

func TestGormStore_CreateInsertsWhenFree(t *testing.T) {
	store, mock := newGormStoreWithMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(slotCountQuery).WillReturnRows(countRows(0))
	mock.ExpectQuery(codeCountQuery).WillReturnRows(countRows(0))
	mock.ExpectExec(insertDeposit).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, store.Create(context.Background(), newDeposit()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_CreateRejectsOccupiedSlotBeforeInsert(t *testing.T) {
	store, mock := newGormStoreWithMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(slotCountQuery).WillReturnRows(countRows(1))
	mock.ExpectRollback()

	err := store.Create(context.Background(), newDeposit())
	assert.ErrorIs(t, err, ErrSlotOccupied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_CreateClassifiesDuplicateKey(t *testing.T) {
	tests := []struct {
		name      string
		slotCount int64
		codeCount int64
		want      error
	}{
		{name: "slot taken by concurrent writer", slotCount: 1, want: ErrSlotOccupied},
		{name: "code taken by concurrent writer", slotCount: 0, codeCount: 1, want: ErrCodeTaken},
		{name: "winner already gone", slotCount: 0, codeCount: 0, want: ErrCodeTaken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newGormStoreWithMock(t)

			mock.ExpectBegin()
			mock.ExpectQuery(slotCountQuery).WillReturnRows(countRows(0))
			mock.ExpectQuery(codeCountQuery).WillReturnRows(countRows(0))
			mock.ExpectExec(insertDeposit).WillReturnError(uniqueViolation)
			mock.ExpectRollback()

			// Re-read outside the failed transaction.
			mock.ExpectQuery(slotCountQuery).WillReturnRows(countRows(tt.slotCount))
			if tt.slotCount == 0 {
				mock.ExpectQuery(codeCountQuery).WillReturnRows(countRows(tt.codeCount))
			}

			err := store.Create(context.Background(), newDeposit())
			assert.ErrorIs(t, err, tt.want)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestGormStore_CreateWrapsOtherErrors(t *testing.T) {
	store, mock := newGormStoreWithMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(slotCountQuery).WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := store.Create(context.Background(), newDeposit())
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "create deposit")
}

func TestGormStore_MarkPickedUp(t *testing.T) {
	at := time.Now().UTC()

	t.Run("active deposit is closed out", func(t *testing.T) {
		store, mock := newGormStoreWithMock(t)
		d := newDeposit()

		mock.ExpectBegin()
		mock.ExpectExec(updatePickup).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()
		picked := *d
		picked.Status, picked.PickedUpAt = StatusPickedUp, &at
		mock.ExpectQuery(selectDeposit).WillReturnRows(depositRows(picked))

		got, err := store.MarkPickedUp(context.Background(), d.AppID, d.ID, at)
		require.NoError(t, err)
		assert.Equal(t, StatusPickedUp, got.Status)
		assert.Equal(t, d.ID, got.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lost race reports already picked up", func(t *testing.T) {
		store, mock := newGormStoreWithMock(t)
		d := newDeposit()

		mock.ExpectBegin()
		mock.ExpectExec(updatePickup).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()
		picked := *d
		picked.Status, picked.PickedUpAt = StatusPickedUp, &at
		mock.ExpectQuery(selectDeposit).WillReturnRows(depositRows(picked))

		_, err := store.MarkPickedUp(context.Background(), d.AppID, d.ID, at)
		assert.ErrorIs(t, err, ErrAlreadyPickedUp)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown id is not found", func(t *testing.T) {
		store, mock := newGormStoreWithMock(t)

		mock.ExpectBegin()
		mock.ExpectExec(updatePickup).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()
		mock.ExpectQuery(selectDeposit).WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := store.MarkPickedUp(context.Background(), "mall-a", uuid.New(), at)
		assert.ErrorIs(t, err, ErrDepositNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormStore_FindByCodePrefersActiveThenNewest(t *testing.T) {
	store, mock := newGormStoreWithMock(t)
	d := newDeposit()

	order := regexp.QuoteMeta(`ORDER BY CASE WHEN status = 'active' THEN 0 ELSE 1 END,picked_up_at DESC NULLS LAST`)
	mock.ExpectQuery(`SELECT \* FROM "deposits" WHERE pickup_code = .*` + order + `.*LIMIT`).
		WillReturnRows(depositRows(*d))

	got, err := store.FindByCode(context.Background(), d.AppID, d.PickupCode)
	require.NoError(t, err)
	assert.Equal(t, d.ID, got.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_FindByCodeNotFound(t *testing.T) {
	store, mock := newGormStoreWithMock(t)

	mock.ExpectQuery(`SELECT \* FROM "deposits" WHERE pickup_code = `).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.FindByCode(context.Background(), "mall-a", "ZZZZZZ")
	assert.ErrorIs(t, err, ErrDepositNotFound)
}

func TestGormStore_Counts(t *testing.T) {
	store, mock := newGormStoreWithMock(t)

	mock.ExpectQuery(`SELECT status, COUNT\(\*\) AS n FROM "deposits" WHERE "deposits"."app_id" = .*GROUP BY "status"`).
		WithArgs("mall-a").
		WillReturnRows(sqlmock.NewRows([]string{"status", "n"}).
			AddRow(StatusActive, 4).
			AddRow(StatusPickedUp, 11))

	got, err := store.Counts(context.Background(), "mall-a")
	require.NoError(t, err)
	assert.Equal(t, StatusCounts{Active: 4, PickedUp: 11}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}
