package repository_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	apperrors "github.com/MahoCommerce/maho-sub002/common/errors"
	"github.com/MahoCommerce/maho-sub002/models"
	"github.com/MahoCommerce/maho-sub002/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{})
	require.NoError(t, err)
	return gormDB, mock
}

func TestGormOrderUpdate_VersionMismatch(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repos := repository.NewGormRepos(gormDB)

	o := &models.Order{ID: uuid.New(), Version: 3, State: models.StateNew, Status: "pending"}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "orders"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := repos.Orders.Update(context.Background(), o)
	assert.True(t, errors.Is(err, apperrors.ErrConcurrentModification))
	assert.Equal(t, int64(3), o.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormOrderFindByID_NotFound(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repos := repository.NewGormRepos(gormDB)

	id := uuid.New()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "orders"`)).
		WillReturnRows(sqlmock.NewRows([]string{}))

	o, err := repos.Orders.FindByID(context.Background(), id)
	assert.Nil(t, o)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.Equal(t, id.String(), apperrors.As(err).Details["id"])
}

func TestGormInvoiceFindByRequestID_Missing(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repos := repository.NewGormRepos(gormDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "invoices"`)).
		WillReturnRows(sqlmock.NewRows([]string{}))

	inv, err := repos.Invoices.FindByRequestID(context.Background(), "req-1")
	assert.NoError(t, err)
	assert.Nil(t, inv)
}

func TestGormInvoiceFindByRequestID_Found(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repos := repository.NewGormRepos(gormDB)

	id := uuid.New()
	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "order_id", "store_id", "increment_id", "request_id", "state", "created_at", "updated_at"}).
		AddRow(id, uuid.New(), "default", "000000001", "req-1", models.InvoiceStatePaid, now, now)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "invoices"`)).
		WillReturnRows(rows)

	inv, err := repos.Invoices.FindByRequestID(context.Background(), "req-1")
	require.NoError(t, err)
	assert.Equal(t, id, inv.ID)
	assert.Equal(t, models.InvoiceStatePaid, inv.State)
}

func TestGormSequenceNext(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repos := repository.NewGormRepos(gormDB)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "sequences"`)).
		WillReturnRows(sqlmock.NewRows([]string{"last_value"}).AddRow(7))
	mock.ExpectCommit()

	n, err := repos.Sequences.Next(context.Background(), "default", models.EntityInvoice)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
}

func TestGormOrderList(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repos := repository.NewGormRepos(gormDB)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "order_grids"`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "order_grids"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "increment_id", "store_id", "state", "status", "created_at"}).
			AddRow(uuid.New(), "000000001", "default", models.StateNew, "pending", now))

	rows, total, err := repos.Orders.List(context.Background(), models.OrderFilter{StoreID: "default"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, rows, 1)
	assert.Equal(t, "000000001", rows[0].IncrementID)
}

func TestGormStorageErrorIsGeneric(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repos := repository.NewGormRepos(gormDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "shipments"`)).
		WillReturnError(errors.New("connection reset"))

	_, err := repos.Shipments.FindByID(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, apperrors.ErrStorage))
}

func TestGormStore_RollbackOnError(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	store := repository.NewGormStore(gormDB)

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := store.WithinTx(context.Background(), func(r repository.Repos) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormOrderFindByID_ChildRowsInInsertionOrder(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	mock.MatchExpectationsInOrder(false)
	repos := repository.NewGormRepos(gormDB)

	id := uuid.New()
	first, second := uuid.New(), uuid.New()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "orders"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "state", "status"}).AddRow(id, models.StateNew, "pending"))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "order_addresses"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "order_id"}))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "order_items" WHERE "order_items"."order_id" = $1 ORDER BY position ASC,created_at ASC,id ASC`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "order_id", "position"}).
			AddRow(first, id, 0).
			AddRow(second, id, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "payments"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "order_id"}))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "status_histories" WHERE "status_histories"."order_id" = $1 ORDER BY position ASC,created_at ASC,id ASC`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "order_id", "position"}))

	o, err := repos.Orders.FindByID(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, o.Items, 2)
	assert.Equal(t, first, o.Items[0].ID)
	assert.Equal(t, second, o.Items[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
