package postgres

import (
	"context"
	"regexp"
	"testing"

	"github.com/and161185/cinecart/internal/errs"
	"github.com/and161185/cinecart/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

var profileCols = []string{"user_id", "first_name", "last_name", "email", "selected_genres", "purchases"}

func TestProfileRepo_Get(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewProfileRepo(db)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())

	mock.ExpectQuery(regexp.QuoteMeta(qProfileGet)).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(profileCols).
			AddRow(id, "Ann", "Lee", "ann@example.com", []int32{28, 35}, []int64{550, 603}))
	p, err := r.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "Ann", p.FirstName)
	require.Equal(t, []model.GenreID{28, 35}, p.SelectedGenres)
	require.Equal(t, []model.MovieID{550, 603}, p.PurchaseHistory)

	mock.ExpectQuery(regexp.QuoteMeta(qProfileGet)).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)
	_, err = r.Get(ctx, id)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestProfileRepo_Create(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewProfileRepo(db)
	ctx := context.Background()
	p := &model.UserProfile{
		ID:             uuid.Must(uuid.NewV4()),
		FirstName:      "Ann",
		LastName:       "Lee",
		Email:          "ann@example.com",
		SelectedGenres: []model.GenreID{28, 12},
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(qProfileInsert)).
		WithArgs(p.ID, p.FirstName, p.LastName, p.Email, []int32{28, 12}).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	require.NoError(t, r.Create(ctx, p))

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(qProfileInsert)).
		WithArgs(p.ID, p.FirstName, p.LastName, p.Email, []int32{28, 12}).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()
	require.ErrorIs(t, r.Create(ctx, p), errs.ErrAlreadyExists)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(qProfileInsert)).
		WithArgs(p.ID, p.FirstName, p.LastName, p.Email, []int32{28, 12}).
		WillReturnError(&pgconn.PgError{Code: "23503"})
	mock.ExpectRollback()
	require.ErrorIs(t, r.Create(ctx, p), errs.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileRepo_Create_WithHistory(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewProfileRepo(db)
	p := &model.UserProfile{
		ID:              uuid.Must(uuid.NewV4()),
		Email:           "ann@example.com",
		PurchaseHistory: []model.MovieID{550},
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(qProfileInsert)).
		WithArgs(p.ID, "", "", p.Email, []int32{}).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(regexp.QuoteMeta(qPurchasesInsert)).
		WithArgs(p.ID, []int64{550}).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	require.NoError(t, r.Create(context.Background(), p))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileRepo_Update(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewProfileRepo(db)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())
	first := "Anna"

	mock.ExpectExec(regexp.QuoteMeta(qProfileUpdate)).
		WithArgs(id, &first, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(regexp.QuoteMeta(qProfileGet)).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(profileCols).
			AddRow(id, "Anna", "Lee", "ann@example.com", []int32{28}, []int64{}))
	p, err := r.Update(ctx, id, model.ProfilePatch{FirstName: &first})
	require.NoError(t, err)
	require.Equal(t, "Anna", p.FirstName)
	require.Empty(t, p.PurchaseHistory)

	mock.ExpectExec(regexp.QuoteMeta(qProfileUpdate)).
		WithArgs(id, pgxmock.AnyArg(), pgxmock.AnyArg(), []int32{35}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	_, err = r.Update(ctx, id, model.ProfilePatch{SelectedGenres: []model.GenreID{35}})
	require.ErrorIs(t, err, errs.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileRepo_AddPurchases(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewProfileRepo(db)
	id := uuid.Must(uuid.NewV4())

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(qProfileLock)).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"one"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta(qPurchasesInsert)).
		WithArgs(id, []int64{550, 13}).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(regexp.QuoteMeta(qPurchasesList)).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"movie_id"}).AddRow(int64(13)).AddRow(int64(550)))
	mock.ExpectCommit()

	history, err := r.AddPurchases(context.Background(), id, []model.MovieID{550, 13})
	require.NoError(t, err)
	require.Equal(t, []model.MovieID{13, 550}, history)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileRepo_AddPurchases_NoProfile(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewProfileRepo(db)
	id := uuid.Must(uuid.NewV4())

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(qProfileLock)).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err := r.AddPurchases(context.Background(), id, []model.MovieID{550})
	require.ErrorIs(t, err, errs.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
