package postgres

import (
	"context"
	"errors"

	"github.com/and161185/cinecart/internal/errs"
	"github.com/and161185/cinecart/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

const (
	qProfileGet = `
SELECT p.user_id, p.first_name, p.last_name, p.email, p.selected_genres,
       COALESCE((SELECT array_agg(movie_id ORDER BY movie_id) FROM purchases WHERE user_id = p.user_id), '{}')::bigint[]
FROM profiles p WHERE p.user_id=$1`

	qProfileInsert = `
INSERT INTO profiles (user_id, first_name, last_name, email, selected_genres)
VALUES ($1, $2, $3, $4, $5)`

	qProfileUpdate = `
UPDATE profiles SET
  first_name = COALESCE($2, first_name),
  last_name = COALESCE($3, last_name),
  selected_genres = COALESCE($4::integer[], selected_genres),
  updated_at = now()
WHERE user_id=$1`

	qProfileLock = `SELECT 1 FROM profiles WHERE user_id=$1 FOR UPDATE`

	qPurchasesInsert = `
INSERT INTO purchases (user_id, movie_id)
SELECT $1, unnest($2::bigint[])
ON CONFLICT (user_id, movie_id) DO NOTHING`

	qPurchasesList = `SELECT movie_id FROM purchases WHERE user_id=$1 ORDER BY movie_id`
)

// ProfileRepo implements ProfileRepository using PostgreSQL.
type ProfileRepo struct{ db *DB }

// NewProfileRepo constructs a profile repository.
func NewProfileRepo(db *DB) *ProfileRepo { return &ProfileRepo{db: db} }

// Get loads the profile document together with its purchase history.
func (r *ProfileRepo) Get(ctx context.Context, id uuid.UUID) (*model.UserProfile, error) {
	var (
		p      model.UserProfile
		genres []int32
		bought []int64
	)
	err := r.db.Pool.QueryRow(ctx, qProfileGet, id).
		Scan(&p.ID, &p.FirstName, &p.LastName, &p.Email, &genres, &bought)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	p.SelectedGenres = genresFromDB(genres)
	p.PurchaseHistory = moviesFromDB(bought)
	return &p, nil
}

// Create inserts the profile and any initial purchase history in one transaction.
func (r *ProfileRepo) Create(ctx context.Context, p *model.UserProfile) (err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	_, err = tx.Exec(ctx, qProfileInsert, p.ID, p.FirstName, p.LastName, p.Email, genresToDB(p.SelectedGenres))
	switch {
	case isUniqueViolation(err):
		return errs.ErrAlreadyExists
	case isForeignKeyViolation(err):
		return errs.ErrNotFound
	case err != nil:
		return err
	}
	if len(p.PurchaseHistory) > 0 {
		if _, err = tx.Exec(ctx, qPurchasesInsert, p.ID, moviesToDB(p.PurchaseHistory)); err != nil {
			return err
		}
	}
	return nil
}

// Update writes the non-nil fields of patch and returns the resulting profile.
func (r *ProfileRepo) Update(ctx context.Context, id uuid.UUID, patch model.ProfilePatch) (*model.UserProfile, error) {
	var genres []int32
	if patch.SelectedGenres != nil {
		genres = genresToDB(patch.SelectedGenres)
	}
	tag, err := r.db.Pool.Exec(ctx, qProfileUpdate, id, patch.FirstName, patch.LastName, genres)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, errs.ErrNotFound
	}
	return r.Get(ctx, id)
}

// AddPurchases unions ids into the history. Already owned ids are ignored.
func (r *ProfileRepo) AddPurchases(
	ctx context.Context, id uuid.UUID, ids []model.MovieID,
) (history []model.MovieID, err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	var one int
	if err = tx.QueryRow(ctx, qProfileLock, id).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	if _, err = tx.Exec(ctx, qPurchasesInsert, id, moviesToDB(ids)); err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, qPurchasesList, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var m int64
		if err = rows.Scan(&m); err != nil {
			return nil, err
		}
		history = append(history, model.MovieID(m))
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return history, nil
}

func genresToDB(in []model.GenreID) []int32 {
	out := make([]int32, 0, len(in))
	for _, g := range in {
		out = append(out, int32(g))
	}
	return out
}

func genresFromDB(in []int32) []model.GenreID {
	out := make([]model.GenreID, 0, len(in))
	for _, g := range in {
		out = append(out, model.GenreID(g))
	}
	return out
}

func moviesToDB(in []model.MovieID) []int64 {
	out := make([]int64, 0, len(in))
	for _, m := range in {
		out = append(out, int64(m))
	}
	return out
}

func moviesFromDB(in []int64) []model.MovieID {
	out := make([]model.MovieID, 0, len(in))
	for _, m := range in {
		out = append(out, model.MovieID(m))
	}
	return out
}
