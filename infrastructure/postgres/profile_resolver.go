package postgres

import (
	"context"
	stderrors "errors"
	"fmt"

	"trainer-chat/domain"
	"trainer-chat/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const selectProfile = `SELECT name, email FROM users WHERE id = $1`

// Querier is satisfied by *pgxpool.Pool and *pgx.Conn.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ProfileResolver reads display data from the users table.
type ProfileResolver struct {
	db Querier
}

func NewProfileResolver(db Querier) *ProfileResolver {
	return &ProfileResolver{db: db}
}

// Lookup returns ErrNotFound for an unknown id. NULL columns come back empty.
func (r *ProfileResolver) Lookup(ctx context.Context, principalID string) (domain.Profile, error) {
	var name, email *string
	err := r.db.QueryRow(ctx, selectProfile, principalID).Scan(&name, &email)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return domain.Profile{}, fmt.Errorf("%w: profile %s", errors.ErrNotFound, principalID)
	}
	if err != nil {
		return domain.Profile{}, errors.StoreUnavailable(err)
	}
	profile := domain.Profile{ID: principalID}
	if name != nil {
		profile.Name = *name
	}
	if email != nil {
		profile.Email = *email
	}
	return profile, nil
}

// Connect opens a pool and pings it.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
