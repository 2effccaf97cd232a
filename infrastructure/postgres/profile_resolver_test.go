package postgres

import (
	"context"
	stderrors "errors"
	"testing"

	"trainer-chat/domain"
	"trainer-chat/errors"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
)

type fakeRow struct {
	values []*string
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		*(d.(**string)) = r.values[i]
	}
	return nil
}

type fakeQuerier struct {
	rows map[string]fakeRow
	sql  string
}

func (q *fakeQuerier) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	q.sql = sql
	row, ok := q.rows[args[0].(string)]
	if !ok {
		return fakeRow{err: pgx.ErrNoRows}
	}
	return row
}

func ptr(s string) *string { return &s }

func TestProfileResolver_Lookup(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	querier := &fakeQuerier{rows: map[string]fakeRow{
		"T1": {values: []*string{ptr("Alice"), ptr("alice@gym.io")}},
		"U1": {values: []*string{nil, nil}},
		"X1": {err: stderrors.New("conn reset")},
	}}
	resolver := NewProfileResolver(querier)

	profile, err := resolver.Lookup(ctx, "T1")
	req.NoError(err)
	req.Equal(domain.Profile{ID: "T1", Name: "Alice", Email: "alice@gym.io"}, profile)
	req.Equal(selectProfile, querier.sql)

	profile, err = resolver.Lookup(ctx, "U1")
	req.NoError(err)
	req.Equal(domain.Profile{ID: "U1"}, profile)

	_, err = resolver.Lookup(ctx, "nobody")
	req.ErrorIs(err, errors.ErrNotFound)

	_, err = resolver.Lookup(ctx, "X1")
	req.ErrorIs(err, errors.ErrStoreUnavailable)
}
