package storage

import (
	"context"
	stderrors "errors"

	"trainer-chat/errors"

	"github.com/dgraph-io/badger/v4"
)

const (
	PrimaryTrainerPrefix   = "trainer:"
	SecondaryTrainerPrefix = "trainers:"
)

// TrainerDirectory answers "is this principal a trainer" from key presence under a prefix.
// The two default prefixes mirror the historical "trainer" and "trainers" collections.
type TrainerDirectory struct {
	db     *badger.DB
	prefix string
}

func NewTrainerDirectory(db *badger.DB, prefix string) *TrainerDirectory {
	return &TrainerDirectory{db: db, prefix: prefix}
}

func (d *TrainerDirectory) Name() string { return "badger:" + d.prefix }

func (d *TrainerDirectory) Exists(ctx context.Context, principalID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	found := false
	err := d.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(d.prefix + principalID))
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return false, errors.StoreUnavailable(err)
	}
	return found, nil
}

// Register records principalID in this directory.
func (d *TrainerDirectory) Register(principalID string) error {
	if principalID == "" {
		return errors.InvalidArgument("principal id is empty")
	}
	return d.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(d.prefix+principalID), nil)
	})
}
