package storage

import (
	"context"
	stderrors "errors"

	"trainer-chat/domain"
	"trainer-chat/errors"

	"github.com/dgraph-io/badger/v4"
)

const profilePrefix = "user:"

// ProfileRepository stores display data under "user:{id}".
type ProfileRepository struct {
	db *badger.DB
}

func NewProfileRepository(db *badger.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

func (r *ProfileRepository) Save(profile domain.Profile) error {
	if profile.ID == "" {
		return errors.InvalidArgument("profile id is empty")
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(profilePrefix+profile.ID), marshalProfile(profile))
	})
}

// Lookup fails with ErrNotFound when no profile exists for principalID.
func (r *ProfileRepository) Lookup(_ context.Context, principalID string) (domain.Profile, error) {
	var profile domain.Profile
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(profilePrefix + principalID))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			profile, err = unmarshalProfile(v)
			return err
		})
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return domain.Profile{}, errors.ErrNotFound
	}
	if err != nil {
		return domain.Profile{}, errors.StoreUnavailable(err)
	}
	return profile, nil
}
