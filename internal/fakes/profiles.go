package fakes

import (
	"context"
	"sync"

	dserrors "github.com/systmms/userprofile/internal/errors"
	"github.com/systmms/userprofile/internal/profiles"
)

// ProfileStore keeps profiles in a map and enforces user_id uniqueness the
// way the database's primary key does.
type ProfileStore struct {
	// InsertErr, when set, fails every insert.
	InsertErr error
	// FetchErr, when set, fails every fetch and existence check.
	FetchErr error

	mu       sync.Mutex
	profiles map[string]profiles.UserProfile
}

// NewProfileStore returns an empty store.
func NewProfileStore() *ProfileStore {
	return &ProfileStore{profiles: make(map[string]profiles.UserProfile)}
}

// FetchUserProfile returns a copy of the stored profile, or nil.
func (f *ProfileStore) FetchUserProfile(_ context.Context, userID string) (*profiles.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.FetchErr != nil {
		return nil, f.FetchErr
	}
	p, ok := f.profiles[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// UserExists reports whether userID is stored.
func (f *ProfileStore) UserExists(_ context.Context, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.FetchErr != nil {
		return false, f.FetchErr
	}
	_, ok := f.profiles[userID]
	return ok, nil
}

// InsertUserProfile stores p, or returns a ConflictError for a duplicate.
func (f *ProfileStore) InsertUserProfile(_ context.Context, p *profiles.UserProfile) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.InsertErr != nil {
		return f.InsertErr
	}
	if _, ok := f.profiles[p.UserID]; ok {
		return dserrors.ConflictError{Resource: "user", ID: p.UserID}
	}
	f.profiles[p.UserID] = *p
	return nil
}

// Len returns the number of stored profiles.
func (f *ProfileStore) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.profiles)
}
