package service

import (
	"errors"
	"fmt"

	"github.com/voyagen/vaulttv/internal/store"
)

// ErrSyncInProgress rejects a sync for a provider that already has one in
// flight, in this process or, with a Locker, in another.
var ErrSyncInProgress = errors.New("sync already in progress")

// ProviderNotFoundError is returned for operations on an unknown or
// removed provider id. It matches store.ErrNotFound with errors.Is.
type ProviderNotFoundError struct {
	ID string
}

func (e *ProviderNotFoundError) Error() string {
	return fmt.Sprintf("provider %s not found", e.ID)
}

func (e *ProviderNotFoundError) Unwrap() error { return store.ErrNotFound }

func notFound(id string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return &ProviderNotFoundError{ID: id}
	}
	return err
}
