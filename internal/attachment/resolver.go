// Package attachment implements the Attachment Resolver (spec §4.6):
// given a file id a sender quotes on SendMessage, it validates that
// the sender either uploaded the file or already shares it through a
// conversation they belong to, before the file is linked to a new
// message row.
package attachment

import (
	"context"

	"relaychat/internal/apperr"
	"relaychat/internal/models"
	"relaychat/internal/store"
)

type Resolver struct {
	store *store.Store
}

func New(s *store.Store) *Resolver {
	return &Resolver{store: s}
}

// Resolve accepts fileID if userID either uploaded it or already
// shares it through a conversation they belong to (spec §4.6's two
// acceptance branches), and returns the file row to stamp onto the
// new message.
func (r *Resolver) Resolve(ctx context.Context, userID, fileID int64) (models.File, error) {
	file, err := r.store.GetFile(ctx, fileID)
	if err != nil {
		return models.File{}, err
	}

	owns, err := r.store.UserOwnsFile(ctx, userID, fileID)
	if err != nil {
		return models.File{}, err
	}
	if owns {
		return file, nil
	}

	shared, err := r.store.FileAttachedInMembership(ctx, userID, fileID)
	if err != nil {
		return models.File{}, err
	}
	if !shared {
		return models.File{}, apperr.New(apperr.Forbidden, "file was not uploaded by this user")
	}

	return file, nil
}
