// Package search implements the Search component (spec §4.7): a
// thin, membership-scoped wrapper around the store's full-text query
// that adds result paging on top of the store's raw rank/date
// ordering.
package search

import (
	"context"

	"relaychat/internal/apperr"
	"relaychat/internal/models"
	"relaychat/internal/store"
)

type Searcher struct {
	store *store.Store
}

func New(s *store.Store) *Searcher {
	return &Searcher{store: s}
}

type Request struct {
	UserID          int64
	ConversationIDs []int64
	Text            string
	Order           store.SearchOrder
	Filters         []store.Filter
	Cursor          int
	PageSize        int
}

type Page struct {
	Messages   []models.Message
	Users      []models.User
	NextCursor int
	HasMore    bool
}

// Run scopes the search to conversations the caller is a member of -
// an empty ConversationIDs list is expanded to "all conversations the
// user belongs to" rather than "all conversations", so a caller can
// never search someone else's private history by passing no filter.
func (s *Searcher) Run(ctx context.Context, req Request) (Page, error) {
	scoped := req.ConversationIDs
	if len(scoped) == 0 {
		convs, err := s.store.ListConversations(ctx, req.UserID)
		if err != nil {
			return Page{}, err
		}
		for _, c := range convs {
			scoped = append(scoped, c.ID)
		}
	} else {
		for _, id := range scoped {
			member, err := s.store.IsMember(ctx, req.UserID, id)
			if err != nil {
				return Page{}, err
			}
			if !member {
				return Page{}, apperr.New(apperr.Forbidden, "not a member of one of the requested conversations")
			}
		}
	}
	if len(scoped) == 0 {
		return Page{}, nil
	}

	results, err := s.store.Search(ctx, store.SearchQuery{
		ConversationIDs: scoped,
		Text:            req.Text,
		Order:           req.Order,
		Filters:         req.Filters,
	})
	if err != nil {
		return Page{}, err
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	start := req.Cursor
	if start > len(results) {
		start = len(results)
	}
	end := start + pageSize
	hasMore := end < len(results)
	if end > len(results) {
		end = len(results)
	}

	page := results[start:end]

	senderIDs := make([]int64, 0, len(page))
	seen := make(map[int64]bool, len(page))
	for _, m := range page {
		if m.SenderID == nil || seen[*m.SenderID] {
			continue
		}
		seen[*m.SenderID] = true
		senderIDs = append(senderIDs, *m.SenderID)
	}
	users, err := s.store.BulkUsers(ctx, senderIDs)
	if err != nil {
		return Page{}, err
	}

	return Page{
		Messages:   page,
		Users:      users,
		NextCursor: end,
		HasMore:    hasMore,
	}, nil
}
