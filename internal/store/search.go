package store

import (
	"context"
	"strings"
	"time"

	"relaychat/internal/apperr"
	"relaychat/internal/models"
	"relaychat/internal/stemmer"
)

type SearchOrder string

const (
	OrderNewest    SearchOrder = "newest"
	OrderOldest    SearchOrder = "oldest"
	OrderRelevance SearchOrder = "relevance"
)

type FilterKind string

const (
	FilterBefore  FilterKind = "before"
	FilterAfter   FilterKind = "after"
	FilterDuring  FilterKind = "during"
	FilterUser    FilterKind = "user"
	FilterAIModel FilterKind = "ai_model"
)

// Filter mirrors original_source/api/src/chat/search.rs's Filter enum.
// For User/AIModel, a nil ID matches every message from that kind of
// sender: User keeps human-sent messages (ai_model_id IS NULL) and
// AIModel keeps AI-generated ones (sender_id IS NULL).
type Filter struct {
	Kind FilterKind
	Date time.Time
	ID   *int64
}

type SearchQuery struct {
	ConversationIDs []int64
	Text            string
	Order           SearchOrder
	Filters         []Filter
}

// Search runs the two-armed UNION query the original service uses:
// one arm matches the raw message text, the other matches the
// stemmed shadow column, since SQLite FTS5 can't be asked to match
// either column in a single WHERE clause alongside an ORDER BY rank
// (see original_source/api/src/chat/search.rs for the full story).
func (s *Store) Search(ctx context.Context, q SearchQuery) ([]models.Message, error) {
	text := strings.ToLower(strings.TrimSpace(q.Text))
	if text == "" {
		return nil, nil
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil, nil
	}

	var b strings.Builder
	var args []any

	for arm := 0; arm < 2; arm++ {
		b.WriteString(`SELECT messages.id, messages.conversation_id, messages.sender_id, messages.ai_model_id,
			messages.body, messages.file_id, messages.file_name, messages.created_at, messages.modified_at,
			messages_fts.rank AS rank
			FROM messages JOIN messages_fts ON messages.id = messages_fts.rowid WHERE `)

		if len(q.ConversationIDs) > 0 {
			b.WriteString("messages.conversation_id IN (")
			for i, id := range q.ConversationIDs {
				if i > 0 {
					b.WriteString(", ")
				}
				b.WriteString("?")
				args = append(args, id)
			}
			b.WriteString(") AND ")
		}

		if arm == 0 {
			b.WriteString(`messages_fts.message MATCH '`)
		} else {
			b.WriteString(`messages_fts.stemmed_message MATCH '`)
		}
		b.WriteString("NEAR(")
		for i, w := range words {
			if i > 0 {
				b.WriteByte(' ')
			}
			token := w
			if arm == 1 {
				token = stemmer.Stem(w)
			}
			// The MATCH expression is written into the SQL text as a
			// single-quoted literal: double quotes are doubled for the
			// FTS5 string, single quotes for the SQL literal.
			token = strings.ReplaceAll(token, `"`, `""`)
			token = strings.ReplaceAll(token, `'`, `''`)
			b.WriteString(`"` + token + `"`)
		}
		b.WriteString(", 5)'")

		for _, f := range q.Filters {
			b.WriteString(" AND ")
			switch f.Kind {
			case FilterBefore:
				b.WriteString("messages.created_at < ?")
				args = append(args, f.Date)
			case FilterAfter:
				b.WriteString("messages.created_at > ?")
				args = append(args, f.Date)
			case FilterDuring:
				b.WriteString("messages.created_at >= ? AND messages.created_at < ?")
				args = append(args, f.Date, f.Date.AddDate(0, 0, 1))
			case FilterUser:
				if f.ID != nil {
					b.WriteString("messages.sender_id = ?")
					args = append(args, *f.ID)
				} else {
					b.WriteString("messages.ai_model_id IS NULL")
				}
			case FilterAIModel:
				if f.ID != nil {
					b.WriteString("messages.ai_model_id = ?")
					args = append(args, *f.ID)
				} else {
					b.WriteString("messages.sender_id IS NULL")
				}
			}
		}

		if arm == 0 {
			b.WriteString(" UNION ")
		}
	}

	b.WriteString(" ORDER BY ")
	switch q.Order {
	case OrderOldest:
		b.WriteString("created_at ASC")
	case OrderRelevance:
		b.WriteString("rank ASC")
	default:
		b.WriteString("created_at DESC")
	}

	rows, err := s.db.QueryxContext(ctx, s.db.Rebind(b.String()), args...)
	if err != nil {
		if isSyntaxError(err) {
			return nil, apperr.New(apperr.Validation, "invalid search query")
		}
		return nil, err
	}
	defer rows.Close()

	seen := make(map[int64]bool)
	var results []models.Message
	for rows.Next() {
		var m models.Message
		var rank float64
		cols, err := rows.Columns()
		if err != nil {
			return nil, err
		}
		dest := make([]any, len(cols))
		dest[0], dest[1], dest[2], dest[3] = &m.ID, &m.ConversationID, &m.SenderID, &m.AIModelID
		dest[4], dest[5], dest[6], dest[7], dest[8] = &m.Body, &m.FileID, &m.FileName, &m.CreatedAt, &m.ModifiedAt
		dest[9] = &rank
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		results = append(results, m)
	}
	return results, rows.Err()
}

// isSyntaxError detects SQLite's generic "error code 1" class, which
// covers malformed FTS5 MATCH expressions - the same check the
// original service performs on the driver's error code.
func isSyntaxError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SQL logic error") || strings.Contains(msg, "fts5: syntax error") || strings.Contains(msg, "(1)") || strings.Contains(strings.ToLower(msg), "malformed match")
}
