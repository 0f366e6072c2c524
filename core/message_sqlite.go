package core

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
	"unicode/utf8"
)

type SQLiteMessageStore struct {
	db     *sql.DB
	now    func() time.Time
	logger *slog.Logger
}

type MessageStoreOption func(*SQLiteMessageStore)

func WithMessageStoreLogger(logger *slog.Logger) MessageStoreOption {
	return func(s *SQLiteMessageStore) {
		s.logger = logger
	}
}

func NewSQLiteMessageStore(db *sql.DB, opts ...MessageStoreOption) *SQLiteMessageStore {
	s := &SQLiteMessageStore{
		db:     db,
		now:    nowUTC,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// touch records that userID has seen roomName up to at. A failure only costs
// an accurate unread count, so it is logged and not returned.
func (s *SQLiteMessageStore) touch(ctx context.Context, q querier, userID int64, roomName string, at time.Time) {
	if err := touchMembership(ctx, q, userID, roomName, at); err != nil {
		s.logger.Warn(fmt.Sprintf("touchMembership: %v", err),
			slog.Int64("user", userID), slog.String("room", roomName))
	}
}

const selectMessage = `
	SELECT m.id, m.room_name, m.body, m.message_type, m.reply_to, m.reactions,
	m.is_edited, m.edited_at, m.created_at,
	u.id, u.username, u.display_name,
	rm.id, rm.body, ru.id, ru.username, ru.display_name
	FROM messages AS m
	INNER JOIN users AS u ON u.id = m.user_id
	LEFT JOIN messages AS rm ON rm.id = m.reply_to
	LEFT JOIN users AS ru ON ru.id = rm.user_id`

func scanMessage(row rowScanner) (*Message, error) {
	var msg Message
	var replyTo, replyID, replyAuthorID sql.NullInt64
	var replyBody, replyUsername, replyDisplayName sql.NullString
	var editedAt sql.NullTime

	err := row.Scan(
		&msg.ID, &msg.RoomName, &msg.Body, &msg.Type, &replyTo, &msg.Reactions,
		&msg.IsEdited, &editedAt, &msg.CreatedAt,
		&msg.Author.ID, &msg.Author.Username, &msg.Author.DisplayName,
		&replyID, &replyBody, &replyAuthorID, &replyUsername, &replyDisplayName,
	)
	if err != nil {
		return nil, err
	}

	if replyTo.Valid {
		id := replyTo.Int64
		msg.ReplyTo = &id
	}
	if replyID.Valid {
		msg.Reply = &ReplyPreview{
			ID:   replyID.Int64,
			Body: replyBody.String,
			Author: Author{
				ID:          replyAuthorID.Int64,
				Username:    replyUsername.String,
				DisplayName: replyDisplayName.String,
			},
		}
	}
	if editedAt.Valid {
		t := editedAt.Time
		msg.EditedAt = &t
	}
	if msg.Reactions == nil {
		msg.Reactions = Reactions{}
	}
	return &msg, nil
}

func getMessage(ctx context.Context, q querier, id int64) (*Message, error) {
	msg, err := scanMessage(q.QueryRowContext(ctx, selectMessage+` WHERE m.id = @id`, sql.Named("id", id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scanning message: %w", err)
	}
	return msg, nil
}

func (s *SQLiteMessageStore) GetMessage(ctx context.Context, id int64) (*Message, error) {
	return getMessage(ctx, s.db, id)
}

func (s *SQLiteMessageStore) ListMessages(ctx context.Context, q MessageQuery) (*MessagePage, error) {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.Limit <= 0 {
		q.Limit = DefaultMessageLimit
	}
	if q.Limit > MaxMessageLimit {
		q.Limit = MaxMessageLimit
	}

	if err := checkRoomAccess(ctx, s.db, q.Viewer, q.Room, ReadAccess); err != nil {
		return nil, err
	}

	conds := []string{"m.room_name = @room"}
	args := []any{sql.Named("room", q.Room)}
	if q.Before != nil {
		conds = append(conds, "m.created_at < @before")
		args = append(args, sql.Named("before", q.Before.UTC()))
	}
	where := " WHERE " + strings.Join(conds, " AND ")

	page := &MessagePage{Page: q.Page, Limit: q.Limit, Messages: []Message{}}
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM messages AS m`+where, args...).
		Scan(&page.Total); err != nil {
		return nil, fmt.Errorf("QueryRowContext(count messages): %w", err)
	}

	// Newest first so that page 1 holds the most recent messages,
	// then reversed for display.
	query := selectMessage + where + `
	ORDER BY m.created_at DESC, m.id DESC
	LIMIT @limit OFFSET @offset`
	args = append(args, sql.Named("limit", q.Limit), sql.Named("offset", (q.Page-1)*q.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("QueryContext: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("rows.Scan: %w", err)
		}
		page.Messages = append(page.Messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.Err: %w", err)
	}
	slices.Reverse(page.Messages)

	s.touch(ctx, s.db, q.Viewer.ID, q.Room, s.now())

	return page, nil
}

func (s *SQLiteMessageStore) Send(ctx context.Context, p Principal, input MessageCreateInput) (*Message, error) {
	if input.Type == "" {
		input.Type = TextMessage
	}
	if !input.Type.Valid() {
		return nil, NewValidationError("invalid message type: %q", input.Type)
	}
	if input.Type == SystemMessage && !p.Elevated() {
		return nil, ErrForbidden
	}
	if strings.TrimSpace(input.Body) == "" {
		return nil, NewValidationError("message body is required")
	}
	if utf8.RuneCountInString(input.Body) > MaxMessageBody {
		return nil, NewValidationError("message body must be at most %d characters", MaxMessageBody)
	}

	var msg *Message
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := checkRoomAccess(ctx, tx, p, input.Room, WriteAccess); err != nil {
			return err
		}

		if input.ReplyTo != nil {
			var replyRoom string
			err := tx.QueryRowContext(ctx, `SELECT room_name FROM messages WHERE id = @id`,
				sql.Named("id", *input.ReplyTo)).Scan(&replyRoom)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return ErrInvalidReply
				}
				return fmt.Errorf("QueryRowContext(reply_to): %w", err)
			}
			if replyRoom != input.Room {
				return ErrInvalidReply
			}
		}

		now := s.now()
		query := `
		INSERT INTO messages (room_name, user_id, body, message_type, reply_to, reactions, created_at)
		VALUES (@room_name, @user_id, @body, @message_type, @reply_to, @reactions, @created_at)
		RETURNING id`
		var id int64
		err := tx.QueryRowContext(ctx, query,
			sql.Named("room_name", input.Room),
			sql.Named("user_id", p.ID),
			sql.Named("body", input.Body),
			sql.Named("message_type", input.Type),
			sql.Named("reply_to", nullInt64(input.ReplyTo)),
			sql.Named("reactions", Reactions{}),
			sql.Named("created_at", now),
		).Scan(&id)
		if err != nil {
			return fmt.Errorf("QueryRowContext(insert message): %w",
				translateSQLiteError(err, nil, ErrRoomNotFound))
		}

		if _, err := tx.ExecContext(ctx, `UPDATE rooms SET last_message_at = @now WHERE name = @name`,
			sql.Named("now", now), sql.Named("name", input.Room)); err != nil {
			return fmt.Errorf("ExecContext(update room): %w", err)
		}

		// The sender has seen everything up to their own message.
		s.touch(ctx, tx, p.ID, input.Room, now)

		msg, err = getMessage(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *SQLiteMessageStore) Edit(ctx context.Context, p Principal, id int64, body string) (*Message, error) {
	if strings.TrimSpace(body) == "" {
		return nil, NewValidationError("message body is required")
	}
	if utf8.RuneCountInString(body) > MaxMessageBody {
		return nil, NewValidationError("message body must be at most %d characters", MaxMessageBody)
	}

	var msg *Message
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		existing, err := getMessage(ctx, tx, id)
		if err != nil {
			return fmt.Errorf("getMessage: %w", err)
		}
		if existing == nil {
			return ErrMessageNotFound
		}
		if existing.Author.ID != p.ID {
			return ErrForbidden
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE messages SET body = @body, is_edited = 1, edited_at = @now WHERE id = @id`,
			sql.Named("body", body), sql.Named("now", s.now()), sql.Named("id", id)); err != nil {
			return fmt.Errorf("ExecContext(update message): %w", err)
		}

		msg, err = getMessage(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// canModerate reports whether p created the room or holds an owner or
// moderator membership in it.
func canModerate(ctx context.Context, q querier, p Principal, roomName string) (bool, error) {
	query := `
	SELECT count(*) FROM rooms AS r
	LEFT JOIN room_members AS m
		ON m.room_id = r.id AND m.user_id = @user_id AND m.is_active = 1
	WHERE r.name = @name AND (r.created_by = @user_id OR m.role IN ('owner', 'moderator'))`

	var n int
	if err := q.QueryRowContext(ctx, query, sql.Named("user_id", p.ID), sql.Named("name", roomName)).
		Scan(&n); err != nil {
		return false, fmt.Errorf("QueryRowContext(moderator): %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteMessageStore) Delete(ctx context.Context, p Principal, id int64) (*Message, error) {
	var msg *Message
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		msg, err = getMessage(ctx, tx, id)
		if err != nil {
			return fmt.Errorf("getMessage: %w", err)
		}
		if msg == nil {
			return ErrMessageNotFound
		}

		allowed := msg.Author.ID == p.ID || p.Elevated()
		if !allowed {
			allowed, err = canModerate(ctx, tx, p, msg.RoomName)
			if err != nil {
				return err
			}
		}
		if !allowed {
			return ErrForbidden
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE id = @id`, sql.Named("id", id)); err != nil {
			return fmt.Errorf("ExecContext(delete message): %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *SQLiteMessageStore) ToggleReaction(ctx context.Context, p Principal, id int64, emoji string) (*Message, error) {
	if strings.TrimSpace(emoji) == "" {
		return nil, NewValidationError("emoji is required")
	}

	var msg *Message
	// The transaction starts with BEGIN IMMEDIATE so concurrent toggles on
	// the same message read and write the reactions one at a time.
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		msg, err = getMessage(ctx, tx, id)
		if err != nil {
			return fmt.Errorf("getMessage: %w", err)
		}
		if msg == nil {
			return ErrMessageNotFound
		}

		if err := checkRoomAccess(ctx, tx, p, msg.RoomName, WriteAccess); err != nil {
			return err
		}

		msg.Reactions.Toggle(emoji, p.ID)
		if _, err := tx.ExecContext(ctx, `UPDATE messages SET reactions = @reactions WHERE id = @id`,
			sql.Named("reactions", msg.Reactions), sql.Named("id", id)); err != nil {
			return fmt.Errorf("ExecContext(update reactions): %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}
