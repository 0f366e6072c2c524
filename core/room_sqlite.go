package core

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

type SQLiteRoomDirectory struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteRoomDirectory(db *sql.DB) *SQLiteRoomDirectory {
	return &SQLiteRoomDirectory{
		db:  db,
		now: nowUTC,
	}
}

const roomColumns = `r.id, r.name, r.display_name, COALESCE(r.description, ''), r.type,
	r.member_count, r.last_message_at, r.is_active, r.created_by, r.created_at`

func scanRoom(row rowScanner, extra ...any) (*Room, error) {
	var room Room
	var lastMessageAt sql.NullTime
	var createdBy sql.NullInt64
	dest := []any{
		&room.ID, &room.Name, &room.DisplayName, &room.Description, &room.Type,
		&room.MemberCount, &lastMessageAt, &room.IsActive, &createdBy, &room.CreatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if lastMessageAt.Valid {
		t := lastMessageAt.Time
		room.LastMessageAt = &t
	}
	if createdBy.Valid {
		id := createdBy.Int64
		room.CreatedBy = &id
	}
	return &room, nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func getRoom(ctx context.Context, q querier, where string, arg sql.NamedArg) (*Room, error) {
	row := q.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms AS r WHERE `+where, arg)
	room, err := scanRoom(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scanning room: %w", err)
	}
	return room, nil
}

func getRoomByID(ctx context.Context, q querier, id int64) (*Room, error) {
	return getRoom(ctx, q, "r.id = @id", sql.Named("id", id))
}

func getRoomByName(ctx context.Context, q querier, name string) (*Room, error) {
	return getRoom(ctx, q, "r.name = @name", sql.Named("name", name))
}

// checkRoomAccess applies the room access rule.
// Both access modes currently share the same rule: public rooms are open to
// every principal and other rooms need an active membership.
func checkRoomAccess(ctx context.Context, q querier, p Principal, roomName string, _ AccessMode) error {
	query := `
	SELECT r.type, r.is_active, COALESCE(m.is_active, 0)
	FROM rooms AS r
	LEFT JOIN room_members AS m ON m.room_id = r.id AND m.user_id = @user_id
	WHERE r.name = @name`

	var roomType RoomType
	var roomActive, member bool
	err := q.QueryRowContext(ctx, query, sql.Named("user_id", p.ID), sql.Named("name", roomName)).
		Scan(&roomType, &roomActive, &member)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrRoomNotFound
		}
		return fmt.Errorf("QueryRowContext(room access): %w", err)
	}

	if !roomActive {
		return ErrRoomNotFound
	}
	if roomType == PublicRoom || member {
		return nil
	}
	return ErrAccessDenied
}

func touchMembership(ctx context.Context, q querier, userID int64, roomName string, at time.Time) error {
	query := `
	UPDATE room_members SET last_seen = @last_seen
	WHERE user_id = @user_id AND room_id = (SELECT id FROM rooms WHERE name = @name)`
	_, err := q.ExecContext(ctx, query,
		sql.Named("last_seen", at), sql.Named("user_id", userID), sql.Named("name", roomName))
	if err != nil {
		return fmt.Errorf("ExecContext(update last_seen): %w", err)
	}
	return nil
}

func (s *SQLiteRoomDirectory) ListRooms(ctx context.Context, p Principal, filter RoomFilter) ([]RoomSummary, error) {
	query := `
	SELECT ` + roomColumns + `,
		CASE WHEN m.user_id IS NULL THEN 0 ELSE (
			SELECT count(*) FROM messages AS msg
			WHERE msg.room_name = r.name AND msg.created_at > m.last_seen
		) END AS unread_count
	FROM rooms AS r
	LEFT JOIN room_members AS m ON m.room_id = r.id AND m.user_id = @user_id
	WHERE (r.type = 'public' OR m.is_active = 1)
	AND (@type = '' OR r.type = @type)
	AND (@include_inactive = 1 OR r.is_active = 1)
	ORDER BY r.last_message_at IS NULL, r.last_message_at DESC, r.created_at DESC, r.id DESC`

	rows, err := s.db.QueryContext(ctx, query,
		sql.Named("user_id", p.ID),
		sql.Named("type", string(filter.Type)),
		sql.Named("include_inactive", filter.IncludeInactive))
	if err != nil {
		return nil, fmt.Errorf("QueryContext: %w", err)
	}
	defer rows.Close()

	rooms := []RoomSummary{}
	for rows.Next() {
		var unread int
		room, err := scanRoom(rows, &unread)
		if err != nil {
			return nil, fmt.Errorf("rows.Scan: %w", err)
		}
		rooms = append(rooms, RoomSummary{Room: *room, UnreadCount: unread})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.Err: %w", err)
	}

	return rooms, nil
}

func (s *SQLiteRoomDirectory) GetRoom(ctx context.Context, p Principal, roomID int64) (*RoomDetail, error) {
	room, err := getRoomByID(ctx, s.db, roomID)
	if err != nil {
		return nil, fmt.Errorf("getRoomByID: %w", err)
	}
	if room == nil || !room.IsActive {
		return nil, ErrRoomNotFound
	}

	if err := checkRoomAccess(ctx, s.db, p, room.Name, ReadAccess); err != nil {
		return nil, err
	}

	members, err := s.getRoomMembers(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("getRoomMembers: %w", err)
	}

	return &RoomDetail{Room: *room, Members: members}, nil
}

func (s *SQLiteRoomDirectory) getRoomMembers(ctx context.Context, roomID int64) ([]RoomMember, error) {
	query := `
	SELECT u.id, u.username, u.display_name, m.role, m.joined_at, m.last_seen
	FROM room_members AS m
	INNER JOIN users AS u ON u.id = m.user_id
	WHERE m.room_id = @room_id AND m.is_active = 1
	ORDER BY m.joined_at ASC, u.id ASC`

	rows, err := s.db.QueryContext(ctx, query, sql.Named("room_id", roomID))
	if err != nil {
		return nil, fmt.Errorf("QueryContext: %w", err)
	}
	defer rows.Close()

	members := []RoomMember{}
	for rows.Next() {
		var m RoomMember
		if err := rows.Scan(&m.UserID, &m.Username, &m.DisplayName, &m.Role, &m.JoinedAt, &m.LastSeen); err != nil {
			return nil, fmt.Errorf("rows.Scan: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.Err: %w", err)
	}
	return members, nil
}

func (s *SQLiteRoomDirectory) GetRoomByName(ctx context.Context, name string) (*Room, error) {
	return getRoomByName(ctx, s.db, name)
}

func (s *SQLiteRoomDirectory) CreateRoom(ctx context.Context, createdBy *int64, input RoomCreateInput) (*Room, error) {
	if !input.Type.Valid() {
		return nil, NewValidationError("invalid room type: %q", input.Type)
	}

	now := s.now()
	memberCount := 0
	if createdBy != nil {
		memberCount = 1
	}

	var room *Room
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		query := `
		INSERT INTO rooms (name, display_name, description, type, member_count, is_active, created_by, created_at)
		VALUES (@name, @display_name, @description, @type, @member_count, 1, @created_by, @created_at)
		RETURNING id`
		var id int64
		err := tx.QueryRowContext(ctx, query,
			sql.Named("name", input.Name),
			sql.Named("display_name", input.DisplayName),
			sql.Named("description", sql.NullString{String: input.Description, Valid: input.Description != ""}),
			sql.Named("type", input.Type),
			sql.Named("member_count", memberCount),
			sql.Named("created_by", nullInt64(createdBy)),
			sql.Named("created_at", now),
		).Scan(&id)
		if err != nil {
			return fmt.Errorf("QueryRowContext(insert room): %w", translateSQLiteError(err, ErrConflictedRoom, nil))
		}

		if createdBy != nil {
			query = `
			INSERT INTO room_members (room_id, user_id, role, joined_at, last_seen, is_active)
			VALUES (@room_id, @user_id, @role, @now, @now, 1)`
			_, err = tx.ExecContext(ctx, query,
				sql.Named("room_id", id), sql.Named("user_id", *createdBy),
				sql.Named("role", Owner), sql.Named("now", now))
			if err != nil {
				return fmt.Errorf("ExecContext(insert room_members): %w", err)
			}
		}

		room, err = getRoomByID(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return room, nil
}

func (s *SQLiteRoomDirectory) SetRoomActive(ctx context.Context, roomID int64, active bool) (*Room, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE rooms SET is_active = @active WHERE id = @id`,
		sql.Named("active", active), sql.Named("id", roomID))
	if err != nil {
		return nil, fmt.Errorf("ExecContext(update room): %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("RowsAffected: %w", err)
	}
	if n == 0 {
		return nil, ErrRoomNotFound
	}
	return getRoomByID(ctx, s.db, roomID)
}

func (s *SQLiteRoomDirectory) Join(ctx context.Context, p Principal, roomID int64) (*Room, error) {
	var room *Room
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		existing, err := getRoomByID(ctx, tx, roomID)
		if err != nil {
			return fmt.Errorf("getRoomByID: %w", err)
		}
		if existing == nil || !existing.IsActive {
			return ErrRoomNotFound
		}

		now := s.now()
		var active bool
		err = tx.QueryRowContext(ctx,
			`SELECT is_active FROM room_members WHERE room_id = @room_id AND user_id = @user_id`,
			sql.Named("room_id", roomID), sql.Named("user_id", p.ID)).Scan(&active)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			query := `
			INSERT INTO room_members (room_id, user_id, role, joined_at, last_seen, is_active)
			VALUES (@room_id, @user_id, @role, @now, @now, 1)`
			if _, err := tx.ExecContext(ctx, query,
				sql.Named("room_id", roomID), sql.Named("user_id", p.ID),
				sql.Named("role", Member), sql.Named("now", now)); err != nil {
				return fmt.Errorf("ExecContext(insert room_members): %w", translateSQLiteError(err, ErrAlreadyMember, nil))
			}
		case err != nil:
			return fmt.Errorf("QueryRowContext(membership): %w", err)
		case active:
			return ErrAlreadyMember
		default:
			query := `
			UPDATE room_members SET is_active = 1, role = @role, joined_at = @now, last_seen = @now
			WHERE room_id = @room_id AND user_id = @user_id`
			if _, err := tx.ExecContext(ctx, query,
				sql.Named("role", Member), sql.Named("now", now),
				sql.Named("room_id", roomID), sql.Named("user_id", p.ID)); err != nil {
				return fmt.Errorf("ExecContext(reactivate room_members): %w", err)
			}
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE rooms SET member_count = member_count + 1 WHERE id = @id`,
			sql.Named("id", roomID)); err != nil {
			return fmt.Errorf("ExecContext(increment member_count): %w", err)
		}

		room, err = getRoomByID(ctx, tx, roomID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return room, nil
}

func (s *SQLiteRoomDirectory) Leave(ctx context.Context, p Principal, roomID int64) (*Room, error) {
	var room *Room
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		existing, err := getRoomByID(ctx, tx, roomID)
		if err != nil {
			return fmt.Errorf("getRoomByID: %w", err)
		}
		if existing == nil {
			return ErrRoomNotFound
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE room_members SET is_active = 0
			WHERE room_id = @room_id AND user_id = @user_id AND is_active = 1`,
			sql.Named("room_id", roomID), sql.Named("user_id", p.ID))
		if err != nil {
			return fmt.Errorf("ExecContext(deactivate room_members): %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("RowsAffected: %w", err)
		}
		if n == 0 {
			return ErrNotMember
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE rooms SET member_count = MAX(member_count - 1, 0) WHERE id = @id`,
			sql.Named("id", roomID)); err != nil {
			return fmt.Errorf("ExecContext(decrement member_count): %w", err)
		}

		room, err = getRoomByID(ctx, tx, roomID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return room, nil
}

func (s *SQLiteRoomDirectory) Access(ctx context.Context, p Principal, roomName string, mode AccessMode) error {
	return checkRoomAccess(ctx, s.db, p, roomName, mode)
}

func (s *SQLiteRoomDirectory) CanAccess(ctx context.Context, p Principal, roomName string, mode AccessMode) (bool, error) {
	err := checkRoomAccess(ctx, s.db, p, roomName, mode)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrAccessDenied), errors.Is(err, ErrRoomNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (s *SQLiteRoomDirectory) Touch(ctx context.Context, p Principal, roomName string) error {
	return touchMembership(ctx, s.db, p.ID, roomName, s.now())
}
