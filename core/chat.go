package core

import (
	"context"
	"time"
)

// RoomType represents the visibility of a chat room.
type RoomType string

const (
	// PublicRoom can be read and written by any authenticated principal
	// without a membership.
	PublicRoom RoomType = "public"
	// PrivateRoom requires an active membership for any access.
	PrivateRoom RoomType = "private"
	// GroupRoom requires an active membership for any access.
	GroupRoom RoomType = "group"
)

func (t RoomType) Valid() bool {
	switch t {
	case PublicRoom, PrivateRoom, GroupRoom:
		return true
	}
	return false
}

// MessageType is used to determine how the message body should be interpreted.
type MessageType string

const (
	TextMessage   MessageType = "text"
	ImageMessage  MessageType = "image"
	FileMessage   MessageType = "file"
	SystemMessage MessageType = "system"
)

func (t MessageType) Valid() bool {
	switch t {
	case TextMessage, ImageMessage, FileMessage, SystemMessage:
		return true
	}
	return false
}

type MemberRole string

const (
	Owner     MemberRole = "owner"
	Moderator MemberRole = "moderator"
	Member    MemberRole = "member"
)

// AccessMode is the kind of access requested on a room.
type AccessMode int

const (
	ReadAccess AccessMode = iota
	WriteAccess
)

func (m AccessMode) String() string {
	if m == WriteAccess {
		return "write"
	}
	return "read"
}

// Room represents a chat room. Messages reference rooms by Name.
type Room struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	DisplayName   string     `json:"display_name"`
	Description   string     `json:"description,omitempty"`
	Type          RoomType   `json:"type"`
	MemberCount   int        `json:"member_count"`
	LastMessageAt *time.Time `json:"last_message_at"`
	IsActive      bool       `json:"is_active"`
	// CreatedBy is nil for system rooms.
	CreatedBy *int64    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// RoomSummary is a room from the perspective of the principal listing it.
type RoomSummary struct {
	Room
	UnreadCount int `json:"unread_count"`
}

// RoomDetail is a room together with its active members.
type RoomDetail struct {
	Room
	Members []RoomMember `json:"members"`
}

// RoomMember is an active membership joined with the member's user info.
type RoomMember struct {
	UserID      int64      `json:"user_id"`
	Username    string     `json:"username"`
	DisplayName string     `json:"display_name"`
	Role        MemberRole `json:"role"`
	JoinedAt    time.Time  `json:"joined_at"`
	LastSeen    time.Time  `json:"last_seen"`
}

// RoomFilter narrows ListRooms. The zero value lists active rooms of every type.
type RoomFilter struct {
	Type            RoomType
	IncludeInactive bool
}

type RoomCreateInput struct {
	Name        string   `json:"name" validate:"required,roomname"`
	DisplayName string   `json:"display_name" validate:"required,max=128"`
	Description string   `json:"description" validate:"max=1024"`
	Type        RoomType `json:"type" validate:"required,oneof=public private group"`
}

// Author is the display info of a message author.
type Author struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}

// ReplyPreview is the quoted part of the message being replied to.
type ReplyPreview struct {
	ID     int64  `json:"id"`
	Body   string `json:"body"`
	Author Author `json:"author"`
}

// Message represents a chat message sent by a principal to a room.
type Message struct {
	ID        int64         `json:"id"`
	RoomName  string        `json:"room_name"`
	Author    Author        `json:"author"`
	Body      string        `json:"body"`
	Type      MessageType   `json:"message_type"`
	ReplyTo   *int64        `json:"reply_to"`
	Reply     *ReplyPreview `json:"reply_message,omitempty"`
	Reactions Reactions     `json:"reactions"`
	IsEdited  bool          `json:"is_edited"`
	EditedAt  *time.Time    `json:"edited_at"`
	CreatedAt time.Time     `json:"created_at"`
}

// MessageCreateInput represents the input for creating a message.
type MessageCreateInput struct {
	Room    string      `json:"room" validate:"required"`
	Body    string      `json:"body" validate:"required,max=4000"`
	Type    MessageType `json:"message_type" validate:"omitempty,oneof=text image file system"`
	ReplyTo *int64      `json:"reply_to" validate:"omitempty,gt=0"`
}

const (
	DefaultMessageLimit = 50
	MaxMessageLimit     = 100
	// MaxMessageBody is the maximum body length in characters.
	MaxMessageBody = 4000
)

// MessageQuery selects a page of a room's history.
type MessageQuery struct {
	Room   string
	Viewer Principal
	// Page starts at 1.
	Page  int
	Limit int
	// Before is an exclusive upper bound on created_at.
	Before *time.Time
}

type MessagePage struct {
	Messages []Message
	Page     int
	Limit    int
	Total    int
}

func (p MessagePage) TotalPages() int {
	if p.Limit <= 0 {
		return 0
	}
	return (p.Total + p.Limit - 1) / p.Limit
}

// RoomDirectory owns room existence, membership and access predicates.
type RoomDirectory interface {
	// ListRooms returns the active public rooms plus every room the principal
	// is an active member of, ordered by last message time (rooms without
	// messages last), then creation time, newest first.
	// UnreadCount is zero for rooms where the principal has no membership row.
	ListRooms(ctx context.Context, p Principal, filter RoomFilter) ([]RoomSummary, error)

	// GetRoom returns the room and its active members.
	// It returns ErrRoomNotFound for a missing or inactive room and
	// ErrAccessDenied when the room is not public and p is not an active member.
	GetRoom(ctx context.Context, p Principal, roomID int64) (*RoomDetail, error)

	// GetRoomByName returns the room with the given name.
	// If the room is not found, it returns nil.
	GetRoomByName(ctx context.Context, name string) (*Room, error)

	// CreateRoom creates a room. When createdBy is not nil the creator becomes
	// its owner and first member. It returns ErrConflictedRoom if the name is taken.
	CreateRoom(ctx context.Context, createdBy *int64, input RoomCreateInput) (*Room, error)

	// SetRoomActive soft-enables or soft-disables a room.
	SetRoomActive(ctx context.Context, roomID int64, active bool) (*Room, error)

	// Join creates or reactivates p's membership and increments the member count.
	// It returns ErrRoomNotFound for a missing or inactive room and
	// ErrAlreadyMember when p is already an active member.
	Join(ctx context.Context, p Principal, roomID int64) (*Room, error)

	// Leave deactivates p's membership and decrements the member count.
	// It returns ErrRoomNotFound for a missing room and ErrNotMember when p
	// has no active membership.
	Leave(ctx context.Context, p Principal, roomID int64) (*Room, error)

	// Access returns nil when p may use the room in the given mode,
	// ErrRoomNotFound when the room is missing or inactive and ErrAccessDenied otherwise.
	Access(ctx context.Context, p Principal, roomName string, mode AccessMode) error

	// CanAccess is the boolean form of Access.
	CanAccess(ctx context.Context, p Principal, roomName string, mode AccessMode) (bool, error)

	// Touch sets p's last seen time in the room to now.
	// It does nothing when p has no membership row.
	Touch(ctx context.Context, p Principal, roomName string) error
}

// MessageStore owns durable ordered storage of messages.
type MessageStore interface {
	// ListMessages returns a page of the room's messages in ascending
	// (created_at, id) order. Page 1 holds the most recent messages.
	// The viewer's last seen time is updated as a side effect.
	ListMessages(ctx context.Context, q MessageQuery) (*MessagePage, error)

	// GetMessage returns the message with the given id.
	// If the message is not found, it returns nil.
	GetMessage(ctx context.Context, id int64) (*Message, error)

	// Send persists a message and bumps the room's last message time in the
	// same transaction. It returns ErrInvalidReply if ReplyTo does not point
	// to a message in the same room.
	Send(ctx context.Context, p Principal, input MessageCreateInput) (*Message, error)

	// Edit replaces the body of a message authored by p.
	Edit(ctx context.Context, p Principal, id int64, body string) (*Message, error)

	// Delete hard deletes a message and returns it as it was.
	// The author, the room's creator, room owners and moderators and
	// elevated principals may delete.
	Delete(ctx context.Context, p Principal, id int64) (*Message, error)

	// ToggleReaction adds p to the emoji's reactions or removes p if present.
	ToggleReaction(ctx context.Context, p Principal, id int64, emoji string) (*Message, error)
}
