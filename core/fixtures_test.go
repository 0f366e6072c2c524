package core

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type BaseFixture struct {
	ctx      context.Context
	db       *SQLiteDB
	t        *testing.T
	tearDown func()
}

// NewBaseFixture opens a migrated database in a temporary file.
// A file is used rather than shared-cache memory so concurrent writers
// wait on the busy timeout the way they do in production.
func NewBaseFixture(t *testing.T) *BaseFixture {
	ctx, cancel := context.WithCancel(context.Background())

	file := filepath.Join(t.TempDir(), "test.db")
	opts := DefaultSQLiteDBOption
	db, err := NewSQLiteDB(file, "../migrations", &opts)
	require.NoError(t, err)
	require.NoError(t, db.Migrate())

	f := &BaseFixture{
		ctx: ctx,
		db:  db,
		t:   t,
		tearDown: func() {
			cancel()
			db.Close()
		},
	}
	t.Cleanup(f.tearDown)
	return f
}

type ChatFixture struct {
	*BaseFixture
	userStore *SQLiteUserStore
	rooms     *SQLiteRoomDirectory
	messages  *SQLiteMessageStore
}

func NewChatFixture(t *testing.T) *ChatFixture {
	base := NewBaseFixture(t)
	return &ChatFixture{
		BaseFixture: base,
		userStore:   NewSQLiteUserStore(base.db.DB),
		rooms:       NewSQLiteRoomDirectory(base.db.DB),
		messages:    NewSQLiteMessageStore(base.db.DB),
	}
}
