package core

import (
	"fmt"
	"sync"

	"github.com/stretchr/testify/require"
)

var (
	alice = User{Username: "alice", Password: "password", DisplayName: "Alice"}
	bob   = User{Username: "bob", Password: "password", DisplayName: "Bob"}
	carol = User{Username: "carol", Password: "password", DisplayName: "Carol"}
	admin = User{Username: "admin", Password: "password", DisplayName: "Admin", Role: RoleAdmin}
)

func seedUsers(f *ChatFixture, users ...User) []Principal {
	principals := make([]Principal, 0, len(users))
	for _, u := range users {
		created, err := f.userStore.CreateUser(f.ctx, u)
		require.NoError(f.t, err)
		principals = append(principals, created.Principal())
	}
	return principals
}

// seedNUsers creates n users named user0..user(n-1).
func seedNUsers(f *ChatFixture, n int) []Principal {
	users := make([]User, 0, n)
	for i := 0; i < n; i++ {
		users = append(users, User{
			Username:    fmt.Sprintf("user%d", i),
			Password:    "password",
			DisplayName: fmt.Sprintf("User %d", i),
		})
	}
	return seedUsers(f, users...)
}

// seedSystemRoom creates a room without a creator, as the room seed does.
func seedSystemRoom(f *ChatFixture, name string, t RoomType) *Room {
	room, err := f.rooms.CreateRoom(f.ctx, nil, RoomCreateInput{
		Name:        name,
		DisplayName: name,
		Type:        t,
	})
	require.NoError(f.t, err)
	return room
}

func sendText(f *ChatFixture, p Principal, room, body string) *Message {
	msg, err := f.messages.Send(f.ctx, p, MessageCreateInput{Room: room, Body: body})
	require.NoError(f.t, err)
	return msg
}

func countActiveMemberships(f *ChatFixture, roomID, userID int64) int {
	var n int
	err := f.db.QueryRowContext(f.ctx,
		`SELECT count(*) FROM room_members WHERE room_id = ? AND user_id = ? AND is_active = 1`,
		roomID, userID).Scan(&n)
	require.NoError(f.t, err)
	return n
}

// parallel runs fn n times concurrently and returns the errors in call order.
func parallel(n int, fn func(i int) error) []error {
	errs := make([]error, n)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			errs[i] = fn(i)
		}(i)
	}
	close(start)
	wg.Wait()
	return errs
}
