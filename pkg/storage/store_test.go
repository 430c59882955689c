package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/HMasataka/chatrelay/internal/logging"
	"github.com/HMasataka/chatrelay/pkg/domain"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T, historyLimit int) *Store {
	t.Helper()
	db, err := Open(OpenOptions{InMemory: true}, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db, historyLimit, logging.Discard())
}

func createUser(t *testing.T, s *Store, name string) domain.User {
	t.Helper()
	user, err := s.CreateUser(context.Background(), domain.NewUser{Username: name, PasswordHash: "hash"})
	require.NoError(t, err)
	return user
}

func TestStore_CreateAndFindUsers(t *testing.T) {
	req := require.New(t)
	s := newStore(t, 0)
	ctx := context.Background()

	alice, err := s.CreateUser(ctx, domain.NewUser{Username: "Alice", Email: "alice@example.com", PasswordHash: "h"})
	req.NoError(err)
	req.NotEmpty(alice.ID)

	_, err = s.CreateUser(ctx, domain.NewUser{Username: "alice", PasswordHash: "h"})
	req.ErrorIs(err, domain.ErrAlreadyExists)

	_, err = s.CreateUser(ctx, domain.NewUser{Username: "other", Email: "ALICE@example.com", PasswordHash: "h"})
	req.ErrorIs(err, domain.ErrAlreadyExists)

	byName, err := s.UserByLogin(ctx, "alice")
	req.NoError(err)
	req.Equal(alice.ID, byName.ID)

	byEmail, err := s.UserByLogin(ctx, "alice@example.com")
	req.NoError(err)
	req.Equal(alice.ID, byEmail.ID)

	_, err = s.UserByLogin(ctx, "nobody")
	req.ErrorIs(err, domain.ErrNotFound)

	exists, err := s.UserExists(ctx, alice.ID)
	req.NoError(err)
	req.True(exists)

	exists, err = s.UserExists(ctx, "missing")
	req.NoError(err)
	req.False(exists)
}

func TestStore_SearchUsers(t *testing.T) {
	req := require.New(t)
	s := newStore(t, 0)
	ctx := context.Background()

	createUser(t, s, "carol")
	createUser(t, s, "Alice")
	createUser(t, s, "malice")

	found, err := s.SearchUsers(ctx, "ALI")
	req.NoError(err)
	req.Len(found, 2)
	req.Equal("Alice", found[0].Username)
	req.Equal("malice", found[1].Username)

	all, err := s.SearchUsers(ctx, "")
	req.NoError(err)
	req.Len(all, 3)
}

func TestStore_Groups(t *testing.T) {
	req := require.New(t)
	s := newStore(t, 0)
	ctx := context.Background()

	a := createUser(t, s, "a")
	b := createUser(t, s, "b")

	ids, err := s.UserIDsByName(ctx, []string{"a", "b", "ghost", "a"})
	req.NoError(err)
	req.ElementsMatch([]string{a.ID, b.ID}, ids)

	group, err := s.CreateGroup(ctx, "team", append(ids, a.ID))
	req.NoError(err)
	req.Len(group.Members, 2)

	members, err := s.GroupMembers(ctx, group.ID)
	req.NoError(err)
	req.ElementsMatch([]string{a.ID, b.ID}, members)

	_, err = s.GroupMembers(ctx, a.ID)
	req.ErrorIs(err, domain.ErrNotFound)

	groups, err := s.GroupsForUser(ctx, b.ID)
	req.NoError(err)
	req.Len(groups, 1)
	req.Equal("team", groups[0].Name)

	none, err := s.GroupsForUser(ctx, "stranger")
	req.NoError(err)
	req.Empty(none)
}

func TestStore_HistoryIsChronologicalAndShared(t *testing.T) {
	req := require.New(t)
	s := newStore(t, 0)
	ctx := context.Background()
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, sender := range []string{"a", "b", "a"} {
		recipient := map[string]string{"a": "b", "b": "a"}[sender]
		_, err := s.AppendMessage(ctx, domain.MessageRecord{
			Sender:    sender,
			Recipient: recipient,
			Kind:      domain.TargetPeer,
			Text:      fmt.Sprintf("m%d", i),
			CreatedAt: at.Add(time.Duration(i) * time.Minute),
		})
		req.NoError(err)
	}
	_, err := s.AppendMessage(ctx, domain.MessageRecord{Sender: "a", Recipient: "c", Kind: domain.TargetPeer, Text: "other", CreatedAt: at})
	req.NoError(err)

	history, err := s.DirectHistory(ctx, "b", "a")
	req.NoError(err)
	req.Len(history, 3)
	for i, rec := range history {
		req.Equal(fmt.Sprintf("m%d", i), rec.Text)
		req.NotEmpty(rec.ID)
	}
}

func TestStore_HistoryLimitKeepsNewest(t *testing.T) {
	req := require.New(t)
	s := newStore(t, 2)
	ctx := context.Background()
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := range 4 {
		_, err := s.AppendMessage(ctx, domain.MessageRecord{
			ID:        fmt.Sprintf("id-%d", i),
			Sender:    "a",
			Recipient: "g1",
			Kind:      domain.TargetGroup,
			Text:      fmt.Sprintf("m%d", i),
			CreatedAt: at.Add(time.Duration(i) * time.Second),
		})
		req.NoError(err)
	}

	history, err := s.GroupHistory(ctx, "g1")
	req.NoError(err)
	req.Len(history, 2)
	req.Equal("m2", history[0].Text)
	req.Equal("m3", history[1].Text)
}

func TestStore_Scan(t *testing.T) {
	req := require.New(t)
	s := newStore(t, 0)
	createUser(t, s, "a")
	createUser(t, s, "b")

	var keys []string
	req.NoError(s.Scan(prefixUsername, func(key string, _ []byte) error {
		keys = append(keys, key)
		return nil
	}))
	req.Equal([]string{"username:a", "username:b"}, keys)
}

func TestDiskStager(t *testing.T) {
	req := require.New(t)
	dir := filepath.Join(t.TempDir(), "uploads")
	stager := NewDiskStager(dir)
	ctx := context.Background()

	named, err := stager.StageAttachment(ctx, []byte("hello"), "notes.TXT")
	req.NoError(err)
	req.Equal(".txt", filepath.Ext(named))

	content, err := os.ReadFile(filepath.Join(dir, named))
	req.NoError(err)
	req.Equal([]byte("hello"), content)

	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	sniffed, err := stager.StageAttachment(ctx, png, "no-extension")
	req.NoError(err)
	req.Equal(".png", filepath.Ext(sniffed))

	other, err := stager.StageAttachment(ctx, []byte("hello"), "notes.txt")
	req.NoError(err)
	req.NotEqual(named, other)
}
