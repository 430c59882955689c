package storage

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"slices"
	"strings"
	"time"

	"github.com/HMasataka/chatrelay/internal/logging"
	"github.com/HMasataka/chatrelay/pkg/domain"
	"github.com/HMasataka/chatrelay/pkg/errors"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/rs/xid"
	"github.com/samber/lo"
)

// Store is the badger-backed account, group and message store.
type Store struct {
	db           *badger.DB
	historyLimit int
	logger       *logging.Logger
	now          func() time.Time
}

// NewStore wraps an open database. historyLimit caps the number of messages
// returned per conversation; zero or less means unlimited.
func NewStore(db *badger.DB, historyLimit int, logger *logging.Logger) *Store {
	return &Store{
		db:           db,
		historyLimit: historyLimit,
		logger:       logger,
		now:          time.Now,
	}
}

// CreateUser persists a new account with unique username and email.
func (s *Store) CreateUser(_ context.Context, nu domain.NewUser) (domain.User, error) {
	user := domain.User{
		ID:           xid.New().String(),
		Username:     nu.Username,
		Email:        nu.Email,
		MobileNumber: nu.MobileNumber,
		Birthday:     nu.Birthday,
		PasswordHash: nu.PasswordHash,
		CreatedAt:    s.now().UTC(),
	}

	data, err := json.Marshal(user)
	if err != nil {
		return domain.User{}, storageError(err, "failed to marshal user")
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if exists, err := keyExists(txn, usernameKey(user.Username)); err != nil || exists {
			return lo.Ternary(err != nil, err, domain.ErrAlreadyExists)
		}
		if user.Email != "" {
			if exists, err := keyExists(txn, emailKey(user.Email)); err != nil || exists {
				return lo.Ternary(err != nil, err, domain.ErrAlreadyExists)
			}
			if err := txn.Set(emailKey(user.Email), []byte(user.ID)); err != nil {
				return err
			}
		}
		if err := txn.Set(usernameKey(user.Username), []byte(user.ID)); err != nil {
			return err
		}
		return txn.Set(userKey(user.ID), data)
	})
	if stderrors.Is(err, domain.ErrAlreadyExists) {
		return domain.User{}, err
	}
	if err != nil {
		return domain.User{}, storageError(err, "failed to create user")
	}
	return user, nil
}

// UserByLogin finds a user by username, then by email.
func (s *Store) UserByLogin(_ context.Context, login string) (domain.User, error) {
	var user domain.User
	err := s.db.View(func(txn *badger.Txn) error {
		id, err := readString(txn, usernameKey(login))
		if stderrors.Is(err, domain.ErrNotFound) {
			id, err = readString(txn, emailKey(login))
		}
		if err != nil {
			return err
		}
		return readJSON(txn, userKey(id), &user)
	})
	return user, s.lookupError(err, "failed to read user")
}

// UserByID returns the user with the given id.
func (s *Store) UserByID(_ context.Context, id string) (domain.User, error) {
	var user domain.User
	err := s.db.View(func(txn *badger.Txn) error {
		return readJSON(txn, userKey(id), &user)
	})
	return user, s.lookupError(err, "failed to read user")
}

// UserExists reports whether id names a registered user.
func (s *Store) UserExists(_ context.Context, id string) (bool, error) {
	var exists bool
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		exists, err = keyExists(txn, userKey(id))
		return err
	})
	if err != nil {
		return false, storageError(err, "failed to read user")
	}
	return exists, nil
}

// SearchUsers returns users whose username contains query, sorted by name.
func (s *Store) SearchUsers(_ context.Context, query string) ([]domain.User, error) {
	var users []domain.User
	err := s.db.View(func(txn *badger.Txn) error {
		return scanJSON(txn, []byte(prefixUser), func(user domain.User) {
			users = append(users, user)
		})
	})
	if err != nil {
		return nil, storageError(err, "failed to scan users")
	}

	needle := strings.ToLower(query)
	users = lo.Filter(users, func(u domain.User, _ int) bool {
		return strings.Contains(strings.ToLower(u.Username), needle)
	})
	slices.SortFunc(users, func(a, b domain.User) int {
		return strings.Compare(strings.ToLower(a.Username), strings.ToLower(b.Username))
	})
	return users, nil
}

// UserIDsByName resolves usernames to user ids, skipping unknown names.
func (s *Store) UserIDsByName(_ context.Context, usernames []string) ([]string, error) {
	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		for _, name := range lo.Uniq(usernames) {
			id, err := readString(txn, usernameKey(name))
			if stderrors.Is(err, domain.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, storageError(err, "failed to resolve usernames")
	}
	return lo.Uniq(ids), nil
}

// CreateGroup persists a group and its membership index.
func (s *Store) CreateGroup(_ context.Context, name string, memberIDs []string) (domain.Group, error) {
	group := domain.Group{
		ID:        xid.New().String(),
		Name:      name,
		Members:   lo.Uniq(memberIDs),
		CreatedAt: s.now().UTC(),
	}

	data, err := json.Marshal(group)
	if err != nil {
		return domain.Group{}, storageError(err, "failed to marshal group")
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(groupKey(group.ID), data); err != nil {
			return err
		}
		for _, member := range group.Members {
			if err := txn.Set(memberKey(member, group.ID), nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Group{}, storageError(err, "failed to create group")
	}
	return group, nil
}

// Group returns the group with the given id.
func (s *Store) Group(_ context.Context, id string) (domain.Group, error) {
	var group domain.Group
	err := s.db.View(func(txn *badger.Txn) error {
		return readJSON(txn, groupKey(id), &group)
	})
	return group, s.lookupError(err, "failed to read group")
}

// GroupMembers returns the member ids of a group, read fresh on every call.
func (s *Store) GroupMembers(ctx context.Context, id string) ([]string, error) {
	group, err := s.Group(ctx, id)
	if err != nil {
		return nil, err
	}
	return group.Members, nil
}

// GroupsForUser returns the groups userID belongs to, oldest first.
func (s *Store) GroupsForUser(_ context.Context, userID string) ([]domain.Group, error) {
	var groups []domain.Group
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := memberPrefix(userID)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			groupID := string(bytes.TrimPrefix(it.Item().Key(), prefix))

			var group domain.Group
			err := readJSON(txn, groupKey(groupID), &group)
			if stderrors.Is(err, domain.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			groups = append(groups, group)
		}
		return nil
	})
	if err != nil {
		return nil, storageError(err, "failed to list groups")
	}

	slices.SortFunc(groups, func(a, b domain.Group) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return groups, nil
}

// AppendMessage persists rec under its conversation and returns its id.
func (s *Store) AppendMessage(_ context.Context, rec domain.MessageRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now().UTC()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return "", storageError(err, "failed to marshal message")
	}

	key := messageKey(conversationOf(rec), rec.CreatedAt, rec.ID)
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
	if err != nil {
		return "", storageError(err, "failed to append message")
	}
	return rec.ID, nil
}

// GroupHistory returns the latest messages of a group, oldest first.
func (s *Store) GroupHistory(_ context.Context, groupID string) ([]domain.MessageRecord, error) {
	return s.history(groupConversation(groupID))
}

// DirectHistory returns the latest messages exchanged between two users,
// oldest first.
func (s *Store) DirectHistory(_ context.Context, userA, userB string) ([]domain.MessageRecord, error) {
	return s.history(directConversation(userA, userB))
}

func (s *Store) history(conversation string) ([]domain.MessageRecord, error) {
	var records []domain.MessageRecord
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := messagePrefix(conversation)
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(slices.Clone(prefix), 0xff)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if s.historyLimit > 0 && len(records) == s.historyLimit {
				s.logger.Debug("history limit reached", "conversation", conversation, "limit", s.historyLimit)
				break
			}

			var rec domain.MessageRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, storageError(err, "failed to read history")
	}

	slices.Reverse(records)
	return records, nil
}

// Scan calls fn for every key/value pair under prefix. Used by tooling.
func (s *Store) Scan(prefix string, fn func(key string, value []byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix([]byte(prefix)); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(string(item.Key()), value); err != nil {
				return err
			}
		}
		return nil
	})
}

func conversationOf(rec domain.MessageRecord) string {
	if rec.Kind == domain.TargetGroup {
		return groupConversation(rec.Recipient)
	}
	return directConversation(rec.Sender, rec.Recipient)
}

func (s *Store) lookupError(err error, message string) error {
	if err == nil || stderrors.Is(err, domain.ErrNotFound) {
		return err
	}
	return storageError(err, message)
}

func storageError(err error, message string) error {
	return errors.Wrap(err, errors.ErrorTypeStorage, "BADGER_ERROR", message)
}

func keyExists(txn *badger.Txn, key []byte) (bool, error) {
	_, err := txn.Get(key)
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func readString(txn *badger.Txn, key []byte) (string, error) {
	item, err := txn.Get(key)
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	value, err := item.ValueCopy(nil)
	if err != nil {
		return "", err
	}
	return string(value), nil
}

func readJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return domain.ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func scanJSON[T any](txn *badger.Txn, prefix []byte, fn func(T)) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix

	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var v T
		if err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &v)
		}); err != nil {
			return err
		}
		fn(v)
	}
	return nil
}
