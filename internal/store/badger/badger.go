// Package badger implements store.Store on top of an embedded BadgerDB.
//
// Records are JSON documents. Keys are laid out so that prefix scans return
// rows in creation order (ids are time-ordered UUIDs):
//
//	user:<id>                     user document
//	user_email:<email>            -> user id
//	user_name:<username>          -> user id
//	group:<id>                    group document with members
//	dm:<id>                       direct message document
//	dm_conv:<a>:<b>:<id>          conversation index
//	gm:<id>                       group message document with readers
//	gm_group:<group>:<id>         group timeline index
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/vovakirdan/wirechat-server/internal/store"
	"github.com/vovakirdan/wirechat-server/internal/utils"
)

const (
	prefixUser      = "user:"
	prefixUserEmail = "user_email:"
	prefixUserName  = "user_name:"
	prefixGroup     = "group:"
	prefixDirect    = "dm:"
	prefixConv      = "dm_conv:"
	prefixGroupMsg  = "gm:"
	prefixTimeline  = "gm_group:"

	// Upper bound on concurrent writers to a single key.
	maxConflictRetries = 128
)

// BadgerStore implements store.Store for BadgerDB.
type BadgerStore struct {
	db *badger.DB
}

// New opens (or creates) a Badger database in dir.
func New(dir string, logger *zerolog.Logger) (*BadgerStore, error) {
	return open(badger.DefaultOptions(dir), logger)
}

// NewInMemory opens a Badger database that lives only in memory.
func NewInMemory(logger *zerolog.Logger) (*BadgerStore, error) {
	return open(badger.DefaultOptions("").WithInMemory(true), logger)
}

func open(opts badger.Options, logger *zerolog.Logger) (*BadgerStore, error) {
	if logger != nil {
		opts = opts.WithLogger(badgerLogger{logger: logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// update runs fn in a read-write transaction, retrying on write conflicts.
func (s *BadgerStore) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for range maxConflictRetries {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return fmt.Errorf("too many write conflicts: %w", err)
}

func getJSON(txn *badger.Txn, key string, out any) error {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return store.ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, out)
	})
}

func setJSON(txn *badger.Txn, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return txn.Set([]byte(key), data)
}

func exists(txn *badger.Txn, key string) (bool, error) {
	_, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

// scanKeys returns the key suffixes under prefix, in key order.
func scanKeys(txn *badger.Txn, prefix string) []string {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = []byte(prefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	var suffixes []string
	for it.Rewind(); it.ValidForPrefix(opts.Prefix); it.Next() {
		suffixes = append(suffixes, strings.TrimPrefix(string(it.Item().Key()), prefix))
	}
	return suffixes
}

func now() time.Time {
	return time.Now().UTC()
}

// ==== UserStore implementation ====

// CreateUser creates a new user. Email and username are unique.
func (s *BadgerStore) CreateUser(ctx context.Context, username, email, passwordHash string) (*store.User, error) {
	user := &store.User{
		ID:           utils.NewID(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now(),
	}

	err := s.update(ctx, func(txn *badger.Txn) error {
		for _, key := range []string{prefixUserEmail + email, prefixUserName + username} {
			taken, err := exists(txn, key)
			if err != nil {
				return err
			}
			if taken {
				return store.ErrConflict
			}
		}
		if err := txn.Set([]byte(prefixUserEmail+email), []byte(user.ID)); err != nil {
			return err
		}
		if err := txn.Set([]byte(prefixUserName+username), []byte(user.ID)); err != nil {
			return err
		}
		return setJSON(txn, prefixUser+user.ID, user)
	})
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

// GetUserByID retrieves a user by ID.
func (s *BadgerStore) GetUserByID(_ context.Context, id string) (*store.User, error) {
	var user store.User
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, prefixUser+id, &user)
	})
	if err != nil {
		return nil, fmt.Errorf("user: %w", err)
	}
	return &user, nil
}

func (s *BadgerStore) getUserByIndex(key string) (*store.User, error) {
	var user store.User
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return store.ErrNotFound
		}
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return getJSON(txn, prefixUser+string(id), &user)
	})
	if err != nil {
		return nil, fmt.Errorf("user: %w", err)
	}
	return &user, nil
}

// GetUserByEmail retrieves a user by email.
func (s *BadgerStore) GetUserByEmail(_ context.Context, email string) (*store.User, error) {
	return s.getUserByIndex(prefixUserEmail + email)
}

// GetUserByUsername retrieves a user by username.
func (s *BadgerStore) GetUserByUsername(_ context.Context, username string) (*store.User, error) {
	return s.getUserByIndex(prefixUserName + username)
}

func (s *BadgerStore) listUsers(skip string) ([]*store.User, error) {
	users := make([]*store.User, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixUser)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(opts.Prefix); it.Next() {
			var user store.User
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &user)
			}); err != nil {
				return err
			}
			if user.ID == skip {
				continue
			}
			users = append(users, &user)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// ListUsers returns the full user directory in creation order.
func (s *BadgerStore) ListUsers(_ context.Context) ([]*store.User, error) {
	return s.listUsers("")
}

// ListUsersExcept returns every user but the given one.
func (s *BadgerStore) ListUsersExcept(_ context.Context, id string) ([]*store.User, error) {
	return s.listUsers(id)
}

// GetUsersByIDs returns the users that exist among ids, ordered by id.
func (s *BadgerStore) GetUsersByIDs(_ context.Context, ids []string) ([]*store.User, error) {
	users := make([]*store.User, 0, len(ids))
	err := s.db.View(func(txn *badger.Txn) error {
		for _, id := range lo.Uniq(ids) {
			var user store.User
			err := getJSON(txn, prefixUser+id, &user)
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			users = append(users, &user)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get users: %w", err)
	}

	slices.SortFunc(users, func(a, b *store.User) int { return strings.Compare(a.ID, b.ID) })
	return users, nil
}

// ==== GroupStore implementation ====

// CreateGroup creates a group whose only member is the creator.
func (s *BadgerStore) CreateGroup(ctx context.Context, name, creatorID string) (*store.Group, error) {
	group := &store.Group{
		ID:        utils.NewID(),
		Name:      name,
		Members:   []string{creatorID},
		CreatedBy: creatorID,
		CreatedAt: now(),
	}

	if err := s.update(ctx, func(txn *badger.Txn) error {
		return setJSON(txn, prefixGroup+group.ID, group)
	}); err != nil {
		return nil, fmt.Errorf("insert group: %w", err)
	}
	return group, nil
}

// GetGroupByID retrieves a group by ID.
func (s *BadgerStore) GetGroupByID(_ context.Context, id string) (*store.Group, error) {
	var group store.Group
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, prefixGroup+id, &group)
	})
	if err != nil {
		return nil, fmt.Errorf("group: %w", err)
	}
	return &group, nil
}

// ListGroups returns all groups in creation order.
func (s *BadgerStore) ListGroups(_ context.Context) ([]*store.Group, error) {
	groups := make([]*store.Group, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixGroup)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(opts.Prefix); it.Next() {
			var group store.Group
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &group)
			}); err != nil {
				return err
			}
			groups = append(groups, &group)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	return groups, nil
}

// AddMember adds a user to a group. Existing members are left untouched.
func (s *BadgerStore) AddMember(ctx context.Context, groupID, userID string) (*store.Group, error) {
	var group store.Group
	err := s.update(ctx, func(txn *badger.Txn) error {
		group = store.Group{}
		if err := getJSON(txn, prefixGroup+groupID, &group); err != nil {
			return err
		}
		if lo.Contains(group.Members, userID) {
			return nil
		}
		group.Members = append(group.Members, userID)
		return setJSON(txn, prefixGroup+groupID, &group)
	})
	if err != nil {
		return nil, fmt.Errorf("add member: %w", err)
	}
	return &group, nil
}

// ==== MessageStore implementation ====

// SaveDirectMessage persists a direct message and indexes it under its conversation.
func (s *BadgerStore) SaveDirectMessage(ctx context.Context, msg *store.DirectMessage) error {
	if msg.ID == "" {
		msg.ID = utils.NewID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now()
	}
	msg.UpdatedAt = msg.CreatedAt

	convKey := prefixConv + store.ConversationKey(msg.SenderID, msg.ReceiverID) + ":" + msg.ID
	err := s.update(ctx, func(txn *badger.Txn) error {
		if err := setJSON(txn, prefixDirect+msg.ID, msg); err != nil {
			return err
		}
		return txn.Set([]byte(convKey), nil)
	})
	if err != nil {
		return fmt.Errorf("insert direct message: %w", err)
	}
	return nil
}

// GetDirectMessage retrieves a direct message by ID.
func (s *BadgerStore) GetDirectMessage(_ context.Context, id string) (*store.DirectMessage, error) {
	var msg store.DirectMessage
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, prefixDirect+id, &msg)
	})
	if err != nil {
		return nil, fmt.Errorf("direct message: %w", err)
	}
	return &msg, nil
}

// MarkDirectMessageRead sets read=true and returns the updated message.
func (s *BadgerStore) MarkDirectMessageRead(ctx context.Context, id string) (*store.DirectMessage, error) {
	var msg store.DirectMessage
	err := s.update(ctx, func(txn *badger.Txn) error {
		msg = store.DirectMessage{}
		if err := getJSON(txn, prefixDirect+id, &msg); err != nil {
			return err
		}
		msg.Read = true
		msg.UpdatedAt = now()
		return setJSON(txn, prefixDirect+id, &msg)
	})
	if err != nil {
		return nil, fmt.Errorf("direct message: %w", err)
	}
	return &msg, nil
}

// ListDirectMessages returns the conversation between two users, oldest first.
func (s *BadgerStore) ListDirectMessages(_ context.Context, userID, peerID string) ([]*store.DirectMessage, error) {
	messages := make([]*store.DirectMessage, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		for _, id := range scanKeys(txn, prefixConv+store.ConversationKey(userID, peerID)+":") {
			var msg store.DirectMessage
			if err := getJSON(txn, prefixDirect+id, &msg); err != nil {
				return err
			}
			messages = append(messages, &msg)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list direct messages: %w", err)
	}
	return messages, nil
}

// SaveGroupMessage persists a group message and records the sender as its first reader.
func (s *BadgerStore) SaveGroupMessage(ctx context.Context, msg *store.GroupMessage) error {
	if msg.ID == "" {
		msg.ID = utils.NewID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now()
	}
	msg.ReadBy = lo.Uniq(append([]string{msg.SenderID}, msg.ReadBy...))

	err := s.update(ctx, func(txn *badger.Txn) error {
		if err := setJSON(txn, prefixGroupMsg+msg.ID, msg); err != nil {
			return err
		}
		return txn.Set([]byte(prefixTimeline+msg.GroupID+":"+msg.ID), nil)
	})
	if err != nil {
		return fmt.Errorf("insert group message: %w", err)
	}
	return nil
}

// GetGroupMessage retrieves a group message by ID.
func (s *BadgerStore) GetGroupMessage(_ context.Context, id string) (*store.GroupMessage, error) {
	var msg store.GroupMessage
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, prefixGroupMsg+id, &msg)
	})
	if err != nil {
		return nil, fmt.Errorf("group message: %w", err)
	}
	return &msg, nil
}

// AddGroupMessageReader adds a reader to the message (set-union).
func (s *BadgerStore) AddGroupMessageReader(ctx context.Context, messageID, userID string) (*store.GroupMessage, error) {
	var msg store.GroupMessage
	err := s.update(ctx, func(txn *badger.Txn) error {
		msg = store.GroupMessage{}
		if err := getJSON(txn, prefixGroupMsg+messageID, &msg); err != nil {
			return err
		}
		if lo.Contains(msg.ReadBy, userID) {
			return nil
		}
		msg.ReadBy = append(msg.ReadBy, userID)
		return setJSON(txn, prefixGroupMsg+messageID, &msg)
	})
	if err != nil {
		return nil, fmt.Errorf("add group message reader: %w", err)
	}
	return &msg, nil
}

// ListGroupMessages returns a group's messages, oldest first.
func (s *BadgerStore) ListGroupMessages(_ context.Context, groupID string) ([]*store.GroupMessage, error) {
	messages := make([]*store.GroupMessage, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		for _, id := range scanKeys(txn, prefixTimeline+groupID+":") {
			var msg store.GroupMessage
			if err := getJSON(txn, prefixGroupMsg+id, &msg); err != nil {
				return err
			}
			messages = append(messages, &msg)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list group messages: %w", err)
	}
	return messages, nil
}

// badgerLogger routes Badger's internal logging through zerolog.
type badgerLogger struct {
	logger *zerolog.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error().Str("component", "badger").Msgf(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn().Str("component", "badger").Msgf(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug().Str("component", "badger").Msgf(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.logger.Trace().Str("component", "badger").Msgf(strings.TrimSpace(format), args...)
}

var _ store.Store = (*BadgerStore)(nil)
