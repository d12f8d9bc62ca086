package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/wirechat-server/internal/store"
	"github.com/vovakirdan/wirechat-server/internal/utils"
)

//go:embed schema.sql
var schema string

const dsnOptions = "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New opens (or creates) the database at dbPath and applies the schema.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, ApplySchema)
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply a schema to an in-memory database.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+dsnOptions)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps ":memory:" databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// ApplySchema creates all tables and indexes if they do not exist.
func ApplySchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func now() time.Time {
	return time.Now().UTC()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func notFound(what string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	return fmt.Errorf("query %s: %w", what, err)
}

// ==== UserStore implementation ====

const userColumns = `id, username, email, password_hash, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*store.User, error) {
	var user store.User
	if err := row.Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt); err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateUser creates a new user.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, email, passwordHash string) (*store.User, error) {
	user := &store.User{
		ID:           utils.NewID(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now(),
	}

	query := `
		INSERT INTO users (id, username, email, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, user.ID, user.Username, user.Email, user.PasswordHash, user.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("insert user: %w", store.ErrConflict)
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	return user, nil
}

func (s *SQLiteStore) getUser(ctx context.Context, where string, arg any) (*store.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + where
	user, err := scanUser(s.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		return nil, notFound("user", err)
	}
	return user, nil
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (*store.User, error) {
	return s.getUser(ctx, "id = ?", id)
}

// GetUserByEmail retrieves a user by email.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	return s.getUser(ctx, "email = ?", email)
}

// GetUserByUsername retrieves a user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	return s.getUser(ctx, "username = ?", username)
}

func (s *SQLiteStore) queryUsers(ctx context.Context, query string, args ...any) ([]*store.User, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	users := make([]*store.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}

	return users, rows.Err()
}

// ListUsers returns the full user directory in creation order.
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]*store.User, error) {
	return s.queryUsers(ctx, `SELECT `+userColumns+` FROM users ORDER BY id ASC`)
}

// ListUsersExcept returns every user but the given one.
func (s *SQLiteStore) ListUsersExcept(ctx context.Context, id string) ([]*store.User, error) {
	return s.queryUsers(ctx, `SELECT `+userColumns+` FROM users WHERE id <> ? ORDER BY id ASC`, id)
}

// GetUsersByIDs returns the users that exist among ids.
func (s *SQLiteStore) GetUsersByIDs(ctx context.Context, ids []string) ([]*store.User, error) {
	if len(ids) == 0 {
		return []*store.User{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE id IN (` + placeholders + `) ORDER BY id ASC`
	return s.queryUsers(ctx, query, args...)
}

// ==== GroupStore implementation ====

// CreateGroup creates a group whose only member is the creator.
func (s *SQLiteStore) CreateGroup(ctx context.Context, name, creatorID string) (*store.Group, error) {
	group := &store.Group{
		ID:        utils.NewID(),
		Name:      name,
		Members:   []string{creatorID},
		CreatedBy: creatorID,
		CreatedAt: now(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO chat_groups (id, name, created_by, created_at) VALUES (?, ?, ?, ?)`,
		group.ID, group.Name, group.CreatedBy, group.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("insert group: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO group_members (group_id, user_id, joined_at) VALUES (?, ?, ?)`,
		group.ID, creatorID, group.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("insert creator membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return group, nil
}

// GetGroupByID retrieves a group by ID together with its members.
func (s *SQLiteStore) GetGroupByID(ctx context.Context, id string) (*store.Group, error) {
	var group store.Group
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_by, created_at FROM chat_groups WHERE id = ?`, id,
	).Scan(&group.ID, &group.Name, &group.CreatedBy, &group.CreatedAt)
	if err != nil {
		return nil, notFound("group", err)
	}

	members, err := s.listMembers(ctx, id)
	if err != nil {
		return nil, err
	}
	group.Members = members

	return &group, nil
}

func (s *SQLiteStore) listMembers(ctx context.Context, groupID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM group_members WHERE group_id = ? ORDER BY rowid ASC`, groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	members := make([]string, 0)
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, userID)
	}

	return members, rows.Err()
}

// ListGroups returns all groups in creation order. Members are not loaded.
func (s *SQLiteStore) ListGroups(ctx context.Context) ([]*store.Group, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, created_by, created_at FROM chat_groups ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query groups: %w", err)
	}
	defer rows.Close()

	groups := make([]*store.Group, 0)
	for rows.Next() {
		var group store.Group
		if err := rows.Scan(&group.ID, &group.Name, &group.CreatedBy, &group.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		groups = append(groups, &group)
	}

	return groups, rows.Err()
}

// AddMember adds a user to a group. Existing members are left untouched.
func (s *SQLiteStore) AddMember(ctx context.Context, groupID, userID string) (*store.Group, error) {
	if _, err := s.GetGroupByID(ctx, groupID); err != nil {
		return nil, err
	}

	query := `
		INSERT OR IGNORE INTO group_members (group_id, user_id, joined_at)
		VALUES (?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, groupID, userID, now()); err != nil {
		return nil, fmt.Errorf("insert group member: %w", err)
	}

	return s.GetGroupByID(ctx, groupID)
}

// ==== MessageStore implementation ====

const directColumns = `id, sender_id, receiver_id, body, read, created_at, updated_at`

func scanDirect(row rowScanner) (*store.DirectMessage, error) {
	var msg store.DirectMessage
	if err := row.Scan(&msg.ID, &msg.SenderID, &msg.ReceiverID, &msg.Body, &msg.Read, &msg.CreatedAt, &msg.UpdatedAt); err != nil {
		return nil, err
	}
	return &msg, nil
}

// SaveDirectMessage persists a direct message.
func (s *SQLiteStore) SaveDirectMessage(ctx context.Context, msg *store.DirectMessage) error {
	if msg.ID == "" {
		msg.ID = utils.NewID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now()
	}
	msg.UpdatedAt = msg.CreatedAt

	query := `
		INSERT INTO direct_messages (id, sender_id, receiver_id, conversation_key, body, read, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		msg.ID,
		msg.SenderID,
		msg.ReceiverID,
		store.ConversationKey(msg.SenderID, msg.ReceiverID),
		msg.Body,
		msg.Read,
		msg.CreatedAt,
		msg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert direct message: %w", err)
	}

	return nil
}

// GetDirectMessage retrieves a direct message by ID.
func (s *SQLiteStore) GetDirectMessage(ctx context.Context, id string) (*store.DirectMessage, error) {
	msg, err := scanDirect(s.db.QueryRowContext(ctx, `SELECT `+directColumns+` FROM direct_messages WHERE id = ?`, id))
	if err != nil {
		return nil, notFound("direct message", err)
	}
	return msg, nil
}

// MarkDirectMessageRead sets read=true and returns the updated message.
func (s *SQLiteStore) MarkDirectMessageRead(ctx context.Context, id string) (*store.DirectMessage, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE direct_messages SET read = 1, updated_at = ? WHERE id = ?`, now(), id)
	if err != nil {
		return nil, fmt.Errorf("update direct message: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return nil, fmt.Errorf("direct message: %w", store.ErrNotFound)
	}

	return s.GetDirectMessage(ctx, id)
}

// ListDirectMessages returns the conversation between two users, oldest first.
func (s *SQLiteStore) ListDirectMessages(ctx context.Context, userID, peerID string) ([]*store.DirectMessage, error) {
	query := `
		SELECT ` + directColumns + `
		FROM direct_messages
		WHERE conversation_key = ?
		ORDER BY id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, store.ConversationKey(userID, peerID))
	if err != nil {
		return nil, fmt.Errorf("query direct messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*store.DirectMessage, 0)
	for rows.Next() {
		msg, err := scanDirect(rows)
		if err != nil {
			return nil, fmt.Errorf("scan direct message: %w", err)
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

// SaveGroupMessage persists a group message and records the sender as its first reader.
func (s *SQLiteStore) SaveGroupMessage(ctx context.Context, msg *store.GroupMessage) error {
	if msg.ID == "" {
		msg.ID = utils.NewID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO group_messages (id, group_id, sender_id, body, created_at) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.GroupID, msg.SenderID, msg.Body, msg.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert group message: %w", err)
	}

	readers := append([]string{msg.SenderID}, msg.ReadBy...)
	for _, reader := range readers {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO group_message_reads (message_id, user_id, read_at) VALUES (?, ?, ?)`,
			msg.ID, reader, msg.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert group message reader: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	readBy, err := s.listReaders(ctx, msg.ID)
	if err != nil {
		return err
	}
	msg.ReadBy = readBy
	return nil
}

// GetGroupMessage retrieves a group message by ID.
func (s *SQLiteStore) GetGroupMessage(ctx context.Context, id string) (*store.GroupMessage, error) {
	var msg store.GroupMessage
	err := s.db.QueryRowContext(ctx,
		`SELECT id, group_id, sender_id, body, created_at FROM group_messages WHERE id = ?`, id,
	).Scan(&msg.ID, &msg.GroupID, &msg.SenderID, &msg.Body, &msg.CreatedAt)
	if err != nil {
		return nil, notFound("group message", err)
	}

	readBy, err := s.listReaders(ctx, id)
	if err != nil {
		return nil, err
	}
	msg.ReadBy = readBy

	return &msg, nil
}

func (s *SQLiteStore) listReaders(ctx context.Context, messageID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM group_message_reads WHERE message_id = ? ORDER BY rowid ASC`, messageID,
	)
	if err != nil {
		return nil, fmt.Errorf("query readers: %w", err)
	}
	defer rows.Close()

	readers := make([]string, 0)
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("scan reader: %w", err)
		}
		readers = append(readers, userID)
	}

	return readers, rows.Err()
}

// AddGroupMessageReader adds a reader to the message (set-union).
func (s *SQLiteStore) AddGroupMessageReader(ctx context.Context, messageID, userID string) (*store.GroupMessage, error) {
	if _, err := s.GetGroupMessage(ctx, messageID); err != nil {
		return nil, err
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO group_message_reads (message_id, user_id, read_at) VALUES (?, ?, ?)`,
		messageID, userID, now(),
	); err != nil {
		return nil, fmt.Errorf("insert group message reader: %w", err)
	}

	return s.GetGroupMessage(ctx, messageID)
}

// ListGroupMessages returns a group's messages, oldest first, with their readers.
func (s *SQLiteStore) ListGroupMessages(ctx context.Context, groupID string) ([]*store.GroupMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, group_id, sender_id, body, created_at FROM group_messages WHERE group_id = ? ORDER BY id ASC`, groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("query group messages: %w", err)
	}

	messages := make([]*store.GroupMessage, 0)
	for rows.Next() {
		var msg store.GroupMessage
		if err := rows.Scan(&msg.ID, &msg.GroupID, &msg.SenderID, &msg.Body, &msg.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan group message: %w", err)
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	// Release the single pooled connection before issuing the per-message reader queries.
	rows.Close()

	for _, msg := range messages {
		readBy, err := s.listReaders(ctx, msg.ID)
		if err != nil {
			return nil, err
		}
		msg.ReadBy = readBy
	}

	return messages, nil
}

// Ensure SQLiteStore implements store.Store
var _ store.Store = (*SQLiteStore)(nil)
