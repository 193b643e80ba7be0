package sql

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/storyshare/storyshare-api/internal/domain"
	"github.com/storyshare/storyshare-api/internal/storage"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// isUniqueViolation checks if an error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	// SQLite
	if strings.Contains(errStr, "UNIQUE constraint failed") {
		return true
	}
	// PostgreSQL
	if strings.Contains(errStr, "duplicate key value violates unique constraint") {
		return true
	}
	return false
}

// isForeignKeyViolation checks if an error is a FOREIGN KEY constraint violation.
func isForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "FOREIGN KEY constraint failed") ||
		strings.Contains(errStr, "violates foreign key constraint")
}

// wrapWriteError converts constraint violations to domain errors.
// A missing parent row surfaces as domain.ErrNotFound.
func wrapWriteError(err error) error {
	switch {
	case isUniqueViolation(err):
		return domain.ErrAlreadyExists
	case isForeignKeyViolation(err):
		return domain.ErrNotFound
	}
	return err
}

// Store implements the storage.Storage interface using SQL.
type Store struct {
	db     *sqlx.DB
	driver string
}

// New creates a new SQL store and applies pending migrations.
func New(driver, dsn string) (*Store, error) {
	if driver == "sqlite3" {
		dsn = sqliteDSN(dsn)
	}

	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if driver == "sqlite3" {
		// A single connection keeps SQLite writers from failing with SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}

	// Run migrations
	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect(driver); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting goose dialect: %w", err)
	}

	if err := goose.Up(db.DB, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db, driver: driver}, nil
}

// sqliteDSN turns on foreign key enforcement, which SQLite leaves off per
// connection unless the DSN asks for it. An explicit setting is kept.
func sqliteDSN(dsn string) string {
	_, query, _ := strings.Cut(dsn, "?")
	for _, param := range strings.Split(query, "&") {
		name, _, _ := strings.Cut(param, "=")
		if name == "_foreign_keys" || name == "_fk" {
			return dsn
		}
	}

	if strings.Contains(dsn, "?") {
		return dsn + "&_foreign_keys=on"
	}
	return dsn + "?_foreign_keys=on"
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction.
func (s *Store) BeginTx(ctx context.Context) (storage.Transaction, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx, driver: s.driver}, nil
}

// Tx wraps a database transaction.
type Tx struct {
	tx     *sqlx.Tx
	driver string
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	return mapTxDone(t.tx.Commit())
}

// Rollback rolls back the transaction.
func (t *Tx) Rollback() error {
	return mapTxDone(t.tx.Rollback())
}

func mapTxDone(err error) error {
	if errors.Is(err, sql.ErrTxDone) {
		return storage.ErrTxDone
	}
	return err
}

// Close is a no-op for transactions (they should be committed or rolled back).
func (t *Tx) Close() error {
	return nil
}

// BeginTx is not supported within a transaction.
func (t *Tx) BeginTx(ctx context.Context) (storage.Transaction, error) {
	return nil, storage.ErrNestedTx
}

// helper to get the correct database interface
type dbInterface interface {
	sqlx.ExtContext
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// requireAffected maps a zero-row write to domain.ErrNotFound.
func requireAffected(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ============================================
// API Keys
// ============================================

func createAPIKey(ctx context.Context, db dbInterface, key *domain.APIKey) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO api_keys (id, user_id, name, key_hash, key_prefix, created_at, last_used_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key.ID, key.UserID, key.Name, key.KeyHash, key.KeyPrefix, key.CreatedAt, key.LastUsedAt)
	return wrapWriteError(err)
}

func (s *Store) CreateAPIKey(ctx context.Context, key *domain.APIKey) error {
	return createAPIKey(ctx, s.db, key)
}

func (t *Tx) CreateAPIKey(ctx context.Context, key *domain.APIKey) error {
	return createAPIKey(ctx, t.tx, key)
}

func getAPIKeyByHash(ctx context.Context, db dbInterface, keyHash string) (*domain.APIKey, error) {
	var key domain.APIKey
	err := db.GetContext(ctx, &key,
		`SELECT id, user_id, name, key_hash, key_prefix, created_at, last_used_at FROM api_keys WHERE key_hash = $1`, keyHash)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &key, nil
}

func (s *Store) GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error) {
	return getAPIKeyByHash(ctx, s.db, keyHash)
}

func (t *Tx) GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error) {
	return getAPIKeyByHash(ctx, t.tx, keyHash)
}

func listAPIKeys(ctx context.Context, db dbInterface) ([]*domain.APIKey, error) {
	keys := []*domain.APIKey{}
	err := db.SelectContext(ctx, &keys,
		`SELECT id, user_id, name, key_hash, key_prefix, created_at, last_used_at FROM api_keys ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *Store) ListAPIKeys(ctx context.Context) ([]*domain.APIKey, error) {
	return listAPIKeys(ctx, s.db)
}

func (t *Tx) ListAPIKeys(ctx context.Context) ([]*domain.APIKey, error) {
	return listAPIKeys(ctx, t.tx)
}

func deleteAPIKey(ctx context.Context, db dbInterface, id string) error {
	result, err := db.ExecContext(ctx, `DELETE FROM api_keys WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

func (s *Store) DeleteAPIKey(ctx context.Context, id string) error {
	return deleteAPIKey(ctx, s.db, id)
}

func (t *Tx) DeleteAPIKey(ctx context.Context, id string) error {
	return deleteAPIKey(ctx, t.tx, id)
}

func updateAPIKeyLastUsed(ctx context.Context, db dbInterface, id string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE api_keys SET last_used_at = $1 WHERE id = $2`, time.Now(), id)
	return err
}

func (s *Store) UpdateAPIKeyLastUsed(ctx context.Context, id string) error {
	return updateAPIKeyLastUsed(ctx, s.db, id)
}

func (t *Tx) UpdateAPIKeyLastUsed(ctx context.Context, id string) error {
	return updateAPIKeyLastUsed(ctx, t.tx, id)
}

func countAPIKeys(ctx context.Context, db dbInterface) (int, error) {
	var count int
	err := db.GetContext(ctx, &count, `SELECT COUNT(*) FROM api_keys`)
	return count, err
}

func (s *Store) CountAPIKeys(ctx context.Context) (int, error) {
	return countAPIKeys(ctx, s.db)
}

func (t *Tx) CountAPIKeys(ctx context.Context) (int, error) {
	return countAPIKeys(ctx, t.tx)
}

// ============================================
// Stories
// ============================================

const storyColumns = `id, author_id, title, content, support_count, created_at, updated_at`

func createStory(ctx context.Context, db dbInterface, story *domain.Story) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO stories (id, author_id, title, content, support_count, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		story.ID, story.AuthorID, story.Title, story.Content, story.SupportCount, story.CreatedAt, story.UpdatedAt)
	return wrapWriteError(err)
}

func (s *Store) CreateStory(ctx context.Context, story *domain.Story) error {
	return createStory(ctx, s.db, story)
}

func (t *Tx) CreateStory(ctx context.Context, story *domain.Story) error {
	return createStory(ctx, t.tx, story)
}

func getStory(ctx context.Context, db dbInterface, id string) (*domain.Story, error) {
	var story domain.Story
	err := db.GetContext(ctx, &story, `SELECT `+storyColumns+` FROM stories WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &story, nil
}

func (s *Store) GetStory(ctx context.Context, id string) (*domain.Story, error) {
	return getStory(ctx, s.db, id)
}

func (t *Tx) GetStory(ctx context.Context, id string) (*domain.Story, error) {
	return getStory(ctx, t.tx, id)
}

func listStories(ctx context.Context, db dbInterface, limit, offset int) ([]*domain.Story, error) {
	query := `SELECT ` + storyColumns + ` FROM stories ORDER BY created_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1 OFFSET $2`
		args = append(args, limit, offset)
	}

	stories := []*domain.Story{}
	if err := db.SelectContext(ctx, &stories, query, args...); err != nil {
		return nil, err
	}
	return stories, nil
}

func (s *Store) ListStories(ctx context.Context, limit, offset int) ([]*domain.Story, error) {
	return listStories(ctx, s.db, limit, offset)
}

func (t *Tx) ListStories(ctx context.Context, limit, offset int) ([]*domain.Story, error) {
	return listStories(ctx, t.tx, limit, offset)
}

func lockStory(ctx context.Context, db dbInterface, driver, storyID string) error {
	query := `SELECT id FROM stories WHERE id = $1`
	// SQLite write transactions are already serialized by the single
	// connection.
	if driver == "postgres" {
		query += ` FOR UPDATE`
	}

	var id string
	err := db.GetContext(ctx, &id, query, storyID)
	if err == sql.ErrNoRows {
		return domain.ErrNotFound
	}
	return err
}

func (s *Store) LockStory(ctx context.Context, storyID string) error {
	return lockStory(ctx, s.db, s.driver, storyID)
}

func (t *Tx) LockStory(ctx context.Context, storyID string) error {
	return lockStory(ctx, t.tx, t.driver, storyID)
}

func adjustStorySupportCount(ctx context.Context, db dbInterface, storyID string, delta int) error {
	result, err := db.ExecContext(ctx,
		`UPDATE stories
		 SET support_count = CASE WHEN support_count + $1 < 0 THEN 0 ELSE support_count + $1 END,
		     updated_at = $2
		 WHERE id = $3`,
		delta, time.Now(), storyID)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

func (s *Store) AdjustStorySupportCount(ctx context.Context, storyID string, delta int) error {
	return adjustStorySupportCount(ctx, s.db, storyID, delta)
}

func (t *Tx) AdjustStorySupportCount(ctx context.Context, storyID string, delta int) error {
	return adjustStorySupportCount(ctx, t.tx, storyID, delta)
}

// ============================================
// Tags
// ============================================

const tagColumns = `id, name, slug, usage_count, is_active, created_at, updated_at`

func createTag(ctx context.Context, db dbInterface, tag *domain.Tag) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO tags (id, name, slug, usage_count, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		tag.ID, tag.Name, tag.Slug, tag.UsageCount, tag.IsActive, tag.CreatedAt, tag.UpdatedAt)
	return wrapWriteError(err)
}

func (s *Store) CreateTag(ctx context.Context, tag *domain.Tag) error {
	return createTag(ctx, s.db, tag)
}

func (t *Tx) CreateTag(ctx context.Context, tag *domain.Tag) error {
	return createTag(ctx, t.tx, tag)
}

func getTagBySlug(ctx context.Context, db dbInterface, slug string) (*domain.Tag, error) {
	var tag domain.Tag
	err := db.GetContext(ctx, &tag, `SELECT `+tagColumns+` FROM tags WHERE slug = $1`, slug)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tag, nil
}

func (s *Store) GetTagBySlug(ctx context.Context, slug string) (*domain.Tag, error) {
	return getTagBySlug(ctx, s.db, slug)
}

func (t *Tx) GetTagBySlug(ctx context.Context, slug string) (*domain.Tag, error) {
	return getTagBySlug(ctx, t.tx, slug)
}

func listTags(ctx context.Context, db dbInterface, activeOnly bool, limit int) ([]*domain.Tag, error) {
	query := `SELECT ` + tagColumns + ` FROM tags`
	args := []any{}
	if activeOnly {
		query += ` WHERE is_active = $1`
		args = append(args, true)
	}
	query += ` ORDER BY usage_count DESC, slug`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, len(args)+1)
		args = append(args, limit)
	}

	tags := []*domain.Tag{}
	if err := db.SelectContext(ctx, &tags, query, args...); err != nil {
		return nil, err
	}
	return tags, nil
}

func (s *Store) ListTags(ctx context.Context, activeOnly bool, limit int) ([]*domain.Tag, error) {
	return listTags(ctx, s.db, activeOnly, limit)
}

func (t *Tx) ListTags(ctx context.Context, activeOnly bool, limit int) ([]*domain.Tag, error) {
	return listTags(ctx, t.tx, activeOnly, limit)
}

func updateTag(ctx context.Context, db dbInterface, tag *domain.Tag) error {
	result, err := db.ExecContext(ctx,
		`UPDATE tags SET name = $1, is_active = $2, updated_at = $3 WHERE id = $4`,
		tag.Name, tag.IsActive, tag.UpdatedAt, tag.ID)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

func (s *Store) UpdateTag(ctx context.Context, tag *domain.Tag) error {
	return updateTag(ctx, s.db, tag)
}

func (t *Tx) UpdateTag(ctx context.Context, tag *domain.Tag) error {
	return updateTag(ctx, t.tx, tag)
}

func adjustTagUsage(ctx context.Context, db dbInterface, tagID string, delta int) error {
	result, err := db.ExecContext(ctx,
		`UPDATE tags
		 SET usage_count = CASE WHEN usage_count + $1 < 0 THEN 0 ELSE usage_count + $1 END,
		     updated_at = $2
		 WHERE id = $3`,
		delta, time.Now(), tagID)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

func (s *Store) AdjustTagUsage(ctx context.Context, tagID string, delta int) error {
	return adjustTagUsage(ctx, s.db, tagID, delta)
}

func (t *Tx) AdjustTagUsage(ctx context.Context, tagID string, delta int) error {
	return adjustTagUsage(ctx, t.tx, tagID, delta)
}

// ============================================
// Story Tags
// ============================================

func createStoryTag(ctx context.Context, db dbInterface, st *domain.StoryTag) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO story_tags (story_id, tag_id, created_at) VALUES ($1, $2, $3)`,
		st.StoryID, st.TagID, st.CreatedAt)
	return wrapWriteError(err)
}

func (s *Store) CreateStoryTag(ctx context.Context, storyTag *domain.StoryTag) error {
	return createStoryTag(ctx, s.db, storyTag)
}

func (t *Tx) CreateStoryTag(ctx context.Context, storyTag *domain.StoryTag) error {
	return createStoryTag(ctx, t.tx, storyTag)
}

func deleteStoryTag(ctx context.Context, db dbInterface, storyID, tagID string) error {
	result, err := db.ExecContext(ctx,
		`DELETE FROM story_tags WHERE story_id = $1 AND tag_id = $2`, storyID, tagID)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

func (s *Store) DeleteStoryTag(ctx context.Context, storyID, tagID string) error {
	return deleteStoryTag(ctx, s.db, storyID, tagID)
}

func (t *Tx) DeleteStoryTag(ctx context.Context, storyID, tagID string) error {
	return deleteStoryTag(ctx, t.tx, storyID, tagID)
}

func listStoryTags(ctx context.Context, db dbInterface, storyID string) ([]*domain.Tag, error) {
	tags := []*domain.Tag{}
	err := db.SelectContext(ctx, &tags,
		`SELECT t.id, t.name, t.slug, t.usage_count, t.is_active, t.created_at, t.updated_at
		 FROM tags t
		 JOIN story_tags st ON st.tag_id = t.id
		 WHERE st.story_id = $1
		 ORDER BY st.created_at, t.slug`, storyID)
	if err != nil {
		return nil, err
	}
	return tags, nil
}

func (s *Store) ListStoryTags(ctx context.Context, storyID string) ([]*domain.Tag, error) {
	return listStoryTags(ctx, s.db, storyID)
}

func (t *Tx) ListStoryTags(ctx context.Context, storyID string) ([]*domain.Tag, error) {
	return listStoryTags(ctx, t.tx, storyID)
}

// ============================================
// Story Supports
// ============================================

const supportColumns = `id, story_id, user_id, support_type, created_at, updated_at`

func createStorySupport(ctx context.Context, db dbInterface, sp *domain.StorySupport) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO story_supports (id, story_id, user_id, support_type, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		sp.ID, sp.StoryID, sp.UserID, sp.SupportType, sp.CreatedAt, sp.UpdatedAt)
	return wrapWriteError(err)
}

func (s *Store) CreateStorySupport(ctx context.Context, support *domain.StorySupport) error {
	return createStorySupport(ctx, s.db, support)
}

func (t *Tx) CreateStorySupport(ctx context.Context, support *domain.StorySupport) error {
	return createStorySupport(ctx, t.tx, support)
}

func getStorySupport(ctx context.Context, db dbInterface, storyID, userID string) (*domain.StorySupport, error) {
	var sp domain.StorySupport
	err := db.GetContext(ctx, &sp,
		`SELECT `+supportColumns+` FROM story_supports WHERE story_id = $1 AND user_id = $2`, storyID, userID)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sp, nil
}

func (s *Store) GetStorySupport(ctx context.Context, storyID, userID string) (*domain.StorySupport, error) {
	return getStorySupport(ctx, s.db, storyID, userID)
}

func (t *Tx) GetStorySupport(ctx context.Context, storyID, userID string) (*domain.StorySupport, error) {
	return getStorySupport(ctx, t.tx, storyID, userID)
}

func updateStorySupport(ctx context.Context, db dbInterface, sp *domain.StorySupport) error {
	result, err := db.ExecContext(ctx,
		`UPDATE story_supports SET support_type = $1, updated_at = $2 WHERE story_id = $3 AND user_id = $4`,
		sp.SupportType, sp.UpdatedAt, sp.StoryID, sp.UserID)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

func (s *Store) UpdateStorySupport(ctx context.Context, support *domain.StorySupport) error {
	return updateStorySupport(ctx, s.db, support)
}

func (t *Tx) UpdateStorySupport(ctx context.Context, support *domain.StorySupport) error {
	return updateStorySupport(ctx, t.tx, support)
}

func deleteStorySupport(ctx context.Context, db dbInterface, storyID, userID string) error {
	result, err := db.ExecContext(ctx,
		`DELETE FROM story_supports WHERE story_id = $1 AND user_id = $2`, storyID, userID)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

func (s *Store) DeleteStorySupport(ctx context.Context, storyID, userID string) error {
	return deleteStorySupport(ctx, s.db, storyID, userID)
}

func (t *Tx) DeleteStorySupport(ctx context.Context, storyID, userID string) error {
	return deleteStorySupport(ctx, t.tx, storyID, userID)
}

func countStorySupportsByType(ctx context.Context, db dbInterface, storyID string) (map[domain.SupportType]int, error) {
	var rows []struct {
		SupportType domain.SupportType `db:"support_type"`
		Count       int                `db:"count"`
	}
	err := db.SelectContext(ctx, &rows,
		`SELECT support_type, COUNT(*) AS count FROM story_supports WHERE story_id = $1 GROUP BY support_type`, storyID)
	if err != nil {
		return nil, err
	}

	counts := make(map[domain.SupportType]int, len(rows))
	for _, row := range rows {
		counts[row.SupportType] = row.Count
	}
	return counts, nil
}

func (s *Store) CountStorySupportsByType(ctx context.Context, storyID string) (map[domain.SupportType]int, error) {
	return countStorySupportsByType(ctx, s.db, storyID)
}

func (t *Tx) CountStorySupportsByType(ctx context.Context, storyID string) (map[domain.SupportType]int, error) {
	return countStorySupportsByType(ctx, t.tx, storyID)
}
