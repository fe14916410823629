package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"

	"github.com/kurihiro0119/github-yearbook/internal/domain"
	"github.com/kurihiro0119/github-yearbook/internal/storage"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const statsColumns = `id, username, year, avatar_url, bio, company, location, followers, following,
	total_contributions, total_commits, pull_requests, pull_request_reviews, issues,
	longest_streak, current_streak, active_days, repo_count,
	public_repo_count, private_repo_count, total_repo_count,
	daily_contributions, language_stats, top_repos, organizations, created_at, updated_at`

// sqliteStorage implements the Storage interface for SQLite
type sqliteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (storage.Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	s := &sqliteStorage{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Migrate applies the embedded schema migrations
func (s *sqliteStorage) Migrate(ctx context.Context) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	// The driver owns the *sql.DB once created; the migrator is never closed
	// so that the connection pool stays usable.
	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// ListYearStats returns every cached row for the key, newest first
func (s *sqliteStorage) ListYearStats(ctx context.Context, username string, year int) ([]*domain.YearStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+statsColumns+`
		FROM yearbook_stats
		WHERE username = ? AND year = ?
		ORDER BY updated_at DESC
	`, username, year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.YearStats
	for rows.Next() {
		stats, err := scanYearStats(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, stats)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	storage.SortYearStatsNewestFirst(result)
	return result, nil
}

// InsertYearStats adds a new cached row
func (s *sqliteStorage) InsertYearStats(ctx context.Context, stats *domain.YearStats) error {
	payload, err := marshalPayload(stats)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO yearbook_stats (`+statsColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		stats.ID, stats.Username, stats.Year,
		stats.AvatarURL, stats.Bio, stats.Company, stats.Location, stats.Followers, stats.Following,
		stats.TotalContributions, stats.TotalCommits, stats.PullRequests, stats.PullRequestReviews, stats.Issues,
		stats.LongestStreak, stats.CurrentStreak, stats.ActiveDays, stats.RepoCount,
		stats.PublicRepoCount, stats.PrivateRepoCount, stats.TotalRepoCount,
		payload.daily, payload.languages, payload.repos, payload.orgs,
		stats.CreatedAt.UTC(), stats.UpdatedAt.UTC(),
	)
	return err
}

// UpdateYearStats overwrites every field of an existing row
func (s *sqliteStorage) UpdateYearStats(ctx context.Context, stats *domain.YearStats) error {
	payload, err := marshalPayload(stats)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE yearbook_stats SET
			avatar_url = ?, bio = ?, company = ?, location = ?, followers = ?, following = ?,
			total_contributions = ?, total_commits = ?, pull_requests = ?, pull_request_reviews = ?, issues = ?,
			longest_streak = ?, current_streak = ?, active_days = ?, repo_count = ?,
			public_repo_count = ?, private_repo_count = ?, total_repo_count = ?,
			daily_contributions = ?, language_stats = ?, top_repos = ?, organizations = ?,
			updated_at = ?
		WHERE id = ?
	`,
		stats.AvatarURL, stats.Bio, stats.Company, stats.Location, stats.Followers, stats.Following,
		stats.TotalContributions, stats.TotalCommits, stats.PullRequests, stats.PullRequestReviews, stats.Issues,
		stats.LongestStreak, stats.CurrentStreak, stats.ActiveDays, stats.RepoCount,
		stats.PublicRepoCount, stats.PrivateRepoCount, stats.TotalRepoCount,
		payload.daily, payload.languages, payload.repos, payload.orgs,
		stats.UpdatedAt.UTC(),
		stats.ID,
	)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// DeleteYearStats removes a cached row
func (s *sqliteStorage) DeleteYearStats(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM yearbook_stats WHERE id = ?`, id)
	return err
}

// ListTokens returns the user's tokens, newest first
func (s *sqliteStorage) ListTokens(ctx context.Context, username string, validOnly bool) ([]*domain.StoredToken, error) {
	query := `
		SELECT id, username, github_token, token_type, scopes, is_valid, created_at, updated_at
		FROM user_tokens
		WHERE username = ?
	`
	if validOnly {
		query += ` AND is_valid = 1`
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := s.db.QueryContext(ctx, query, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.StoredToken
	for rows.Next() {
		var t domain.StoredToken
		var isValid int
		if err := rows.Scan(&t.ID, &t.Username, &t.Token, &t.TokenType, &t.Scopes, &isValid, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		t.IsValid = isValid == 1
		result = append(result, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	storage.SortTokensNewestFirst(result)
	return result, nil
}

// InsertToken saves a new token row
func (s *sqliteStorage) InsertToken(ctx context.Context, token *domain.StoredToken) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_tokens (id, username, github_token, token_type, scopes, is_valid, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, token.ID, token.Username, token.Token, token.TokenType, token.Scopes, boolToInt(token.IsValid),
		token.CreatedAt.UTC(), token.UpdatedAt.UTC())
	return err
}

// UpdateToken overwrites an existing token row
func (s *sqliteStorage) UpdateToken(ctx context.Context, token *domain.StoredToken) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE user_tokens
		SET github_token = ?, token_type = ?, scopes = ?, is_valid = ?, updated_at = ?
		WHERE id = ?
	`, token.Token, token.TokenType, token.Scopes, boolToInt(token.IsValid), token.UpdatedAt.UTC(), token.ID)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// DeleteToken removes a token row
func (s *sqliteStorage) DeleteToken(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM user_tokens WHERE id = ?`, id)
	return err
}

// UpsertUserProfile saves the latest profile snapshot
func (s *sqliteStorage) UpsertUserProfile(ctx context.Context, profile *domain.UserProfile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, avatar_url, bio, company, location, followers, following,
			public_repos, private_repos, total_repos, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(username) DO UPDATE SET
			avatar_url = excluded.avatar_url,
			bio = excluded.bio,
			company = excluded.company,
			location = excluded.location,
			followers = excluded.followers,
			following = excluded.following,
			public_repos = excluded.public_repos,
			private_repos = excluded.private_repos,
			total_repos = excluded.total_repos,
			updated_at = excluded.updated_at
	`,
		profile.Username, profile.AvatarURL, profile.Bio, profile.Company, profile.Location,
		profile.Followers, profile.Following,
		profile.PublicRepoCount, profile.PrivateRepoCount, profile.TotalRepoCount,
		profile.CreatedAt.UTC(), profile.UpdatedAt.UTC(),
	)
	return err
}

// GetUserProfile returns the stored profile or nil when absent
func (s *sqliteStorage) GetUserProfile(ctx context.Context, username string) (*domain.UserProfile, error) {
	var p domain.UserProfile
	err := s.db.QueryRowContext(ctx, `
		SELECT username, avatar_url, bio, company, location, followers, following,
			public_repos, private_repos, total_repos, created_at, updated_at
		FROM users
		WHERE username = ?
	`, username).Scan(
		&p.Username, &p.AvatarURL, &p.Bio, &p.Company, &p.Location, &p.Followers, &p.Following,
		&p.PublicRepoCount, &p.PrivateRepoCount, &p.TotalRepoCount, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Close closes the database connection
func (s *sqliteStorage) Close() error {
	return s.db.Close()
}

type statsPayload struct {
	daily, languages, repos, orgs string
}

func marshalPayload(stats *domain.YearStats) (statsPayload, error) {
	var p statsPayload
	var err error
	if p.daily, err = marshalList(stats.DailyContributions); err != nil {
		return p, err
	}
	if p.languages, err = marshalList(stats.LanguageStats); err != nil {
		return p, err
	}
	if p.repos, err = marshalList(stats.TopRepos); err != nil {
		return p, err
	}
	if p.orgs, err = marshalList(stats.Organizations); err != nil {
		return p, err
	}
	return p, nil
}

func marshalList[T any](items []T) (string, error) {
	if items == nil {
		items = []T{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func scanYearStats(rows *sql.Rows) (*domain.YearStats, error) {
	var st domain.YearStats
	var daily, languages, repos, orgs string
	var createdAt, updatedAt time.Time

	err := rows.Scan(
		&st.ID, &st.Username, &st.Year,
		&st.AvatarURL, &st.Bio, &st.Company, &st.Location, &st.Followers, &st.Following,
		&st.TotalContributions, &st.TotalCommits, &st.PullRequests, &st.PullRequestReviews, &st.Issues,
		&st.LongestStreak, &st.CurrentStreak, &st.ActiveDays, &st.RepoCount,
		&st.PublicRepoCount, &st.PrivateRepoCount, &st.TotalRepoCount,
		&daily, &languages, &repos, &orgs,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(daily), &st.DailyContributions); err != nil {
		return nil, fmt.Errorf("decode daily_contributions: %w", err)
	}
	if err := json.Unmarshal([]byte(languages), &st.LanguageStats); err != nil {
		return nil, fmt.Errorf("decode language_stats: %w", err)
	}
	if err := json.Unmarshal([]byte(repos), &st.TopRepos); err != nil {
		return nil, fmt.Errorf("decode top_repos: %w", err)
	}
	if err := json.Unmarshal([]byte(orgs), &st.Organizations); err != nil {
		return nil, fmt.Errorf("decode organizations: %w", err)
	}

	st.CreatedAt = createdAt.UTC()
	st.UpdatedAt = updatedAt.UTC()
	return &st, nil
}

func requireAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
