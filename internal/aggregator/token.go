package aggregator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kurihiro0119/github-yearbook/internal/domain"
	apperrors "github.com/kurihiro0119/github-yearbook/internal/errors"
	"github.com/kurihiro0119/github-yearbook/internal/metrics"
	"github.com/kurihiro0119/github-yearbook/internal/storage"
)

// DefaultTokenType is used when a token is saved without a type
const DefaultTokenType = "personal_access_token"

// TokenResolver picks the credential used for a provider fetch
type TokenResolver struct {
	store    storage.TokenStore
	fallback string
	now      func() time.Time
	metrics  metrics.Recorder
	logger   *slog.Logger
}

// NewTokenResolver creates a resolver over store. fallback is used when no
// explicit or stored token exists and may be empty.
func NewTokenResolver(store storage.TokenStore, fallback string) *TokenResolver {
	return &TokenResolver{
		store:    store,
		fallback: fallback,
		now:      time.Now,
		metrics:  metrics.Nop{},
		logger:   slog.Default(),
	}
}

// Resolve returns explicit when set, else the user's stored valid token,
// else the fallback. An empty result selects public mode.
func (r *TokenResolver) Resolve(ctx context.Context, explicit, username string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	stored, err := r.reconcile(ctx, username)
	if err != nil {
		return "", err
	}
	if stored != nil {
		return stored.Token, nil
	}
	return r.fallback, nil
}

// Lookup returns the user's live valid token, or nil
func (r *TokenResolver) Lookup(ctx context.Context, username string) (*domain.StoredToken, error) {
	return r.reconcile(ctx, username)
}

// Save stores token as the user's single valid credential
func (r *TokenResolver) Save(ctx context.Context, username, token, tokenType, scopes string) (*domain.StoredToken, error) {
	if username == "" || token == "" {
		return nil, apperrors.NewBadRequestError("username and githubToken are required")
	}
	if tokenType == "" {
		tokenType = DefaultTokenType
	}

	existing, err := r.reconcile(ctx, username)
	if err != nil {
		return nil, err
	}

	now := r.now()
	if existing != nil {
		existing.Token = token
		existing.TokenType = tokenType
		existing.Scopes = scopes
		existing.IsValid = true
		existing.UpdatedAt = now
		err := r.store.UpdateToken(ctx, existing)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, apperrors.NewCacheError("update token", err)
		}
	}

	saved := &domain.StoredToken{
		ID:        uuid.NewString(),
		Username:  username,
		Token:     token,
		TokenType: tokenType,
		Scopes:    scopes,
		IsValid:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.store.InsertToken(ctx, saved); err != nil {
		return nil, apperrors.NewCacheError("insert token", err)
	}
	return saved, nil
}

// Delete removes every token of the user, valid or not, and returns how many were removed
func (r *TokenResolver) Delete(ctx context.Context, username string) (int, error) {
	tokens, err := r.store.ListTokens(ctx, username, false)
	if err != nil {
		return 0, apperrors.NewCacheError("list tokens", err)
	}
	for _, t := range tokens {
		if err := r.store.DeleteToken(ctx, t.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return 0, apperrors.NewCacheError("delete token", err)
		}
	}
	return len(tokens), nil
}

// reconcile keeps the newest valid token of the user and deletes the other valid ones
func (r *TokenResolver) reconcile(ctx context.Context, username string) (*domain.StoredToken, error) {
	tokens, err := r.store.ListTokens(ctx, username, true)
	if err != nil {
		return nil, apperrors.NewCacheError("list tokens", err)
	}
	if len(tokens) == 0 {
		return nil, nil
	}
	storage.SortTokensNewestFirst(tokens)

	for _, stale := range tokens[1:] {
		if err := r.store.DeleteToken(ctx, stale.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, apperrors.NewCacheError("delete duplicate token", err)
		}
	}
	if removed := len(tokens) - 1; removed > 0 {
		r.logger.Warn("reconciled duplicate tokens", "username", username, "removed", removed)
		r.metrics.RecordReconciled("token", removed)
	}
	return tokens[0], nil
}
