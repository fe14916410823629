package main

import (
	"context"
	"fmt"

	"github.com/kurihiro0119/github-yearbook/internal/aggregator"
	"github.com/kurihiro0119/github-yearbook/internal/bootstrap"
	"github.com/kurihiro0119/github-yearbook/internal/config"
	"github.com/kurihiro0119/github-yearbook/internal/domain"
	"github.com/kurihiro0119/github-yearbook/internal/logger"
	"github.com/kurihiro0119/github-yearbook/internal/metrics"
	"github.com/kurihiro0119/github-yearbook/internal/storage"
	"github.com/kurihiro0119/github-yearbook/pkg/client"
)

// service is what the commands run against: the local engine or a remote server
type service interface {
	Stats(ctx context.Context, req aggregator.StatsRequest) (*domain.YearbookResult, error)
	Period(ctx context.Context, username, period, token string, refresh bool) (*domain.YearbookResult, error)
	Invalidate(ctx context.Context, username string, year int) (int, error)
	SaveToken(ctx context.Context, username, token, tokenType, scopes string) (*client.TokenInfo, error)
	GetToken(ctx context.Context, username string) (*client.TokenInfo, error)
	DeleteToken(ctx context.Context, username string) (int, error)
	Profile(ctx context.Context, username string) (*domain.UserProfile, error)
	Close() error
}

func openService(cfg *config.Config, remote bool) (service, error) {
	if remote {
		return &remoteService{client: client.NewClient(cfg.APIEndpoint)}, nil
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	log := logger.Init(cfg.LogLevel, cfg.LogFormat)
	store, err := bootstrap.OpenStorage(cfg)
	if err != nil {
		return nil, err
	}
	provider, err := bootstrap.NewCollector(cfg, log)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to initialize GitHub collector: %w", err)
	}

	return &localService{
		agg:   bootstrap.NewAggregator(cfg, store, provider, log, metrics.Nop{}),
		store: store,
	}, nil
}

type localService struct {
	agg   aggregator.Aggregator
	store storage.Storage
}

func (s *localService) Stats(ctx context.Context, req aggregator.StatsRequest) (*domain.YearbookResult, error) {
	return s.agg.GetStats(ctx, req)
}

func (s *localService) Period(ctx context.Context, username, period, token string, refresh bool) (*domain.YearbookResult, error) {
	return s.agg.GetPeriodStats(ctx, username, period, token, refresh)
}

func (s *localService) Invalidate(ctx context.Context, username string, year int) (int, error) {
	return s.agg.InvalidateStats(ctx, username, year)
}

func (s *localService) SaveToken(ctx context.Context, username, token, tokenType, scopes string) (*client.TokenInfo, error) {
	saved, err := s.agg.SaveToken(ctx, username, token, tokenType, scopes)
	if err != nil {
		return nil, err
	}
	return tokenInfo(saved), nil
}

func (s *localService) GetToken(ctx context.Context, username string) (*client.TokenInfo, error) {
	token, err := s.agg.GetToken(ctx, username)
	if err != nil {
		return nil, err
	}
	return tokenInfo(token), nil
}

func (s *localService) DeleteToken(ctx context.Context, username string) (int, error) {
	return s.agg.DeleteToken(ctx, username)
}

func (s *localService) Profile(ctx context.Context, username string) (*domain.UserProfile, error) {
	return s.agg.GetUserProfile(ctx, username)
}

func (s *localService) Close() error {
	return s.store.Close()
}

func tokenInfo(t *domain.StoredToken) *client.TokenInfo {
	return &client.TokenInfo{
		Username:    t.Username,
		MaskedToken: t.Masked(),
		TokenType:   t.TokenType,
		Scopes:      t.Scopes,
		IsValid:     t.IsValid,
		UpdatedAt:   t.UpdatedAt,
	}
}

type remoteService struct {
	client *client.Client
}

func (s *remoteService) Stats(ctx context.Context, req aggregator.StatsRequest) (*domain.YearbookResult, error) {
	return s.client.GetStats(ctx, req.Username, req.Year, client.StatsOptions{
		Token:     req.Token,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		Refresh:   req.ForceRefresh,
	})
}

func (s *remoteService) Period(ctx context.Context, username, period, token string, refresh bool) (*domain.YearbookResult, error) {
	return s.client.GetPeriodStats(ctx, username, period, token, refresh)
}

func (s *remoteService) Invalidate(ctx context.Context, username string, year int) (int, error) {
	return s.client.InvalidateStats(ctx, username, year)
}

func (s *remoteService) SaveToken(ctx context.Context, username, token, tokenType, scopes string) (*client.TokenInfo, error) {
	return s.client.SaveToken(ctx, username, token, tokenType, scopes)
}

func (s *remoteService) GetToken(ctx context.Context, username string) (*client.TokenInfo, error) {
	return s.client.GetToken(ctx, username)
}

func (s *remoteService) DeleteToken(ctx context.Context, username string) (int, error) {
	return s.client.DeleteToken(ctx, username)
}

func (s *remoteService) Profile(ctx context.Context, username string) (*domain.UserProfile, error) {
	return s.client.GetUserProfile(ctx, username)
}

func (s *remoteService) Close() error { return nil }
