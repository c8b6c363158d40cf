package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/creatorpay/internal/clock"
	"github.com/smallbiznis/creatorpay/internal/config"
	"github.com/smallbiznis/creatorpay/internal/gatewayconfig/domain"
	paymentdomain "github.com/smallbiznis/creatorpay/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
	Cfg   config.Config
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	clock  clock.Clock
	repo   domain.Repository
	encKey []byte
}

func New(p Params) (domain.Service, error) {
	key, err := deriveKey(strings.TrimSpace(p.Cfg.GatewayConfigSecret))
	if err != nil {
		return nil, err
	}
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("gatewayconfig.service"),
		genID:  p.GenID,
		clock:  p.Clock,
		repo:   p.Repo,
		encKey: key,
	}, nil
}

func (s *Service) Upsert(ctx context.Context, req domain.UpsertRequest) (*domain.Summary, error) {
	gateway, err := normalizeGateway(req.Gateway)
	if err != nil {
		return nil, err
	}
	config := normalizeConfig(req.Config)
	if len(config) == 0 {
		return nil, domain.ErrInvalidConfig
	}
	encrypted, err := encrypt(s.encKey, config)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.Find(ctx, s.db, gateway, req.PerformerID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	cfg := domain.GatewayConfig{
		ID:          s.genID.Generate(),
		Gateway:     gateway,
		PerformerID: req.PerformerID,
		Config:      encrypted,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if existing != nil {
		cfg.ID = existing.ID
		cfg.IsActive = existing.IsActive
		cfg.CreatedAt = existing.CreatedAt
	}
	if err := s.repo.Upsert(ctx, s.db, &cfg); err != nil {
		return nil, err
	}

	s.log.Info("gateway config stored",
		zap.String("gateway", gateway),
		zap.String("performer_id", req.PerformerID.String()),
		zap.Bool("rotated", existing != nil),
	)
	return &domain.Summary{Gateway: gateway, PerformerID: req.PerformerID, IsActive: cfg.IsActive, Configured: true}, nil
}

func (s *Service) SetActive(ctx context.Context, gateway string, performerID snowflake.ID, isActive bool) (*domain.Summary, error) {
	gateway, err := normalizeGateway(gateway)
	if err != nil {
		return nil, err
	}
	updated, err := s.repo.UpdateStatus(ctx, s.db, gateway, performerID, isActive, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, domain.ErrNotFound
	}
	return &domain.Summary{Gateway: gateway, PerformerID: performerID, IsActive: isActive, Configured: true}, nil
}

func (s *Service) Resolve(ctx context.Context, gateway string, performerID snowflake.ID) (*domain.Resolved, error) {
	gateway, err := normalizeGateway(gateway)
	if err != nil {
		return nil, err
	}

	candidates := []snowflake.ID{0}
	if performerID != 0 {
		candidates = []snowflake.ID{performerID, 0}
	}
	for _, owner := range candidates {
		row, err := s.repo.Find(ctx, s.db, gateway, owner)
		if err != nil {
			return nil, err
		}
		if row == nil || !row.IsActive {
			continue
		}
		config, err := decrypt(s.encKey, row.Config)
		if err != nil {
			if errors.Is(err, domain.ErrEncryptionKeyMissing) {
				return nil, err
			}
			s.log.Warn("gateway config unreadable",
				zap.String("gateway", gateway),
				zap.String("performer_id", owner.String()),
				zap.Error(err),
			)
			continue
		}
		return &domain.Resolved{Gateway: gateway, PerformerID: owner, Config: config}, nil
	}
	return nil, domain.ErrGatewayNotConfigured
}

func (s *Service) ListActive(ctx context.Context, gateway string) ([]domain.Resolved, error) {
	gateway, err := normalizeGateway(gateway)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.ListActive(ctx, s.db, gateway)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Resolved, 0, len(rows))
	for _, row := range rows {
		config, err := decrypt(s.encKey, row.Config)
		if err != nil {
			if errors.Is(err, domain.ErrEncryptionKeyMissing) {
				return nil, err
			}
			continue
		}
		out = append(out, domain.Resolved{Gateway: gateway, PerformerID: row.PerformerID, Config: config})
	}
	return out, nil
}

func normalizeGateway(gateway string) (string, error) {
	gateway = paymentdomain.NormalizeGateway(gateway)
	if !paymentdomain.IsExternalGateway(gateway) {
		return "", domain.ErrInvalidGateway
	}
	return gateway, nil
}

func normalizeConfig(config map[string]any) map[string]any {
	if len(config) == 0 {
		return nil
	}

	normalized := make(map[string]any, len(config))
	for key, value := range config {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" || value == nil {
			continue
		}
		if str, ok := value.(string); ok {
			str = strings.TrimSpace(str)
			if str == "" {
				continue
			}
			normalized[trimmedKey] = str
			continue
		}
		normalized[trimmedKey] = value
	}

	if len(normalized) == 0 {
		return nil
	}
	return normalized
}
