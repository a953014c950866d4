package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/kassaflow/kassaflow/internal/auditlog/domain"
	"github.com/kassaflow/kassaflow/internal/clock"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	GenID *snowflake.Node
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	genID *snowflake.Node
	repo  domain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("auditlog.service"),
		clock: p.Clock,
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) Log(ctx context.Context, level, event, message string, storeID *snowflake.ID, fields map[string]any) {
	event = strings.TrimSpace(event)
	if event == "" {
		return
	}
	if level == "" {
		level = domain.LevelInfo
	}

	payload := map[string]any{}
	for key, value := range fields {
		if key == "" {
			continue
		}
		payload[key] = value
	}

	entry := domain.AppLog{
		ID:        s.genID.Generate(),
		StoreID:   storeID,
		Level:     level,
		Event:     event,
		Message:   message,
		Context:   datatypes.JSONMap(payload),
		CreatedAt: s.clock.Now(),
	}
	if err := s.repo.Insert(ctx, s.db, &entry); err != nil {
		s.log.Warn("failed to write audit log",
			zap.String("event", event),
			zap.Error(err),
		)
	}
}

func (s *Service) List(ctx context.Context, filter domain.ListFilter) ([]domain.AppLog, error) {
	return s.repo.List(ctx, s.db, filter)
}
