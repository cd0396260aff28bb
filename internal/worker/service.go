package worker

import (
	"context"
	"errors"
	"time"

	"github.com/promo-next/internal/config"
	"github.com/promo-next/internal/logger"
	"github.com/promo-next/internal/queue"

	"github.com/hibiken/asynq"
)

const defaultExpireSweepInterval = time.Minute

// Service 异步队列服务
type Service struct {
	name     string
	server   *asynq.Server
	mux      *asynq.ServeMux
	consumer *Consumer
}

// NewService 创建异步队列服务
func NewService(cfg *config.QueueConfig, consumer *Consumer) (*Service, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, errors.New("queue disabled")
	}
	if consumer == nil {
		return nil, errors.New("consumer is nil")
	}
	opt, serverCfg := queue.BuildServerConfig(cfg)
	server := asynq.NewServer(opt, serverCfg)
	mux := asynq.NewServeMux()
	consumer.Register(mux)
	return &Service{
		name:     "worker",
		server:   server,
		mux:      mux,
		consumer: consumer,
	}, nil
}

// Name 服务名称
func (s *Service) Name() string {
	if s == nil || s.name == "" {
		return "worker"
	}
	return s.name
}

// Start 启动服务
func (s *Service) Start(ctx context.Context) error {
	if s == nil || s.server == nil || s.mux == nil {
		return errors.New("worker not initialized")
	}
	if s.consumer != nil && s.consumer.Container != nil {
		go s.runExpireSweepLoop(ctx)
	}
	return s.server.Run(s.mux)
}

// Stop 停止服务
func (s *Service) Stop(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	_ = ctx
	s.server.Shutdown()
	return nil
}

// runExpireSweepLoop 周期巡检发放窗口与用户券有效期
func (s *Service) runExpireSweepLoop(ctx context.Context) {
	c := s.consumer.Container
	if c.CouponRepo == nil || c.UserCouponRepo == nil {
		return
	}
	interval := defaultExpireSweepInterval
	if c.Config != nil && c.Config.Promotion.ExpireSweepSeconds > 0 {
		interval = time.Duration(c.Config.Promotion.ExpireSweepSeconds) * time.Second
	}

	runOnce := func() {
		now := time.Now()
		finished, err := c.CouponRepo.FinishExpiredIssues(now)
		if err != nil {
			logger.Warnw("worker_finish_expired_issues_failed", "error", err)
		} else if finished > 0 {
			logger.Infow("worker_finish_expired_issues", "count", finished)
		}
		expired, err := c.UserCouponRepo.ExpireOverdue(now)
		if err != nil {
			logger.Warnw("worker_expire_overdue_failed", "error", err)
		} else if expired > 0 {
			logger.Infow("worker_expire_overdue", "count", expired)
		}
	}
	runOnce()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}
