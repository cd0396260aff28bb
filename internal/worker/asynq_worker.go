package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/promo-next/internal/logger"
	"github.com/promo-next/internal/provider"
	"github.com/promo-next/internal/queue"
	"github.com/promo-next/internal/service"

	"github.com/hibiken/asynq"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskCouponClaimConfirmed, c.handleClaimConfirmed)
	mux.HandleFunc(queue.TaskExchangeCodeGenerate, c.handleCodeGenerate)
}

// handleClaimConfirmed 消费领券确认事件
// 校验失败与完整性告警属于永久失败，送入死信不再重试
func (c *Consumer) handleClaimConfirmed(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_claim_confirmed_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.ClaimConfirmedPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_claim_confirmed_unmarshal_failed", "error", err)
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	if c.SettlementService == nil {
		logger.Warnw("worker_claim_confirmed_skip_service_nil", "attempt_id", payload.AttemptID)
		return nil
	}
	err := c.SettlementService.HandleClaimConfirmed(ctx, payload)
	if err == nil {
		return nil
	}
	if errors.Is(err, service.ErrSettleRejected) || errors.Is(err, service.ErrSettleIntegrity) {
		logger.Warnw("worker_claim_confirmed_dead_letter",
			"attempt_id", payload.AttemptID,
			"coupon_id", payload.CouponID,
			"user_id", payload.UserID,
			"error", err,
		)
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	logger.Warnw("worker_claim_confirmed_failed", "attempt_id", payload.AttemptID, "error", err)
	return err
}

// handleCodeGenerate 消费兑换码批次生成任务
func (c *Consumer) handleCodeGenerate(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_code_generate_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.CodeGeneratePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_code_generate_unmarshal_failed", "error", err)
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	if c.SettlementService == nil {
		logger.Warnw("worker_code_generate_skip_service_nil", "coupon_id", payload.CouponID)
		return nil
	}
	err := c.SettlementService.GenerateCodeBatch(ctx, payload)
	if err == nil {
		return nil
	}
	if errors.Is(err, service.ErrSettleRejected) {
		logger.Warnw("worker_code_generate_dead_letter", "coupon_id", payload.CouponID, "error", err)
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	logger.Warnw("worker_code_generate_failed", "coupon_id", payload.CouponID, "error", err)
	return err
}
