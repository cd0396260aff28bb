package queue

import (
	"encoding/json"

	"github.com/promo-next/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskCouponClaimConfirmed 领券确认结算任务
	TaskCouponClaimConfirmed = constants.TaskCouponClaimConfirmed
	// TaskExchangeCodeGenerate 兑换码批次生成任务
	TaskExchangeCodeGenerate = constants.TaskExchangeCodeGenerate
)

// ClaimConfirmedPayload 领券确认事件载荷
// AttemptID 为领取流水号，结算侧用它做重复投递去重
// Serial 大于 0 表示本次领取来自兑换码
type ClaimConfirmedPayload struct {
	AttemptID string `json:"attempt_id"`
	CouponID  uint   `json:"coupon_id"`
	UserID    uint   `json:"user_id"`
	Serial    uint   `json:"serial,omitempty"`
}

// NewClaimConfirmedTask 创建领券确认任务
func NewClaimConfirmedTask(payload ClaimConfirmedPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCouponClaimConfirmed, data), nil
}

// CodeGeneratePayload 兑换码生成任务载荷
// BatchKey 为批次流水号，重复投递时用它去重
type CodeGeneratePayload struct {
	BatchKey string `json:"batch_key"`
	CouponID uint   `json:"coupon_id"`
	Count    int    `json:"count"`
}

// NewCodeGenerateTask 创建兑换码生成任务
func NewCodeGenerateTask(payload CodeGeneratePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskExchangeCodeGenerate, data), nil
}
