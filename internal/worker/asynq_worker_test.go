package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/promo-next/internal/constants"
	"github.com/promo-next/internal/lock"
	"github.com/promo-next/internal/models"
	"github.com/promo-next/internal/provider"
	"github.com/promo-next/internal/queue"
	"github.com/promo-next/internal/repository"
	"github.com/promo-next/internal/service"

	"github.com/glebarez/sqlite"
	"github.com/hibiken/asynq"
	"gorm.io/gorm"
)

type stubLocker struct{}

func (stubLocker) Acquire(ctx context.Context, key string) (*lock.Mutex, error) {
	return &lock.Mutex{}, nil
}

type stubRangeStore struct {
	next uint
}

func (s *stubRangeStore) Available() bool { return true }

func (s *stubRangeStore) NextSerialRange(ctx context.Context, count int) (uint, uint, error) {
	begin := s.next + 1
	s.next += uint(count)
	return begin, s.next, nil
}

func (s *stubRangeStore) AddRange(ctx context.Context, couponID, serialBegin, serialEnd uint) error {
	return nil
}

func setupConsumerTest(t *testing.T) (*Consumer, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:worker_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Coupon{},
		&models.CouponScope{},
		&models.UserCoupon{},
		&models.ExchangeCode{},
		&models.ExchangeCodeBatch{},
	); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	models.DB = db

	couponRepo := repository.NewCouponRepository(db)
	userCouponRepo := repository.NewUserCouponRepository(db)
	container := &provider.Container{
		CouponRepo:     couponRepo,
		UserCouponRepo: userCouponRepo,
		SettlementService: service.NewSettlementService(
			db,
			couponRepo,
			userCouponRepo,
			repository.NewExchangeCodeRepository(db),
			repository.NewExchangeCodeBatchRepository(db),
			&stubRangeStore{},
			stubLocker{},
			100,
		),
	}
	return NewConsumer(container), db
}

func seedWorkerCoupon(t *testing.T, db *gorm.DB, mutate func(*models.Coupon)) *models.Coupon {
	t.Helper()
	now := time.Now()
	begin := now.Add(-time.Hour)
	end := now.Add(time.Hour)
	coupon := &models.Coupon{
		Name:         "巡检测试券",
		DiscountType: constants.DiscountTypeFixed,
		Value:        500,
		TotalNum:     10,
		UserLimit:    1,
		ObtainWay:    constants.ObtainWayPublic,
		Status:       constants.CouponStatusIssuing,
		IssueBeginAt: &begin,
		IssueEndAt:   &end,
		TermDays:     30,
	}
	if mutate != nil {
		mutate(coupon)
	}
	if err := db.Create(coupon).Error; err != nil {
		t.Fatalf("create coupon failed: %v", err)
	}
	return coupon
}

func TestConsumerClaimConfirmed(t *testing.T) {
	consumer, db := setupConsumerTest(t)
	coupon := seedWorkerCoupon(t, db, nil)

	task, err := queue.NewClaimConfirmedTask(queue.ClaimConfirmedPayload{
		AttemptID: "worker-attempt-1",
		CouponID:  coupon.ID,
		UserID:    7,
	})
	if err != nil {
		t.Fatalf("build task failed: %v", err)
	}
	if err := consumer.handleClaimConfirmed(context.Background(), task); err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	var count int64
	if err := db.Model(&models.UserCoupon{}).Where("attempt_id = ?", "worker-attempt-1").Count(&count).Error; err != nil {
		t.Fatalf("count user coupons failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 user coupon, got: %d", count)
	}
}

func TestConsumerClaimConfirmedDeadLetterOnReject(t *testing.T) {
	consumer, db := setupConsumerTest(t)
	coupon := seedWorkerCoupon(t, db, func(c *models.Coupon) {
		c.Status = constants.CouponStatusPause
	})

	task, err := queue.NewClaimConfirmedTask(queue.ClaimConfirmedPayload{
		AttemptID: "worker-attempt-2",
		CouponID:  coupon.ID,
		UserID:    7,
	})
	if err != nil {
		t.Fatalf("build task failed: %v", err)
	}
	handleErr := consumer.handleClaimConfirmed(context.Background(), task)
	if !errors.Is(handleErr, asynq.SkipRetry) {
		t.Fatalf("rejected event must skip retry, got: %v", handleErr)
	}
}

func TestConsumerClaimConfirmedBadPayload(t *testing.T) {
	consumer, _ := setupConsumerTest(t)

	task := asynq.NewTask(queue.TaskCouponClaimConfirmed, []byte("not-json"))
	err := consumer.handleClaimConfirmed(context.Background(), task)
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("malformed payload must skip retry, got: %v", err)
	}
}

func TestConsumerCodeGenerate(t *testing.T) {
	consumer, db := setupConsumerTest(t)
	coupon := seedWorkerCoupon(t, db, func(c *models.Coupon) {
		c.ObtainWay = constants.ObtainWayCode
		c.TotalNum = 4
	})

	task, err := queue.NewCodeGenerateTask(queue.CodeGeneratePayload{BatchKey: "batch-worker", CouponID: coupon.ID, Count: 4})
	if err != nil {
		t.Fatalf("build task failed: %v", err)
	}
	if err := consumer.handleCodeGenerate(context.Background(), task); err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	var count int64
	if err := db.Model(&models.ExchangeCode{}).Where("coupon_id = ?", coupon.ID).Count(&count).Error; err != nil {
		t.Fatalf("count codes failed: %v", err)
	}
	if count != 4 {
		t.Fatalf("expected 4 codes, got: %d", count)
	}
}

func TestConsumerCodeGenerateDeadLetterOnPublicCoupon(t *testing.T) {
	consumer, db := setupConsumerTest(t)
	coupon := seedWorkerCoupon(t, db, nil)

	task, err := queue.NewCodeGenerateTask(queue.CodeGeneratePayload{BatchKey: "batch-worker-public", CouponID: coupon.ID, Count: 4})
	if err != nil {
		t.Fatalf("build task failed: %v", err)
	}
	handleErr := consumer.handleCodeGenerate(context.Background(), task)
	if !errors.Is(handleErr, asynq.SkipRetry) {
		t.Fatalf("invalid coupon must skip retry, got: %v", handleErr)
	}
}
