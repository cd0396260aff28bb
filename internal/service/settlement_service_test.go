package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/promo-next/internal/codes"
	"github.com/promo-next/internal/constants"
	"github.com/promo-next/internal/lock"
	"github.com/promo-next/internal/models"
	"github.com/promo-next/internal/queue"
	"github.com/promo-next/internal/repository"

	"gorm.io/gorm"
)

type rangeEntry struct {
	couponID    uint
	serialBegin uint
	serialEnd   uint
}

// fakeRangeStore 进程内实现的发号器与区间索引
type fakeRangeStore struct {
	mu     sync.Mutex
	next   uint
	down   bool
	ranges []rangeEntry
}

func (f *fakeRangeStore) Available() bool {
	return !f.down
}

func (f *fakeRangeStore) NextSerialRange(ctx context.Context, count int) (uint, uint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	begin := f.next + 1
	f.next += uint(count)
	return begin, f.next, nil
}

func (f *fakeRangeStore) AddRange(ctx context.Context, couponID, serialBegin, serialEnd uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ranges = append(f.ranges, rangeEntry{couponID: couponID, serialBegin: serialBegin, serialEnd: serialEnd})
	return nil
}

func setupSettlementServiceTest(t *testing.T) (*SettlementService, *fakeRangeStore, *fakeLocker, *gorm.DB) {
	t.Helper()
	db := openPromotionTestDB(t, "settlement_service_test")
	ranges := &fakeRangeStore{}
	locker := &fakeLocker{}
	svc := NewSettlementService(
		db,
		repository.NewCouponRepository(db),
		repository.NewUserCouponRepository(db),
		repository.NewExchangeCodeRepository(db),
		repository.NewExchangeCodeBatchRepository(db),
		ranges,
		locker,
		100,
	)
	return svc, ranges, locker, db
}

func TestHandleClaimConfirmedCreatesUserCoupon(t *testing.T) {
	svc, _, _, db := setupSettlementServiceTest(t)
	coupon := seedIssuingCoupon(t, db, nil)

	payload := queue.ClaimConfirmedPayload{AttemptID: "attempt-1", CouponID: coupon.ID, UserID: 7}
	if err := svc.HandleClaimConfirmed(context.Background(), payload); err != nil {
		t.Fatalf("handle claim failed: %v", err)
	}

	var userCoupon models.UserCoupon
	if err := db.Where("attempt_id = ?", "attempt-1").First(&userCoupon).Error; err != nil {
		t.Fatalf("query user coupon failed: %v", err)
	}
	if userCoupon.Status != constants.UserCouponStatusUnused {
		t.Fatalf("expected unused status, got: %s", userCoupon.Status)
	}
	if !userCoupon.TermEndAt.After(userCoupon.TermBeginAt) {
		t.Fatalf("invalid term window: %v - %v", userCoupon.TermBeginAt, userCoupon.TermEndAt)
	}

	var check models.Coupon
	if err := db.First(&check, coupon.ID).Error; err != nil {
		t.Fatalf("query coupon failed: %v", err)
	}
	if check.IssueNum != 1 {
		t.Fatalf("expected issue_num 1, got: %d", check.IssueNum)
	}
}

func TestHandleClaimConfirmedDuplicateDelivery(t *testing.T) {
	svc, _, _, db := setupSettlementServiceTest(t)
	coupon := seedIssuingCoupon(t, db, nil)

	payload := queue.ClaimConfirmedPayload{AttemptID: "attempt-dup", CouponID: coupon.ID, UserID: 7}
	if err := svc.HandleClaimConfirmed(context.Background(), payload); err != nil {
		t.Fatalf("first delivery failed: %v", err)
	}
	if err := svc.HandleClaimConfirmed(context.Background(), payload); err != nil {
		t.Fatalf("duplicate delivery should be absorbed, got: %v", err)
	}

	var count int64
	if err := db.Model(&models.UserCoupon{}).Where("attempt_id = ?", "attempt-dup").Count(&count).Error; err != nil {
		t.Fatalf("count user coupons failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly 1 user coupon, got: %d", count)
	}
	var check models.Coupon
	if err := db.First(&check, coupon.ID).Error; err != nil {
		t.Fatalf("query coupon failed: %v", err)
	}
	if check.IssueNum != 1 {
		t.Fatalf("duplicate delivery must not bump issue_num, got: %d", check.IssueNum)
	}
}

func TestHandleClaimConfirmedIssueOverflow(t *testing.T) {
	svc, _, _, db := setupSettlementServiceTest(t)
	coupon := seedIssuingCoupon(t, db, func(c *models.Coupon) {
		c.TotalNum = 1
		c.IssueNum = 1
		c.UserLimit = 5
	})

	payload := queue.ClaimConfirmedPayload{AttemptID: "attempt-overflow", CouponID: coupon.ID, UserID: 7}
	err := svc.HandleClaimConfirmed(context.Background(), payload)
	if !errors.Is(err, ErrSettleIntegrity) {
		t.Fatalf("expected ErrSettleIntegrity, got: %v", err)
	}

	var count int64
	if err := db.Model(&models.UserCoupon{}).Where("attempt_id = ?", "attempt-overflow").Count(&count).Error; err != nil {
		t.Fatalf("count user coupons failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("overflowed claim must not persist a user coupon, got: %d", count)
	}
}

func TestHandleClaimConfirmedRejectsNotIssuing(t *testing.T) {
	svc, _, _, db := setupSettlementServiceTest(t)
	coupon := seedIssuingCoupon(t, db, func(c *models.Coupon) {
		c.Status = constants.CouponStatusPause
	})

	payload := queue.ClaimConfirmedPayload{AttemptID: "attempt-paused", CouponID: coupon.ID, UserID: 7}
	err := svc.HandleClaimConfirmed(context.Background(), payload)
	if !errors.Is(err, ErrSettleRejected) {
		t.Fatalf("expected ErrSettleRejected, got: %v", err)
	}
}

func TestHandleClaimConfirmedRejectsMissingFields(t *testing.T) {
	svc, _, _, _ := setupSettlementServiceTest(t)

	err := svc.HandleClaimConfirmed(context.Background(), queue.ClaimConfirmedPayload{CouponID: 1, UserID: 7})
	if !errors.Is(err, ErrSettleRejected) {
		t.Fatalf("expected ErrSettleRejected, got: %v", err)
	}
}

func TestHandleClaimConfirmedRejectsUserLimit(t *testing.T) {
	svc, _, _, db := setupSettlementServiceTest(t)
	coupon := seedIssuingCoupon(t, db, nil)
	seedUserCoupon(t, db, 7, coupon.ID, nil)

	payload := queue.ClaimConfirmedPayload{AttemptID: "attempt-limit", CouponID: coupon.ID, UserID: 7}
	err := svc.HandleClaimConfirmed(context.Background(), payload)
	if !errors.Is(err, ErrSettleRejected) {
		t.Fatalf("expected ErrSettleRejected, got: %v", err)
	}
}

func TestHandleClaimConfirmedLockTimeoutIsRetryable(t *testing.T) {
	svc, _, locker, db := setupSettlementServiceTest(t)
	coupon := seedIssuingCoupon(t, db, nil)
	locker.err = lock.ErrLockTimeout

	payload := queue.ClaimConfirmedPayload{AttemptID: "attempt-lock", CouponID: coupon.ID, UserID: 7}
	err := svc.HandleClaimConfirmed(context.Background(), payload)
	if err == nil {
		t.Fatal("expected error when lock times out")
	}
	if errors.Is(err, ErrSettleRejected) || errors.Is(err, ErrSettleIntegrity) {
		t.Fatalf("lock timeout must stay retryable, got: %v", err)
	}
}

func TestHandleClaimConfirmedMarksExchangeCode(t *testing.T) {
	svc, _, _, db := setupSettlementServiceTest(t)
	coupon := seedIssuingCoupon(t, db, func(c *models.Coupon) {
		c.ObtainWay = constants.ObtainWayCode
		c.UserLimit = 5
	})
	seedExchangeCode(t, db, 2001, coupon.ID, nil)

	payload := queue.ClaimConfirmedPayload{AttemptID: "attempt-code-1", CouponID: coupon.ID, UserID: 7, Serial: 2001}
	if err := svc.HandleClaimConfirmed(context.Background(), payload); err != nil {
		t.Fatalf("handle claim failed: %v", err)
	}

	var record models.ExchangeCode
	if err := db.Where("serial = ?", 2001).First(&record).Error; err != nil {
		t.Fatalf("query exchange code failed: %v", err)
	}
	if record.Status != constants.ExchangeCodeStatusUsed || record.UserID != 7 || record.UsedAt == nil {
		t.Fatalf("unexpected code record: %+v", record)
	}

	// 同一序列号的第二个事件必须整体回滚
	dup := queue.ClaimConfirmedPayload{AttemptID: "attempt-code-2", CouponID: coupon.ID, UserID: 8, Serial: 2001}
	err := svc.HandleClaimConfirmed(context.Background(), dup)
	if !errors.Is(err, ErrSettleRejected) {
		t.Fatalf("expected ErrSettleRejected, got: %v", err)
	}
	var check models.Coupon
	if err := db.First(&check, coupon.ID).Error; err != nil {
		t.Fatalf("query coupon failed: %v", err)
	}
	if check.IssueNum != 1 {
		t.Fatalf("rejected settle must roll back issue_num, got: %d", check.IssueNum)
	}
	var count int64
	if err := db.Model(&models.UserCoupon{}).Where("attempt_id = ?", "attempt-code-2").Count(&count).Error; err != nil {
		t.Fatalf("count user coupons failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("rejected settle must not persist a user coupon, got: %d", count)
	}
}

func TestGenerateCodeBatch(t *testing.T) {
	svc, ranges, _, db := setupSettlementServiceTest(t)
	coupon := seedIssuingCoupon(t, db, func(c *models.Coupon) {
		c.ObtainWay = constants.ObtainWayCode
		c.TotalNum = 5
	})

	payload := queue.CodeGeneratePayload{BatchKey: "batch-gen-1", CouponID: coupon.ID, Count: 5}
	if err := svc.GenerateCodeBatch(context.Background(), payload); err != nil {
		t.Fatalf("generate code batch failed: %v", err)
	}

	var batch models.ExchangeCodeBatch
	if err := db.Where("coupon_id = ?", coupon.ID).First(&batch).Error; err != nil {
		t.Fatalf("query batch failed: %v", err)
	}
	if batch.SerialBegin != 1 || batch.SerialEnd != 5 || batch.TotalCount != 5 {
		t.Fatalf("unexpected batch: %+v", batch)
	}

	var records []models.ExchangeCode
	if err := db.Where("batch_id = ?", batch.ID).Order("serial asc").Find(&records).Error; err != nil {
		t.Fatalf("query codes failed: %v", err)
	}
	if len(records) != 5 {
		t.Fatalf("expected 5 codes, got: %d", len(records))
	}
	for _, record := range records {
		serial, err := codes.Parse(record.Code)
		if err != nil {
			t.Fatalf("generated code %q should parse: %v", record.Code, err)
		}
		if serial != record.Serial {
			t.Fatalf("code %q decodes to %d, want %d", record.Code, serial, record.Serial)
		}
		if diff := record.ExpiredAt.Sub(*coupon.IssueEndAt); diff < -time.Second || diff > time.Second {
			t.Fatalf("code expiry should follow issue window end, got: %v", record.ExpiredAt)
		}
	}

	if len(ranges.ranges) != 1 {
		t.Fatalf("expected 1 registered range, got: %d", len(ranges.ranges))
	}
	entry := ranges.ranges[0]
	if entry.couponID != coupon.ID || entry.serialBegin != 1 || entry.serialEnd != 5 {
		t.Fatalf("unexpected range entry: %+v", entry)
	}
}

func TestGenerateCodeBatchDuplicateDelivery(t *testing.T) {
	svc, ranges, _, db := setupSettlementServiceTest(t)
	coupon := seedIssuingCoupon(t, db, func(c *models.Coupon) {
		c.ObtainWay = constants.ObtainWayCode
		c.TotalNum = 5
	})

	payload := queue.CodeGeneratePayload{BatchKey: "batch-redelivered", CouponID: coupon.ID, Count: 5}
	if err := svc.GenerateCodeBatch(context.Background(), payload); err != nil {
		t.Fatalf("first delivery failed: %v", err)
	}
	if err := svc.GenerateCodeBatch(context.Background(), payload); err != nil {
		t.Fatalf("redelivery should be a no-op, got: %v", err)
	}

	var batchCount int64
	if err := db.Model(&models.ExchangeCodeBatch{}).Where("coupon_id = ?", coupon.ID).Count(&batchCount).Error; err != nil {
		t.Fatalf("count batches failed: %v", err)
	}
	if batchCount != 1 {
		t.Fatalf("redelivery must not create a second batch, got: %d", batchCount)
	}
	var codeCount int64
	if err := db.Model(&models.ExchangeCode{}).Where("coupon_id = ?", coupon.ID).Count(&codeCount).Error; err != nil {
		t.Fatalf("count codes failed: %v", err)
	}
	if codeCount != 5 {
		t.Fatalf("expected 5 codes after redelivery, got: %d", codeCount)
	}
	if len(ranges.ranges) != 1 {
		t.Fatalf("redelivery must not allocate another serial range, got: %d", len(ranges.ranges))
	}
}

func TestGenerateCodeBatchRejectsMissingBatchKey(t *testing.T) {
	svc, _, _, db := setupSettlementServiceTest(t)
	coupon := seedIssuingCoupon(t, db, func(c *models.Coupon) {
		c.ObtainWay = constants.ObtainWayCode
	})

	err := svc.GenerateCodeBatch(context.Background(), queue.CodeGeneratePayload{CouponID: coupon.ID, Count: 5})
	if !errors.Is(err, ErrSettleRejected) {
		t.Fatalf("expected ErrSettleRejected, got: %v", err)
	}
}

func TestGenerateCodeBatchRejectsPublicCoupon(t *testing.T) {
	svc, _, _, db := setupSettlementServiceTest(t)
	coupon := seedIssuingCoupon(t, db, nil)

	err := svc.GenerateCodeBatch(context.Background(), queue.CodeGeneratePayload{BatchKey: "batch-public", CouponID: coupon.ID, Count: 5})
	if !errors.Is(err, ErrSettleRejected) {
		t.Fatalf("expected ErrSettleRejected, got: %v", err)
	}
}

func TestGenerateCodeBatchSerialsAdvance(t *testing.T) {
	svc, _, _, db := setupSettlementServiceTest(t)
	first := seedIssuingCoupon(t, db, func(c *models.Coupon) {
		c.ObtainWay = constants.ObtainWayCode
		c.TotalNum = 3
	})
	second := seedIssuingCoupon(t, db, func(c *models.Coupon) {
		c.ObtainWay = constants.ObtainWayCode
		c.TotalNum = 4
	})

	if err := svc.GenerateCodeBatch(context.Background(), queue.CodeGeneratePayload{BatchKey: "batch-first", CouponID: first.ID, Count: 3}); err != nil {
		t.Fatalf("first batch failed: %v", err)
	}
	if err := svc.GenerateCodeBatch(context.Background(), queue.CodeGeneratePayload{BatchKey: "batch-second", CouponID: second.ID, Count: 4}); err != nil {
		t.Fatalf("second batch failed: %v", err)
	}

	var batch models.ExchangeCodeBatch
	if err := db.Where("coupon_id = ?", second.ID).First(&batch).Error; err != nil {
		t.Fatalf("query second batch failed: %v", err)
	}
	if batch.SerialBegin != 4 || batch.SerialEnd != 7 {
		t.Fatalf("second batch should continue the serial sequence, got: %+v", batch)
	}
}

func TestRebuildCodeRangeIndex(t *testing.T) {
	svc, ranges, _, db := setupSettlementServiceTest(t)
	batches := []models.ExchangeCodeBatch{
		{BatchKey: "batch-a", CouponID: 1, SerialBegin: 1, SerialEnd: 100, TotalCount: 100},
		{BatchKey: "batch-b", CouponID: 2, SerialBegin: 101, SerialEnd: 150, TotalCount: 50},
	}
	for i := range batches {
		if err := db.Create(&batches[i]).Error; err != nil {
			t.Fatalf("create batch failed: %v", err)
		}
	}

	if err := svc.RebuildCodeRangeIndex(context.Background()); err != nil {
		t.Fatalf("rebuild failed: %v", err)
	}
	if len(ranges.ranges) != 2 {
		t.Fatalf("expected 2 registered ranges, got: %d", len(ranges.ranges))
	}
	if ranges.ranges[1].couponID != 2 || ranges.ranges[1].serialBegin != 101 {
		t.Fatalf("unexpected second range: %+v", ranges.ranges[1])
	}
}

func TestRebuildCodeRangeIndexSkipsWhenVaultDown(t *testing.T) {
	svc, ranges, _, db := setupSettlementServiceTest(t)
	ranges.down = true
	if err := db.Create(&models.ExchangeCodeBatch{BatchKey: "batch-down", CouponID: 1, SerialBegin: 1, SerialEnd: 10, TotalCount: 10}).Error; err != nil {
		t.Fatalf("create batch failed: %v", err)
	}

	if err := svc.RebuildCodeRangeIndex(context.Background()); err != nil {
		t.Fatalf("rebuild should be a no-op, got: %v", err)
	}
	if len(ranges.ranges) != 0 {
		t.Fatalf("no range should be registered, got: %d", len(ranges.ranges))
	}
}
