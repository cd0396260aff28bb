package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/promo-next/internal/constants"
	"github.com/promo-next/internal/models"
	"github.com/promo-next/internal/repository"

	"gorm.io/gorm"
)

func setupCouponAdminServiceTest(t *testing.T) (*CouponAdminService, *fakeClaimCache, *fakeEnqueuer, *gorm.DB) {
	t.Helper()
	db := openPromotionTestDB(t, "coupon_admin_service_test")
	claim := newFakeClaimCache()
	enq := &fakeEnqueuer{}
	svc := NewCouponAdminService(
		repository.NewCouponRepository(db),
		repository.NewExchangeCodeRepository(db),
		repository.NewExchangeCodeBatchRepository(db),
		claim,
		enq,
	)
	return svc, claim, enq, db
}

func validCouponInput() CouponInput {
	return CouponInput{
		Name:         "新人立减券",
		DiscountType: constants.DiscountTypeFixed,
		Value:        500,
		TotalNum:     100,
		UserLimit:    1,
		TermDays:     30,
	}
}

func TestCouponAdminCreate(t *testing.T) {
	svc, _, _, _ := setupCouponAdminServiceTest(t)

	input := validCouponInput()
	input.CategoryIDs = []uint{10, 20}
	coupon, err := svc.Create(input)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if coupon.Status != constants.CouponStatusDraft {
		t.Fatalf("new coupon should be draft, got: %s", coupon.Status)
	}
	if !coupon.Specific || len(coupon.Scopes) != 2 {
		t.Fatalf("expected 2 scopes, got: %+v", coupon.Scopes)
	}
}

func TestCouponAdminCreateValidates(t *testing.T) {
	svc, _, _, _ := setupCouponAdminServiceTest(t)

	percent := validCouponInput()
	percent.DiscountType = constants.DiscountTypePercent
	percent.Value = 100
	if _, err := svc.Create(percent); !errors.Is(err, ErrCouponStatusInvalid) {
		t.Fatalf("percent value 100 should be rejected, got: %v", err)
	}

	noTerm := validCouponInput()
	noTerm.TermDays = 0
	if _, err := svc.Create(noTerm); !errors.Is(err, ErrCouponStatusInvalid) {
		t.Fatalf("missing term should be rejected, got: %v", err)
	}

	now := time.Now()
	later := now.Add(time.Hour)
	badWindow := validCouponInput()
	badWindow.IssueBeginAt = &later
	badWindow.IssueEndAt = &now
	if _, err := svc.Create(badWindow); !errors.Is(err, ErrCouponIssueWindow) {
		t.Fatalf("inverted issue window should be rejected, got: %v", err)
	}
}

func TestCouponAdminUpdateDraftOnly(t *testing.T) {
	svc, _, _, db := setupCouponAdminServiceTest(t)
	issuing := seedIssuingCoupon(t, db, nil)

	_, err := svc.Update(issuing.ID, validCouponInput())
	if !errors.Is(err, ErrCouponNotDraft) {
		t.Fatalf("expected ErrCouponNotDraft, got: %v", err)
	}
}

func TestCouponAdminDeleteDraftOnly(t *testing.T) {
	svc, _, _, db := setupCouponAdminServiceTest(t)
	draft := seedIssuingCoupon(t, db, func(c *models.Coupon) {
		c.Status = constants.CouponStatusDraft
	})
	issuing := seedIssuingCoupon(t, db, nil)

	if err := svc.Delete(draft.ID); err != nil {
		t.Fatalf("delete draft failed: %v", err)
	}
	if err := svc.Delete(issuing.ID); !errors.Is(err, ErrCouponNotDraft) {
		t.Fatalf("expected ErrCouponNotDraft, got: %v", err)
	}
}

func TestCouponAdminBeginIssueImmediate(t *testing.T) {
	svc, claim, _, db := setupCouponAdminServiceTest(t)
	coupon := seedIssuingCoupon(t, db, func(c *models.Coupon) {
		c.Status = constants.CouponStatusDraft
	})

	updated, err := svc.BeginIssue(context.Background(), coupon.ID)
	if err != nil {
		t.Fatalf("begin issue failed: %v", err)
	}
	if updated.Status != constants.CouponStatusIssuing {
		t.Fatalf("expected issuing status, got: %s", updated.Status)
	}
	if len(claim.cacheCalls) != 1 || claim.cacheCalls[0] != coupon.ID {
		t.Fatalf("issuing coupon should be cached, got: %v", claim.cacheCalls)
	}
}

func TestCouponAdminBeginIssueScheduled(t *testing.T) {
	svc, claim, _, db := setupCouponAdminServiceTest(t)
	future := time.Now().Add(time.Hour)
	coupon := seedIssuingCoupon(t, db, func(c *models.Coupon) {
		c.Status = constants.CouponStatusDraft
		c.IssueBeginAt = &future
	})

	updated, err := svc.BeginIssue(context.Background(), coupon.ID)
	if err != nil {
		t.Fatalf("begin issue failed: %v", err)
	}
	if updated.Status != constants.CouponStatusUnIssue {
		t.Fatalf("expected un_issue status before window opens, got: %s", updated.Status)
	}
	if len(claim.cacheCalls) != 0 {
		t.Fatalf("scheduled coupon should not be cached yet, got: %v", claim.cacheCalls)
	}
}

func TestCouponAdminBeginIssueWindowClosed(t *testing.T) {
	svc, _, _, db := setupCouponAdminServiceTest(t)
	past := time.Now().Add(-time.Hour)
	coupon := seedIssuingCoupon(t, db, func(c *models.Coupon) {
		c.Status = constants.CouponStatusDraft
		c.IssueEndAt = &past
	})

	_, err := svc.BeginIssue(context.Background(), coupon.ID)
	if !errors.Is(err, ErrCouponIssueWindow) {
		t.Fatalf("expected ErrCouponIssueWindow, got: %v", err)
	}
}

func TestCouponAdminBeginIssueRejectsFinished(t *testing.T) {
	svc, _, _, db := setupCouponAdminServiceTest(t)
	coupon := seedIssuingCoupon(t, db, func(c *models.Coupon) {
		c.Status = constants.CouponStatusFinished
		c.IssueEndAt = nil
	})

	_, err := svc.BeginIssue(context.Background(), coupon.ID)
	if !errors.Is(err, ErrCouponStatusInvalid) {
		t.Fatalf("expected ErrCouponStatusInvalid, got: %v", err)
	}
}

func TestCouponAdminBeginIssueGeneratesCodes(t *testing.T) {
	svc, _, enq, db := setupCouponAdminServiceTest(t)
	coupon := seedIssuingCoupon(t, db, func(c *models.Coupon) {
		c.Status = constants.CouponStatusDraft
		c.ObtainWay = constants.ObtainWayCode
		c.TotalNum = 200
	})

	if _, err := svc.BeginIssue(context.Background(), coupon.ID); err != nil {
		t.Fatalf("begin issue failed: %v", err)
	}
	if len(enq.codeGens) != 1 {
		t.Fatalf("expected 1 code generate task, got: %d", len(enq.codeGens))
	}
	payload := enq.codeGens[0]
	if payload.CouponID != coupon.ID || payload.Count != 200 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if payload.BatchKey == "" {
		t.Fatal("batch key should not be empty")
	}
}

func TestCouponAdminBeginIssueSkipsExistingBatches(t *testing.T) {
	svc, _, enq, db := setupCouponAdminServiceTest(t)
	coupon := seedIssuingCoupon(t, db, func(c *models.Coupon) {
		c.Status = constants.CouponStatusPause
		c.ObtainWay = constants.ObtainWayCode
	})
	batch := models.ExchangeCodeBatch{BatchKey: "batch-existing", CouponID: coupon.ID, SerialBegin: 1, SerialEnd: 100, TotalCount: 100}
	if err := db.Create(&batch).Error; err != nil {
		t.Fatalf("create batch failed: %v", err)
	}

	if _, err := svc.BeginIssue(context.Background(), coupon.ID); err != nil {
		t.Fatalf("begin issue failed: %v", err)
	}
	if len(enq.codeGens) != 0 {
		t.Fatalf("resume must not regenerate codes, got: %d", len(enq.codeGens))
	}
}

func TestCouponAdminPauseIssue(t *testing.T) {
	svc, claim, _, db := setupCouponAdminServiceTest(t)
	coupon := seedIssuingCoupon(t, db, nil)
	claim.prime(coupon.ID, 10, 1)

	updated, err := svc.PauseIssue(context.Background(), coupon.ID)
	if err != nil {
		t.Fatalf("pause failed: %v", err)
	}
	if updated.Status != constants.CouponStatusPause {
		t.Fatalf("expected pause status, got: %s", updated.Status)
	}
	if len(claim.dropCalls) != 1 || claim.dropCalls[0] != coupon.ID {
		t.Fatalf("paused coupon should drop claim cache, got: %v", claim.dropCalls)
	}
}

func TestCouponAdminPauseIssueRejectsDraft(t *testing.T) {
	svc, _, _, db := setupCouponAdminServiceTest(t)
	coupon := seedIssuingCoupon(t, db, func(c *models.Coupon) {
		c.Status = constants.CouponStatusDraft
	})

	_, err := svc.PauseIssue(context.Background(), coupon.ID)
	if !errors.Is(err, ErrCouponStatusInvalid) {
		t.Fatalf("expected ErrCouponStatusInvalid, got: %v", err)
	}
}
