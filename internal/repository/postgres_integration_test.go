//go:build integration
// +build integration

package repository

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/promo-next/internal/constants"
	"github.com/promo-next/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// setupPostgresIntegrationDB 初始化 PostgreSQL 集成测试数据库。
func setupPostgresIntegrationDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv("TEST_POSTGRES_DSN"))
	if dsn == "" {
		t.Skip("skip postgres integration test: TEST_POSTGRES_DSN is empty")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open postgres failed: %v", err)
	}

	cleanupModels := []interface{}{
		&models.UserCoupon{},
		&models.ExchangeCode{},
		&models.ExchangeCodeBatch{},
		&models.CouponScope{},
		&models.Coupon{},
	}
	_ = db.Migrator().DropTable(cleanupModels...)

	if err := db.AutoMigrate(
		&models.Coupon{},
		&models.CouponScope{},
		&models.UserCoupon{},
		&models.ExchangeCodeBatch{},
		&models.ExchangeCode{},
	); err != nil {
		t.Fatalf("migrate postgres models failed: %v", err)
	}

	t.Cleanup(func() {
		_ = db.Migrator().DropTable(cleanupModels...)
		sqlDB, err := db.DB()
		if err == nil {
			_ = sqlDB.Close()
		}
	})

	return db
}

func TestPostgresCouponIssueNumGuard(t *testing.T) {
	db := setupPostgresIntegrationDB(t)
	repo := NewCouponRepository(db)

	coupon := &models.Coupon{
		Name:         "pg-限量券",
		DiscountType: constants.DiscountTypeFixed,
		Value:        500,
		TotalNum:     2,
		UserLimit:    1,
		ObtainWay:    constants.ObtainWayPublic,
		Status:       constants.CouponStatusIssuing,
	}
	if err := repo.Create(coupon); err != nil {
		t.Fatalf("create coupon failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		ok, err := repo.IncrIssueNum(coupon.ID)
		if err != nil {
			t.Fatalf("incr issue num %d failed: %v", i, err)
		}
		if !ok {
			t.Fatalf("incr issue num %d want hit", i)
		}
	}

	ok, err := repo.IncrIssueNum(coupon.ID)
	if err != nil {
		t.Fatalf("incr issue num beyond total failed: %v", err)
	}
	if ok {
		t.Fatal("incr issue num beyond total should not hit")
	}

	got, err := repo.GetByID(coupon.ID)
	if err != nil {
		t.Fatalf("get coupon failed: %v", err)
	}
	if got.IssueNum != got.TotalNum {
		t.Fatalf("issue num want %d got %d", got.TotalNum, got.IssueNum)
	}
}

func TestPostgresCouponUpdateStatusGuard(t *testing.T) {
	db := setupPostgresIntegrationDB(t)
	repo := NewCouponRepository(db)

	coupon := &models.Coupon{
		Name:         "pg-状态流转券",
		DiscountType: constants.DiscountTypePercent,
		Value:        20,
		TotalNum:     100,
		ObtainWay:    constants.ObtainWayPublic,
		Status:       constants.CouponStatusUnIssue,
	}
	if err := repo.Create(coupon); err != nil {
		t.Fatalf("create coupon failed: %v", err)
	}

	ok, err := repo.UpdateStatus(coupon.ID, []string{constants.CouponStatusUnIssue, constants.CouponStatusPause}, constants.CouponStatusIssuing)
	if err != nil {
		t.Fatalf("update status to issuing failed: %v", err)
	}
	if !ok {
		t.Fatal("update status from un_issue should hit")
	}

	ok, err = repo.UpdateStatus(coupon.ID, []string{constants.CouponStatusDraft}, constants.CouponStatusPause)
	if err != nil {
		t.Fatalf("update status with wrong precondition failed: %v", err)
	}
	if ok {
		t.Fatal("update status with wrong precondition should not hit")
	}

	got, err := repo.GetByID(coupon.ID)
	if err != nil {
		t.Fatalf("get coupon failed: %v", err)
	}
	if got.Status != constants.CouponStatusIssuing {
		t.Fatalf("status want %s got %s", constants.CouponStatusIssuing, got.Status)
	}
}

func TestPostgresUserCouponMarkUsedLifecycle(t *testing.T) {
	db := setupPostgresIntegrationDB(t)
	repo := NewUserCouponRepository(db)
	now := time.Now().UTC().Truncate(time.Second)

	userCoupon := &models.UserCoupon{
		UserID:      101,
		CouponID:    1,
		AttemptID:   "pg-attempt-001",
		Status:      constants.UserCouponStatusUnused,
		TermBeginAt: now.Add(-time.Hour),
		TermEndAt:   now.Add(24 * time.Hour),
	}
	if err := repo.Create(userCoupon); err != nil {
		t.Fatalf("create user coupon failed: %v", err)
	}

	ok, err := repo.MarkUsed(userCoupon.ID, 9001, now)
	if err != nil {
		t.Fatalf("mark used failed: %v", err)
	}
	if !ok {
		t.Fatal("mark used on unused coupon should hit")
	}

	ok, err = repo.MarkUsed(userCoupon.ID, 9002, now)
	if err != nil {
		t.Fatalf("mark used twice failed: %v", err)
	}
	if ok {
		t.Fatal("mark used on used coupon should not hit")
	}

	ok, err = repo.MarkUnused(userCoupon.ID)
	if err != nil {
		t.Fatalf("mark unused failed: %v", err)
	}
	if !ok {
		t.Fatal("mark unused on used coupon should hit")
	}

	got, err := repo.GetByID(userCoupon.ID)
	if err != nil {
		t.Fatalf("get user coupon failed: %v", err)
	}
	if got.Status != constants.UserCouponStatusUnused {
		t.Fatalf("status want %s got %s", constants.UserCouponStatusUnused, got.Status)
	}
	if got.UsedOrderID != nil || got.UsedAt != nil {
		t.Fatal("mark unused should clear used order and used at")
	}
}
