package main

import (
	"time"

	"github.com/promo-next/internal/config"
	"github.com/promo-next/internal/constants"
	"github.com/promo-next/internal/logger"
	"github.com/promo-next/internal/models"
)

// 填充演示数据：几张不同类型的优惠券规则，便于本地联调
func main() {
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}); err != nil {
		stdLog.Fatalf("数据库初始化失败: %v", err)
	}

	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("数据库迁移失败: %v", err)
	}

	if err := models.InitDefaultAdmin("", ""); err != nil {
		stdLog.Printf("初始化默认管理员失败: %v", err)
	}

	now := time.Now()
	issueEnd := now.Add(30 * 24 * time.Hour)

	coupons := []models.Coupon{
		{
			Name:         "新客立减 5 元",
			DiscountType: constants.DiscountTypeFixed,
			Value:        500,
			TotalNum:     10000,
			UserLimit:    1,
			ObtainWay:    constants.ObtainWayPublic,
			Status:       constants.CouponStatusDraft,
			IssueBeginAt: &now,
			IssueEndAt:   &issueEnd,
			TermDays:     30,
		},
		{
			Name:            "满 100 减 10",
			DiscountType:    constants.DiscountTypeThreshold,
			Value:           1000,
			ThresholdAmount: 10000,
			TotalNum:        5000,
			UserLimit:       2,
			ObtainWay:       constants.ObtainWayPublic,
			Status:          constants.CouponStatusDraft,
			IssueBeginAt:    &now,
			IssueEndAt:      &issueEnd,
			TermDays:        15,
		},
		{
			Name:         "全场 8 折",
			DiscountType: constants.DiscountTypePercent,
			Value:        20,
			MaxDiscount:  2000,
			TotalNum:     3000,
			UserLimit:    1,
			ObtainWay:    constants.ObtainWayPublic,
			Status:       constants.CouponStatusDraft,
			IssueBeginAt: &now,
			IssueEndAt:   &issueEnd,
			TermDays:     7,
		},
		{
			Name:         "兑换码专享 20 元券",
			DiscountType: constants.DiscountTypeFixed,
			Value:        2000,
			TotalNum:     1000,
			UserLimit:    1,
			ObtainWay:    constants.ObtainWayCode,
			Status:       constants.CouponStatusDraft,
			IssueBeginAt: &now,
			IssueEndAt:   &issueEnd,
			TermDays:     30,
		},
	}

	for _, coupon := range coupons {
		var existing models.Coupon
		if err := models.DB.Where("name = ?", coupon.Name).First(&existing).Error; err == nil {
			stdLog.Printf("优惠券已存在: %s", coupon.Name)
			continue
		}
		if err := models.DB.Create(&coupon).Error; err != nil {
			stdLog.Printf("创建优惠券失败 %s: %v", coupon.Name, err)
			continue
		}
		stdLog.Printf("创建优惠券: %s (id=%d)", coupon.Name, coupon.ID)
	}

	stdLog.Printf("演示数据填充完成")
}
