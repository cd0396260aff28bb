package repository

import (
	"errors"
	"time"

	"github.com/promo-next/internal/constants"
	"github.com/promo-next/internal/models"

	"gorm.io/gorm"
)

// UserCouponRepository 用户券数据访问接口
type UserCouponRepository interface {
	GetByID(id uint) (*models.UserCoupon, error)
	GetByAttemptID(attemptID string) (*models.UserCoupon, error)
	Create(userCoupon *models.UserCoupon) error
	CountByUserCoupon(userID, couponID uint) (int64, error)
	List(filter UserCouponListFilter) ([]models.UserCoupon, int64, error)
	ListUsableByUser(userID uint, now time.Time) ([]models.UserCoupon, error)
	MarkUsed(id, orderID uint, now time.Time) (bool, error)
	MarkUnused(id uint) (bool, error)
	MarkExpired(id uint) (bool, error)
	ExpireOverdue(now time.Time) (int64, error)
	WithTx(tx *gorm.DB) *GormUserCouponRepository
}

// GormUserCouponRepository GORM 实现
type GormUserCouponRepository struct {
	db *gorm.DB
}

// NewUserCouponRepository 创建用户券仓库
func NewUserCouponRepository(db *gorm.DB) *GormUserCouponRepository {
	return &GormUserCouponRepository{db: db}
}

// WithTx 绑定事务
func (r *GormUserCouponRepository) WithTx(tx *gorm.DB) *GormUserCouponRepository {
	if tx == nil {
		return r
	}
	return &GormUserCouponRepository{db: tx}
}

// GetByID 根据ID获取用户券
func (r *GormUserCouponRepository) GetByID(id uint) (*models.UserCoupon, error) {
	var userCoupon models.UserCoupon
	if err := r.db.First(&userCoupon, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &userCoupon, nil
}

// GetByAttemptID 根据领取流水号获取用户券（结算幂等检查）
func (r *GormUserCouponRepository) GetByAttemptID(attemptID string) (*models.UserCoupon, error) {
	if attemptID == "" {
		return nil, nil
	}
	var userCoupon models.UserCoupon
	if err := r.db.Where("attempt_id = ?", attemptID).First(&userCoupon).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &userCoupon, nil
}

// Create 创建用户券
func (r *GormUserCouponRepository) Create(userCoupon *models.UserCoupon) error {
	return r.db.Create(userCoupon).Error
}

// CountByUserCoupon 统计某用户持有某券的数量
func (r *GormUserCouponRepository) CountByUserCoupon(userID, couponID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.UserCoupon{}).
		Where("user_id = ? AND coupon_id = ?", userID, couponID).
		Count(&count).Error
	return count, err
}

// List 分页查询用户券
func (r *GormUserCouponRepository) List(filter UserCouponListFilter) ([]models.UserCoupon, int64, error) {
	var userCoupons []models.UserCoupon
	query := r.db.Model(&models.UserCoupon{})

	if filter.UserID > 0 {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.CouponID > 0 {
		query = query.Where("coupon_id = ?", filter.CouponID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, filter.Page, filter.PageSize)

	if err := query.Order("id desc").Find(&userCoupons).Error; err != nil {
		return nil, 0, err
	}
	return userCoupons, total, nil
}

// ListUsableByUser 查询用户当前可用的券（未使用且在有效期内）
func (r *GormUserCouponRepository) ListUsableByUser(userID uint, now time.Time) ([]models.UserCoupon, error) {
	var userCoupons []models.UserCoupon
	err := r.db.Where("user_id = ? AND status = ?", userID, constants.UserCouponStatusUnused).
		Where("term_begin_at <= ? AND term_end_at > ?", now, now).
		Find(&userCoupons).Error
	if err != nil {
		return nil, err
	}
	return userCoupons, nil
}

// MarkUsed 核销用户券，仅未使用状态可核销
func (r *GormUserCouponRepository) MarkUsed(id, orderID uint, now time.Time) (bool, error) {
	result := r.db.Model(&models.UserCoupon{}).
		Where("id = ? AND status = ?", id, constants.UserCouponStatusUnused).
		Updates(map[string]interface{}{
			"status":        constants.UserCouponStatusUsed,
			"used_order_id": orderID,
			"used_at":       now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// MarkUnused 退券恢复为未使用，仅已使用状态可恢复
func (r *GormUserCouponRepository) MarkUnused(id uint) (bool, error) {
	result := r.db.Model(&models.UserCoupon{}).
		Where("id = ? AND status = ?", id, constants.UserCouponStatusUsed).
		Updates(map[string]interface{}{
			"status":        constants.UserCouponStatusUnused,
			"used_order_id": nil,
			"used_at":       nil,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// MarkExpired 退券时有效期已过，置为过期
func (r *GormUserCouponRepository) MarkExpired(id uint) (bool, error) {
	result := r.db.Model(&models.UserCoupon{}).
		Where("id = ? AND status = ?", id, constants.UserCouponStatusUsed).
		Updates(map[string]interface{}{
			"status":        constants.UserCouponStatusExpired,
			"used_order_id": nil,
			"used_at":       nil,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ExpireOverdue 将有效期已过的未使用券批量置为过期
func (r *GormUserCouponRepository) ExpireOverdue(now time.Time) (int64, error) {
	result := r.db.Model(&models.UserCoupon{}).
		Where("status = ?", constants.UserCouponStatusUnused).
		Where("term_end_at <= ?", now).
		Update("status", constants.UserCouponStatusExpired)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
