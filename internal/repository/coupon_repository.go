package repository

import (
	"errors"
	"time"

	"github.com/promo-next/internal/constants"
	"github.com/promo-next/internal/models"

	"gorm.io/gorm"
)

// CouponRepository 优惠券数据访问接口
type CouponRepository interface {
	GetByID(id uint) (*models.Coupon, error)
	GetWithScopes(id uint) (*models.Coupon, error)
	ListByIDs(ids []uint) ([]models.Coupon, error)
	Create(coupon *models.Coupon) error
	Update(coupon *models.Coupon) error
	Delete(id uint) error
	List(filter CouponListFilter) ([]models.Coupon, int64, error)
	UpdateStatus(id uint, from []string, to string) (bool, error)
	IncrIssueNum(id uint) (bool, error)
	FinishExpiredIssues(now time.Time) (int64, error)
	ReplaceScopes(couponID uint, scopes []models.CouponScope) error
	WithTx(tx *gorm.DB) *GormCouponRepository
}

// GormCouponRepository GORM 实现
type GormCouponRepository struct {
	db *gorm.DB
}

// NewCouponRepository 创建优惠券仓库
func NewCouponRepository(db *gorm.DB) *GormCouponRepository {
	return &GormCouponRepository{db: db}
}

// WithTx 绑定事务
func (r *GormCouponRepository) WithTx(tx *gorm.DB) *GormCouponRepository {
	if tx == nil {
		return r
	}
	return &GormCouponRepository{db: tx}
}

// GetByID 根据ID获取优惠券
func (r *GormCouponRepository) GetByID(id uint) (*models.Coupon, error) {
	var coupon models.Coupon
	if err := r.db.First(&coupon, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &coupon, nil
}

// GetWithScopes 根据ID获取优惠券及其限定分类
func (r *GormCouponRepository) GetWithScopes(id uint) (*models.Coupon, error) {
	var coupon models.Coupon
	if err := r.db.Preload("Scopes").First(&coupon, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &coupon, nil
}

// ListByIDs 批量获取优惠券及限定分类
func (r *GormCouponRepository) ListByIDs(ids []uint) ([]models.Coupon, error) {
	if len(ids) == 0 {
		return []models.Coupon{}, nil
	}
	var coupons []models.Coupon
	if err := r.db.Preload("Scopes").Where("id IN ?", ids).Find(&coupons).Error; err != nil {
		return nil, err
	}
	return coupons, nil
}

// Create 创建优惠券
func (r *GormCouponRepository) Create(coupon *models.Coupon) error {
	return r.db.Create(coupon).Error
}

// Update 更新优惠券
func (r *GormCouponRepository) Update(coupon *models.Coupon) error {
	return r.db.Save(coupon).Error
}

// Delete 删除优惠券
func (r *GormCouponRepository) Delete(id uint) error {
	return r.db.Delete(&models.Coupon{}, id).Error
}

// List 获取优惠券列表
func (r *GormCouponRepository) List(filter CouponListFilter) ([]models.Coupon, int64, error) {
	var coupons []models.Coupon
	query := r.db.Model(&models.Coupon{})

	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.DiscountType != "" {
		query = query.Where("discount_type = ?", filter.DiscountType)
	}
	if filter.ObtainWay != "" {
		query = query.Where("obtain_way = ?", filter.ObtainWay)
	}
	if filter.Name != "" {
		condition, arg := buildNameLikeCondition(r.db, "name", filter.Name)
		query = query.Where(condition, arg)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, filter.Page, filter.PageSize)

	if err := query.Order("id desc").Find(&coupons).Error; err != nil {
		return nil, 0, err
	}
	return coupons, total, nil
}

// UpdateStatus 带前置状态校验的状态变更，返回是否命中
func (r *GormCouponRepository) UpdateStatus(id uint, from []string, to string) (bool, error) {
	result := r.db.Model(&models.Coupon{}).
		Where("id = ?", id).
		Where("status IN ?", from).
		Update("status", to)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// IncrIssueNum 带守卫递增已发放数量，仅当不超过发放总量时生效
func (r *GormCouponRepository) IncrIssueNum(id uint) (bool, error) {
	result := r.db.Model(&models.Coupon{}).
		Where("id = ?", id).
		Where("issue_num < total_num").
		UpdateColumn("issue_num", gorm.Expr("issue_num + 1"))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// FinishExpiredIssues 将发放窗口已过的券批量置为结束状态
func (r *GormCouponRepository) FinishExpiredIssues(now time.Time) (int64, error) {
	result := r.db.Model(&models.Coupon{}).
		Where("status IN ?", []string{constants.CouponStatusUnIssue, constants.CouponStatusIssuing, constants.CouponStatusPause}).
		Where("issue_end_at IS NOT NULL AND issue_end_at <= ?", now).
		Update("status", constants.CouponStatusFinished)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// ReplaceScopes 重建优惠券的限定分类
func (r *GormCouponRepository) ReplaceScopes(couponID uint, scopes []models.CouponScope) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("coupon_id = ?", couponID).Delete(&models.CouponScope{}).Error; err != nil {
			return err
		}
		if len(scopes) == 0 {
			return nil
		}
		for i := range scopes {
			scopes[i].ID = 0
			scopes[i].CouponID = couponID
		}
		return tx.Create(&scopes).Error
	})
}
