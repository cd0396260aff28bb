package repository

import (
	"errors"
	"time"

	"github.com/promo-next/internal/constants"
	"github.com/promo-next/internal/models"

	"gorm.io/gorm"
)

// ExchangeCodeRepository 兑换码数据访问接口
type ExchangeCodeRepository interface {
	GetBySerial(serial uint) (*models.ExchangeCode, error)
	BatchCreate(codes []models.ExchangeCode, batchSize int) error
	MarkUsed(serial, userID uint, now time.Time) (bool, error)
	List(filter ExchangeCodeListFilter) ([]models.ExchangeCode, int64, error)
	WithTx(tx *gorm.DB) *GormExchangeCodeRepository
}

// GormExchangeCodeRepository GORM 实现
type GormExchangeCodeRepository struct {
	db *gorm.DB
}

// NewExchangeCodeRepository 创建兑换码仓库
func NewExchangeCodeRepository(db *gorm.DB) *GormExchangeCodeRepository {
	return &GormExchangeCodeRepository{db: db}
}

// WithTx 绑定事务
func (r *GormExchangeCodeRepository) WithTx(tx *gorm.DB) *GormExchangeCodeRepository {
	if tx == nil {
		return r
	}
	return &GormExchangeCodeRepository{db: tx}
}

// GetBySerial 根据序列号获取兑换码
func (r *GormExchangeCodeRepository) GetBySerial(serial uint) (*models.ExchangeCode, error) {
	var code models.ExchangeCode
	if err := r.db.Where("serial = ?", serial).First(&code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &code, nil
}

// BatchCreate 批量写入兑换码
func (r *GormExchangeCodeRepository) BatchCreate(codes []models.ExchangeCode, batchSize int) error {
	if len(codes) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	return r.db.CreateInBatches(codes, batchSize).Error
}

// MarkUsed 兑换码置为已使用并记录兑换人，仅未使用状态可核销
func (r *GormExchangeCodeRepository) MarkUsed(serial, userID uint, now time.Time) (bool, error) {
	result := r.db.Model(&models.ExchangeCode{}).
		Where("serial = ? AND status = ?", serial, constants.ExchangeCodeStatusUnused).
		Updates(map[string]interface{}{
			"status":  constants.ExchangeCodeStatusUsed,
			"user_id": userID,
			"used_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// List 分页查询兑换码
func (r *GormExchangeCodeRepository) List(filter ExchangeCodeListFilter) ([]models.ExchangeCode, int64, error) {
	var codes []models.ExchangeCode
	query := r.db.Model(&models.ExchangeCode{})

	if filter.CouponID > 0 {
		query = query.Where("coupon_id = ?", filter.CouponID)
	}
	if filter.BatchID > 0 {
		query = query.Where("batch_id = ?", filter.BatchID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.UserID > 0 {
		query = query.Where("user_id = ?", filter.UserID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, filter.Page, filter.PageSize)

	if err := query.Order("serial asc").Find(&codes).Error; err != nil {
		return nil, 0, err
	}
	return codes, total, nil
}
