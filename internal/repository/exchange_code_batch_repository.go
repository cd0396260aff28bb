package repository

import (
	"errors"

	"github.com/promo-next/internal/models"

	"gorm.io/gorm"
)

// ExchangeCodeBatchRepository 兑换码批次数据访问接口
type ExchangeCodeBatchRepository interface {
	Create(batch *models.ExchangeCodeBatch) error
	GetByID(id uint) (*models.ExchangeCodeBatch, error)
	GetByBatchKey(batchKey string) (*models.ExchangeCodeBatch, error)
	GetBySerial(serial uint) (*models.ExchangeCodeBatch, error)
	ListByCoupon(couponID uint) ([]models.ExchangeCodeBatch, error)
	ListAll() ([]models.ExchangeCodeBatch, error)
	WithTx(tx *gorm.DB) *GormExchangeCodeBatchRepository
}

// GormExchangeCodeBatchRepository GORM 实现
type GormExchangeCodeBatchRepository struct {
	db *gorm.DB
}

// NewExchangeCodeBatchRepository 创建兑换码批次仓库
func NewExchangeCodeBatchRepository(db *gorm.DB) *GormExchangeCodeBatchRepository {
	return &GormExchangeCodeBatchRepository{db: db}
}

// WithTx 绑定事务
func (r *GormExchangeCodeBatchRepository) WithTx(tx *gorm.DB) *GormExchangeCodeBatchRepository {
	if tx == nil {
		return r
	}
	return &GormExchangeCodeBatchRepository{db: tx}
}

// Create 创建批次
func (r *GormExchangeCodeBatchRepository) Create(batch *models.ExchangeCodeBatch) error {
	return r.db.Create(batch).Error
}

// GetByID 根据ID获取批次
func (r *GormExchangeCodeBatchRepository) GetByID(id uint) (*models.ExchangeCodeBatch, error) {
	var batch models.ExchangeCodeBatch
	if err := r.db.First(&batch, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &batch, nil
}

// GetByBatchKey 根据批次流水号获取批次（生成任务重复投递去重）
func (r *GormExchangeCodeBatchRepository) GetByBatchKey(batchKey string) (*models.ExchangeCodeBatch, error) {
	var batch models.ExchangeCodeBatch
	if err := r.db.Where("batch_key = ?", batchKey).First(&batch).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &batch, nil
}

// GetBySerial 获取序列号所属批次（缓存索引不可用时的兜底查询）
func (r *GormExchangeCodeBatchRepository) GetBySerial(serial uint) (*models.ExchangeCodeBatch, error) {
	var batch models.ExchangeCodeBatch
	err := r.db.Where("serial_begin <= ? AND serial_end >= ?", serial, serial).
		Order("serial_end asc").
		First(&batch).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &batch, nil
}

// ListByCoupon 查询某优惠券的全部批次
func (r *GormExchangeCodeBatchRepository) ListByCoupon(couponID uint) ([]models.ExchangeCodeBatch, error) {
	var batches []models.ExchangeCodeBatch
	if err := r.db.Where("coupon_id = ?", couponID).Order("serial_end asc").Find(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}

// ListAll 查询全部批次（启动时重建缓存索引）
func (r *GormExchangeCodeBatchRepository) ListAll() ([]models.ExchangeCodeBatch, error) {
	var batches []models.ExchangeCodeBatch
	if err := r.db.Order("serial_end asc").Find(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}
