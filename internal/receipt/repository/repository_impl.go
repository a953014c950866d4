package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/kassaflow/kassaflow/internal/receipt/domain"
)

type repository struct{}

func NewRepository() domain.Repository {
	return &repository{}
}

func (r *repository) Create(ctx context.Context, db *gorm.DB, receipt *domain.Receipt) error {
	return db.WithContext(ctx).Create(receipt).Error
}

func (r *repository) GetByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Receipt, error) {
	var receipt domain.Receipt
	err := db.WithContext(ctx).First(&receipt, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrReceiptNotFound
	}
	if err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (r *repository) LatestActiveByPayment(ctx context.Context, db *gorm.DB, storeID snowflake.ID, paymentID string) (*domain.Receipt, error) {
	var receipt domain.Receipt
	err := db.WithContext(ctx).
		Where("store_id = ? AND payment_id = ? AND status <> ?", storeID, paymentID, domain.StatusCanceled).
		Order("created_at desc, id desc").
		First(&receipt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrReceiptNotFound
	}
	if err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (r *repository) MarkCanceled(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	result := db.WithContext(ctx).
		Model(&domain.Receipt{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":      domain.StatusCanceled,
			"canceled_at": at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrReceiptNotFound
	}
	return nil
}

func (r *repository) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.Receipt, error) {
	query := db.WithContext(ctx).Model(&domain.Receipt{})
	if filter.StoreID != nil {
		query = query.Where("store_id = ?", *filter.StoreID)
	}
	if filter.PaymentID != "" {
		query = query.Where("payment_id = ?", filter.PaymentID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var receipts []domain.Receipt
	if err := query.Order("created_at desc, id desc").Limit(limit).Find(&receipts).Error; err != nil {
		return nil, err
	}
	return receipts, nil
}
