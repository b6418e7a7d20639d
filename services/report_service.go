package services

import (
	"context"
	"time"

	apperrors "github.com/MahoCommerce/maho-sub002/common/errors"
	"github.com/MahoCommerce/maho-sub002/common/logger"
	"github.com/MahoCommerce/maho-sub002/models"
	"github.com/MahoCommerce/maho-sub002/repository"
	"go.uber.org/zap"
)

const maxBestsellers = 100

// ReportService reads committed grid values. It never recomputes totals.
type ReportService interface {
	SalesSummary(ctx context.Context, storeID string, from, to time.Time) (*models.SalesSummary, error)
	Bestsellers(ctx context.Context, storeID string, limit int) ([]models.Bestseller, error)
}

type reportServiceImpl struct {
	store  repository.Transactor
	logger *zap.Logger
}

func NewReportService(store repository.Transactor, logger *zap.Logger) ReportService {
	return &reportServiceImpl{store: store, logger: logger}
}

func (s *reportServiceImpl) SalesSummary(ctx context.Context, storeID string, from, to time.Time) (*models.SalesSummary, error) {
	if !to.IsZero() && to.Before(from) {
		return nil, apperrors.ErrValidation.Withf("report range ends before it starts")
	}
	var out *models.SalesSummary
	err := s.store.WithinTx(ctx, func(r repository.Repos) error {
		var err error
		out, err = r.Reports.SalesSummary(ctx, storeID, from, to)
		return err
	})
	if err != nil {
		logger.For(ctx, s.logger).Error("sales summary failed", zap.String("store_id", storeID), zap.Error(err))
		return nil, err
	}
	return out, nil
}

func (s *reportServiceImpl) Bestsellers(ctx context.Context, storeID string, limit int) ([]models.Bestseller, error) {
	if limit <= 0 || limit > maxBestsellers {
		limit = 10
	}
	var out []models.Bestseller
	err := s.store.WithinTx(ctx, func(r repository.Repos) error {
		var err error
		out, err = r.Reports.Bestsellers(ctx, storeID, limit)
		return err
	})
	return out, err
}
