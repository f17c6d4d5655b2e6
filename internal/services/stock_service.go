package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/atelier-perle/api/internal/domain"
	"github.com/atelier-perle/api/internal/repositories"
)

// StockServiceDeps bundles dependencies required to construct a StockService.
type StockServiceDeps struct {
	Stocks repositories.StockRepository
	Clock  func() time.Time
	Logger Logger
}

type stockService struct {
	stocks repositories.StockRepository
	clock  func() time.Time
	logger Logger
}

// NewStockService wires a StockService.
func NewStockService(deps StockServiceDeps) (StockService, error) {
	if deps.Stocks == nil {
		return nil, errors.New("stock service requires stock repository")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &stockService{
		stocks: deps.Stocks,
		clock:  func() time.Time { return clock().UTC() },
		logger: logger,
	}, nil
}

func (s *stockService) Get(ctx context.Context, kind, itemID string) (domain.StockRecord, error) {
	parsed, err := domain.ParseItemKind(kind)
	if err != nil {
		return domain.StockRecord{}, err
	}
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return domain.StockRecord{}, errors.New("stock: item id is required")
	}
	return s.stocks.Get(ctx, domain.ItemKey{Kind: parsed, ID: itemID})
}

func (s *stockService) List(ctx context.Context) ([]domain.StockRecord, error) {
	return s.stocks.List(ctx)
}

// Restock replenishes one stock record on the admin path.
func (s *stockService) Restock(ctx context.Context, cmd RestockCommand) (domain.StockRecord, error) {
	parsed, err := domain.ParseItemKind(cmd.Kind)
	if err != nil {
		return domain.StockRecord{}, err
	}
	itemID := strings.TrimSpace(cmd.ItemID)
	if itemID == "" {
		return domain.StockRecord{}, errors.New("stock restock: item id is required")
	}
	if cmd.Quantity <= 0 {
		return domain.StockRecord{}, errors.New("stock restock: quantity must be > 0")
	}

	record, err := s.stocks.Restock(ctx, repositories.RestockRequest{
		Key:      domain.ItemKey{Kind: parsed, ID: itemID},
		Quantity: cmd.Quantity,
		Now:      s.clock(),
	})
	if err != nil {
		return domain.StockRecord{}, err
	}

	s.logger(ctx, "stock.restocked", map[string]any{
		"item":     record.Key.DocID(),
		"quantity": record.Quantity,
	})
	return record, nil
}
