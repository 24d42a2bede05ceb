package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"market/internal/market"
	"market/internal/metrics"
	"market/internal/model"
)

// Store is the persistence surface the market service needs.
type Store interface {
	RunSerializable(ctx context.Context, fn func(ctx context.Context) error) error
	GetUserForUpdate(ctx context.Context, userID int) (model.User, error)
	GetItem(ctx context.Context, itemID int) (model.Item, error)
	HasPurchase(ctx context.Context, userID, itemID int) (bool, error)
	DeductBalance(ctx context.Context, userID int, amount decimal.Decimal) error
	CreatePurchase(ctx context.Context, userID, itemID int, at time.Time) error
	PurchasesInRange(ctx context.Context, userID int, from, to time.Time) ([]model.TodayPurchase, error)
	DailyItemCounts(ctx context.Context) ([]model.DailyItemCount, error)
}

type MarketService struct {
	store Store
	log   *slog.Logger
	now   func() time.Time
}

func NewMarketService(store Store, log *slog.Logger) *MarketService {
	return &MarketService{
		store: store,
		log:   log,
		now:   time.Now,
	}
}

// Purchase atomically transfers item.Cost from the user's balance and records
// the purchase. Both mutations commit together or not at all. Concurrent
// purchases of the same (user, item) pair are serialized by the FOR UPDATE
// lock on the user row; the unique constraint on user_items backstops the
// duplicate check if two transactions slip past it anyway.
func (s *MarketService) Purchase(ctx context.Context, userID, itemID int) error {
	start := time.Now()
	defer func() {
		metrics.PurchaseDuration.Observe(time.Since(start).Seconds())
	}()

	err := s.store.RunSerializable(ctx, func(ctx context.Context) error {
		user, err := s.store.GetUserForUpdate(ctx, userID)
		if err != nil {
			return err
		}

		item, err := s.store.GetItem(ctx, itemID)
		if err != nil {
			return err
		}

		if user.Balance.LessThan(item.Cost) {
			return market.ErrInsufficientBalance
		}

		purchased, err := s.store.HasPurchase(ctx, userID, itemID)
		if err != nil {
			return err
		}
		if purchased {
			return market.ErrAlreadyPurchased
		}

		if err := s.store.DeductBalance(ctx, userID, item.Cost); err != nil {
			return err
		}

		return s.store.CreatePurchase(ctx, userID, itemID, s.now().UTC())
	})
	if err != nil {
		s.log.Error("purchase failed",
			slog.Int("user_id", userID),
			slog.Int("item_id", itemID),
			slog.Any("error", err))
		metrics.PurchaseFailures.WithLabelValues(failureReason(err)).Inc()
		return err
	}

	metrics.PurchasesTotal.Inc()
	return nil
}

func failureReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, market.ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, market.ErrItemNotFound):
		return "item_not_found"
	case errors.Is(err, market.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, market.ErrAlreadyPurchased):
		return "already_purchased"
	default:
		return "internal"
	}
}

// GetTodaysPurchases returns the user's purchases made on the current
// calendar day (server-local), enriched with the user email and item name.
// An unknown user or an empty history yields an empty slice, not an error.
func (s *MarketService) GetTodaysPurchases(ctx context.Context, userID int) ([]model.TodayPurchase, error) {
	now := s.now()
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	to := from.AddDate(0, 0, 1)

	return s.store.PurchasesInRange(ctx, userID, from, to)
}

// GetTopPopularItemsPerYear returns, for every year with purchase history,
// the 3 items with the highest single-day purchase count in that year.
// The store reduces the history to per-day counts; the per-year max and the
// top-3 selection happen here. Ordering: year ascending, then peak
// descending, ties broken by ascending item id.
func (s *MarketService) GetTopPopularItemsPerYear(ctx context.Context) ([]model.PopularItem, error) {
	counts, err := s.store.DailyItemCounts(ctx)
	if err != nil {
		return nil, err
	}
	return topPopularItems(counts), nil
}

const topItemsPerYear = 3

func topPopularItems(counts []model.DailyItemCount) []model.PopularItem {
	type yearItem struct {
		year   int
		itemID int
	}

	// peak single-day count per (year, item)
	peaks := make(map[yearItem]model.PopularItem)
	for _, c := range counts {
		k := yearItem{c.Year, c.ItemID}
		if p, ok := peaks[k]; !ok || c.Count > p.PeakDailyPopularity {
			peaks[k] = model.PopularItem{
				Year:                c.Year,
				ItemID:              c.ItemID,
				ItemName:            c.ItemName,
				PeakDailyPopularity: c.Count,
			}
		}
	}

	byYear := make(map[int][]model.PopularItem)
	for _, p := range peaks {
		byYear[p.Year] = append(byYear[p.Year], p)
	}

	years := make([]int, 0, len(byYear))
	for y := range byYear {
		years = append(years, y)
	}
	sort.Ints(years)

	result := make([]model.PopularItem, 0, len(years)*topItemsPerYear)
	for _, y := range years {
		items := byYear[y]
		sort.Slice(items, func(i, j int) bool {
			if items[i].PeakDailyPopularity != items[j].PeakDailyPopularity {
				return items[i].PeakDailyPopularity > items[j].PeakDailyPopularity
			}
			return items[i].ItemID < items[j].ItemID
		})
		if len(items) > topItemsPerYear {
			items = items[:topItemsPerYear]
		}
		result = append(result, items...)
	}
	return result
}
