package services

import (
	"context"
	"time"

	"hotelstock/server/internal/config"
	"hotelstock/server/internal/utils"
)

// SummaryCache хранилище сводок (реализуется utils.RedisClient)
type SummaryCache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// SummaryCacheStore кэш сводок инвентаризации. Нулевое значение и nil работают как "без кэша"
type SummaryCacheStore struct {
	cache SummaryCache
	ttl   time.Duration
}

// NewSummaryCacheStore создает кэш сводок с указанным TTL
func NewSummaryCacheStore(cache SummaryCache, ttl time.Duration) *SummaryCacheStore {
	return &SummaryCacheStore{cache: cache, ttl: ttl}
}

func summaryKey(stocktakeID string) string {
	return "stocktake:summary:" + stocktakeID
}

func (c *SummaryCacheStore) get(ctx context.Context, stocktakeID string) (*StocktakeSummary, bool) {
	if c == nil || c.cache == nil {
		return nil, false
	}
	var summary StocktakeSummary
	if err := c.cache.GetJSON(ctx, summaryKey(stocktakeID), &summary); err != nil {
		if !utils.IsMiss(err) {
			config.GetLogger().WithError(err).WithField("stocktake_id", stocktakeID).Warn("Не удалось прочитать сводку из кэша")
		}
		return nil, false
	}
	return &summary, true
}

func (c *SummaryCacheStore) put(ctx context.Context, summary *StocktakeSummary) {
	if c == nil || c.cache == nil {
		return
	}
	if err := c.cache.Set(ctx, summaryKey(summary.StocktakeID), summary, c.ttl); err != nil {
		config.GetLogger().WithError(err).WithField("stocktake_id", summary.StocktakeID).Warn("Не удалось сохранить сводку в кэш")
	}
}

func (c *SummaryCacheStore) invalidate(ctx context.Context, stocktakeID string) {
	if c == nil || c.cache == nil || stocktakeID == "" {
		return
	}
	if err := c.cache.Delete(ctx, summaryKey(stocktakeID)); err != nil {
		config.GetLogger().WithError(err).WithField("stocktake_id", stocktakeID).Warn("Не удалось сбросить кэш сводки")
	}
}
