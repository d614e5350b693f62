// Пакет service — бизнес-логика Question Module.
// QuestionRecordCache — LRU-кэш отдельных вопросов с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable.
package service

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/examtrainer/question-module/internal/domain/model"
)

// Prometheus-метрики кэша записей.
var (
	recordCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qb_record_cache_hits_total",
		Help: "Общее количество попаданий в LRU-кэш отдельных вопросов.",
	})
	recordCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qb_record_cache_misses_total",
		Help: "Общее количество промахов LRU-кэша отдельных вопросов.",
	})
)

// QuestionRecordCache — LRU-кэш отдельных вопросов с автоматическим TTL.
// Обслуживает GET /api/v1/questions/{id}; страницы поиска живут
// в TieredCache, здесь только точечные записи.
type QuestionRecordCache struct {
	cache *expirable.LRU[string, *model.QuestionRecord]
}

// NewQuestionRecordCache создаёт LRU-кэш с указанным максимальным размером и TTL.
// maxSize — максимальное количество записей в кэше.
// ttl — время жизни записи после добавления.
func NewQuestionRecordCache(maxSize int, ttl time.Duration) *QuestionRecordCache {
	cache := expirable.NewLRU[string, *model.QuestionRecord](maxSize, nil, ttl)
	return &QuestionRecordCache{cache: cache}
}

// Get возвращает QuestionRecord из кэша по questionID.
// Возвращает (запись, true) при hit или (nil, false) при miss.
// Обновляет Prometheus-метрики hit/miss.
func (c *QuestionRecordCache) Get(questionID string) (*model.QuestionRecord, bool) {
	val, ok := c.cache.Get(questionID)
	if ok {
		recordCacheHitsTotal.Inc()
		return val, true
	}
	recordCacheMissesTotal.Inc()
	return nil, false
}

// Set добавляет или обновляет запись в кэше.
func (c *QuestionRecordCache) Set(questionID string, record *model.QuestionRecord) {
	c.cache.Add(questionID, record)
}

// Delete удаляет запись из кэша (инвалидация после переимпорта вопросов).
func (c *QuestionRecordCache) Delete(questionID string) {
	c.cache.Remove(questionID)
}

// Purge полностью очищает кэш записей.
func (c *QuestionRecordCache) Purge() {
	c.cache.Purge()
}
