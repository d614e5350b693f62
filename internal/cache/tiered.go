// tiered.go — обобщённое key→value хранилище с TTL, версией схемы
// и пакетным LRU-вытеснением.
//
// Один мьютекс на весь кэш: n ограничен capacity, операции над map
// дешёвые, гранулярные блокировки по классам не окупаются
// (осознанный компромисс простота/производительность).
package cache

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qb_cache_hits_total",
		Help: "Общее количество попаданий в кэш фильтров.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qb_cache_misses_total",
		Help: "Общее количество промахов кэша фильтров (включая истёкшие и устаревшие по версии записи).",
	})
	cacheEvictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qb_cache_evictions_total",
		Help: "Количество записей, вытесненных по LRU при достижении capacity.",
	})
	cacheSweepRemovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qb_cache_sweep_removed_total",
		Help: "Количество записей, удалённых фоновой очисткой.",
	})
)

// Параметры вытеснения по умолчанию.
const (
	// DefaultCapacity — максимальное количество записей в кэше.
	DefaultCapacity = 1000
	// DefaultEvictFraction — доля записей, удаляемых за один проход вытеснения.
	DefaultEvictFraction = 0.25
)

// entry — одна запись кэша с бухгалтерией доступа.
// Запись валидна, если now - createdAt < ttl И schemaVersion == текущей версии.
type entry struct {
	data           any
	createdAt      time.Time
	ttl            time.Duration
	schemaVersion  uint64
	accessCount    int64
	lastAccessedAt time.Time
}

// TieredCache — процесс-глобальное key→value хранилище с per-entry TTL,
// версией схемы и пакетным LRU-вытеснением. Создаётся один раз при старте
// и передаётся зависимостям явно (никаких синглтонов — тесты создают
// собственный экземпляр).
type TieredCache struct {
	mu            sync.Mutex
	entries       map[string]*entry
	version       uint64
	capacity      int
	evictFraction float64
	logger        *slog.Logger

	// now — источник времени, подменяется в тестах.
	now func() time.Time
}

// New создаёт пустой TieredCache.
// capacity <= 0 и evictFraction вне (0,1] заменяются значениями по умолчанию.
func New(capacity int, evictFraction float64, logger *slog.Logger) *TieredCache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if evictFraction <= 0 || evictFraction > 1 {
		evictFraction = DefaultEvictFraction
	}
	return &TieredCache{
		entries:       make(map[string]*entry),
		version:       1,
		capacity:      capacity,
		evictFraction: evictFraction,
		logger:        logger.With(slog.String("component", "tiered_cache")),
		now:           time.Now,
	}
}

// Get возвращает значение по ключу.
// Отсутствующая, истёкшая или устаревшая по версии запись — промах:
// запись удаляется, инкрементируется счётчик промахов.
// При попадании обновляется бухгалтерия доступа (accessCount, lastAccessedAt).
func (c *TieredCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		cacheMissesTotal.Inc()
		return nil, false
	}

	now := c.now()
	if e.schemaVersion != c.version || now.Sub(e.createdAt) >= e.ttl {
		// Ленивое удаление невалидной записи
		delete(c.entries, key)
		cacheMissesTotal.Inc()
		return nil, false
	}

	e.accessCount++
	e.lastAccessedAt = now
	cacheHitsTotal.Inc()
	return e.data, true
}

// Set сохраняет значение с указанным TTL.
// При достижении capacity вытеснение выполняется ДО вставки.
func (c *TieredCache) Set(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.capacity {
		c.evictLocked()
	}

	now := c.now()
	c.entries[key] = &entry{
		data:           value,
		createdAt:      now,
		ttl:            ttl,
		schemaVersion:  c.version,
		lastAccessedAt: now,
	}
}

// Delete удаляет запись по ключу (точечная инвалидация).
func (c *TieredCache) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Len возвращает текущее количество записей (включая ещё не вычищенные невалидные).
func (c *TieredCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Version возвращает текущую версию схемы.
func (c *TieredCache) Version() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// BumpVersion инкрементирует версию схемы, логически инвалидируя весь кэш
// без прохода по записям: устаревшие записи вычищаются лениво при Get
// или фоновой очисткой.
func (c *TieredCache) BumpVersion() uint64 {
	c.mu.Lock()
	c.version++
	v := c.version
	c.mu.Unlock()

	c.logger.Info("Версия схемы кэша инкрементирована", slog.Uint64("version", v))
	return v
}

// InvalidateClass удаляет все записи, ключи которых начинаются с prefix.
// O(n) по текущим записям — приемлемо, n ограничен capacity.
func (c *TieredCache) InvalidateClass(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Sweep удаляет истёкшие и устаревшие по версии записи.
// Вызывается фоновой очисткой; блокировка держится только на время
// прохода по map, без обращений к внешним хранилищам.
func (c *TieredCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, e := range c.entries {
		if e.schemaVersion != c.version || now.Sub(e.createdAt) >= e.ttl {
			delete(c.entries, key)
			removed++
		}
	}
	if removed > 0 {
		cacheSweepRemovedTotal.Add(float64(removed))
	}
	return removed
}

// evictLocked выполняет пакетное LRU-вытеснение: сортирует записи по
// lastAccessedAt по возрастанию и удаляет старейшую долю evictFraction
// за один проход. Редкая полная сортировка дешевле поддержания строгого
// LRU-списка при высокой частоте записи; ценой является изредка
// вытесненная запись, которая пережила бы строгий LRU.
// Вызывается только под c.mu.
func (c *TieredCache) evictLocked() {
	type keyed struct {
		key  string
		last time.Time
	}
	all := make([]keyed, 0, len(c.entries))
	for key, e := range c.entries {
		all = append(all, keyed{key: key, last: e.lastAccessedAt})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].last.Before(all[j].last) })

	n := int(float64(len(all)) * c.evictFraction)
	if n < 1 {
		n = 1
	}
	for _, k := range all[:n] {
		delete(c.entries, k.key)
	}
	cacheEvictionsTotal.Add(float64(n))

	c.logger.Debug("LRU-вытеснение выполнено",
		slog.Int("removed", n),
		slog.Int("remaining", len(c.entries)),
	)
}
