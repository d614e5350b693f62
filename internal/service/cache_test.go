package service

import (
	"testing"
	"time"

	"github.com/bigkaa/examtrainer/question-module/internal/domain/model"
)

// TestQuestionRecordCache_GetSet проверяет базовые операции Get/Set.
func TestQuestionRecordCache_GetSet(t *testing.T) {
	cache := NewQuestionRecordCache(100, 5*time.Minute)

	record := &model.QuestionRecord{
		ID:          "test-uuid-1",
		SpecialtyID: 3,
		Year:        2025,
		Difficulty:  2,
		Text:        "Какой слой модели OSI отвечает за маршрутизацию?",
	}

	// Cache miss
	_, ok := cache.Get("test-uuid-1")
	if ok {
		t.Fatal("ожидался cache miss для нового ключа")
	}

	// Set + cache hit
	cache.Set("test-uuid-1", record)
	got, ok := cache.Get("test-uuid-1")
	if !ok {
		t.Fatal("ожидался cache hit после Set")
	}
	if got.ID != "test-uuid-1" {
		t.Errorf("ID = %q, ожидался %q", got.ID, "test-uuid-1")
	}
	if got.Year != 2025 {
		t.Errorf("Year = %d, ожидался %d", got.Year, 2025)
	}
}

// TestQuestionRecordCache_Delete проверяет удаление из кэша (инвалидация).
func TestQuestionRecordCache_Delete(t *testing.T) {
	cache := NewQuestionRecordCache(100, 5*time.Minute)

	cache.Set("delete-me", &model.QuestionRecord{ID: "delete-me"})

	// Проверяем что запись есть
	_, ok := cache.Get("delete-me")
	if !ok {
		t.Fatal("ожидался cache hit перед удалением")
	}

	// Удаляем
	cache.Delete("delete-me")

	// Проверяем что записи больше нет
	_, ok = cache.Get("delete-me")
	if ok {
		t.Fatal("ожидался cache miss после Delete")
	}
}

// TestQuestionRecordCache_TTLExpiration проверяет автоматическое истечение TTL.
func TestQuestionRecordCache_TTLExpiration(t *testing.T) {
	// Короткий TTL = 50ms для теста
	cache := NewQuestionRecordCache(100, 50*time.Millisecond)

	cache.Set("ttl-test", &model.QuestionRecord{ID: "ttl-test"})

	// Сразу после Set — должен быть hit
	_, ok := cache.Get("ttl-test")
	if !ok {
		t.Fatal("ожидался cache hit сразу после Set")
	}

	// Ждём истечения TTL
	time.Sleep(100 * time.Millisecond)

	// После истечения TTL — должен быть miss
	_, ok = cache.Get("ttl-test")
	if ok {
		t.Fatal("ожидался cache miss после истечения TTL")
	}
}

// TestQuestionRecordCache_Eviction проверяет вытеснение при превышении maxSize.
func TestQuestionRecordCache_Eviction(t *testing.T) {
	// Кэш на 2 записи
	cache := NewQuestionRecordCache(2, 5*time.Minute)

	cache.Set("r1", &model.QuestionRecord{ID: "r1"})
	cache.Set("r2", &model.QuestionRecord{ID: "r2"})

	// Обе записи в кэше
	if _, ok := cache.Get("r1"); !ok {
		t.Fatal("ожидался cache hit для r1")
	}
	if _, ok := cache.Get("r2"); !ok {
		t.Fatal("ожидался cache hit для r2")
	}

	// Добавляем третью — r1 должен быть вытеснен (LRU: последний Get был для r2)
	cache.Set("r3", &model.QuestionRecord{ID: "r3"})

	// r3 должна быть в кэше
	if _, ok := cache.Get("r3"); !ok {
		t.Fatal("ожидался cache hit для r3")
	}
}

// TestQuestionRecordCache_Purge проверяет полную очистку кэша.
func TestQuestionRecordCache_Purge(t *testing.T) {
	cache := NewQuestionRecordCache(100, 5*time.Minute)

	cache.Set("q1", &model.QuestionRecord{ID: "q1"})
	cache.Set("q2", &model.QuestionRecord{ID: "q2"})

	cache.Purge()

	if _, ok := cache.Get("q1"); ok {
		t.Fatal("ожидался cache miss для q1 после Purge")
	}
	if _, ok := cache.Get("q2"); ok {
		t.Fatal("ожидался cache miss для q2 после Purge")
	}
}
