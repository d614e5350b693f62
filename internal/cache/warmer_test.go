package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/bigkaa/examtrainer/question-module/internal/domain/model"
)

// TestWarmer_ImmediateWarm проверяет, что первый прогрев выполняется
// сразу при старте, не дожидаясь первого тика.
func TestWarmer_ImmediateWarm(t *testing.T) {
	c := New(100, 0.25, slog.Default())

	var mu sync.Mutex
	warmed := make([]model.FilterSpec, 0, 2)
	warm := func(_ context.Context, spec model.FilterSpec) error {
		mu.Lock()
		warmed = append(warmed, spec)
		mu.Unlock()
		return nil
	}

	specs := []model.FilterSpec{
		model.NewFilterSpec(nil, []int{2025, 2026}, nil, nil, nil, ""),
		model.NewFilterSpec([]string{"Кардиология"}, []int{2025, 2026}, nil, nil, nil, ""),
	}

	// Длинные интервалы: сработать может только немедленный прогрев
	w := NewWarmer(c, warm, specs, time.Hour, time.Hour, slog.Default())
	w.Start(context.Background())

	// Ждём завершения немедленного прогрева
	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(warmed)
		mu.Unlock()
		if n == 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("прогрето %d фильтров за 2s, ожидалось 2", n)
		case <-time.After(10 * time.Millisecond):
		}
	}

	w.Stop()
}

// TestWarmer_WarmErrorsIgnored проверяет, что ошибка прогрева одного
// фильтра не прерывает прогрев остальных.
func TestWarmer_WarmErrorsIgnored(t *testing.T) {
	c := New(100, 0.25, slog.Default())

	var mu sync.Mutex
	calls := 0
	warm := func(_ context.Context, _ model.FilterSpec) error {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			return errors.New("storage unavailable")
		}
		return nil
	}

	specs := []model.FilterSpec{
		model.NewFilterSpec(nil, []int{2025}, nil, nil, nil, ""),
		model.NewFilterSpec(nil, []int{2026}, nil, nil, nil, ""),
	}

	w := NewWarmer(c, warm, specs, time.Hour, time.Hour, slog.Default())
	w.Start(context.Background())

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := calls
		mu.Unlock()
		if n == 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("выполнено %d вызовов прогрева за 2s, ожидалось 2", n)
		case <-time.After(10 * time.Millisecond):
		}
	}

	w.Stop()
}

// TestWarmer_SweepLoop проверяет периодическую очистку истёкших записей.
func TestWarmer_SweepLoop(t *testing.T) {
	c := New(100, 0.25, slog.Default())

	// Запись с коротким TTL истечёт до первого тика очистки
	c.Set("count:v1:stale", 1, 10*time.Millisecond)

	w := NewWarmer(c, nil, nil, 50*time.Millisecond, time.Hour, slog.Default())
	w.Start(context.Background())

	deadline := time.After(2 * time.Second)
	for c.Len() != 0 {
		select {
		case <-deadline:
			t.Fatalf("Len = %d после 2s, фоновая очистка не вычистила истёкшую запись", c.Len())
		case <-time.After(20 * time.Millisecond):
		}
	}

	w.Stop()
}

// TestWarmer_StopIdempotent проверяет, что повторный Stop безопасен.
func TestWarmer_StopIdempotent(t *testing.T) {
	c := New(100, 0.25, slog.Default())

	w := NewWarmer(c, nil, nil, time.Hour, time.Hour, slog.Default())
	w.Start(context.Background())

	w.Stop()
	w.Stop() // не должен паниковать или блокироваться
}

// TestRecentYearSpecs проверяет построение типичных фильтров для прогрева.
func TestRecentYearSpecs(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	specs := RecentYearSpecs(now, []string{"Кардиология", "Неврология"})

	// Базовый фильтр + по одному на специальность
	if len(specs) != 3 {
		t.Fatalf("len(specs) = %d, ожидалось 3", len(specs))
	}

	for i, spec := range specs {
		if len(spec.Years) != 2 || spec.Years[0] != 2025 || spec.Years[1] != 2026 {
			t.Errorf("specs[%d].Years = %v, ожидались [2025 2026]", i, spec.Years)
		}
	}
	if len(specs[0].Specialties) != 0 {
		t.Errorf("specs[0].Specialties = %v, ожидался пустой фильтр", specs[0].Specialties)
	}
	if len(specs[1].Specialties) != 1 || specs[1].Specialties[0] != "Кардиология" {
		t.Errorf("specs[1].Specialties = %v, ожидалась Кардиология", specs[1].Specialties)
	}
}
