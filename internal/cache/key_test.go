package cache

import (
	"strings"
	"testing"

	"github.com/bigkaa/examtrainer/question-module/internal/domain/model"
)

// TestKeyCodec_Canonicalize_OrderIndependence проверяет, что два set-равных
// фильтра с разным порядком элементов дают одну каноническую форму.
func TestKeyCodec_Canonicalize_OrderIndependence(t *testing.T) {
	codec := NewKeyCodec()

	a := model.NewFilterSpec(
		[]string{"Кардиология", "Неврология"},
		[]int{2024, 2025},
		[]int{1, 3},
		[]string{"Сертификация"},
		[]model.StatusTag{model.StatusAnswered, model.StatusFlagged},
		"user-1",
	)
	b := model.NewFilterSpec(
		[]string{"Неврология", "Кардиология"},
		[]int{2025, 2024},
		[]int{3, 1},
		[]string{"Сертификация"},
		[]model.StatusTag{model.StatusFlagged, model.StatusAnswered},
		"user-1",
	)

	if codec.Canonicalize(a) != codec.Canonicalize(b) {
		t.Errorf("канонические формы различаются:\n%s\n%s",
			codec.Canonicalize(a), codec.Canonicalize(b))
	}
}

// TestKeyCodec_Canonicalize_RawSpec проверяет повторную сортировку
// для FilterSpec, собранного мимо конструктора.
func TestKeyCodec_Canonicalize_RawSpec(t *testing.T) {
	codec := NewKeyCodec()

	raw := model.FilterSpec{
		Years:  []int{2025, 2023, 2024},
		UserID: "user-1",
	}
	normalized := model.NewFilterSpec(nil, []int{2023, 2024, 2025}, nil, nil, nil, "user-1")

	if codec.Canonicalize(raw) != codec.Canonicalize(normalized) {
		t.Error("сырой FilterSpec дал иную каноническую форму, чем нормализованный")
	}
}

// TestKeyCodec_Canonicalize_AnonymousSentinel проверяет подстановку
// сентинела anonymous для пустого UserID.
func TestKeyCodec_Canonicalize_AnonymousSentinel(t *testing.T) {
	codec := NewKeyCodec()

	spec := model.NewFilterSpec(nil, []int{2025}, nil, nil, nil, "")
	canonical := codec.Canonicalize(spec)

	if !strings.Contains(canonical, `"uid":"anonymous"`) {
		t.Errorf("каноническая форма не содержит сентинел anonymous: %s", canonical)
	}
}

// TestKeyCodec_Canonicalize_DistinctUsers проверяет, что фильтры разных
// пользователей дают разные ключи (записи кэша не пересекаются).
func TestKeyCodec_Canonicalize_DistinctUsers(t *testing.T) {
	codec := NewKeyCodec()

	tags := []model.StatusTag{model.StatusUnanswered}
	a := model.NewFilterSpec(nil, []int{2025}, nil, nil, tags, "user-1")
	b := model.NewFilterSpec(nil, []int{2025}, nil, nil, tags, "user-2")

	if codec.SpecKey(ClassCount, 1, a) == codec.SpecKey(ClassCount, 1, b) {
		t.Error("ключи разных пользователей совпали")
	}
}

// TestKeyCodec_SpecKey_Format проверяет формат ключа <class>:v<version>:<hash>.
func TestKeyCodec_SpecKey_Format(t *testing.T) {
	codec := NewKeyCodec()
	spec := model.NewFilterSpec([]string{"Кардиология"}, nil, nil, nil, nil, "")

	key := codec.SpecKey(ClassCount, 3, spec)
	if !strings.HasPrefix(key, "count:v3:") {
		t.Errorf("key = %q, ожидался префикс %q", key, "count:v3:")
	}

	// Смена версии обязана менять ключ
	if key == codec.SpecKey(ClassCount, 4, spec) {
		t.Error("ключ не изменился при смене версии схемы")
	}
}

// TestKeyCodec_StaticKey проверяет ключи статических данных.
func TestKeyCodec_StaticKey(t *testing.T) {
	codec := NewKeyCodec()

	key := codec.StaticKey(ClassIDMapping, 1, "specialties")
	if key != "idmap:v1:specialties" {
		t.Errorf("key = %q, ожидался %q", key, "idmap:v1:specialties")
	}
}

// TestKeyCodec_ClassPrefix проверяет, что префиксы классов не пересекаются
// и покрывают ключи своего класса.
func TestKeyCodec_ClassPrefix(t *testing.T) {
	codec := NewKeyCodec()
	spec := model.NewFilterSpec(nil, []int{2025}, nil, nil, nil, "")

	for _, class := range []Class{ClassCount, ClassQuestions, ClassIDMapping, ClassFilterOptions} {
		prefix := codec.ClassPrefix(class)
		if !strings.HasPrefix(codec.SpecKey(class, 1, spec), prefix) {
			t.Errorf("ключ класса %s не начинается с префикса %q", class, prefix)
		}
	}

	// questions-ключи не должны попадать под префикс count
	if strings.HasPrefix(codec.SpecKey(ClassQuestions, 1, spec), codec.ClassPrefix(ClassCount)) {
		t.Error("префиксы классов count и questions пересекаются")
	}
}
