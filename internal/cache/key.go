// Пакет cache — многоуровневый in-memory кэш Question Module.
//
// key.go — канонизация FilterSpec в детерминированный ключ кэша.
// Два set-равных фильтра обязаны давать идентичный ключ независимо от
// порядка элементов на входе (порядок нормализуется в NewFilterSpec,
// здесь выполняется повторная сортировка на случай сырых структур).
package cache

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sort"

	"github.com/bigkaa/examtrainer/question-module/internal/domain/model"
)

// Class — класс кэшируемых данных. Каждый класс имеет собственный TTL
// и собственный префикс ключа, что позволяет инвалидировать один класс
// без затрагивания остальных.
type Class string

// Классы кэша.
const (
	// ClassCount — результаты подсчёта вопросов по фильтру.
	ClassCount Class = "count"
	// ClassQuestions — страницы списков вопросов (самый волатильный класс).
	ClassQuestions Class = "questions"
	// ClassIDMapping — маппинги имя → суррогатный id (specialties, exam_types).
	ClassIDMapping Class = "idmap"
	// ClassFilterOptions — доступные значения фильтров для UI.
	ClassFilterOptions Class = "options"
)

// canonicalSpec — промежуточное представление FilterSpec для сериализации.
// Поля сериализуются в фиксированном порядке (encoding/json пишет поля
// структуры в порядке объявления), множества отсортированы.
type canonicalSpec struct {
	Specialties  []string          `json:"sp"`
	Years        []int             `json:"yr"`
	Difficulties []int             `json:"df"`
	ExamTypes    []string          `json:"et"`
	StatusTags   []model.StatusTag `json:"st"`
	UserID       string            `json:"uid"`
}

// KeyCodec — кодек ключей кэша.
type KeyCodec struct{}

// NewKeyCodec создаёт кодек ключей.
func NewKeyCodec() *KeyCodec {
	return &KeyCodec{}
}

// Canonicalize сериализует FilterSpec в каноническую строку.
// Используется напрямую только в тестах и для отладки; ключи кэша
// строятся через SpecKey (каноническая форма + FNV-хэш).
func (k *KeyCodec) Canonicalize(spec model.FilterSpec) string {
	c := canonicalSpec{
		Specialties:  sortedStrings(spec.Specialties),
		Years:        sortedInts(spec.Years),
		Difficulties: sortedInts(spec.Difficulties),
		ExamTypes:    sortedStrings(spec.ExamTypes),
		StatusTags:   sortedTags(spec.StatusTags),
		UserID:       spec.EffectiveUserID(),
	}
	// Marshal canonicalSpec не может завершиться ошибкой:
	// только строки, числа и срезы без циклов.
	data, _ := json.Marshal(c)
	return string(data)
}

// SpecKey строит ключ кэша для FilterSpec:
// <class>:v<version>:<fnv64a каноничной формы>.
// Версия схемы встроена в ключ, поэтому bump версии инвалидирует
// все классы сразу без сканирования.
//
// FNV-1a 64 бита достаточно для ожидаемой кардинальности (<10^5
// различных фильтров): вероятность коллизии пренебрежимо мала, полная
// каноническая форма при hit не сравнивается.
func (k *KeyCodec) SpecKey(class Class, version uint64, spec model.FilterSpec) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(k.Canonicalize(spec)))
	return fmt.Sprintf("%s:v%d:%x", class, version, h.Sum64())
}

// StaticKey строит ключ для данных, не зависящих от FilterSpec
// (маппинги id, опции фильтров): <class>:v<version>:<name>.
func (k *KeyCodec) StaticKey(class Class, version uint64, name string) string {
	return fmt.Sprintf("%s:v%d:%s", class, version, name)
}

// ClassPrefix возвращает префикс ключей класса для точечной инвалидации.
func (k *KeyCodec) ClassPrefix(class Class) string {
	return string(class) + ":"
}

// --- Нормализация множеств ---
// NewFilterSpec уже сортирует поля, но SpecKey не должен полагаться
// на то, что FilterSpec собран через конструктор.

func sortedStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	return out
}

func sortedInts(in []int) []int {
	out := make([]int, len(in))
	copy(out, in)
	sort.Ints(out)
	return out
}

func sortedTags(in []model.StatusTag) []model.StatusTag {
	out := make([]model.StatusTag, len(in))
	copy(out, in)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
