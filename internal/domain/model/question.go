// Пакет model — доменные модели Question Module.
// QuestionRecord — маппинг таблицы questions (owned by Admin Module).
// FilterSpec — типизированное описание фильтра банка вопросов.
package model

import (
	"fmt"
	"sort"
	"time"
)

// StatusTag — отношение вопроса к истории ответов одного пользователя.
type StatusTag string

// Допустимые статус-теги.
const (
	StatusAnswered   StatusTag = "answered"
	StatusUnanswered StatusTag = "unanswered"
	StatusCorrect    StatusTag = "correct"
	StatusIncorrect  StatusTag = "incorrect"
	StatusFlagged    StatusTag = "flagged"
)

// ParseStatusTag преобразует строку в StatusTag или возвращает ошибку.
func ParseStatusTag(s string) (StatusTag, error) {
	switch StatusTag(s) {
	case StatusAnswered, StatusUnanswered, StatusCorrect, StatusIncorrect, StatusFlagged:
		return StatusTag(s), nil
	default:
		return "", fmt.Errorf("недопустимый статус-тег %q, допустимые: answered, unanswered, correct, incorrect, flagged", s)
	}
}

// AnonymousUserID — сентинел для запросов без аутентифицированного пользователя.
// Гарантирует, что анонимные и пользовательские записи кэша никогда не пересекаются.
const AnonymousUserID = "anonymous"

// Границы сложности вопросов.
const (
	MinDifficulty = 1
	MaxDifficulty = 5
)

// FilterSpec — канонизированное описание фильтра банка вопросов.
// Создаётся через NewFilterSpec: все множества дедуплицированы и отсортированы,
// поэтому два set-равных фильтра всегда дают одинаковый ключ кэша.
// Живёт в пределах одного запроса, никогда не персистится.
type FilterSpec struct {
	// Specialties — имена специальностей (например "Кардиология")
	Specialties []string
	// Years — годы экзаменационных вопросов
	Years []int
	// Difficulties — уровни сложности (1..5)
	Difficulties []int
	// ExamTypes — имена типов экзаменов
	ExamTypes []string
	// StatusTags — статус-теги относительно истории пользователя
	StatusTags []StatusTag
	// UserID — идентификатор пользователя; пустая строка = аноним
	UserID string
}

// NewFilterSpec создаёт FilterSpec с семантикой множеств:
// каждое поле дедуплицируется и сортируется (строки лексикографически,
// числа по возрастанию). Порядок элементов на входе не имеет значения.
func NewFilterSpec(
	specialties []string,
	years []int,
	difficulties []int,
	examTypes []string,
	statusTags []StatusTag,
	userID string,
) FilterSpec {
	return FilterSpec{
		Specialties:  dedupeStrings(specialties),
		Years:        dedupeInts(years),
		Difficulties: dedupeInts(difficulties),
		ExamTypes:    dedupeStrings(examTypes),
		StatusTags:   dedupeTags(statusTags),
		UserID:       userID,
	}
}

// HasStatusFilter сообщает, запрошена ли фильтрация по истории пользователя.
func (s FilterSpec) HasStatusFilter() bool {
	return len(s.StatusTags) > 0
}

// IsAnonymous сообщает, что конкретный пользователь неизвестен.
func (s FilterSpec) IsAnonymous() bool {
	return s.UserID == "" || s.UserID == AnonymousUserID
}

// EffectiveUserID возвращает UserID или сентинел anonymous.
func (s FilterSpec) EffectiveUserID() string {
	if s.UserID == "" {
		return AnonymousUserID
	}
	return s.UserID
}

// dedupeStrings возвращает отсортированную копию без дубликатов.
func dedupeStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// dedupeInts возвращает отсортированную копию без дубликатов.
func dedupeInts(in []int) []int {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[int]struct{}, len(in))
	out := make([]int, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

// dedupeTags возвращает отсортированную копию без дубликатов.
func dedupeTags(in []StatusTag) []StatusTag {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[StatusTag]struct{}, len(in))
	out := make([]StatusTag, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// QuestionRecord — вопрос из таблицы questions.
// Question Module использует эту модель только для чтения.
type QuestionRecord struct {
	// ID — UUID вопроса
	ID string
	// SpecialtyID — суррогатный id специальности
	SpecialtyID int
	// ExamTypeID — суррогатный id типа экзамена
	ExamTypeID int
	// Year — год экзамена
	Year int
	// Difficulty — сложность (1..5)
	Difficulty int
	// CorrectAnswer — буква правильного ответа (A-E)
	CorrectAnswer string
	// Text — текст вопроса
	Text string
	// Options — варианты ответов (JSON-массив строк)
	Options []string
	// CreatedAt — время создания записи
	CreatedAt time.Time
}

// UserAnswerFact — факт ответа пользователя на вопрос.
// При нескольких ответах на один вопрос авторитетен самый свежий AnsweredAt.
type UserAnswerFact struct {
	// QuestionID — UUID вопроса
	QuestionID string
	// IsCorrect — был ли ответ правильным
	IsCorrect bool
	// AnsweredAt — время ответа
	AnsweredAt time.Time
}

// UserFlag — пометка вопроса пользователем ("вернуться позже").
type UserFlag struct {
	// QuestionID — UUID вопроса
	QuestionID string
	// IsFlagged — установлен ли флаг
	IsFlagged bool
}

// CountEstimate — результат подсчёта вопросов по фильтру.
// При Exact == false: Count = round(total * MatchedInSample/SampleSize),
// вызывающая сторона обязана видеть, что значение приблизительное.
type CountEstimate struct {
	// Count — количество вопросов (точное или экстраполированное)
	Count int
	// Exact — true, если Count получен прямым COUNT-запросом
	Exact bool
	// SampleSize — размер выборки (0 для точного подсчёта)
	SampleSize int
	// MatchedInSample — сколько элементов выборки прошло статус-фильтр
	MatchedInSample int
}

// FilterOptions — доступные значения фильтров для UI.
type FilterOptions struct {
	// Specialties — имена всех специальностей
	Specialties []string
	// ExamTypes — имена всех типов экзаменов
	ExamTypes []string
	// Years — все года, встречающиеся в банке вопросов
	Years []int
	// Difficulties — все уровни сложности (1..5)
	Difficulties []int
}
