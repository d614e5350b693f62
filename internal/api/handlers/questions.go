// questions.go — обработчики подсчёта, поиска и получения вопросов.
// Десериализация запроса, валидация, построение FilterSpec, вызов service,
// сериализация ответа.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	apierrors "github.com/bigkaa/examtrainer/question-module/internal/api/errors"
	"github.com/bigkaa/examtrainer/question-module/internal/api/middleware"
	"github.com/bigkaa/examtrainer/question-module/internal/domain/model"
	"github.com/bigkaa/examtrainer/question-module/internal/service"
)

// QuestionService — интерфейс сервисного слоя, используемый обработчиками.
type QuestionService interface {
	// Count возвращает количество вопросов по фильтру.
	Count(ctx context.Context, spec model.FilterSpec) (service.CountResult, error)
	// Search возвращает страницу вопросов по фильтру.
	Search(ctx context.Context, spec model.FilterSpec, limit, offset int) (*service.SearchResult, error)
	// FilterOptions возвращает доступные значения фильтров.
	FilterOptions(ctx context.Context) (model.FilterOptions, bool, error)
	// GetQuestion возвращает вопрос по id.
	GetQuestion(ctx context.Context, questionID string) (*model.QuestionRecord, error)
	// InvalidateCache инвалидирует кэш, возвращает новую версию схемы.
	InvalidateCache() uint64
}

// filterRequest — фильтр банка вопросов в теле запроса.
type filterRequest struct {
	Specialties  []string `json:"specialties,omitempty"`
	Years        []int    `json:"years,omitempty"`
	Difficulties []int    `json:"difficulties,omitempty"`
	ExamTypes    []string `json:"exam_types,omitempty"`
	StatusTags   []string `json:"status_tags,omitempty"`
}

// searchRequest — тело запроса POST /api/v1/questions/search.
type searchRequest struct {
	Filter filterRequest `json:"filter"`
	Limit  int           `json:"limit,omitempty"`
	Offset int           `json:"offset,omitempty"`
}

// countResponse — ответ POST /api/v1/questions/count.
type countResponse struct {
	Count          int     `json:"count"`
	Exact          bool    `json:"exact"`
	Cached         bool    `json:"cached"`
	ResponseTimeMs float64 `json:"response_time_ms"`
}

// questionItem — вопрос в API-ответе.
type questionItem struct {
	ID            string   `json:"id"`
	SpecialtyID   int      `json:"specialty_id"`
	ExamTypeID    int      `json:"exam_type_id"`
	Year          int      `json:"year"`
	Difficulty    int      `json:"difficulty"`
	Text          string   `json:"text"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer"`
}

// searchResponse — ответ POST /api/v1/questions/search.
type searchResponse struct {
	Questions      []questionItem `json:"questions"`
	Count          int            `json:"count"`
	Exact          bool           `json:"exact"`
	HasMore        bool           `json:"has_more"`
	Cached         bool           `json:"cached"`
	ResponseTimeMs float64        `json:"response_time_ms"`
}

// handleCountQuestions — реализация POST /api/v1/questions/count.
func (h *APIHandler) handleCountQuestions(w http.ResponseWriter, r *http.Request) {
	var req filterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON в теле запроса")
		return
	}

	spec, err := specFromRequest(r, req)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	result, err := h.questions.Count(r.Context(), spec)
	if err != nil {
		if errors.Is(err, service.ErrStatusRequiresUser) {
			apierrors.ValidationError(w, "Статус-фильтры доступны только аутентифицированным пользователям")
			return
		}
		h.logger.Error("Ошибка подсчёта вопросов", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Внутренняя ошибка при подсчёте вопросов")
		return
	}

	writeJSON(w, http.StatusOK, countResponse{
		Count:          result.Count,
		Exact:          result.Exact,
		Cached:         result.Cached,
		ResponseTimeMs: float64(result.Duration.Microseconds()) / 1000,
	})
}

// handleSearchQuestions — реализация POST /api/v1/questions/search.
func (h *APIHandler) handleSearchQuestions(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON в теле запроса")
		return
	}

	spec, err := specFromRequest(r, req.Filter)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	limit, offset := paginationDefaults(req.Limit, req.Offset)

	result, err := h.questions.Search(r.Context(), spec, limit, offset)
	if err != nil {
		if errors.Is(err, service.ErrStatusRequiresUser) {
			apierrors.ValidationError(w, "Статус-фильтры доступны только аутентифицированным пользователям")
			return
		}
		h.logger.Error("Ошибка поиска вопросов", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Внутренняя ошибка при поиске вопросов")
		return
	}

	writeJSON(w, http.StatusOK, searchResponse{
		Questions:      questionsToItems(result.Questions),
		Count:          result.Total,
		Exact:          result.Exact,
		HasMore:        result.HasMore,
		Cached:         result.Cached,
		ResponseTimeMs: float64(result.Duration.Microseconds()) / 1000,
	})
}

// handleGetQuestion — реализация GET /api/v1/questions/{questionID}.
func (h *APIHandler) handleGetQuestion(w http.ResponseWriter, r *http.Request) {
	questionID := chi.URLParam(r, "questionID")
	if _, err := uuid.Parse(questionID); err != nil {
		apierrors.ValidationError(w, "Некорректный UUID вопроса")
		return
	}

	record, err := h.questions.GetQuestion(r.Context(), questionID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			apierrors.NotFound(w, "Вопрос не найден")
			return
		}
		h.logger.Error("Ошибка получения вопроса",
			slog.String("question_id", questionID),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка при получении вопроса")
		return
	}

	writeJSON(w, http.StatusOK, questionToItem(record))
}

// handleInvalidateCache — реализация POST /api/v1/cache/invalidate.
// Вызывается Admin Module после импорта вопросов.
// Авторизация — на уровне API Gateway.
func (h *APIHandler) handleInvalidateCache(w http.ResponseWriter, r *http.Request) {
	version := h.questions.InvalidateCache()
	h.logger.Info("Кэш инвалидирован по запросу", slog.Uint64("version", version))
	writeJSON(w, http.StatusOK, map[string]uint64{"version": version})
}

// specFromRequest строит FilterSpec из тела запроса и контекста.
// Валидирует сложности и статус-теги; идентификатор пользователя
// берётся из JWT middleware (пусто = аноним).
func specFromRequest(r *http.Request, req filterRequest) (model.FilterSpec, error) {
	for _, d := range req.Difficulties {
		if d < model.MinDifficulty || d > model.MaxDifficulty {
			return model.FilterSpec{}, fmt.Errorf("сложность %d вне диапазона [%d, %d]", d, model.MinDifficulty, model.MaxDifficulty)
		}
	}

	tags := make([]model.StatusTag, 0, len(req.StatusTags))
	for _, raw := range req.StatusTags {
		tag, err := model.ParseStatusTag(raw)
		if err != nil {
			return model.FilterSpec{}, err
		}
		tags = append(tags, tag)
	}

	userID := middleware.UserIDFromContext(r.Context())

	return model.NewFilterSpec(
		req.Specialties,
		req.Years,
		req.Difficulties,
		req.ExamTypes,
		tags,
		userID,
	), nil
}

// questionsToItems конвертирует domain модели в API-типы.
func questionsToItems(records []*model.QuestionRecord) []questionItem {
	items := make([]questionItem, 0, len(records))
	for _, q := range records {
		items = append(items, questionToItem(q))
	}
	return items
}

// questionToItem конвертирует одну domain-запись в API-тип.
func questionToItem(q *model.QuestionRecord) questionItem {
	return questionItem{
		ID:            q.ID,
		SpecialtyID:   q.SpecialtyID,
		ExamTypeID:    q.ExamTypeID,
		Year:          q.Year,
		Difficulty:    q.Difficulty,
		Text:          q.Text,
		Options:       q.Options,
		CorrectAnswer: q.CorrectAnswer,
	}
}
