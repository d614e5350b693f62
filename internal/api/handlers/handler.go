// handler.go — основной обработчик API Question Module.
// Регистрирует маршруты chi и делегирует запросы в сервисный слой.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// APIHandler — основной обработчик API Question Module.
type APIHandler struct {
	health    *HealthHandler
	questions QuestionService
	logger    *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	questions QuestionService,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:    health,
		questions: questions,
		logger:    logger.With(slog.String("component", "api_handler")),
	}
}

// Routes регистрирует все маршруты API на роутере chi.
func (h *APIHandler) Routes(r chi.Router) {
	// Health endpoints
	r.Get("/health/live", h.health.HealthLive)
	r.Get("/health/ready", h.health.HealthReady)
	r.Get("/metrics", h.health.GetMetrics)

	// Бизнес-endpoints
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/questions/count", h.handleCountQuestions)
		r.Post("/questions/search", h.handleSearchQuestions)
		r.Get("/questions/{questionID}", h.handleGetQuestion)
		r.Get("/filters/options", h.handleFilterOptions)
		r.Post("/cache/invalidate", h.handleInvalidateCache)
	})
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// paginationDefaults нормализует параметры пагинации.
// Возвращает корректные limit и offset.
func paginationDefaults(limit, offset int) (limitVal, offsetVal int) {
	l := 50
	if limit > 0 {
		l = limit
	}
	if l > 200 {
		l = 200
	}
	o := 0
	if offset > 0 {
		o = offset
	}
	return l, o
}
