// filters.go — обработчик GET /api/v1/filters/options.
package handlers

import (
	"log/slog"
	"net/http"
)

// filterOptionsResponse — ответ GET /api/v1/filters/options.
type filterOptionsResponse struct {
	Specialties  []string `json:"specialties"`
	ExamTypes    []string `json:"exam_types"`
	Years        []int    `json:"years"`
	Difficulties []int    `json:"difficulties"`
	Cached       bool     `json:"cached"`
}

// handleFilterOptions — реализация GET /api/v1/filters/options.
// Опции читаются через кэш (ярус filter-options); ошибка хранилища
// деградирует до пустых списков на уровне service.
func (h *APIHandler) handleFilterOptions(w http.ResponseWriter, r *http.Request) {
	opts, cached, err := h.questions.FilterOptions(r.Context())
	if err != nil {
		h.logger.Error("Ошибка получения опций фильтров", slog.String("error", err.Error()))
	}

	resp := filterOptionsResponse{
		Specialties:  opts.Specialties,
		ExamTypes:    opts.ExamTypes,
		Years:        opts.Years,
		Difficulties: opts.Difficulties,
		Cached:       cached,
	}
	if resp.Specialties == nil {
		resp.Specialties = []string{}
	}
	if resp.ExamTypes == nil {
		resp.ExamTypes = []string{}
	}
	if resp.Years == nil {
		resp.Years = []int{}
	}
	if resp.Difficulties == nil {
		resp.Difficulties = []int{}
	}

	writeJSON(w, http.StatusOK, resp)
}
