// status.go — сверка кандидатов с историей ответов пользователя.
// Запускается только при непустых статус-тегах и известном пользователе:
// для анонима сверять не с чем.
//
// Точный путь фильтрует материализованный список кандидатов и авторитетен
// везде, где список возвращается вызывающей стороне. Приближённый путь
// применяется только для подсчёта: случайная выборка кандидатов,
// доля совпавших масштабирует точный pre-status счётчик.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/bigkaa/examtrainer/question-module/internal/domain/model"
	"github.com/bigkaa/examtrainer/question-module/internal/repository"
)

// DefaultSampleSize — размер выборки для приближённого подсчёта по умолчанию.
const DefaultSampleSize = 200

// StatusReconciler — сверка кандидатов с историей пользователя.
type StatusReconciler struct {
	history repository.UserHistoryRepository
	logger  *slog.Logger
}

// NewStatusReconciler создаёт реконсилятор статусов.
func NewStatusReconciler(history repository.UserHistoryRepository, logger *slog.Logger) *StatusReconciler {
	return &StatusReconciler{
		history: history,
		logger:  logger.With(slog.String("component", "status_reconciler")),
	}
}

// FilterIDs — точный путь: возвращает подмножество candidateIDs,
// удовлетворяющее хотя бы одному из статус-тегов (OR-семантика),
// с сохранением порядка кандидатов.
func (r *StatusReconciler) FilterIDs(
	ctx context.Context,
	userID string,
	candidateIDs []string,
	tags []model.StatusTag,
) ([]string, error) {
	if len(candidateIDs) == 0 {
		return nil, nil
	}

	answers, flagged, err := r.loadFacts(ctx, userID, candidateIDs)
	if err != nil {
		return nil, err
	}

	matched := make([]string, 0, len(candidateIDs))
	for _, id := range candidateIDs {
		if matchesAny(id, answers, flagged, tags) {
			matched = append(matched, id)
		}
	}
	return matched, nil
}

// EstimateCount — приближённый путь: оценивает количество кандидатов,
// проходящих статус-фильтр, по случайной выборке sampleIDs.
// totalCount — точный pre-status счётчик.
// Пустая выборка при пустом множестве кандидатов — {0, exact:true};
// деления на ноль не бывает.
func (r *StatusReconciler) EstimateCount(
	ctx context.Context,
	userID string,
	sampleIDs []string,
	totalCount int,
	tags []model.StatusTag,
) (model.CountEstimate, error) {
	if totalCount == 0 || len(sampleIDs) == 0 {
		return model.CountEstimate{Count: 0, Exact: true}, nil
	}

	answers, flagged, err := r.loadFacts(ctx, userID, sampleIDs)
	if err != nil {
		return model.CountEstimate{}, err
	}

	matchedInSample := 0
	for _, id := range sampleIDs {
		if matchesAny(id, answers, flagged, tags) {
			matchedInSample++
		}
	}

	sampleSize := len(sampleIDs)
	ratio := float64(matchedInSample) / float64(sampleSize)
	estimate := int(math.Round(float64(totalCount) * ratio))

	r.logger.Debug("Оценка счётчика по выборке",
		slog.Int("total", totalCount),
		slog.Int("sample_size", sampleSize),
		slog.Int("matched_in_sample", matchedInSample),
		slog.Int("estimate", estimate),
	)

	return model.CountEstimate{
		Count:           estimate,
		Exact:           false,
		SampleSize:      sampleSize,
		MatchedInSample: matchedInSample,
	}, nil
}

// loadFacts загружает факты ответов и флагов для набора вопросов.
// Несколько ответов на один вопрос сворачиваются явно:
// авторитетен максимальный AnsweredAt, а не порядок строк выборки.
func (r *StatusReconciler) loadFacts(
	ctx context.Context,
	userID string,
	questionIDs []string,
) (map[string]model.UserAnswerFact, map[string]bool, error) {
	facts, err := r.history.AnswersForQuestions(ctx, userID, questionIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("загрузка ответов пользователя: %w", err)
	}

	answers := make(map[string]model.UserAnswerFact, len(facts))
	for _, f := range facts {
		prev, ok := answers[f.QuestionID]
		if !ok || f.AnsweredAt.After(prev.AnsweredAt) {
			answers[f.QuestionID] = f
		}
	}

	flags, err := r.history.FlagsForQuestions(ctx, userID, questionIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("загрузка флагов пользователя: %w", err)
	}

	flagged := make(map[string]bool, len(flags))
	for _, f := range flags {
		if f.IsFlagged {
			flagged[f.QuestionID] = true
		}
	}

	return answers, flagged, nil
}

// matchesAny — OR-семантика по статус-тегам: вопрос совпадает, если
// удовлетворяет ХОТЯ БЫ одному выбранному тегу.
func matchesAny(
	questionID string,
	answers map[string]model.UserAnswerFact,
	flagged map[string]bool,
	tags []model.StatusTag,
) bool {
	answer, answered := answers[questionID]
	for _, tag := range tags {
		switch tag {
		case model.StatusAnswered:
			if answered {
				return true
			}
		case model.StatusUnanswered:
			if !answered {
				return true
			}
		case model.StatusCorrect:
			if answered && answer.IsCorrect {
				return true
			}
		case model.StatusIncorrect:
			if answered && !answer.IsCorrect {
				return true
			}
		case model.StatusFlagged:
			if flagged[questionID] {
				return true
			}
		}
	}
	return false
}
