package repository

import (
	"context"
	"fmt"

	"github.com/bigkaa/examtrainer/question-module/internal/domain/model"
)

// UserHistoryRepository — read-only доступ к истории ответов и флагов
// пользователя (таблицы user_answers, user_flags, owned by Progress Module).
type UserHistoryRepository interface {
	// AnswersForQuestions возвращает все факты ответов пользователя
	// на указанные вопросы. Один вопрос может встретиться несколько раз —
	// авторитетность самого свежего AnsweredAt разрешается вызывающей стороной.
	AnswersForQuestions(ctx context.Context, userID string, questionIDs []string) ([]model.UserAnswerFact, error)
	// FlagsForQuestions возвращает флаги пользователя на указанные вопросы.
	FlagsForQuestions(ctx context.Context, userID string, questionIDs []string) ([]model.UserFlag, error)
}

// historyRepo — реализация UserHistoryRepository через pgx.
type historyRepo struct {
	db DBTX
}

// NewUserHistoryRepository создаёт репозиторий истории пользователя.
func NewUserHistoryRepository(db DBTX) UserHistoryRepository {
	return &historyRepo{db: db}
}

// AnswersForQuestions возвращает факты ответов пользователя на вопросы.
func (r *historyRepo) AnswersForQuestions(ctx context.Context, userID string, questionIDs []string) ([]model.UserAnswerFact, error) {
	if len(questionIDs) == 0 {
		return nil, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT question_id, is_correct, answered_at
		 FROM user_answers
		 WHERE user_id = $1 AND question_id = ANY($2)`,
		userID, questionIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки ответов пользователя: %w", err)
	}
	defer rows.Close()

	var facts []model.UserAnswerFact
	for rows.Next() {
		var f model.UserAnswerFact
		if err := rows.Scan(&f.QuestionID, &f.IsCorrect, &f.AnsweredAt); err != nil {
			return nil, fmt.Errorf("ошибка чтения факта ответа: %w", err)
		}
		facts = append(facts, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации фактов ответов: %w", err)
	}
	return facts, nil
}

// FlagsForQuestions возвращает флаги пользователя на вопросы.
func (r *historyRepo) FlagsForQuestions(ctx context.Context, userID string, questionIDs []string) ([]model.UserFlag, error) {
	if len(questionIDs) == 0 {
		return nil, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT question_id, is_flagged
		 FROM user_flags
		 WHERE user_id = $1 AND question_id = ANY($2)`,
		userID, questionIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки флагов пользователя: %w", err)
	}
	defer rows.Close()

	var flags []model.UserFlag
	for rows.Next() {
		var f model.UserFlag
		if err := rows.Scan(&f.QuestionID, &f.IsFlagged); err != nil {
			return nil, fmt.Errorf("ошибка чтения флага: %w", err)
		}
		flags = append(flags, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации флагов: %w", err)
	}
	return flags, nil
}
