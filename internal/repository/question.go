package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/examtrainer/question-module/internal/domain/model"
)

// questionColumns — список столбцов таблицы questions для SELECT-запросов.
// DRY: одно место для всех SELECT'ов.
const questionColumns = `question_id, specialty_id, exam_type_id, year, difficulty,
	correct_answer, text, options, created_at`

// QuestionFilter — фильтр банка вопросов в терминах хранилища.
// Имена специальностей и типов экзаменов уже разрешены в суррогатные id
// (БД индексирована по id, не по имени). Пустой срез = фильтр не применяется.
type QuestionFilter struct {
	// Years — годы экзаменов
	Years []int
	// Difficulties — уровни сложности
	Difficulties []int
	// SpecialtyIDs — id специальностей
	SpecialtyIDs []int
	// ExamTypeIDs — id типов экзаменов
	ExamTypeIDs []int
}

// QuestionRepository — read-only доступ к банку вопросов.
type QuestionRepository interface {
	// CountByFilter возвращает точное количество вопросов по фильтру.
	CountByFilter(ctx context.Context, f QuestionFilter) (int, error)
	// FetchPage возвращает страницу вопросов по фильтру с сортировкой
	// по year DESC, created_at DESC.
	FetchPage(ctx context.Context, f QuestionFilter, limit, offset int) ([]*model.QuestionRecord, error)
	// FetchIDs возвращает id вопросов по фильтру в стабильном порядке
	// (question_id ASC). limit <= 0 — без ограничения.
	FetchIDs(ctx context.Context, f QuestionFilter, limit int) ([]string, error)
	// FetchByIDs возвращает вопросы по списку id, сохраняя порядок входного среза.
	// Отсутствующие id молча пропускаются.
	FetchByIDs(ctx context.Context, ids []string) ([]*model.QuestionRecord, error)
	// SampleIDs возвращает равномерную случайную выборку id вопросов по фильтру.
	// Рандомизация на стороне БД (ORDER BY random()) декоррелирует выборку
	// от порядка создания вопросов — иначе оценка счётчика систематически
	// смещается, если вероятность совпадения коррелирует с возрастом вопроса.
	SampleIDs(ctx context.Context, f QuestionFilter, n int) ([]string, error)
	// GetByID возвращает вопрос по UUID.
	GetByID(ctx context.Context, questionID string) (*model.QuestionRecord, error)
	// ListSpecialties возвращает маппинг имя специальности → id.
	ListSpecialties(ctx context.Context) (map[string]int, error)
	// ListExamTypes возвращает маппинг имя типа экзамена → id.
	ListExamTypes(ctx context.Context) (map[string]int, error)
	// FilterOptions возвращает доступные значения фильтров.
	FilterOptions(ctx context.Context) (model.FilterOptions, error)
}

// questionRepo — реализация QuestionRepository через pgx.
type questionRepo struct {
	db DBTX
}

// NewQuestionRepository создаёт репозиторий вопросов.
func NewQuestionRepository(db DBTX) QuestionRepository {
	return &questionRepo{db: db}
}

// buildFilterWhere строит WHERE-условие по фильтру.
// Предикаты в фиксированном порядке убывающей селективности:
// year → difficulty → specialty → exam type. Эвристика домена
// (год дискриминирует сильнее всего), пересматривать при изменении
// распределения данных — из статистики не вычисляется.
// startArg — номер первого placeholder'а.
func buildFilterWhere(f QuestionFilter, startArg int) (string, []any) {
	var conds []string
	var args []any
	argNum := startArg

	if len(f.Years) > 0 {
		conds = append(conds, fmt.Sprintf("year = ANY($%d)", argNum))
		args = append(args, f.Years)
		argNum++
	}
	if len(f.Difficulties) > 0 {
		conds = append(conds, fmt.Sprintf("difficulty = ANY($%d)", argNum))
		args = append(args, f.Difficulties)
		argNum++
	}
	if len(f.SpecialtyIDs) > 0 {
		conds = append(conds, fmt.Sprintf("specialty_id = ANY($%d)", argNum))
		args = append(args, f.SpecialtyIDs)
		argNum++
	}
	if len(f.ExamTypeIDs) > 0 {
		conds = append(conds, fmt.Sprintf("exam_type_id = ANY($%d)", argNum))
		args = append(args, f.ExamTypeIDs)
		argNum++
	}

	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

// CountByFilter возвращает точное количество вопросов по фильтру.
func (r *questionRepo) CountByFilter(ctx context.Context, f QuestionFilter) (int, error) {
	where, args := buildFilterWhere(f, 1)
	query := fmt.Sprintf(`SELECT COUNT(*) FROM questions %s`, where)

	var count int
	if err := r.db.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта вопросов: %w", err)
	}
	return count, nil
}

// FetchPage возвращает страницу вопросов по фильтру.
func (r *questionRepo) FetchPage(ctx context.Context, f QuestionFilter, limit, offset int) ([]*model.QuestionRecord, error) {
	where, args := buildFilterWhere(f, 1)
	argNum := len(args) + 1

	query := fmt.Sprintf(
		`SELECT %s FROM questions %s ORDER BY year DESC, created_at DESC LIMIT $%d OFFSET $%d`,
		questionColumns, where, argNum, argNum+1,
	)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки вопросов: %w", err)
	}
	defer rows.Close()

	return scanQuestions(rows)
}

// FetchIDs возвращает id вопросов по фильтру в стабильном порядке.
func (r *questionRepo) FetchIDs(ctx context.Context, f QuestionFilter, limit int) ([]string, error) {
	where, args := buildFilterWhere(f, 1)

	query := fmt.Sprintf(`SELECT question_id FROM questions %s ORDER BY question_id`, where)
	if limit > 0 {
		query = fmt.Sprintf("%s LIMIT $%d", query, len(args)+1)
		args = append(args, limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки id вопросов: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("ошибка чтения id вопроса: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации id вопросов: %w", err)
	}
	return ids, nil
}

// FetchByIDs возвращает вопросы по списку id, сохраняя порядок входного среза.
func (r *questionRepo) FetchByIDs(ctx context.Context, ids []string) ([]*model.QuestionRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`SELECT %s FROM questions WHERE question_id = ANY($1)`, questionColumns)
	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки вопросов по id: %w", err)
	}
	defer rows.Close()

	fetched, err := scanQuestions(rows)
	if err != nil {
		return nil, err
	}

	// Восстанавливаем порядок входного среза
	byID := make(map[string]*model.QuestionRecord, len(fetched))
	for _, q := range fetched {
		byID[q.ID] = q
	}
	ordered := make([]*model.QuestionRecord, 0, len(fetched))
	for _, id := range ids {
		if q, ok := byID[id]; ok {
			ordered = append(ordered, q)
		}
	}
	return ordered, nil
}

// SampleIDs возвращает равномерную случайную выборку id вопросов по фильтру.
func (r *questionRepo) SampleIDs(ctx context.Context, f QuestionFilter, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	where, args := buildFilterWhere(f, 1)

	query := fmt.Sprintf(
		`SELECT question_id FROM questions %s ORDER BY random() LIMIT $%d`,
		where, len(args)+1,
	)
	args = append(args, n)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки случайных id: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("ошибка чтения случайного id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации случайных id: %w", err)
	}
	return ids, nil
}

// GetByID возвращает вопрос по UUID или ErrNotFound.
func (r *questionRepo) GetByID(ctx context.Context, questionID string) (*model.QuestionRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM questions WHERE question_id = $1`, questionColumns)

	q := &model.QuestionRecord{}
	err := r.db.QueryRow(ctx, query, questionID).Scan(
		&q.ID, &q.SpecialtyID, &q.ExamTypeID, &q.Year, &q.Difficulty,
		&q.CorrectAnswer, &q.Text, &q.Options, &q.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения вопроса: %w", err)
	}
	return q, nil
}

// ListSpecialties возвращает маппинг имя специальности → id.
func (r *questionRepo) ListSpecialties(ctx context.Context) (map[string]int, error) {
	return r.listNameIDs(ctx, `SELECT name, specialty_id FROM specialties`)
}

// ListExamTypes возвращает маппинг имя типа экзамена → id.
func (r *questionRepo) ListExamTypes(ctx context.Context) (map[string]int, error) {
	return r.listNameIDs(ctx, `SELECT name, exam_type_id FROM exam_types`)
}

// listNameIDs выполняет запрос вида (name, id) и собирает map.
func (r *questionRepo) listNameIDs(ctx context.Context, query string) (map[string]int, error) {
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения справочника: %w", err)
	}
	defer rows.Close()

	result := make(map[string]int)
	for rows.Next() {
		var name string
		var id int
		if err := rows.Scan(&name, &id); err != nil {
			return nil, fmt.Errorf("ошибка чтения строки справочника: %w", err)
		}
		result[name] = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации справочника: %w", err)
	}
	return result, nil
}

// FilterOptions возвращает доступные значения фильтров для UI.
func (r *questionRepo) FilterOptions(ctx context.Context) (model.FilterOptions, error) {
	opts := model.FilterOptions{}

	specialties, err := r.ListSpecialties(ctx)
	if err != nil {
		return opts, err
	}
	for name := range specialties {
		opts.Specialties = append(opts.Specialties, name)
	}
	sort.Strings(opts.Specialties)

	examTypes, err := r.ListExamTypes(ctx)
	if err != nil {
		return opts, err
	}
	for name := range examTypes {
		opts.ExamTypes = append(opts.ExamTypes, name)
	}
	sort.Strings(opts.ExamTypes)

	rows, err := r.db.Query(ctx, `SELECT DISTINCT year FROM questions ORDER BY year`)
	if err != nil {
		return opts, fmt.Errorf("ошибка чтения списка годов: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var year int
		if err := rows.Scan(&year); err != nil {
			return opts, fmt.Errorf("ошибка чтения года: %w", err)
		}
		opts.Years = append(opts.Years, year)
	}
	if err := rows.Err(); err != nil {
		return opts, fmt.Errorf("ошибка итерации годов: %w", err)
	}

	for d := model.MinDifficulty; d <= model.MaxDifficulty; d++ {
		opts.Difficulties = append(opts.Difficulties, d)
	}
	return opts, nil
}

// scanQuestions читает строки запроса по questionColumns.
func scanQuestions(rows pgx.Rows) ([]*model.QuestionRecord, error) {
	var questions []*model.QuestionRecord
	for rows.Next() {
		q := &model.QuestionRecord{}
		if err := rows.Scan(
			&q.ID, &q.SpecialtyID, &q.ExamTypeID, &q.Year, &q.Difficulty,
			&q.CorrectAnswer, &q.Text, &q.Options, &q.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка чтения вопроса: %w", err)
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации вопросов: %w", err)
	}
	return questions, nil
}
