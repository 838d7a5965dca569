package quiz

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// SQLStore implements Store on database/sql. Queries use $n placeholders,
// which both the pgx and modernc sqlite drivers accept.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) PutQuiz(ctx context.Context, qz Quiz) error {
	qj, err := json.Marshal(qz.Questions)
	if err != nil {
		return err
	}
	created := qz.CreatedAt
	if created == 0 {
		created = time.Now().Unix()
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO quizzes (id,title,course_id,time_limit_sec,passing_score_percentage,questions_json,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO UPDATE SET title=EXCLUDED.title, course_id=EXCLUDED.course_id,
			time_limit_sec=EXCLUDED.time_limit_sec, passing_score_percentage=EXCLUDED.passing_score_percentage,
			questions_json=EXCLUDED.questions_json`,
		qz.ID, qz.Title, qz.CourseID, qz.TimeLimitSec, qz.PassingScorePercentage, string(qj), created)
	return err
}

func (s *SQLStore) GetQuiz(ctx context.Context, id string) (Quiz, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,title,course_id,time_limit_sec,passing_score_percentage,questions_json,created_at
		FROM quizzes WHERE id=$1`, id)
	var qz Quiz
	var qjson string
	if err := row.Scan(&qz.ID, &qz.Title, &qz.CourseID, &qz.TimeLimitSec, &qz.PassingScorePercentage, &qjson, &qz.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Quiz{}, fmt.Errorf("quiz %s: %w", id, ErrNotFound)
		}
		return Quiz{}, err
	}
	if err := json.Unmarshal([]byte(qjson), &qz.Questions); err != nil {
		return Quiz{}, fmt.Errorf("quiz %s questions: %w", id, err)
	}
	return qz, nil
}

func (s *SQLStore) ListQuizzes(ctx context.Context, opts ListOpts) ([]QuizSummary, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id,title,course_id,time_limit_sec,passing_score_percentage,questions_json,created_at
		FROM quizzes WHERE ($1 = '' OR LOWER(title) LIKE '%' || LOWER($1) || '%')
		ORDER BY created_at DESC, id ASC LIMIT $2 OFFSET $3`,
		strings.TrimSpace(opts.Q), limit, opts.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []QuizSummary{}
	for rows.Next() {
		var qz Quiz
		var qjson string
		if err := rows.Scan(&qz.ID, &qz.Title, &qz.CourseID, &qz.TimeLimitSec, &qz.PassingScorePercentage, &qjson, &qz.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(qjson), &qz.Questions); err != nil {
			return nil, fmt.Errorf("quiz %s questions: %w", qz.ID, err)
		}
		out = append(out, summarize(qz))
	}
	return out, rows.Err()
}

func (s *SQLStore) CreateAttempt(ctx context.Context, a Attempt) error {
	var exist int
	if err := s.db.QueryRowContext(ctx, `SELECT 1 FROM quizzes WHERE id=$1`, a.QuizID).Scan(&exist); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("quiz %s: %w", a.QuizID, ErrNotFound)
		}
		return err
	}
	cols, err := encodeAttempt(a)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO attempts (id,quiz_id,user_id,status,answers_json,bookmarks_json,
			current_index,has_time_limit,time_remaining_sec,started_at,submitted_at,graded_at,submit_trigger,
			score,max_score,score_percentage,result_json)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		a.ID, a.QuizID, a.UserID, string(a.Status), cols.answers, cols.bookmarks,
		a.CurrentQuestionIndex, cols.hasLimit, a.TimeRemainingSeconds, a.StartedAt, cols.submittedAt, cols.gradedAt,
		string(a.SubmitTrigger), cols.score, cols.maxScore, cols.pct, cols.result)
	if isUniqueViolation(err) {
		existing, ferr := s.FindActiveAttempt(ctx, a.QuizID, a.UserID)
		if ferr != nil {
			return &ConflictError{QuizID: a.QuizID, UserID: a.UserID}
		}
		return &ConflictError{QuizID: a.QuizID, UserID: a.UserID, AttemptID: existing.ID}
	}
	return err
}

const attemptColumns = `id,quiz_id,user_id,status,answers_json,bookmarks_json,current_index,has_time_limit,
	time_remaining_sec,started_at,submitted_at,graded_at,submit_trigger,result_json`

func (s *SQLStore) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+attemptColumns+` FROM attempts WHERE id=$1`, id)
	a, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, fmt.Errorf("attempt %s: %w", id, ErrNotFound)
	}
	return a, err
}

func (s *SQLStore) FindActiveAttempt(ctx context.Context, quizID, userID string) (Attempt, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+attemptColumns+` FROM attempts
		WHERE quiz_id=$1 AND user_id=$2 AND status IN ('in_progress','submitting')`, quizID, userID)
	a, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, fmt.Errorf("active attempt for %s/%s: %w", quizID, userID, ErrNotFound)
	}
	return a, err
}

func (s *SQLStore) SaveAttempt(ctx context.Context, a Attempt) error {
	cols, err := encodeAttempt(a)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE attempts SET status=$1, answers_json=$2, bookmarks_json=$3,
			current_index=$4, has_time_limit=$5, time_remaining_sec=$6, submitted_at=$7, graded_at=$8,
			submit_trigger=$9, score=$10, max_score=$11, score_percentage=$12, result_json=$13
		WHERE id=$14`,
		string(a.Status), cols.answers, cols.bookmarks, a.CurrentQuestionIndex, cols.hasLimit,
		a.TimeRemainingSeconds, cols.submittedAt, cols.gradedAt, string(a.SubmitTrigger),
		cols.score, cols.maxScore, cols.pct, cols.result, a.ID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("attempt %s: %w", a.ID, ErrNotFound)
	}
	return nil
}

func (s *SQLStore) ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	order := "started_at DESC"
	if strings.HasPrefix(strings.ToLower(opts.Sort), "submitted_at") {
		order = "submitted_at DESC"
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+attemptColumns+` FROM attempts
		WHERE ($1 = '' OR quiz_id = $1) AND ($2 = '' OR user_id = $2) AND ($3 = '' OR status = $3)
		ORDER BY `+order+`, id ASC LIMIT $4 OFFSET $5`,
		opts.QuizID, opts.UserID, string(opts.Status), limit, opts.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Attempt{}
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type attemptCols struct {
	answers, bookmarks, result string
	hasLimit                   int
	submittedAt, gradedAt      sql.NullInt64
	score, maxScore, pct       int
}

func encodeAttempt(a Attempt) (attemptCols, error) {
	var c attemptCols
	answers := a.Answers
	if answers == nil {
		answers = map[string]Answer{}
	}
	buf, err := json.Marshal(answers)
	if err != nil {
		return c, err
	}
	c.answers = string(buf)
	bookmarks := a.Bookmarks
	if bookmarks == nil {
		bookmarks = []string{}
	}
	if buf, err = json.Marshal(bookmarks); err != nil {
		return c, err
	}
	c.bookmarks = string(buf)
	if a.HasTimeLimit {
		c.hasLimit = 1
	}
	c.submittedAt = sql.NullInt64{Int64: a.SubmittedAt, Valid: a.SubmittedAt > 0}
	c.gradedAt = sql.NullInt64{Int64: a.GradedAt, Valid: a.GradedAt > 0}
	if a.Result != nil {
		if buf, err = json.Marshal(a.Result); err != nil {
			return c, err
		}
		c.result = string(buf)
		c.score, c.maxScore, c.pct = a.Result.Score, a.Result.MaxScore, a.Result.ScorePercentage
	}
	return c, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAttempt(sc scanner) (Attempt, error) {
	var a Attempt
	var status, answers, bookmarks, trigger, result string
	var hasLimit int
	var submittedAt, gradedAt sql.NullInt64
	if err := sc.Scan(&a.ID, &a.QuizID, &a.UserID, &status, &answers, &bookmarks, &a.CurrentQuestionIndex,
		&hasLimit, &a.TimeRemainingSeconds, &a.StartedAt, &submittedAt, &gradedAt, &trigger, &result); err != nil {
		return Attempt{}, err
	}
	a.Status = Status(status)
	a.SubmitTrigger = Trigger(trigger)
	a.HasTimeLimit = hasLimit != 0
	a.SubmittedAt = submittedAt.Int64
	a.GradedAt = gradedAt.Int64
	if err := json.Unmarshal([]byte(answers), &a.Answers); err != nil || a.Answers == nil {
		a.Answers = map[string]Answer{}
	}
	if err := json.Unmarshal([]byte(bookmarks), &a.Bookmarks); err != nil || a.Bookmarks == nil {
		a.Bookmarks = []string{}
	}
	if result != "" {
		var r GradedResult
		if err := json.Unmarshal([]byte(result), &r); err != nil {
			return Attempt{}, fmt.Errorf("attempt %s result: %w", a.ID, err)
		}
		a.Result = &r
	}
	return a, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed") // sqlite
}
