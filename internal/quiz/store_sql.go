package quiz

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mind-engage/mindengage-quiz/internal/db"
)

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(h *sql.DB) *SQLStore {
	return &SQLStore{db: h}
}

const testColumns = `id,title,teacher_id,subject_id,class_id,published,code,duration,banner,created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTest(row rowScanner) (Test, error) {
	var t Test
	var code sql.NullString
	if err := row.Scan(&t.ID, &t.Title, &t.TeacherID, &t.SubjectID, &t.ClassID,
		&t.Published, &code, &t.Duration, &t.Banner, &t.CreatedAt); err != nil {
		return Test{}, err
	}
	if code.Valid {
		c := code.String
		t.Code = &c
	}
	return t, nil
}

func (s *SQLStore) CreateTest(ctx context.Context, t Test, questions []QuestionInput) (Test, error) {
	now := time.Now().Unix()
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `INSERT INTO tests (title,teacher_id,subject_id,class_id,published,duration,banner,created_at)
			VALUES ($1,$2,$3,$4,FALSE,$5,$6,$7) RETURNING id`,
			t.Title, t.TeacherID, t.SubjectID, t.ClassID, t.Duration, t.Banner, now).Scan(&t.ID); err != nil {
			return err
		}
		return insertQuestions(ctx, tx, t.ID, questions)
	})
	if err != nil {
		return Test{}, err
	}
	return s.GetTest(ctx, t.ID, true)
}

func insertQuestions(ctx context.Context, tx *sql.Tx, testID int64, questions []QuestionInput) error {
	for qi, q := range questions {
		var qid int64
		if err := tx.QueryRowContext(ctx, `INSERT INTO questions (test_id,text,type,position) VALUES ($1,$2,$3,$4) RETURNING id`,
			testID, q.Text, string(q.Type), qi).Scan(&qid); err != nil {
			return err
		}
		for ai, a := range q.Answers {
			if _, err := tx.ExecContext(ctx, `INSERT INTO answers (question_id,text,is_correct,position) VALUES ($1,$2,$3,$4)`,
				qid, a.Text, a.IsCorrect, ai); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *SQLStore) GetTest(ctx context.Context, id int64, withQuestions bool) (Test, error) {
	t, err := scanTest(s.db.QueryRowContext(ctx, `SELECT `+testColumns+` FROM tests WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Test{}, fmt.Errorf("%w: test %d", ErrNotFound, id)
	}
	if err != nil {
		return Test{}, err
	}
	if withQuestions {
		if t.Questions, err = s.loadQuestions(ctx, id); err != nil {
			return Test{}, err
		}
	}
	return t, nil
}

func (s *SQLStore) loadQuestions(ctx context.Context, testID int64) ([]Question, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT q.id, q.text, q.type, a.id, a.text, a.is_correct
		FROM questions q
		LEFT JOIN answers a ON a.question_id = q.id
		WHERE q.test_id=$1
		ORDER BY q.position, q.id, a.position, a.id`, testID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Question{}
	for rows.Next() {
		var (
			qid          int64
			qtext, qtype string
			aid          sql.NullInt64
			atext        sql.NullString
			acorrect     sql.NullBool
		)
		if err := rows.Scan(&qid, &qtext, &qtype, &aid, &atext, &acorrect); err != nil {
			return nil, err
		}
		if n := len(out); n == 0 || out[n-1].ID != qid {
			out = append(out, Question{ID: qid, Text: qtext, Type: QuestionType(qtype), Answers: []Answer{}})
		}
		if aid.Valid {
			last := &out[len(out)-1]
			last.Answers = append(last.Answers, Answer{ID: aid.Int64, Text: atext.String, IsCorrect: acorrect.Bool})
		}
	}
	return out, rows.Err()
}

// listSelect reads tests together with their author's name.
const listSelect = `SELECT t.id,t.title,t.teacher_id,t.subject_id,t.class_id,t.published,t.code,t.duration,t.banner,t.created_at,
	u.first_name,u.last_name,u.patronymic
	FROM tests t
	LEFT JOIN users u ON u.id = t.teacher_id`

func scanListedTest(row rowScanner) (Test, error) {
	var (
		t                 Test
		code              sql.NullString
		first, last, patr sql.NullString
	)
	if err := row.Scan(&t.ID, &t.Title, &t.TeacherID, &t.SubjectID, &t.ClassID,
		&t.Published, &code, &t.Duration, &t.Banner, &t.CreatedAt, &first, &last, &patr); err != nil {
		return Test{}, err
	}
	if code.Valid {
		c := code.String
		t.Code = &c
	}
	if first.Valid {
		t.Teacher = &Person{FirstName: first.String, LastName: last.String, Patronymic: patr.String}
	}
	return t, nil
}

func (s *SQLStore) GetTestByCode(ctx context.Context, code string) (Test, error) {
	t, err := scanListedTest(s.db.QueryRowContext(ctx, listSelect+` WHERE t.code=$1`, code))
	if errors.Is(err, sql.ErrNoRows) {
		return Test{}, fmt.Errorf("%w: test with code %q", ErrNotFound, code)
	}
	return t, err
}

func (s *SQLStore) ListTests(ctx context.Context, opts TestListOpts) ([]Test, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if opts.TeacherID != 0 {
		add("t.teacher_id=$%d", opts.TeacherID)
	}
	if opts.PublishedOnly {
		where = append(where, "t.published")
	}
	if opts.ClassID != 0 {
		add("t.class_id=$%d", opts.ClassID)
	}
	if opts.SubjectID != 0 {
		add("t.subject_id=$%d", opts.SubjectID)
	}
	q := listSelect
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY t.id"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Test{}
	for rows.Next() {
		t, err := scanListedTest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpdateDraft conditions the first write of the transaction on the test
// still being unpublished, so a publish that commits first wins.
func (s *SQLStore) UpdateDraft(ctx context.Context, id int64, f TestFields) (Test, error) {
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE tests SET
			title=COALESCE($1,title),
			subject_id=COALESCE($2,subject_id),
			class_id=COALESCE($3,class_id),
			duration=COALESCE($4,duration),
			banner=COALESCE($5,banner)
			WHERE id=$6 AND NOT published`,
			f.Title, f.SubjectID, f.ClassID, f.Duration, f.Banner, id)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return s.draftMiss(ctx, tx, id)
		}
		if f.Questions == nil {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM answers WHERE question_id IN (SELECT id FROM questions WHERE test_id=$1)`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM questions WHERE test_id=$1`, id); err != nil {
			return err
		}
		return insertQuestions(ctx, tx, id, f.Questions)
	})
	if err != nil {
		return Test{}, err
	}
	return s.GetTest(ctx, id, true)
}

// draftMiss explains why a conditional update on a draft touched no row.
func (s *SQLStore) draftMiss(ctx context.Context, tx *sql.Tx, id int64) error {
	var published bool
	err := tx.QueryRowContext(ctx, `SELECT published FROM tests WHERE id=$1`, id).Scan(&published)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: test %d", ErrNotFound, id)
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: test %d is published", ErrInvalidState, id)
}

func (s *SQLStore) Publish(ctx context.Context, id int64, code string) error {
	return db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE tests SET published=TRUE, code=$1 WHERE id=$2 AND NOT published`, code, id)
		if db.IsUniqueViolation(err) {
			return errCodeTaken
		}
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return s.draftMiss(ctx, tx, id)
		}
		return nil
	})
}

func (s *SQLStore) CodeExists(ctx context.Context, code string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM tests WHERE code=$1`, code).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (s *SQLStore) HasResult(ctx context.Context, testID, userID int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM test_results WHERE test_id=$1 AND user_id=$2`, testID, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// CreateResult relies on UNIQUE(test_id,user_id): of two racing inserts for
// the same pair exactly one commits, the other reports ErrConflict.
func (s *SQLStore) CreateResult(ctx context.Context, r TestResult) (TestResult, error) {
	r.CreatedAt = time.Now().Unix()
	err := s.db.QueryRowContext(ctx, `INSERT INTO test_results (test_id,user_id,score,total_questions,created_at)
		VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		r.TestID, r.UserID, r.Score, r.TotalQuestions, r.CreatedAt).Scan(&r.ID)
	if db.IsUniqueViolation(err) {
		return TestResult{}, fmt.Errorf("%w: test %d already attempted by user %d", ErrConflict, r.TestID, r.UserID)
	}
	if err != nil {
		return TestResult{}, err
	}
	return r, nil
}

func (s *SQLStore) GetResult(ctx context.Context, id int64) (TestResult, error) {
	var r TestResult
	err := s.db.QueryRowContext(ctx, `SELECT id,test_id,user_id,score,total_questions,created_at FROM test_results WHERE id=$1`, id).
		Scan(&r.ID, &r.TestID, &r.UserID, &r.Score, &r.TotalQuestions, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return TestResult{}, fmt.Errorf("%w: result %d", ErrNotFound, id)
	}
	return r, err
}

func (s *SQLStore) DeleteResult(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM test_results WHERE id=$1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: result %d", ErrNotFound, id)
	}
	return nil
}

func (s *SQLStore) ListResults(ctx context.Context, teacherID int64) ([]TestResult, error) {
	q := `SELECT r.id, r.test_id, r.user_id, r.score, r.total_questions, r.created_at, t.title,
		u.email, u.first_name, u.last_name, u.patronymic
		FROM test_results r
		JOIN tests t ON t.id = r.test_id
		LEFT JOIN users u ON u.id = r.user_id`
	var args []any
	if teacherID != 0 {
		q += ` WHERE t.teacher_id=$1`
		args = append(args, teacherID)
	}
	q += ` ORDER BY r.id`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []TestResult{}
	for rows.Next() {
		var (
			r                        TestResult
			email, first, last, patr sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.TestID, &r.UserID, &r.Score, &r.TotalQuestions, &r.CreatedAt, &r.TestTitle,
			&email, &first, &last, &patr); err != nil {
			return nil, err
		}
		if email.Valid {
			r.UserEmail = email.String
			r.User = &Person{FirstName: first.String, LastName: last.String, Patronymic: patr.String}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
