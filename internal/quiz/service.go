package quiz

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/mind-engage/mindengage-quiz/internal/grading"
)

// maxCodeAttempts bounds how often PublishTest draws a new access code after
// a collision.
const maxCodeAttempts = 5

// Event types written to the event sink.
const (
	EventTestPublished    = "TestPublished"
	EventAttemptSubmitted = "AttemptSubmitted"
	EventResultReset      = "ResultReset"
)

// EventSink records domain events. Failures are logged and never fail the
// operation that produced the event.
type EventSink interface {
	Record(ctx context.Context, typ, key string, payload any) error
}

var validate = validator.New()

// Service implements the test lifecycle, attempt evaluation and result
// administration on top of a Store.
type Service struct {
	store  Store
	codes  CodeGenerator
	events EventSink
}

type Option func(*Service)

func WithCodeGenerator(g CodeGenerator) Option { return func(s *Service) { s.codes = g } }
func WithEvents(e EventSink) Option            { return func(s *Service) { s.events = e } }

func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, codes: NanoidCodes}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ---- Test lifecycle ----

// CreateTest stores a new draft authored by author.
func (s *Service) CreateTest(ctx context.Context, author Identity, f TestFields) (Test, error) {
	if author.UserID == 0 || (author.Role != RoleTeacher && author.Role != RoleAdmin) {
		return Test{}, fmt.Errorf("%w: only teachers create tests", ErrPermissionDenied)
	}
	if f.Title == nil {
		return Test{}, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if err := validateFields(f); err != nil {
		return Test{}, err
	}
	t := Test{TeacherID: author.UserID, Title: strings.TrimSpace(*f.Title)}
	if f.SubjectID != nil {
		t.SubjectID = *f.SubjectID
	}
	if f.ClassID != nil {
		t.ClassID = *f.ClassID
	}
	if f.Duration != nil {
		t.Duration = *f.Duration
	}
	if f.Banner != nil {
		t.Banner = *f.Banner
	}
	return s.store.CreateTest(ctx, t, f.Questions)
}

// UpdateTest applies f to a draft. Published tests are immutable for every
// caller, admins included.
func (s *Service) UpdateTest(ctx context.Context, actor Identity, testID int64, f TestFields) (Test, error) {
	t, err := s.store.GetTest(ctx, testID, false)
	if err != nil {
		return Test{}, err
	}
	if !CanManage(&actor, t.TeacherID) {
		return Test{}, fmt.Errorf("%w: test %d", ErrPermissionDenied, testID)
	}
	if t.Published {
		return Test{}, fmt.Errorf("%w: test %d is published", ErrInvalidState, testID)
	}
	if err := validateFields(f); err != nil {
		return Test{}, err
	}
	if f.Title != nil {
		title := strings.TrimSpace(*f.Title)
		f.Title = &title
	}
	return s.store.UpdateDraft(ctx, testID, f)
}

// PublishTest moves a draft to published under a fresh access code and
// returns the code. It succeeds at most once per test.
func (s *Service) PublishTest(ctx context.Context, actor Identity, testID int64) (string, error) {
	t, err := s.store.GetTest(ctx, testID, false)
	if err != nil {
		return "", err
	}
	if !CanManage(&actor, t.TeacherID) {
		return "", fmt.Errorf("%w: test %d", ErrPermissionDenied, testID)
	}
	if t.Published {
		return "", fmt.Errorf("%w: test %d is already published", ErrInvalidState, testID)
	}

	for i := 0; i < maxCodeAttempts; i++ {
		code, err := s.codes.Generate()
		if err != nil {
			return "", fmt.Errorf("generate access code: %w", err)
		}
		taken, err := s.store.CodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if taken {
			continue
		}
		err = s.store.Publish(ctx, testID, code)
		if errors.Is(err, errCodeTaken) {
			continue
		}
		if err != nil {
			return "", err
		}
		s.record(ctx, EventTestPublished, testID, map[string]any{"test_id": testID, "code": code, "by": actor.UserID})
		return code, nil
	}
	return "", fmt.Errorf("%w: no free access code after %d attempts", ErrConflict, maxCodeAttempts)
}

// ---- Attempt evaluation ----

// SubmitAttempt scores answers against a published test and stores the
// result. Each (test, user) pair gets at most one stored result.
func (s *Service) SubmitAttempt(ctx context.Context, userID, testID int64, answers []SubmittedAnswer) (Score, error) {
	if userID == 0 {
		return Score{}, fmt.Errorf("%w: anonymous attempt", ErrPermissionDenied)
	}
	t, err := s.store.GetTest(ctx, testID, true)
	if err != nil {
		return Score{}, err
	}
	if !t.Published {
		return Score{}, fmt.Errorf("%w: test %d is not published", ErrInvalidState, testID)
	}
	done, err := s.store.HasResult(ctx, testID, userID)
	if err != nil {
		return Score{}, err
	}
	if done {
		return Score{}, fmt.Errorf("%w: test %d already attempted", ErrConflict, testID)
	}

	selected, err := indexSubmission(t, answers)
	if err != nil {
		return Score{}, err
	}

	score := 0
	for _, q := range t.Questions {
		sel, ok := selected[q.ID]
		if !ok {
			continue
		}
		if grading.IsCorrect(q.Type, correctIDs(q), sel) {
			score++
		}
	}

	res, err := s.store.CreateResult(ctx, TestResult{
		TestID:         testID,
		UserID:         userID,
		Score:          score,
		TotalQuestions: len(t.Questions),
	})
	if err != nil {
		return Score{}, err
	}
	s.record(ctx, EventAttemptSubmitted, res.ID, res)
	return Score{Score: res.Score, TotalQuestions: res.TotalQuestions}, nil
}

// indexSubmission maps question id to selected answer ids, rejecting
// submissions that name a question twice, name a question outside the test,
// or select more than one answer of a SINGLE question.
func indexSubmission(t Test, answers []SubmittedAnswer) (map[int64][]int64, error) {
	types := make(map[int64]QuestionType, len(t.Questions))
	for _, q := range t.Questions {
		types[q.ID] = q.Type
	}
	out := make(map[int64][]int64, len(answers))
	for _, a := range answers {
		if err := validate.Struct(a); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		typ, ok := types[a.QuestionID]
		if !ok {
			return nil, fmt.Errorf("%w: question %d is not part of test %d", ErrValidation, a.QuestionID, t.ID)
		}
		if _, dup := out[a.QuestionID]; dup {
			return nil, fmt.Errorf("%w: question %d answered twice", ErrValidation, a.QuestionID)
		}
		if typ == Single && len(a.SelectedAnswers) > 1 {
			return nil, fmt.Errorf("%w: question %d accepts a single answer", ErrValidation, a.QuestionID)
		}
		out[a.QuestionID] = a.SelectedAnswers
	}
	return out, nil
}

func correctIDs(q Question) []int64 {
	var ids []int64
	for _, a := range q.Answers {
		if a.IsCorrect {
			ids = append(ids, a.ID)
		}
	}
	return ids
}

// ---- Result administration ----

// ResetResult deletes a stored result so its taker may attempt the test
// again.
func (s *Service) ResetResult(ctx context.Context, actor Identity, resultID int64) error {
	r, err := s.store.GetResult(ctx, resultID)
	if err != nil {
		return err
	}
	t, err := s.store.GetTest(ctx, r.TestID, false)
	if err != nil {
		return err
	}
	if !CanManage(&actor, t.TeacherID) {
		return fmt.Errorf("%w: result %d", ErrPermissionDenied, resultID)
	}
	if err := s.store.DeleteResult(ctx, resultID); err != nil {
		return err
	}
	s.record(ctx, EventResultReset, resultID, map[string]any{"result_id": resultID, "test_id": r.TestID, "user_id": r.UserID, "by": actor.UserID})
	return nil
}

// ListResultsFor returns the results of the tests actor authored; admins see
// every result.
func (s *Service) ListResultsFor(ctx context.Context, actor Identity) ([]TestResult, error) {
	if actor.UserID == 0 || !actor.Role.Valid() {
		return nil, ErrPermissionDenied
	}
	if actor.Role == RoleAdmin {
		return s.store.ListResults(ctx, 0)
	}
	return s.store.ListResults(ctx, actor.UserID)
}

// ---- Read side ----

func (s *Service) ListTeacherTests(ctx context.Context, actor Identity) ([]Test, error) {
	if actor.UserID == 0 {
		return nil, ErrPermissionDenied
	}
	return s.store.ListTests(ctx, TestListOpts{TeacherID: actor.UserID})
}

func (s *Service) ListPublished(ctx context.Context, f ListFilter) ([]Test, error) {
	return s.store.ListTests(ctx, TestListOpts{PublishedOnly: true, ClassID: f.ClassID, SubjectID: f.SubjectID})
}

func (s *Service) GetByCode(ctx context.Context, code string) (Test, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Test{}, fmt.Errorf("%w: empty code", ErrNotFound)
	}
	return s.store.GetTestByCode(ctx, code)
}

// GetDetails returns a published test with its questions for a taker. The
// correctness flags are cleared.
func (s *Service) GetDetails(ctx context.Context, testID int64) (Test, error) {
	t, err := s.store.GetTest(ctx, testID, true)
	if err != nil {
		return Test{}, err
	}
	if !t.Published {
		return Test{}, fmt.Errorf("%w: test %d is not published", ErrInvalidState, testID)
	}
	for i := range t.Questions {
		for j := range t.Questions[i].Answers {
			t.Questions[i].Answers[j].IsCorrect = false
		}
	}
	return t, nil
}

// GetForEdit returns the full test, answer key included, to someone who may
// manage it.
func (s *Service) GetForEdit(ctx context.Context, actor Identity, testID int64) (Test, error) {
	t, err := s.store.GetTest(ctx, testID, true)
	if err != nil {
		return Test{}, err
	}
	if !CanManage(&actor, t.TeacherID) {
		return Test{}, fmt.Errorf("%w: test %d", ErrPermissionDenied, testID)
	}
	return t, nil
}

func (s *Service) record(ctx context.Context, typ string, key int64, payload any) {
	if s.events == nil {
		return
	}
	if err := s.events.Record(ctx, typ, strconv.FormatInt(key, 10), payload); err != nil {
		log.Printf("event %s %d: %v", typ, key, err)
	}
}

// validateFields checks tags and the answer-key shape of every question:
// SINGLE needs exactly one correct answer, MULTIPLE at least one.
func validateFields(f TestFields) error {
	if f.Title != nil && strings.TrimSpace(*f.Title) == "" {
		return fmt.Errorf("%w: title must not be empty", ErrValidation)
	}
	if err := validate.Struct(f); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	for i, q := range f.Questions {
		n := 0
		for _, a := range q.Answers {
			if a.IsCorrect {
				n++
			}
		}
		switch {
		case q.Type == Single && n != 1:
			return fmt.Errorf("%w: question %d: SINGLE needs exactly one correct answer, got %d", ErrValidation, i+1, n)
		case q.Type == Multiple && n == 0:
			return fmt.Errorf("%w: question %d: MULTIPLE needs at least one correct answer", ErrValidation, i+1)
		}
	}
	return nil
}
