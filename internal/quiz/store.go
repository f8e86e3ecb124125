package quiz

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// errCodeTaken is returned by Store.Publish when the access code collides
// with another published test.
var errCodeTaken = errors.New("access code already in use")

type TestListOpts struct {
	TeacherID     int64 // 0 = any author
	PublishedOnly bool
	ClassID       int64
	SubjectID     int64
}

// Store is the persistence collaborator of the engine. Implementations must
// enforce the (test, user) uniqueness of results and the uniqueness of access
// codes atomically, and Publish/UpdateDraft must only ever touch a test that
// is still unpublished.
type Store interface {
	CreateTest(ctx context.Context, t Test, questions []QuestionInput) (Test, error)
	// GetTest loads a test; answers (with correctness flags) are included when
	// withQuestions is set.
	GetTest(ctx context.Context, id int64, withQuestions bool) (Test, error)
	GetTestByCode(ctx context.Context, code string) (Test, error)
	ListTests(ctx context.Context, opts TestListOpts) ([]Test, error)
	// UpdateDraft applies f to an unpublished test: ErrInvalidState once
	// published, ErrNotFound if missing.
	UpdateDraft(ctx context.Context, id int64, f TestFields) (Test, error)
	// Publish flips published and sets code in one step, conditioned on the
	// test still being a draft.
	Publish(ctx context.Context, id int64, code string) error
	CodeExists(ctx context.Context, code string) (bool, error)

	HasResult(ctx context.Context, testID, userID int64) (bool, error)
	// CreateResult returns ErrConflict when a result for the pair exists.
	CreateResult(ctx context.Context, r TestResult) (TestResult, error)
	GetResult(ctx context.Context, id int64) (TestResult, error)
	DeleteResult(ctx context.Context, id int64) error
	// ListResults returns the results of tests authored by teacherID, or of
	// every test when teacherID is 0.
	ListResults(ctx context.Context, teacherID int64) ([]TestResult, error)
}

type resultKey struct{ testID, userID int64 }

type memoryStore struct {
	mu        sync.RWMutex
	seq       int64
	tests     map[int64]Test
	codes     map[string]int64
	results   map[int64]TestResult
	byAttempt map[resultKey]int64
}

// NewInMemoryStore returns a Store kept in process memory. It gives the same
// uniqueness guarantees as the SQL store under a single mutex.
func NewInMemoryStore() Store {
	return &memoryStore{
		tests:     map[int64]Test{},
		codes:     map[string]int64{},
		results:   map[int64]TestResult{},
		byAttempt: map[resultKey]int64{},
	}
}

func (m *memoryStore) nextID() int64 {
	m.seq++
	return m.seq
}

func (m *memoryStore) buildQuestions(in []QuestionInput) []Question {
	out := make([]Question, 0, len(in))
	for _, qi := range in {
		q := Question{ID: m.nextID(), Text: qi.Text, Type: qi.Type}
		for _, ai := range qi.Answers {
			q.Answers = append(q.Answers, Answer{ID: m.nextID(), Text: ai.Text, IsCorrect: ai.IsCorrect})
		}
		out = append(out, q)
	}
	return out
}

func (m *memoryStore) CreateTest(_ context.Context, t Test, questions []QuestionInput) (Test, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.ID = m.nextID()
	t.Published = false
	t.Code = nil
	t.CreatedAt = time.Now().Unix()
	t.Questions = m.buildQuestions(questions)
	m.tests[t.ID] = t
	return copyTest(t, true), nil
}

func (m *memoryStore) GetTest(_ context.Context, id int64, withQuestions bool) (Test, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tests[id]
	if !ok {
		return Test{}, fmt.Errorf("%w: test %d", ErrNotFound, id)
	}
	return copyTest(t, withQuestions), nil
}

func (m *memoryStore) GetTestByCode(_ context.Context, code string) (Test, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.codes[code]
	if !ok {
		return Test{}, fmt.Errorf("%w: test with code %q", ErrNotFound, code)
	}
	return copyTest(m.tests[id], false), nil
}

func (m *memoryStore) ListTests(_ context.Context, opts TestListOpts) ([]Test, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Test{}
	for _, t := range m.tests {
		if opts.TeacherID != 0 && t.TeacherID != opts.TeacherID {
			continue
		}
		if opts.PublishedOnly && !t.Published {
			continue
		}
		if opts.ClassID != 0 && t.ClassID != opts.ClassID {
			continue
		}
		if opts.SubjectID != 0 && t.SubjectID != opts.SubjectID {
			continue
		}
		out = append(out, copyTest(t, false))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryStore) UpdateDraft(_ context.Context, id int64, f TestFields) (Test, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tests[id]
	if !ok {
		return Test{}, fmt.Errorf("%w: test %d", ErrNotFound, id)
	}
	if t.Published {
		return Test{}, fmt.Errorf("%w: test %d is published", ErrInvalidState, id)
	}
	if f.Title != nil {
		t.Title = *f.Title
	}
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
	if f.Questions != nil {
		t.Questions = m.buildQuestions(f.Questions)
	}
	m.tests[id] = t
	return copyTest(t, true), nil
}

func (m *memoryStore) Publish(_ context.Context, id int64, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tests[id]
	if !ok {
		return fmt.Errorf("%w: test %d", ErrNotFound, id)
	}
	if t.Published {
		return fmt.Errorf("%w: test %d is already published", ErrInvalidState, id)
	}
	if _, taken := m.codes[code]; taken {
		return errCodeTaken
	}
	c := code
	t.Published = true
	t.Code = &c
	m.tests[id] = t
	m.codes[code] = id
	return nil
}

func (m *memoryStore) CodeExists(_ context.Context, code string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.codes[code]
	return ok, nil
}

func (m *memoryStore) HasResult(_ context.Context, testID, userID int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.byAttempt[resultKey{testID, userID}]
	return ok, nil
}

func (m *memoryStore) CreateResult(_ context.Context, r TestResult) (TestResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := resultKey{r.TestID, r.UserID}
	if _, dup := m.byAttempt[k]; dup {
		return TestResult{}, fmt.Errorf("%w: test %d already attempted by user %d", ErrConflict, r.TestID, r.UserID)
	}
	r.ID = m.nextID()
	r.CreatedAt = time.Now().Unix()
	m.results[r.ID] = r
	m.byAttempt[k] = r.ID
	return r, nil
}

func (m *memoryStore) GetResult(_ context.Context, id int64) (TestResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.results[id]
	if !ok {
		return TestResult{}, fmt.Errorf("%w: result %d", ErrNotFound, id)
	}
	return r, nil
}

func (m *memoryStore) DeleteResult(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.results[id]
	if !ok {
		return fmt.Errorf("%w: result %d", ErrNotFound, id)
	}
	delete(m.results, id)
	delete(m.byAttempt, resultKey{r.TestID, r.UserID})
	return nil
}

func (m *memoryStore) ListResults(_ context.Context, teacherID int64) ([]TestResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []TestResult{}
	for _, r := range m.results {
		t := m.tests[r.TestID]
		if teacherID != 0 && t.TeacherID != teacherID {
			continue
		}
		r.TestTitle = t.Title
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func copyTest(t Test, withQuestions bool) Test {
	if t.Code != nil {
		c := *t.Code
		t.Code = &c
	}
	if !withQuestions {
		t.Questions = nil
		return t
	}
	qs := make([]Question, len(t.Questions))
	for i, q := range t.Questions {
		q.Answers = append([]Answer(nil), q.Answers...)
		qs[i] = q
	}
	t.Questions = qs
	return t
}
