package quiz

import "github.com/mind-engage/mindengage-quiz/internal/grading"

type Role string

const (
	RoleStudent Role = "STUDENT"
	RoleTeacher Role = "TEACHER"
	RoleAdmin   Role = "ADMIN"
)

func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return true
	}
	return false
}

// Identity is the already-authenticated caller of an operation.
type Identity struct {
	UserID int64
	Role   Role
}

type QuestionType = grading.Type

const (
	Single   = grading.Single
	Multiple = grading.Multiple
)

type Answer struct {
	ID        int64  `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect"`
}

type Question struct {
	ID      int64        `json:"id"`
	Text    string       `json:"text"`
	Type    QuestionType `json:"type"`
	Answers []Answer     `json:"answers"`
}

// Test is the authored entity. Code is nil until the test is published.
type Test struct {
	ID        int64      `json:"id"`
	Title     string     `json:"title"`
	TeacherID int64      `json:"teacherId"`
	SubjectID int64      `json:"subjectId"`
	ClassID   int64      `json:"classId"`
	Published bool       `json:"published"`
	Code      *string    `json:"code"`
	Duration  int        `json:"duration"`
	Banner    string     `json:"banner"`
	CreatedAt int64      `json:"createdAt,omitempty"`
	Questions []Question `json:"questions,omitempty"`

	// Teacher is filled by public listings only.
	Teacher *Person `json:"teacher,omitempty"`
}

// Person is the display name of a user shown next to tests and results.
type Person struct {
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Patronymic string `json:"patronymic,omitempty"`
}

type TestResult struct {
	ID             int64 `json:"id"`
	TestID         int64 `json:"testId"`
	UserID         int64 `json:"userId"`
	Score          int   `json:"score"`
	TotalQuestions int   `json:"totalQuestions"`
	CreatedAt      int64 `json:"createdAt,omitempty"`

	// Filled by listing queries only.
	TestTitle string  `json:"testTitle,omitempty"`
	UserEmail string  `json:"userEmail,omitempty"`
	User      *Person `json:"user,omitempty"`
}

// Score is what a taker learns about a submitted attempt.
type Score struct {
	Score          int `json:"score"`
	TotalQuestions int `json:"totalQuestions"`
}

// SubmittedAnswer is the selection for one question of an attempt.
type SubmittedAnswer struct {
	QuestionID      int64   `json:"questionId" validate:"required"`
	SelectedAnswers []int64 `json:"selectedAnswers"`
}

type AnswerInput struct {
	Text      string `json:"text" validate:"required,max=1000"`
	IsCorrect bool   `json:"isCorrect"`
}

type QuestionInput struct {
	Text    string        `json:"text" validate:"required,max=2000"`
	Type    QuestionType  `json:"type" validate:"required,oneof=SINGLE MULTIPLE"`
	Answers []AnswerInput `json:"answers" validate:"required,min=1,dive"`
}

// TestFields carries the authorable fields of a test. Nil pointers leave a
// field unchanged on update; a nil Questions slice keeps the question set,
// a non-nil one replaces it.
type TestFields struct {
	Title     *string         `json:"title" validate:"omitempty,min=1,max=200"`
	SubjectID *int64          `json:"subjectId" validate:"omitempty,gte=0"`
	ClassID   *int64          `json:"classId" validate:"omitempty,gte=0"`
	Duration  *int            `json:"duration" validate:"omitempty,gte=0"`
	Banner    *string         `json:"banner" validate:"omitempty,max=500"`
	Questions []QuestionInput `json:"questions" validate:"omitempty,dive"`
}

// ListFilter narrows the public catalogue of published tests.
type ListFilter struct {
	ClassID   int64
	SubjectID int64
}
