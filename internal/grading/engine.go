package grading

// Type is the question type a comparison runs under.
type Type string

const (
	Single   Type = "SINGLE"
	Multiple Type = "MULTIPLE"
)

// Strategy decides whether a selection matches the correct answer ids.
type Strategy interface {
	Match(correct, selected []int64) bool
}

var strategies = map[Type]Strategy{
	Single:   singleStrategy{},
	Multiple: multipleStrategy{},
}

// IsCorrect compares the submitted answer ids of a question with the ids of
// its correct answers. Unknown types never match.
func IsCorrect(t Type, correct, selected []int64) bool {
	s, ok := strategies[t]
	if !ok {
		return false
	}
	return s.Match(correct, selected)
}

// --- Strategies ---

type singleStrategy struct{}

// Only the first selection is looked at; callers reject longer submissions
// before scoring.
func (singleStrategy) Match(correct, selected []int64) bool {
	if len(correct) != 1 || len(selected) == 0 {
		return false
	}
	return correct[0] == selected[0]
}

type multipleStrategy struct{}

func (multipleStrategy) Match(correct, selected []int64) bool {
	if len(correct) == 0 {
		return false
	}
	return setEqual(toSet(correct), toSet(selected))
}

// helpers

func toSet(ids []int64) map[int64]struct{} {
	m := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return m
}

func setEqual(a, b map[int64]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
