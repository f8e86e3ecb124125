package grading

import "testing"

func TestIsCorrect(t *testing.T) {
	cases := []struct {
		name     string
		typ      Type
		correct  []int64
		selected []int64
		want     bool
	}{
		{"single match", Single, []int64{5}, []int64{5}, true},
		{"single miss", Single, []int64{5}, []int64{7}, false},
		{"single empty", Single, []int64{5}, nil, false},
		{"single first wins", Single, []int64{5}, []int64{5, 7}, true},
		{"single no key", Single, nil, []int64{5}, false},
		{"single two keys", Single, []int64{5, 6}, []int64{5}, false},
		{"multi order independent", Multiple, []int64{2, 4}, []int64{4, 2}, true},
		{"multi subset", Multiple, []int64{2, 4}, []int64{2}, false},
		{"multi superset", Multiple, []int64{2, 4}, []int64{2, 4, 6}, false},
		{"multi duplicates collapse", Multiple, []int64{2, 4}, []int64{2, 2, 4}, true},
		{"multi empty", Multiple, []int64{2, 4}, nil, false},
		{"multi no key", Multiple, nil, nil, false},
		{"unknown type", Type("TEXT"), []int64{1}, []int64{1}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsCorrect(tc.typ, tc.correct, tc.selected); got != tc.want {
				t.Fatalf("IsCorrect(%s, %v, %v) = %v, want %v", tc.typ, tc.correct, tc.selected, got, tc.want)
			}
		})
	}
}
