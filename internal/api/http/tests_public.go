package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

// ListPublishedTestsHandler serves GET /api/tests?classId=&subjectId=.
func ListPublishedTestsHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		classID, err := queryID(r, "classId")
		if err != nil {
			writeError(w, r, err)
			return
		}
		subjectID, err := queryID(r, "subjectId")
		if err != nil {
			writeError(w, r, err)
			return
		}
		tests, err := svc.ListPublished(r.Context(), quiz.ListFilter{ClassID: classID, SubjectID: subjectID})
		if err != nil {
			writeReadError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, tests)
	}
}

func GetTestByCodeHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := svc.GetByCode(r.Context(), chi.URLParam(r, "code"))
		if err != nil {
			writeReadError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}
