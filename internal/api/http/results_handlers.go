package http

import (
	"net/http"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

func ListResultsHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := svc.ListResultsFor(r.Context(), identity(r))
		if err != nil {
			writeReadError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// ResetResultHandler deletes a result so the student may attempt again.
func ResetResultHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "resultId")
		if err != nil {
			writeError(w, r, err)
			return
		}
		if err := svc.ResetResult(r.Context(), identity(r), id); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, message{"result reset, the test may be retaken"})
	}
}
