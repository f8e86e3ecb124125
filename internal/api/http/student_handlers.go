package http

import (
	"net/http"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

// GetTestDetailsHandler returns a published test with its questions, answer
// key removed.
func GetTestDetailsHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		t, err := svc.GetDetails(r.Context(), id)
		if err != nil {
			writeReadError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

func SubmitAttemptHandler(svc *quiz.Service) http.HandlerFunc {
	type req struct {
		Answers []quiz.SubmittedAnswer `json:"answers"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		var in req
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, r, err)
			return
		}
		score, err := svc.SubmitAttempt(r.Context(), identity(r).UserID, id, in.Answers)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, score)
	}
}
