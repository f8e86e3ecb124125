package http

import (
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
	"github.com/mind-engage/mindengage-quiz/internal/storage"
)

const maxBannerBytes = 5 << 20

func ListTeacherTestsHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tests, err := svc.ListTeacherTests(r.Context(), identity(r))
		if err != nil {
			writeReadError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, tests)
	}
}

func CreateTestHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var f quiz.TestFields
		if err := decodeJSON(r, &f); err != nil {
			writeError(w, r, err)
			return
		}
		t, err := svc.CreateTest(r.Context(), identity(r), f)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, t)
	}
}

func GetTeacherTestHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		t, err := svc.GetForEdit(r.Context(), identity(r), id)
		if err != nil {
			writeReadError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

func UpdateTestHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		var f quiz.TestFields
		if err := decodeJSON(r, &f); err != nil {
			writeError(w, r, err)
			return
		}
		t, err := svc.UpdateTest(r.Context(), identity(r), id, f)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

func PublishTestHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		code, err := svc.PublishTest(r.Context(), identity(r), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "published", "code": code})
	}
}

// UploadBannerHandler stores the multipart "file" field as the banner of a
// draft and records its blob key on the test.
func UploadBannerHandler(svc *quiz.Service, bs storage.BlobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			writeError(w, r, err)
			return
		}
		actor := identity(r)

		// ownership and state are checked before anything is written
		t, err := svc.GetForEdit(r.Context(), actor, id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if t.Published {
			writeError(w, r, fmt.Errorf("%w: test %d is published", quiz.ErrInvalidState, id))
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxBannerBytes)
		f, _, err := r.FormFile("file")
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: file required", quiz.ErrValidation))
			return
		}
		defer f.Close()

		// the stored type comes from the content, never from the client's
		// file name
		mt, err := mimetype.DetectReader(f)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if !mt.Is("image/png") && !mt.Is("image/jpeg") && !mt.Is("image/gif") && !mt.Is("image/webp") {
			writeError(w, r, fmt.Errorf("%w: banner must be a PNG, JPEG, GIF or WebP image, got %s", quiz.ErrValidation, mt.String()))
			return
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			writeError(w, r, err)
			return
		}

		key := fmt.Sprintf("banners/%d/%s%s", id, uuid.NewString(), mt.Extension())
		if _, err := bs.Put(key, f); err != nil {
			writeError(w, r, err)
			return
		}
		t, err = svc.UpdateTest(r.Context(), actor, id, quiz.TestFields{Banner: &key})
		if err != nil {
			if derr := bs.Delete(key); derr != nil {
				log.Printf("[%s] drop orphaned banner %s: %v", middleware.GetReqID(r.Context()), key, derr)
			}
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}
