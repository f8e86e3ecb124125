package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/mindengage-quiz/internal/auth"
	authmw "github.com/mind-engage/mindengage-quiz/internal/auth/middleware"
	"github.com/mind-engage/mindengage-quiz/internal/db"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
	"github.com/mind-engage/mindengage-quiz/internal/storage"
	syncx "github.com/mind-engage/mindengage-quiz/internal/sync"
)

type env struct {
	h        http.Handler
	accounts *auth.Accounts
	authSvc  *authmw.AuthService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	h, err := db.Open(ctx, db.DriverSQLite, "file:"+strings.ReplaceAll(t.Name(), "/", "_")+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = h.Close() })
	bs, err := storage.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	e := &env{
		accounts: auth.NewAccounts(h, bcrypt.MinCost),
		authSvc:  authmw.NewAuthService("test-secret", time.Hour),
	}
	events := syncx.NewEventRepo(h, "test")
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	Mount(r, Deps{
		Quiz:               quiz.NewService(quiz.NewSQLStore(h), quiz.WithEvents(events)),
		Accounts:           e.accounts,
		Auth:               e.authSvc,
		Blobs:              bs,
		Events:             events,
		DB:                 h,
		EnableRegistration: true,
	})
	e.h = r
	return e
}

// user creates an account with role and returns its id and a bearer token.
func (e *env) user(t *testing.T, email string, role quiz.Role) (int64, string) {
	t.Helper()
	ctx := context.Background()
	u, err := e.accounts.Register(ctx, auth.Registration{Email: email, Password: "secret1", FirstName: "F", LastName: "L"})
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	if role != quiz.RoleStudent {
		if err := e.accounts.SetRole(ctx, u.ID, role); err != nil {
			t.Fatal(err)
		}
	}
	tok, err := e.authSvc.IssueJWT(u.ID, role)
	if err != nil {
		t.Fatal(err)
	}
	return u.ID, tok
}

func (e *env) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func expect(t *testing.T, rec *httptest.ResponseRecorder, code int) {
	t.Helper()
	if rec.Code != code {
		t.Fatalf("status %d want %d: %s", rec.Code, code, rec.Body.String())
	}
}

func ans(text string, correct bool) map[string]any {
	return map[string]any{"text": text, "isCorrect": correct}
}

var fractionsTest = map[string]any{
	"title":    "Fractions",
	"duration": 15,
	"questions": []map[string]any{
		{"text": "1/2 + 1/2", "type": "SINGLE", "answers": []map[string]any{ans("1", true), ans("2", false)}},
		{"text": "1/4 * 2", "type": "SINGLE", "answers": []map[string]any{ans("1/2", true), ans("1/8", false)}},
		{"text": "equal to 1/2", "type": "MULTIPLE", "answers": []map[string]any{ans("2/4", true), ans("3/6", true), ans("1/3", false)}},
	},
}

func answerByText(t *testing.T, q quiz.Question, text string) int64 {
	t.Helper()
	for _, a := range q.Answers {
		if a.Text == text {
			return a.ID
		}
	}
	t.Fatalf("question %q has no answer %q", q.Text, text)
	return 0
}

func TestQuizFlow(t *testing.T) {
	e := newEnv(t)
	_, teacher := e.user(t, "teacher@example.com", quiz.RoleTeacher)
	_, student := e.user(t, "student@example.com", quiz.RoleStudent)

	rec := e.do(t, http.MethodPost, "/api/teacher/tests", teacher, fractionsTest)
	expect(t, rec, http.StatusCreated)
	draft := decode[quiz.Test](t, rec)
	if draft.Published || draft.Code != nil || len(draft.Questions) != 3 {
		t.Fatalf("unexpected draft %+v", draft)
	}

	// drafts are invisible to takers
	expect(t, e.do(t, http.MethodGet, fmt.Sprintf("/api/tests/%d/details", draft.ID), student, nil), http.StatusBadRequest)
	expect(t, e.do(t, http.MethodPost, fmt.Sprintf("/api/tests/%d/attempt", draft.ID), student, map[string]any{"answers": []any{}}), http.StatusConflict)

	rec = e.do(t, http.MethodPost, fmt.Sprintf("/api/teacher/tests/%d/publish", draft.ID), teacher, nil)
	expect(t, rec, http.StatusOK)
	code := decode[map[string]string](t, rec)["code"]
	if len(code) != quiz.CodeLength {
		t.Fatalf("code %q", code)
	}
	expect(t, e.do(t, http.MethodPost, fmt.Sprintf("/api/teacher/tests/%d/publish", draft.ID), teacher, nil), http.StatusConflict)
	expect(t, e.do(t, http.MethodPut, fmt.Sprintf("/api/teacher/tests/%d", draft.ID), teacher, map[string]any{"title": "x"}), http.StatusConflict)

	rec = e.do(t, http.MethodGet, "/api/tests/"+code, "", nil)
	expect(t, rec, http.StatusOK)
	if got := decode[quiz.Test](t, rec); got.ID != draft.ID {
		t.Fatalf("by code: got test %d want %d", got.ID, draft.ID)
	}
	expect(t, e.do(t, http.MethodGet, "/api/tests/NOPE0000", "", nil), http.StatusNotFound)

	rec = e.do(t, http.MethodGet, "/api/tests", "", nil)
	expect(t, rec, http.StatusOK)
	if list := decode[[]quiz.Test](t, rec); len(list) != 1 || list[0].Teacher == nil || list[0].Teacher.FirstName != "F" {
		t.Fatalf("catalogue %+v, want one test with its author's name", list)
	}

	rec = e.do(t, http.MethodGet, fmt.Sprintf("/api/tests/%d/details", draft.ID), student, nil)
	expect(t, rec, http.StatusOK)
	details := decode[quiz.Test](t, rec)
	for _, q := range details.Questions {
		for _, a := range q.Answers {
			if a.IsCorrect {
				t.Fatalf("answer key leaked: %+v", a)
			}
		}
	}

	qs := details.Questions
	submission := map[string]any{"answers": []map[string]any{
		{"questionId": qs[0].ID, "selectedAnswers": []int64{answerByText(t, qs[0], "1")}},
		{"questionId": qs[1].ID, "selectedAnswers": []int64{answerByText(t, qs[1], "1/8")}},
		{"questionId": qs[2].ID, "selectedAnswers": []int64{answerByText(t, qs[2], "3/6"), answerByText(t, qs[2], "2/4")}},
	}}
	attempt := fmt.Sprintf("/api/tests/%d/attempt", draft.ID)
	rec = e.do(t, http.MethodPost, attempt, student, submission)
	expect(t, rec, http.StatusOK)
	if s := decode[quiz.Score](t, rec); s.Score != 2 || s.TotalQuestions != 3 {
		t.Fatalf("score %+v want 2/3", s)
	}
	expect(t, e.do(t, http.MethodPost, attempt, student, submission), http.StatusConflict)

	rec = e.do(t, http.MethodGet, "/api/teacher/test-results", teacher, nil)
	expect(t, rec, http.StatusOK)
	results := decode[[]quiz.TestResult](t, rec)
	if len(results) != 1 || results[0].UserEmail != "student@example.com" || results[0].TestTitle != "Fractions" ||
		results[0].User == nil || results[0].User.LastName != "L" {
		t.Fatalf("results %+v", results)
	}

	expect(t, e.do(t, http.MethodPost, fmt.Sprintf("/api/teacher/test-results/%d/reset", results[0].ID), teacher, nil), http.StatusOK)
	expect(t, e.do(t, http.MethodPost, attempt, student, submission), http.StatusOK)

	_, admin := e.user(t, "admin@example.com", quiz.RoleAdmin)
	expect(t, e.do(t, http.MethodGet, "/api/admin/events", teacher, nil), http.StatusForbidden)
	rec = e.do(t, http.MethodGet, "/api/admin/events", admin, nil)
	expect(t, rec, http.StatusOK)
	var types []string
	for _, ev := range decode[[]syncx.Event](t, rec) {
		types = append(types, ev.Type)
	}
	want := []string{quiz.EventTestPublished, quiz.EventAttemptSubmitted, quiz.EventResultReset, quiz.EventAttemptSubmitted}
	if strings.Join(types, ",") != strings.Join(want, ",") {
		t.Fatalf("events %v want %v", types, want)
	}
}

func TestAuthEndpoints(t *testing.T) {
	e := newEnv(t)
	reg := map[string]any{
		"email": "new@example.com", "password": "secret1", "passwordConfirmation": "secret1",
		"firstName": "N", "lastName": "U",
	}
	expect(t, e.do(t, http.MethodPost, "/api/auth/register", "", reg), http.StatusCreated)
	expect(t, e.do(t, http.MethodPost, "/api/auth/register", "", reg), http.StatusConflict)

	mismatch := map[string]any{"email": "x@example.com", "password": "secret1", "passwordConfirmation": "other1", "firstName": "X", "lastName": "Y"}
	expect(t, e.do(t, http.MethodPost, "/api/auth/register", "", mismatch), http.StatusBadRequest)

	expect(t, e.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "new@example.com", "password": "wrong1"}), http.StatusUnauthorized)
	rec := e.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "new@example.com", "password": "secret1"})
	expect(t, rec, http.StatusOK)
	tok := decode[map[string]any](t, rec)["token"].(string)

	expect(t, e.do(t, http.MethodGet, "/api/auth/me", "", nil), http.StatusUnauthorized)
	rec = e.do(t, http.MethodGet, "/api/auth/me", tok, nil)
	expect(t, rec, http.StatusOK)
	me := decode[struct{ User auth.User }](t, rec)
	if me.User.Email != "new@example.com" || me.User.Role != quiz.RoleStudent {
		t.Fatalf("me %+v", me.User)
	}
}

func TestRoleAndOwnershipGates(t *testing.T) {
	e := newEnv(t)
	_, owner := e.user(t, "owner@example.com", quiz.RoleTeacher)
	_, other := e.user(t, "other@example.com", quiz.RoleTeacher)
	_, admin := e.user(t, "admin@example.com", quiz.RoleAdmin)
	studentID, student := e.user(t, "s@example.com", quiz.RoleStudent)

	rec := e.do(t, http.MethodPost, "/api/teacher/tests", owner, fractionsTest)
	expect(t, rec, http.StatusCreated)
	id := decode[quiz.Test](t, rec).ID
	edit := fmt.Sprintf("/api/teacher/tests/%d", id)

	expect(t, e.do(t, http.MethodPost, "/api/teacher/tests", "", fractionsTest), http.StatusUnauthorized)
	expect(t, e.do(t, http.MethodPost, "/api/teacher/tests", student, fractionsTest), http.StatusForbidden)
	expect(t, e.do(t, http.MethodGet, edit, other, nil), http.StatusForbidden)
	expect(t, e.do(t, http.MethodPut, edit, other, map[string]any{"title": "hijack"}), http.StatusForbidden)
	expect(t, e.do(t, http.MethodPost, edit+"/publish", other, nil), http.StatusForbidden)
	expect(t, e.do(t, http.MethodGet, "/api/teacher/tests/9999", owner, nil), http.StatusNotFound)
	expect(t, e.do(t, http.MethodPut, edit, owner, map[string]any{"title": "  "}), http.StatusBadRequest)

	rec = e.do(t, http.MethodPut, edit, admin, map[string]any{"title": "Renamed"})
	expect(t, rec, http.StatusOK)
	if got := decode[quiz.Test](t, rec); got.Title != "Renamed" || len(got.Questions) != 3 {
		t.Fatalf("admin update %+v", got)
	}

	rec = e.do(t, http.MethodGet, "/api/teacher/tests", other, nil)
	expect(t, rec, http.StatusOK)
	if list := decode[[]quiz.Test](t, rec); len(list) != 0 {
		t.Fatalf("other teacher sees %d tests", len(list))
	}

	// a role change applies to tokens issued before it
	expect(t, e.do(t, http.MethodPut, fmt.Sprintf("/api/admin/users/%d", studentID), admin, map[string]any{"role": "TEACHER"}), http.StatusOK)
	expect(t, e.do(t, http.MethodPost, "/api/teacher/tests", student, fractionsTest), http.StatusCreated)
	expect(t, e.do(t, http.MethodGet, "/api/admin/users", owner, nil), http.StatusForbidden)
}

func TestBannerUpload(t *testing.T) {
	e := newEnv(t)
	_, owner := e.user(t, "owner@example.com", quiz.RoleTeacher)
	_, other := e.user(t, "other@example.com", quiz.RoleTeacher)

	rec := e.do(t, http.MethodPost, "/api/teacher/tests", owner, fractionsTest)
	expect(t, rec, http.StatusCreated)
	id := decode[quiz.Test](t, rec).ID

	upload := func(token, name string, content []byte) *httptest.ResponseRecorder {
		req := bannerRequest(t, fmt.Sprintf("/api/teacher/tests/%d/banner", id), name, content)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		e.h.ServeHTTP(rec, req)
		return rec
	}

	expect(t, upload(other, "b.png", pngBytes), http.StatusForbidden)
	expect(t, upload(owner, "evil.png", []byte("<html><script>alert(1)</script></html>")), http.StatusBadRequest)
	rec = upload(owner, "Banner.HTML", pngBytes)
	expect(t, rec, http.StatusOK)
	banner := decode[quiz.Test](t, rec).Banner
	if !strings.HasPrefix(banner, fmt.Sprintf("banners/%d/", id)) || !strings.HasSuffix(banner, ".png") {
		t.Fatalf("banner key %q", banner)
	}

	rec = e.do(t, http.MethodGet, "/assets/"+banner, "", nil)
	expect(t, rec, http.StatusOK)
	if !bytes.Equal(rec.Body.Bytes(), pngBytes) || rec.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("asset body %q type %q", rec.Body.String(), rec.Header().Get("Content-Type"))
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("asset served without nosniff")
	}
	expect(t, e.do(t, http.MethodGet, "/assets/banners/none.png", "", nil), http.StatusNotFound)

	expect(t, e.do(t, http.MethodPost, fmt.Sprintf("/api/teacher/tests/%d/publish", id), owner, nil), http.StatusOK)
	expect(t, upload(owner, "b.png", pngBytes), http.StatusConflict)
}

// pngBytes is a PNG signature followed by an IHDR chunk header.
var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func bannerRequest(t *testing.T, url, name string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = fw.Write(content)
	_ = mw.Close()
	req := httptest.NewRequest(http.MethodPost, url, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestAssetsServeNonImagesAsDownloads(t *testing.T) {
	bs, err := storage.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := bs.Put("banners/1/page.html", strings.NewReader("<html></html>")); err != nil {
		t.Fatal(err)
	}
	r := chi.NewRouter()
	r.Route("/assets", func(ar chi.Router) { MountAssets(ar, bs) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/assets/banners/1/page.html", nil))
	expect(t, rec, http.StatusOK)
	if ct := rec.Header().Get("Content-Type"); ct != "application/octet-stream" {
		t.Fatalf("html served as %q", ct)
	}
	if rec.Header().Get("Content-Disposition") != "attachment" || rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("headers %v", rec.Header())
	}
}

// racingStore reports the test as published at the moment the banner key is
// written, as if a publish committed between the ownership check and the
// update.
type racingStore struct{ quiz.Store }

func (racingStore) UpdateDraft(_ context.Context, id int64, _ quiz.TestFields) (quiz.Test, error) {
	return quiz.Test{}, fmt.Errorf("%w: test %d is published", quiz.ErrInvalidState, id)
}

type recordingBlobs struct {
	storage.BlobStore
	deleted []string
}

func (b *recordingBlobs) Delete(key string) error {
	b.deleted = append(b.deleted, key)
	return b.BlobStore.Delete(key)
}

func TestBannerUploadDropsBlobWhenUpdateFails(t *testing.T) {
	ctx := context.Background()
	st := quiz.NewInMemoryStore()
	teacher := quiz.Identity{UserID: 5, Role: quiz.RoleTeacher}
	title := "Draft"
	test, err := quiz.NewService(st).CreateTest(ctx, teacher, quiz.TestFields{Title: &title})
	if err != nil {
		t.Fatal(err)
	}
	fs, err := storage.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	blobs := &recordingBlobs{BlobStore: fs}

	r := chi.NewRouter()
	r.Post("/tests/{id}/banner", UploadBannerHandler(quiz.NewService(racingStore{st}), blobs))
	req := bannerRequest(t, fmt.Sprintf("/tests/%d/banner", test.ID), "b.png", pngBytes)
	req = req.WithContext(authmw.WithIdentity(req.Context(), teacher))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	expect(t, rec, http.StatusConflict)
	if len(blobs.deleted) != 1 {
		t.Fatalf("deleted %v, want the uploaded banner", blobs.deleted)
	}
	if _, err := fs.Get(blobs.deleted[0]); err == nil {
		t.Fatal("orphaned banner still stored")
	}
}

func TestWriteErrorStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: test 1", quiz.ErrNotFound), http.StatusNotFound},
		{quiz.ErrPermissionDenied, http.StatusForbidden},
		{quiz.ErrValidation, http.StatusBadRequest},
		{quiz.ErrInvalidState, http.StatusConflict},
		{quiz.ErrConflict, http.StatusConflict},
		{auth.ErrBadCredentials, http.StatusUnauthorized},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		writeError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tc.err)
		if rec.Code != tc.want {
			t.Errorf("%v: status %d want %d", tc.err, rec.Code, tc.want)
		}
	}

	rec := httptest.NewRecorder()
	writeError(rec, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("secret detail"))
	if strings.Contains(rec.Body.String(), "secret detail") {
		t.Fatalf("500 leaks cause: %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	writeReadError(rec, httptest.NewRequest(http.MethodGet, "/", nil), quiz.ErrInvalidState)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("read-side invalid state: %d", rec.Code)
	}
}
