package http

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-quiz/internal/auth"
	authmw "github.com/mind-engage/mindengage-quiz/internal/auth/middleware"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
	"github.com/mind-engage/mindengage-quiz/internal/rbac"
	"github.com/mind-engage/mindengage-quiz/internal/storage"
	syncx "github.com/mind-engage/mindengage-quiz/internal/sync"
)

type Deps struct {
	Quiz     *quiz.Service
	Accounts *auth.Accounts
	Auth     *authmw.AuthService
	Blobs    storage.BlobStore
	Events   *syncx.EventRepo
	// DB, when set, is consulted on every authenticated request for the
	// caller's current role.
	DB                 *sql.DB
	EnableRegistration bool
}

// Mount registers the /api and /assets routes on r.
func Mount(r chi.Router, d Deps) {
	authed := func(pr chi.Router) {
		pr.Use(authmw.JWTMiddleware(d.Auth))
		if d.DB != nil {
			pr.Use(authmw.AttachRoleFromDB(d.DB))
		}
	}

	r.Route("/api", func(ar chi.Router) {
		ar.Route("/auth", func(au chi.Router) {
			au.Post("/register", RegisterHandler(d.Accounts, d.EnableRegistration))
			au.Post("/login", LoginHandler(d.Accounts, d.Auth))
			au.Group(func(pr chi.Router) {
				authed(pr)
				pr.Get("/me", MeHandler(d.Accounts))
			})
		})

		ar.Route("/tests", func(tr chi.Router) {
			tr.Get("/", ListPublishedTestsHandler(d.Quiz))
			tr.Get("/{code}", GetTestByCodeHandler(d.Quiz))
			tr.Group(func(pr chi.Router) {
				authed(pr)
				pr.With(rbac.Require(rbac.PermTestView)).Get("/{id}/details", GetTestDetailsHandler(d.Quiz))
				pr.With(rbac.Require(rbac.PermAttemptSubmit)).Post("/{id}/attempt", SubmitAttemptHandler(d.Quiz))
			})
		})

		ar.Route("/teacher", func(tr chi.Router) {
			authed(tr)
			tr.With(rbac.Require(rbac.PermTestCreate)).Get("/tests", ListTeacherTestsHandler(d.Quiz))
			tr.With(rbac.Require(rbac.PermTestCreate)).Post("/tests", CreateTestHandler(d.Quiz))
			tr.Group(func(mr chi.Router) {
				mr.Use(rbac.Require(rbac.PermTestManage))
				mr.Get("/tests/{id}", GetTeacherTestHandler(d.Quiz))
				mr.Put("/tests/{id}", UpdateTestHandler(d.Quiz))
				mr.Post("/tests/{id}/publish", PublishTestHandler(d.Quiz))
				mr.Post("/tests/{id}/banner", UploadBannerHandler(d.Quiz, d.Blobs))
			})
			tr.With(rbac.Require(rbac.PermResultsView)).Get("/test-results", ListResultsHandler(d.Quiz))
			tr.With(rbac.Require(rbac.PermResultsReset)).Post("/test-results/{resultId}/reset", ResetResultHandler(d.Quiz))
		})

		ar.Route("/admin", func(adm chi.Router) {
			authed(adm)
			adm.Use(rbac.Require(rbac.PermUsersManage))
			adm.Get("/users", ListUsersHandler(d.Accounts))
			adm.Put("/users/{userID}", AdminUpdateUserHandler(d.Accounts))
			if d.Events != nil {
				adm.Get("/events", ListEventsHandler(d.Events))
			}
		})
	})

	r.Route("/assets", func(ar chi.Router) {
		MountAssets(ar, d.Blobs)
	})
}

// HealthHandlers returns the liveness and readiness handlers. Readiness pings the
// database when one is configured.
func HealthHandlers(db *sql.DB) (healthz, readyz http.HandlerFunc) {
	healthz = func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }
	readyz = func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				http.Error(w, "db unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	}
	return healthz, readyz
}
