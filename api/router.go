package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-logr/logr"

	"github.com/vaultdrive/vaultdrive/multipart"
	"github.com/vaultdrive/vaultdrive/quota"
	"github.com/vaultdrive/vaultdrive/service"
)

// NewRouter builds the chi router implementing spec §6's HTTP surface.
// Every route under /files requires a valid session bearer token except
// the multipart part-upload and abort endpoints, which are instead
// authorized by MultipartCoordinator's own signed upload token (extracted
// inside the handler).
func NewRouter(storageService *service.Storage, coordinator *multipart.Coordinator, verifier *SessionVerifier, ledger *quota.Ledger, defaultTierID string, logger logr.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	filesHandler := NewFilesHandler(storageService)
	multipartHandler := NewMultipartHandler(coordinator, storageService)

	r.Route("/files", func(r chi.Router) {
		r.Use(AuthContext(verifier, ledger, defaultTierID, logger))

		r.Get("/", filesHandler.List)
		r.Get("/{view:recent|favorites|shared|trash|all}", filesHandler.ListView)
		r.Get("/{id}", filesHandler.Show)
		r.Put("/", filesHandler.Upload)
		r.Put("/{id}", filesHandler.UpdateContent)
		r.Post("/create-directory", filesHandler.CreateDirectory)
		r.Patch("/{id}", filesHandler.Rename)
		r.Post("/move-file", filesHandler.Move)
		r.Post("/{id}/favorite", filesHandler.Favorite)
		r.Get("/{id}/download", filesHandler.Download)
		r.Delete("/{id}", filesHandler.SoftDelete)
		r.Post("/{id}/restore", filesHandler.Restore)
		r.Delete("/{id}/permanent-delete", filesHandler.HardDelete)

		r.Post("/multipart/initiate", multipartHandler.Initiate)
		r.Post("/multipart/{sessionID}/complete", multipartHandler.Complete)
	})

	// Part upload and abort carry their own bearer (the upload token, not
	// the session token) so they sit outside the AuthContext group.
	r.Put("/files/multipart/{sessionID}/part/{N}", multipartHandler.UploadPart)
	r.Delete("/files/multipart/{sessionID}/abort", multipartHandler.Abort)

	return r
}

// requestLogger logs one structured line per request, matching
// marmos91-dittofs's router.go middleware.
func requestLogger(logger logr.Logger) func(http.Handler) http.Handler {
	log := logger.WithName("api")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			log.Info("request completed",
				"method", r.Method, "path", r.URL.Path, "status", ww.Status(),
				"duration", time.Since(start).String(), "requestID", middleware.GetReqID(r.Context()),
			)
		})
	}
}
