package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/marmos91/dittomds/internal/logger"
	"github.com/marmos91/dittomds/pkg/api/handlers"
	"github.com/marmos91/dittomds/pkg/mds"
	"github.com/marmos91/dittomds/pkg/namespace"
)

// Dependencies are the components the API serves.
type Dependencies struct {
	Authority *mds.Authority

	// Namespace is optional; without it the /namespace routes are absent.
	Namespace *namespace.Tree

	// Dial is optional; without it remote storage nodes cannot register.
	Dial handlers.NodeDialer
}

// UseMiddleware installs the common middleware stack on r:
//   - Request ID middleware for request tracking
//   - Real IP extraction for proper client identification
//   - Custom request logging using the internal logger
//   - Panic recovery to prevent server crashes
func UseMiddleware(r chi.Router) {
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
}

// NewRouter creates the authority's router.
//
// Routes:
//   - GET  /health, /health/ready
//   - /api/v1/files/{id}: open, sync, addblock, close, blocks, session, lease, recover
//   - POST /api/v1/leases/renew
//   - GET  /api/v1/recoveries
//   - /api/v1/nodes: list, register, unregister, block reports
//   - /api/v1/namespace: list, create, resolve, delete, rename
//
// Recovery requests wait for the attempt, so only /health gets the
// request timeout.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()
	UseMiddleware(r)

	health := handlers.NewHealthHandler(deps.Authority)
	r.Route("/health", func(r chi.Router) {
		r.Use(middleware.Timeout(5 * time.Second))
		r.Get("/", health.Liveness)
		r.Get("/ready", health.Readiness)
	})

	files := handlers.NewFileHandler(deps.Authority)
	nodes := handlers.NewNodeHandler(deps.Authority, deps.Dial)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/files/{id}", func(r chi.Router) {
			r.Post("/open", files.Open)
			r.Post("/sync", files.Sync)
			r.Post("/addblock", files.AddBlock)
			r.Post("/close", files.Close)
			r.Get("/blocks", files.Blocks)
			r.Get("/session", files.Session)
			r.Get("/lease", files.Lease)
			r.Post("/recover", files.Recover)
		})
		r.Post("/leases/renew", files.RenewLeases)
		r.Get("/recoveries", files.Recoveries)

		r.Route("/nodes", func(r chi.Router) {
			r.Get("/", nodes.List)
			r.Post("/", nodes.Register)
			r.Delete("/{node}", nodes.Unregister)
			r.Post("/{node}/blocks", nodes.BlockReceived)
		})

		if deps.Namespace != nil {
			ns := handlers.NewNamespaceHandler(deps.Namespace)
			r.Route("/namespace", func(r chi.Router) {
				r.Get("/", ns.List)
				r.Post("/files", ns.Create)
				r.Get("/files", ns.Resolve)
				r.Delete("/files", ns.Delete)
				r.Post("/rename", ns.Rename)
			})
		}
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/health", http.StatusTemporaryRedirect)
	})

	return r
}

// requestLogger is a custom middleware that logs requests using the internal logger.
//
// It logs:
//   - Request start (DEBUG level): method, path, remote addr
//   - Request completion (INFO level): method, path, status, duration
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		lc := logger.NewLogContext(r.Method + " " + r.URL.Path)
		lc.ClientIP = r.RemoteAddr
		ctx := logger.WithContext(r.Context(), lc)

		logger.DebugCtx(ctx, "API request started", logger.KeyRequestID, requestID)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		logger.Info("API request completed",
			logger.KeyRequestID, requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			logger.KeyDurationMs, logger.Duration(start),
		)
	})
}
