// Package router binds the HTTP routes of the service to their handlers
// and maps handler errors to HTTP status codes.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/patric-chuzhbe/userapi/internal/apispec"
	"github.com/patric-chuzhbe/userapi/internal/gzippedhttp"
	"github.com/patric-chuzhbe/userapi/internal/logger"
	"github.com/patric-chuzhbe/userapi/internal/models"
	"github.com/patric-chuzhbe/userapi/internal/user"
)

type usersService interface {
	NextRequestNumber() uint64

	ListUsers(ctx context.Context) ([]user.User, error)

	GetUser(ctx context.Context, rawID string) (*user.User, error)

	Ping(ctx context.Context) error

	GetInternalStats(ctx context.Context) (models.InternalStatsResponse, error)
}

type authenticator interface {
	Authenticate(h http.Handler) http.Handler
}

type trustedGuard interface {
	TrustedOnly(h http.Handler) http.Handler
}

type requestMetrics interface {
	Middleware(h http.Handler) http.Handler
	RequestTotals(ctx context.Context) (map[string]int64, error)
}

// Router holds the dependencies of the HTTP handlers.
type Router struct {
	svc     usersService
	metrics requestMetrics
}

// New registers every route once and returns the ready handler.
// httpMetrics may be nil.
func New(
	svc usersService,
	auth authenticator,
	checker trustedGuard,
	httpMetrics requestMetrics,
	corsAllowedOrigins []string,
) *chi.Mux {
	myRouter := Router{
		svc:     svc,
		metrics: httpMetrics,
	}

	router := chi.NewRouter()
	router.Use(logger.WithLoggingHTTPMiddleware)
	// Outside Recoverer, so recovered panics are counted as 500s.
	if httpMetrics != nil {
		router.Use(httpMetrics.Middleware)
	}
	router.Use(
		middleware.Recoverer,
		cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Accept-Encoding", "Authorization", "Content-Type", logger.RequestIDHeader},
			ExposedHeaders: []string{logger.RequestIDHeader},
			MaxAge:         300,
		}),
		gzippedhttp.GzipResponse,
	)

	router.Get(`/`, myRouter.GetIndex)
	router.Get(`/ping`, myRouter.GetPing)
	router.Get(`/openapi.yaml`, myRouter.GetOpenAPI)

	router.Group(func(r chi.Router) {
		r.Use(auth.Authenticate)
		r.Get(`/users`, myRouter.GetUsers)
		r.Get(`/users/{id}`, myRouter.GetUserByID)
	})

	router.With(checker.TrustedOnly).Get(`/internal/stats`, myRouter.GetInternalStats)

	return router
}

// GetIndex increments the request counter and reports the new value as plain text.
func (router *Router) GetIndex(response http.ResponseWriter, request *http.Request) {
	number := router.svc.NextRequestNumber()

	response.Header().Set("Content-Type", "text/plain; charset=utf-8")
	response.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprintf(response, "Request number: %d", number); err != nil {
		logger.Log.Debugln("Error calling the `fmt.Fprintf()`: ", zap.Error(err))
	}
}

// GetUsers answers with up to ten users as a JSON array.
func (router *Router) GetUsers(response http.ResponseWriter, request *http.Request) {
	users, err := router.svc.ListUsers(request.Context())
	if err != nil {
		writeError(response, err)
		return
	}

	writeJSON(response, http.StatusOK, users)
}

// GetUserByID answers with the user addressed by the {id} path parameter.
func (router *Router) GetUserByID(response http.ResponseWriter, request *http.Request) {
	usr, err := router.svc.GetUser(request.Context(), chi.URLParam(request, "id"))
	if err != nil {
		writeError(response, err)
		return
	}

	writeJSON(response, http.StatusOK, usr)
}

// GetPing reports whether the storage is reachable.
func (router *Router) GetPing(response http.ResponseWriter, request *http.Request) {
	if err := router.svc.Ping(request.Context()); err != nil {
		logger.Log.Debugln("Error calling the `router.svc.Ping()`: ", zap.Error(err))
		response.WriteHeader(http.StatusInternalServerError)
		return
	}

	response.WriteHeader(http.StatusOK)
}

// GetInternalStats answers with the user count, the request counter
// and, when metrics are enabled, per-route request totals.
func (router *Router) GetInternalStats(response http.ResponseWriter, request *http.Request) {
	stats, err := router.svc.GetInternalStats(request.Context())
	if err != nil {
		writeError(response, err)
		return
	}

	if router.metrics != nil {
		totals, err := router.metrics.RequestTotals(request.Context())
		if err != nil {
			logger.Log.Debugln("Error calling the `router.metrics.RequestTotals()`: ", zap.Error(err))
		} else {
			stats.Routes = totals
		}
	}

	writeJSON(response, http.StatusOK, stats)
}

// GetOpenAPI serves the embedded API description.
func (router *Router) GetOpenAPI(response http.ResponseWriter, request *http.Request) {
	response.Header().Set("Content-Type", "application/yaml")
	response.WriteHeader(http.StatusOK)
	if _, err := response.Write(apispec.Raw()); err != nil {
		logger.Log.Debugln("Error calling the `response.Write()`: ", zap.Error(err))
	}
}

// statusFor is the single place where error kinds become status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidUserID):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrUserNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeError(response http.ResponseWriter, err error) {
	status := statusFor(err)

	message := err.Error()
	if status == http.StatusInternalServerError {
		logger.Log.Errorw("request failed", zap.Error(err))
		message = http.StatusText(status)
		if errors.Is(err, models.ErrStoreUnavailable) {
			message = models.ErrStoreUnavailable.Error()
		}
	} else {
		logger.Log.Debugw("request rejected", "status", status, zap.Error(err))
	}

	writeJSON(response, status, models.ErrorResponse{Error: message})
}

func writeJSON(response http.ResponseWriter, status int, value interface{}) {
	body, err := json.Marshal(value)
	if err != nil {
		logger.Log.Errorw("Error calling the `json.Marshal()`", zap.Error(err))
		response.WriteHeader(http.StatusInternalServerError)
		return
	}

	response.Header().Set("Content-Type", "application/json")
	response.WriteHeader(status)
	if _, err := response.Write(body); err != nil {
		logger.Log.Debugln("Error calling the `response.Write()`: ", zap.Error(err))
	}
}
