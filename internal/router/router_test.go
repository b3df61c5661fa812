package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"
	"github.com/go-chi/chi/v5"
	"github.com/go-resty/resty/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/patric-chuzhbe/userapi/internal/apispec"
	"github.com/patric-chuzhbe/userapi/internal/auth"
	"github.com/patric-chuzhbe/userapi/internal/counter"
	"github.com/patric-chuzhbe/userapi/internal/db/memorystorage"
	"github.com/patric-chuzhbe/userapi/internal/ipchecker"
	"github.com/patric-chuzhbe/userapi/internal/logger"
	"github.com/patric-chuzhbe/userapi/internal/metrics"
	"github.com/patric-chuzhbe/userapi/internal/mockstorage"
	"github.com/patric-chuzhbe/userapi/internal/models"
	"github.com/patric-chuzhbe/userapi/internal/service"
	"github.com/patric-chuzhbe/userapi/internal/user"
)

type testStorage interface {
	ListUsers(ctx context.Context, limit int) ([]user.User, error)
	GetUserByID(ctx context.Context, id int64) (*user.User, bool, error)
	GetNumberOfUsers(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
}

type initOption func(*initOptions)

type initOptions struct {
	mockStorage   testStorage
	users         []user.User
	signingKey    []byte
	trustedSubnet string
	withMetrics   bool
}

func withMockStorage(db testStorage) initOption {
	return func(options *initOptions) {
		options.mockStorage = db
	}
}

func withUsers(users ...user.User) initOption {
	return func(options *initOptions) {
		options.users = users
	}
}

func withSigningKey(key []byte) initOption {
	return func(options *initOptions) {
		options.signingKey = key
	}
}

func withTrustedSubnet(subnet string) initOption {
	return func(options *initOptions) {
		options.trustedSubnet = subnet
	}
}

func withMetrics(value bool) initOption {
	return func(options *initOptions) {
		options.withMetrics = value
	}
}

func makeUsers(amount int) []user.User {
	result := make([]user.User, 0, amount)
	for i := 1; i <= amount; i++ {
		result = append(result, user.User{
			ID:    int64(i),
			Name:  fmt.Sprintf("user %d", i),
			Email: fmt.Sprintf("user%d@example.com", i),
		})
	}
	return result
}

func setupTestRouter(t *testing.T, optionsProto ...initOption) (*httptest.Server, *chi.Mux) {
	options := &initOptions{}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	var db testStorage
	if options.mockStorage != nil {
		db = options.mockStorage
	} else {
		memDB, err := memorystorage.New(options.users...)
		if t != nil {
			require.NoError(t, err)
		}
		db = memDB
	}

	checker, err := ipchecker.New(options.trustedSubnet)
	if t != nil {
		require.NoError(t, err)
	}

	var theRouter *chi.Mux
	if options.withMetrics {
		httpMetrics, err := metrics.New(context.Background(), "userapi-test", "test")
		if t != nil {
			require.NoError(t, err)
		}
		theRouter = New(
			service.New(db, counter.New()),
			auth.New("auth", options.signingKey),
			checker,
			httpMetrics,
			[]string{"*"},
		)
	} else {
		theRouter = New(
			service.New(db, counter.New()),
			auth.New("auth", options.signingKey),
			checker,
			nil,
			[]string{"*"},
		)
	}

	err = logger.Init("debug")
	if t != nil {
		require.NoError(t, err)
	}

	return httptest.NewServer(theRouter), theRouter
}

var contractRouter = func() routers.Router {
	doc, err := apispec.Load(context.Background())
	if err != nil {
		panic(err)
	}
	r, err := legacy.NewRouter(doc)
	if err != nil {
		panic(err)
	}
	return r
}()

// assertContract validates a real response against the embedded OpenAPI document.
func assertContract(t *testing.T, method, path string, resp *resty.Response) {
	t.Helper()

	u, err := url.Parse(path)
	require.NoError(t, err)
	req := &http.Request{Method: method, URL: u, Header: http.Header{}}

	route, pathParams, err := contractRouter.FindRoute(req)
	require.NoError(t, err)

	input := &openapi3filter.ResponseValidationInput{
		RequestValidationInput: &openapi3filter.RequestValidationInput{
			Request:    req,
			PathParams: pathParams,
			Route:      route,
		},
		Status:  resp.StatusCode(),
		Header:  resp.Header(),
		Body:    io.NopCloser(bytes.NewReader(resp.Body())),
		Options: &openapi3filter.Options{IncludeResponseStatus: true},
	}
	assert.NoError(t, openapi3filter.ValidateResponse(context.Background(), input))
}

func TestGetIndex(t *testing.T) {
	server, _ := setupTestRouter(t)
	defer server.Close()

	for i := 1; i <= 3; i++ {
		resp, err := resty.New().R().Get(server.URL + "/")
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, resp.StatusCode())
		assert.Equal(t, fmt.Sprintf("Request number: %d", i), string(resp.Body()))
		assertContract(t, http.MethodGet, "/", resp)
	}
}

func TestGetIndexConcurrent(t *testing.T) {
	const n = 100

	server, _ := setupTestRouter(t)
	defer server.Close()

	client := resty.New()
	numbers := make([]int, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			resp, err := client.R().Get(server.URL + "/")
			if err != nil {
				errs[i] = err
				return
			}
			numbers[i], errs[i] = strconv.Atoi(strings.TrimPrefix(string(resp.Body()), "Request number: "))
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	sort.Ints(numbers)
	for i, number := range numbers {
		assert.Equal(t, i+1, number, "every request number from 1 to N should be seen exactly once")
	}
}

func TestGetUsers(t *testing.T) {
	tests := []struct {
		name      string
		users     []user.User
		wantCount int
	}{
		{name: "empty table", users: nil, wantCount: 0},
		{name: "few rows", users: makeUsers(3), wantCount: 3},
		{name: "more than ten rows", users: makeUsers(25), wantCount: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := setupTestRouter(t, withUsers(tt.users...))
			defer server.Close()

			resp, err := resty.New().R().Get(server.URL + "/users")
			require.NoError(t, err)

			assert.Equal(t, http.StatusOK, resp.StatusCode())
			assert.Equal(t, "application/json", resp.Header().Get("Content-Type"))
			assertContract(t, http.MethodGet, "/users", resp)

			var got []user.User
			require.NoError(t, json.Unmarshal(resp.Body(), &got))
			require.NotNil(t, got, "an empty table should give [] rather than null")
			assert.Len(t, got, tt.wantCount)
			if tt.wantCount > 0 {
				if diff := cmp.Diff(tt.users[:tt.wantCount], got); diff != "" {
					t.Errorf("GET /users mismatch (-want +got):\n%s", diff)
				}
			}
		})
	}
}

func TestGetUserByID(t *testing.T) {
	server, _ := setupTestRouter(t, withUsers(makeUsers(10)...))
	defer server.Close()

	tests := []struct {
		name     string
		path     string
		wantCode int
		wantUser *user.User
	}{
		{
			name:     "existing user",
			path:     "/users/7",
			wantCode: http.StatusOK,
			wantUser: &user.User{ID: 7, Name: "user 7", Email: "user7@example.com"},
		},
		{
			name:     "surrounding whitespace is trimmed",
			path:     "/users/%207%20",
			wantCode: http.StatusOK,
			wantUser: &user.User{ID: 7, Name: "user 7", Email: "user7@example.com"},
		},
		{name: "not a number", path: "/users/abc", wantCode: http.StatusBadRequest},
		{name: "negative", path: "/users/-1", wantCode: http.StatusBadRequest},
		{name: "missing row", path: "/users/999999", wantCode: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := resty.New().R().Get(server.URL + tt.path)
			require.NoError(t, err)

			assert.Equal(t, tt.wantCode, resp.StatusCode())
			assertContract(t, http.MethodGet, tt.path, resp)

			if tt.wantUser != nil {
				var got user.User
				require.NoError(t, json.Unmarshal(resp.Body(), &got))
				assert.Equal(t, *tt.wantUser, got)
				return
			}

			var errResp models.ErrorResponse
			require.NoError(t, json.Unmarshal(resp.Body(), &errResp))
			assert.NotEmpty(t, errResp.Error)
		})
	}

	t.Run("repeated requests are identical", func(t *testing.T) {
		first, err := resty.New().R().Get(server.URL + "/users/3")
		require.NoError(t, err)
		second, err := resty.New().R().Get(server.URL + "/users/3")
		require.NoError(t, err)

		assert.Equal(t, first.Body(), second.Body())
	})

	t.Run("the server survives bad input", func(t *testing.T) {
		_, err := resty.New().R().Get(server.URL + "/users/abc")
		require.NoError(t, err)

		resp, err := resty.New().R().Get(server.URL + "/users/1")
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode())
	})
}

func TestStoreUnavailable(t *testing.T) {
	db := new(mockstorage.StorageMock)
	dbErr := errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")
	db.On("ListUsers", mock.Anything, service.UsersListLimit).Return(nil, dbErr)
	db.On("GetUserByID", mock.Anything, int64(7)).Return(nil, false, dbErr)
	db.On("Ping", mock.Anything).Return(dbErr)

	server, _ := setupTestRouter(t, withMockStorage(db))
	defer server.Close()

	for _, path := range []string{"/users", "/users/7"} {
		resp, err := resty.New().R().Get(server.URL + path)
		require.NoError(t, err)

		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode(), path)
		assert.NotContains(t, string(resp.Body()), "5432", "internal details should not leak")
		assertContract(t, http.MethodGet, path, resp)
	}

	resp, err := resty.New().R().Get(server.URL + "/ping")
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode())

	db.AssertExpectations(t)
}

func TestRequestContextReachesStorage(t *testing.T) {
	db := new(mockstorage.StorageMock)
	db.On("GetUserByID", mock.MatchedBy(func(ctx context.Context) bool {
		return ctx.Value(auth.SubjectKey) == "operator"
	}), int64(1)).Return(&user.User{ID: 1, Name: "Alice"}, true, nil)

	key := []byte("router-test-key")
	_, r := setupTestRouter(t, withMockStorage(db), withSigningKey(key))

	token, err := auth.New("auth", key).BuildJWTString("operator", time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/users/1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	db.AssertExpectations(t)
}

func TestAuthentication(t *testing.T) {
	key := []byte("router-test-key")
	server, _ := setupTestRouter(t, withUsers(makeUsers(2)...), withSigningKey(key))
	defer server.Close()

	resp, err := resty.New().R().Get(server.URL + "/users")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode())

	resp, err = resty.New().R().Get(server.URL + "/")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode(), "the counter stays public")

	token, err := auth.New("auth", key).BuildJWTString("operator", time.Minute)
	require.NoError(t, err)

	resp, err = resty.New().R().SetAuthToken(token).Get(server.URL + "/users")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode())
}

func TestRecoveredPanicIsCounted(t *testing.T) {
	server, theRouter := setupTestRouter(t, withTrustedSubnet("127.0.0.0/8"), withMetrics(true))
	defer server.Close()

	theRouter.Get(`/panics`, func(http.ResponseWriter, *http.Request) {
		panic("handler failure")
	})

	resp, err := resty.New().R().Get(server.URL + "/panics")
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode())

	resp, err = resty.New().R().Get(server.URL + "/")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode())
	assert.Equal(t, "Request number: 1", resp.String())

	resp, err = resty.New().R().Get(server.URL + "/internal/stats")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())

	var stats models.InternalStatsResponse
	require.NoError(t, json.Unmarshal(resp.Body(), &stats))
	assert.Equal(t, int64(1), stats.Routes["/panics"])
	assert.Equal(t, int64(1), stats.Routes["/"])
}

func TestGetInternalStats(t *testing.T) {
	t.Run("trusted client", func(t *testing.T) {
		server, _ := setupTestRouter(t, withUsers(makeUsers(4)...), withTrustedSubnet("127.0.0.0/8"), withMetrics(true))
		defer server.Close()

		for i := 0; i < 2; i++ {
			_, err := resty.New().R().Get(server.URL + "/")
			require.NoError(t, err)
		}

		resp, err := resty.New().R().Get(server.URL + "/internal/stats")
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode())
		assertContract(t, http.MethodGet, "/internal/stats", resp)

		var stats models.InternalStatsResponse
		require.NoError(t, json.Unmarshal(resp.Body(), &stats))
		assert.Equal(t, int64(4), stats.Users)
		assert.Equal(t, uint64(2), stats.Requests)
		assert.Equal(t, int64(2), stats.Routes["/"])
	})

	t.Run("untrusted client", func(t *testing.T) {
		server, _ := setupTestRouter(t, withTrustedSubnet("10.0.0.0/8"))
		defer server.Close()

		resp, err := resty.New().R().Get(server.URL + "/internal/stats")
		require.NoError(t, err)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode())
	})

	t.Run("no subnet configured", func(t *testing.T) {
		server, _ := setupTestRouter(t)
		defer server.Close()

		resp, err := resty.New().R().Get(server.URL + "/internal/stats")
		require.NoError(t, err)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode())
	})
}

func TestGzipAndCORS(t *testing.T) {
	server, _ := setupTestRouter(t, withUsers(makeUsers(3)...))
	defer server.Close()

	// resty transparently decompresses gzip bodies
	resp, err := resty.New().R().
		SetHeader("Accept-Encoding", "gzip").
		SetHeader("Origin", "https://frontend.example").
		Get(server.URL + "/users")
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode())
	assert.Equal(t, "*", resp.Header().Get("Access-Control-Allow-Origin"))

	var got []user.User
	require.NoError(t, json.Unmarshal(resp.Body(), &got))
	assert.Len(t, got, 3)
}

func TestGetOpenAPI(t *testing.T) {
	server, _ := setupTestRouter(t)
	defer server.Close()

	resp, err := resty.New().R().Get(server.URL + "/openapi.yaml")
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode())
	assert.Equal(t, apispec.Raw(), resp.Body())
}

func TestMethodNotAllowed(t *testing.T) {
	server, _ := setupTestRouter(t)
	defer server.Close()

	resp, err := resty.New().R().Post(server.URL + "/users")
	require.NoError(t, err)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode())
}

func BenchmarkGetIndex(b *testing.B) {
	server, _ := setupTestRouter(nil)
	defer server.Close()

	client := &http.Client{}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		resp, err := client.Get(server.URL + "/")
		require.NoError(b, err)
		_, _ = io.Copy(io.Discard, resp.Body)
		require.NoError(b, resp.Body.Close())
	}
}
