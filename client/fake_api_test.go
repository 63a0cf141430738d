package client

import (
	"net/http"
	"net/http/httptest"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/julienschmidt/httprouter"
	log "github.com/sirupsen/logrus"
)

// fakeAPI imitates the authentication behavior of the marketplace API.
type fakeAPI struct {
	srv *httptest.Server

	mu            sync.Mutex
	valid         map[string]bool   // access tokens accepted by protected routes
	expired       map[string]bool   // access tokens rejected as expired
	refreshTokens map[string]string // refresh token -> access token it is exchanged for

	// refreshGate, when set, holds refresh requests until it is closed.
	refreshGate chan struct{}
	// refreshHandler, when set, answers refresh requests instead of the default exchange.
	refreshHandler httprouter.Handle
	// onExpired, when set, runs before a protected route rejects an expired token.
	onExpired func()

	refreshCalls int32
	expiredHits  int32
	authHeaders  chan string
}

func newFakeAPI() *fakeAPI {
	router := httprouter.New()

	api := &fakeAPI{
		valid:         make(map[string]bool),
		expired:       make(map[string]bool),
		refreshTokens: make(map[string]string),
		authHeaders:   make(chan string, 100),
		srv:           httptest.NewServer(router),
	}

	router.GET("/whoami", func(rw http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		header := r.Header.Get("Authorization")
		api.authHeaders <- header
		writeJSON(rw, http.StatusOK, map[string]interface{}{
			"authorization": header,
			"requestId":     r.Header.Get(requestIDHeader),
		})
	})
	router.GET("/items", api.protected(func(rw http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		writeJSON(rw, http.StatusOK, map[string]interface{}{
			"data": map[string]string{"token": bearer(r)},
		})
	}))
	router.POST("/items", api.protected(func(rw http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var payload map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeJSON(rw, http.StatusBadRequest, map[string]string{"message": "Malformed body"})
			return
		}
		writeJSON(rw, http.StatusCreated, map[string]interface{}{"data": payload})
	}))
	router.GET("/dead", func(rw http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		writeJSON(rw, http.StatusInternalServerError, map[string]string{"message": RefreshTokenExpiredMessage})
	})
	router.GET("/broken", func(rw http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		rw.WriteHeader(http.StatusBadGateway)
		_, err := rw.Write([]byte("<html>bad gateway</html>"))
		fatalIf(err)
	})
	router.GET("/missing", func(rw http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		writeJSON(rw, http.StatusNotFound, map[string]interface{}{
			"message": "Listing not found",
			"code":    "LISTING_NOT_FOUND",
			"errors":  map[string]string{"id": "unknown listing"},
		})
	})
	router.GET("/garbled", func(rw http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		rw.Header().Add("Content-Type", "application/json")
		rw.WriteHeader(http.StatusOK)
		_, err := rw.Write([]byte(`{"data": {"token": `))
		fatalIf(err)
	})
	router.GET("/hangup", func(rw http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		hangup(rw)
	})
	router.POST(RefreshTokenPath, func(rw http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		atomic.AddInt32(&api.refreshCalls, 1)

		api.mu.Lock()
		gate, handler := api.refreshGate, api.refreshHandler
		api.mu.Unlock()
		if gate != nil {
			<-gate
		}
		if handler != nil {
			handler(rw, r, ps)
			return
		}

		var payload refreshRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeJSON(rw, http.StatusBadRequest, map[string]string{"message": "Malformed body"})
			return
		}
		api.mu.Lock()
		accessToken, ok := api.refreshTokens[payload.RefreshToken]
		if ok {
			api.valid[accessToken] = true
		}
		api.mu.Unlock()
		if !ok {
			writeJSON(rw, http.StatusUnauthorized, map[string]string{"message": RefreshTokenExpiredMessage})
			return
		}
		writeJSON(rw, http.StatusOK, map[string]interface{}{
			"data": map[string]string{"accessToken": accessToken},
		})
	})

	return api
}

func (api *fakeAPI) protected(handle httprouter.Handle) httprouter.Handle {
	return func(rw http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		token := bearer(r)

		api.mu.Lock()
		valid, expired, onExpired := api.valid[token], api.expired[token], api.onExpired
		api.mu.Unlock()

		switch {
		case token == "":
			writeJSON(rw, http.StatusUnauthorized, map[string]string{"message": "Unauthorized: No token provided"})
		case expired:
			atomic.AddInt32(&api.expiredHits, 1)
			if onExpired != nil {
				onExpired()
			}
			writeJSON(rw, http.StatusUnauthorized, map[string]string{"message": TokenExpiredMessage})
		case !valid:
			writeJSON(rw, http.StatusUnauthorized, map[string]string{"message": "Unauthorized: Invalid token"})
		default:
			handle(rw, r, ps)
		}
	}
}

func (api *fakeAPI) URL() string {
	return api.srv.URL
}

func (api *fakeAPI) Close() {
	api.srv.Close()
}

func (api *fakeAPI) accept(token string) {
	api.mu.Lock()
	defer api.mu.Unlock()
	api.valid[token] = true
	delete(api.expired, token)
}

func (api *fakeAPI) expire(token string) {
	api.mu.Lock()
	defer api.mu.Unlock()
	api.expired[token] = true
	delete(api.valid, token)
}

func (api *fakeAPI) issue(refreshToken, accessToken string) {
	api.mu.Lock()
	defer api.mu.Unlock()
	api.refreshTokens[refreshToken] = accessToken
}

func (api *fakeAPI) holdRefresh() chan struct{} {
	api.mu.Lock()
	defer api.mu.Unlock()
	api.refreshGate = make(chan struct{})
	return api.refreshGate
}

func (api *fakeAPI) handleRefresh(handle httprouter.Handle) {
	api.mu.Lock()
	defer api.mu.Unlock()
	api.refreshHandler = handle
}

func (api *fakeAPI) beforeExpired(fn func()) {
	api.mu.Lock()
	defer api.mu.Unlock()
	api.onExpired = fn
}

func (api *fakeAPI) RefreshCalls() int {
	return int(atomic.LoadInt32(&api.refreshCalls))
}

func (api *fakeAPI) ExpiredHits() int {
	return int(atomic.LoadInt32(&api.expiredHits))
}

func bearer(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func writeJSON(rw http.ResponseWriter, status int, body interface{}) {
	rw.Header().Add("Content-Type", "application/json")
	rw.WriteHeader(status)
	err := json.NewEncoder(rw).Encode(body)
	fatalIf(err)
}

// hangup drops the connection without answering.
func hangup(rw http.ResponseWriter) {
	conn, _, err := rw.(http.Hijacker).Hijack()
	fatalIf(err)
	fatalIf(conn.Close())
}

func fatalIf(err error) {
	if err != nil {
		log.Fatalf("%v at %v", err, string(debug.Stack()))
	}
}
