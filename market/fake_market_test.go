package market

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/julienschmidt/httprouter"
	log "github.com/sirupsen/logrus"

	"github.com/campusmarket/market-client/session"
)

const (
	testEmail    = "ada@campus.example"
	testPassword = "correct horse"
)

var testUser = session.User{
	ID:     "user-1",
	Email:  testEmail,
	Name:   "Ada",
	Campus: "North",
}

type FakeMarket struct {
	srv *httptest.Server

	mu            sync.Mutex
	accessTokens  map[string]bool
	refreshTokens map[string]bool
	listings      []Listing
	issued        int

	listingQueries chan url.Values
	logouts        chan string
	refreshCalls   int32
}

func NewFakeMarket() *FakeMarket {
	router := httprouter.New()

	market := &FakeMarket{
		accessTokens:   make(map[string]bool),
		refreshTokens:  make(map[string]bool),
		listingQueries: make(chan url.Values, 20),
		logouts:        make(chan string, 20),
		srv:            httptest.NewServer(router),
	}

	router.POST("/api/v1/auth/login", func(rw http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var payload loginRequest
		err := json.NewDecoder(r.Body).Decode(&payload)
		fatalIf(err)

		if payload.Email != testEmail || payload.Password != testPassword {
			writeJSON(rw, http.StatusUnauthorized, map[string]string{"message": "Invalid email or password"})
			return
		}
		accessToken, refreshToken := market.issue()
		writeJSON(rw, http.StatusOK, map[string]interface{}{
			"data": map[string]interface{}{
				"accessToken":  accessToken,
				"refreshToken": refreshToken,
				"user":         testUser,
			},
		})
	})
	router.POST("/api/v1/auth/refresh-token", func(rw http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		atomic.AddInt32(&market.refreshCalls, 1)

		var payload struct {
			RefreshToken string `json:"refreshToken"`
		}
		err := json.NewDecoder(r.Body).Decode(&payload)
		fatalIf(err)

		market.mu.Lock()
		ok := market.refreshTokens[payload.RefreshToken]
		market.mu.Unlock()
		if !ok {
			writeJSON(rw, http.StatusUnauthorized, map[string]string{"message": "Refresh token expired"})
			return
		}
		accessToken, _ := market.issue()
		writeJSON(rw, http.StatusOK, map[string]interface{}{
			"data": map[string]string{"accessToken": accessToken},
		})
	})
	router.POST("/api/v1/auth/logout", market.protected(func(rw http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var payload logoutRequest
		err := json.NewDecoder(r.Body).Decode(&payload)
		fatalIf(err)

		market.mu.Lock()
		delete(market.refreshTokens, payload.RefreshToken)
		market.mu.Unlock()
		market.logouts <- payload.RefreshToken

		writeJSON(rw, http.StatusOK, map[string]bool{"success": true})
	}))
	router.GET("/api/v1/users/me", market.protected(func(rw http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		writeJSON(rw, http.StatusOK, map[string]interface{}{"data": testUser})
	}))
	router.GET("/api/v1/listings", func(rw http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		query := r.URL.Query()
		market.listingQueries <- query

		market.mu.Lock()
		var listings []Listing
		for _, listing := range market.listings {
			if kind := query.Get("kind"); kind != "" && string(listing.Kind) != kind {
				continue
			}
			if category := query.Get("category"); category != "" && listing.Category != category {
				continue
			}
			if q := query.Get("q"); q != "" && !strings.Contains(strings.ToLower(listing.Title), strings.ToLower(q)) {
				continue
			}
			listings = append(listings, listing)
		}
		market.mu.Unlock()

		writeJSON(rw, http.StatusOK, map[string]interface{}{
			"data": listings,
			"meta": Pagination{Page: 1, Limit: 20, Total: len(listings)},
		})
	})
	router.GET("/api/v1/listings/:id", func(rw http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		listing, ok := market.GetListing(ps.ByName("id"))
		if !ok {
			writeJSON(rw, http.StatusNotFound, map[string]string{"message": "Listing not found"})
			return
		}
		writeJSON(rw, http.StatusOK, map[string]interface{}{"data": listing})
	})
	router.POST("/api/v1/listings", market.protected(func(rw http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var input ListingInput
		err := json.NewDecoder(r.Body).Decode(&input)
		fatalIf(err)

		if input.Title == "" {
			writeJSON(rw, http.StatusUnprocessableEntity, map[string]interface{}{
				"message": "Validation failed",
				"errors":  map[string]string{"title": "required"},
			})
			return
		}

		market.mu.Lock()
		listing := Listing{
			ID:          fmt.Sprintf("listing-%d", len(market.listings)+1),
			Title:       input.Title,
			Description: input.Description,
			Price:       input.Price,
			Currency:    "USD",
			Category:    input.Category,
			Kind:        input.Kind,
			SellerID:    testUser.ID,
			Images:      input.Images,
			CreatedAt:   time.Date(2024, time.May, 1, 10, 0, 0, 0, time.UTC),
		}
		market.listings = append(market.listings, listing)
		market.mu.Unlock()

		writeJSON(rw, http.StatusCreated, map[string]interface{}{"data": listing})
	}))

	return market
}

func (m *FakeMarket) URL() string {
	return m.srv.URL + "/api/v1"
}

func (m *FakeMarket) Close() {
	m.srv.Close()
}

func (m *FakeMarket) issue() (string, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.issued++
	accessToken := fmt.Sprintf("access-%d", m.issued)
	refreshToken := fmt.Sprintf("refresh-%d", m.issued)
	m.accessTokens[accessToken] = true
	m.refreshTokens[refreshToken] = true
	return accessToken, refreshToken
}

// ExpireAccessTokens makes every issued access token expired.
func (m *FakeMarket) ExpireAccessTokens() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for token := range m.accessTokens {
		m.accessTokens[token] = false
	}
}

func (m *FakeMarket) StoreListing(listing Listing) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listings = append(m.listings, listing)
}

func (m *FakeMarket) GetListing(id string) (Listing, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, listing := range m.listings {
		if listing.ID == id {
			return listing, true
		}
	}
	return Listing{}, false
}

func (m *FakeMarket) RefreshCalls() int {
	return int(atomic.LoadInt32(&m.refreshCalls))
}

func (m *FakeMarket) protected(handle httprouter.Handle) httprouter.Handle {
	return func(rw http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

		m.mu.Lock()
		valid, known := m.accessTokens[token]
		m.mu.Unlock()

		switch {
		case !known:
			writeJSON(rw, http.StatusUnauthorized, map[string]string{"message": "Unauthorized: Invalid token"})
		case !valid:
			writeJSON(rw, http.StatusUnauthorized, map[string]string{"message": "Unauthorized: Token has expired"})
		default:
			handle(rw, r, ps)
		}
	}
}

func writeJSON(rw http.ResponseWriter, status int, body interface{}) {
	rw.Header().Add("Content-Type", "application/json")
	rw.WriteHeader(status)
	err := json.NewEncoder(rw).Encode(body)
	fatalIf(err)
}

func fatalIf(err error) {
	if err != nil {
		log.Fatalf("%v at %v", err, string(debug.Stack()))
	}
}
