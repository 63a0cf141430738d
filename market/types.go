package market

import (
	"time"

	"github.com/gravitational/trace"

	"github.com/campusmarket/market-client/session"
)

// Kind tells goods from services.
type Kind string

const (
	KindGoods    Kind = "goods"
	KindServices Kind = "services"
)

func (k Kind) check() error {
	switch k {
	case "", KindGoods, KindServices:
		return nil
	default:
		return trace.BadParameter("unknown listing kind %q", k)
	}
}

// Listing is an item or a service offered on the marketplace.
type Listing struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Price       float64   `json:"price"`
	Currency    string    `json:"currency,omitempty"`
	Category    string    `json:"category,omitempty"`
	Kind        Kind      `json:"kind"`
	SellerID    string    `json:"sellerId,omitempty"`
	Images      []string  `json:"images,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ListingInput is the body of a new listing.
type ListingInput struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Price       float64  `json:"price"`
	Category    string   `json:"category,omitempty"`
	Kind        Kind     `json:"kind"`
	Images      []string `json:"images,omitempty"`
}

func (in *ListingInput) CheckAndSetDefaults() error {
	if in.Title == "" {
		return trace.BadParameter("missing required value Title")
	}
	if in.Price < 0 {
		return trace.BadParameter("price must not be negative")
	}
	if in.Kind == "" {
		in.Kind = KindGoods
	}
	return trace.Wrap(in.Kind.check())
}

// ListingsQuery filters and pages the listings index.
type ListingsQuery struct {
	Category string `url:"category,omitempty"`
	Kind     Kind   `url:"kind,omitempty"`
	Search   string `url:"q,omitempty"`
	Page     int    `url:"page,omitempty"`
	Limit    int    `url:"limit,omitempty"`
}

func (q *ListingsQuery) CheckAndSetDefaults() error {
	if q.Page < 0 || q.Limit < 0 {
		return trace.BadParameter("page and limit must not be negative")
	}
	return trace.Wrap(q.Kind.check())
}

// Pagination describes the page of an index response.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

// ListingsPage is one page of the listings index.
type ListingsPage struct {
	Listings   []Listing  `json:"data"`
	Pagination Pagination `json:"meta"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Data struct {
		AccessToken  string        `json:"accessToken"`
		RefreshToken string        `json:"refreshToken"`
		User         *session.User `json:"user"`
	} `json:"data"`
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken,omitempty"`
}

type userResponse struct {
	Data *session.User `json:"data"`
}

type listingResponse struct {
	Data *Listing `json:"data"`
}
