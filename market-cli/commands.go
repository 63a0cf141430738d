package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gravitational/trace"
	"github.com/manifoldco/promptui"
	"github.com/olekukonko/tablewriter"

	"github.com/campusmarket/market-client/lib"
	"github.com/campusmarket/market-client/lib/logger"
	"github.com/campusmarket/market-client/market"
	"github.com/campusmarket/market-client/session"
)

const watchShutdownTimeout = 5 * time.Second

// VersionCmd prints the version
type VersionCmd struct{}

// Run prints the version
func (c *VersionCmd) Run(g *Globals) error {
	lib.PrintVersion(g.out(), appName, Version, Gitref)
	return nil
}

// LoginCmd signs the user in
type LoginCmd struct {
	// Email is the account email
	Email string `arg:"true" help:"Account email"`

	// Password is prompted for when empty
	Password string `help:"Account password, prompted for when omitted" env:"MARKET_PASSWORD"`
}

// Run signs the user in and stores the session
func (c *LoginCmd) Run(g *Globals) error {
	ctx := context.Background()

	password := c.Password
	if password == "" {
		var err error
		if password, err = promptPassword(); err != nil {
			return trace.Wrap(err)
		}
	}

	svc, _, err := g.service()
	if err != nil {
		return trace.Wrap(err)
	}
	user, err := svc.Login(ctx, c.Email, password)
	if err != nil {
		return trace.Wrap(err)
	}
	if user == nil {
		user = &session.User{Email: c.Email}
	}
	fmt.Fprintf(g.out(), "Signed in as %s\n", displayName(user))
	return nil
}

func promptPassword() (string, error) {
	prompt := promptui.Prompt{
		Label: "Password",
		Mask:  '*',
		Validate: func(input string) error {
			if input == "" {
				return trace.BadParameter("password must not be empty")
			}
			return nil
		},
	}
	password, err := prompt.Run()
	return password, trace.Wrap(err)
}

// LogoutCmd signs the user out
type LogoutCmd struct{}

// Run signs the user out
func (c *LogoutCmd) Run(g *Globals) error {
	ctx := context.Background()

	svc, _, err := g.service()
	if err != nil {
		return trace.Wrap(err)
	}
	// a session has to be restored to be revoked on the API
	if _, err := svc.Restore(ctx); err != nil && !trace.IsNotFound(err) {
		logger.Get(ctx).WithError(err).Debug("Failed to restore the session before signing out")
	}
	if err := svc.Logout(ctx); err != nil {
		return trace.Wrap(err)
	}
	fmt.Fprintln(g.out(), "Signed out")
	return nil
}

// MeCmd shows the signed-in user
type MeCmd struct{}

// Run shows the signed-in user
func (c *MeCmd) Run(g *Globals) error {
	ctx := context.Background()

	svc, _, err := g.signedIn(ctx)
	if err != nil {
		return trace.Wrap(err)
	}
	user, err := svc.Me(ctx)
	if err != nil {
		return trace.Wrap(err)
	}

	out := g.out()
	fmt.Fprintf(out, "Name:   %s\n", user.Name)
	fmt.Fprintf(out, "Email:  %s\n", user.Email)
	if user.Campus != "" {
		fmt.Fprintf(out, "Campus: %s\n", user.Campus)
	}
	return nil
}

// ListingsCmd browses listings
type ListingsCmd struct {
	Category string `help:"Only listings of this category"`
	Kind     string `help:"Only goods or services"`
	Search   string `help:"Full text search" short:"q"`
	Page     int    `help:"Page number" default:"1"`
	Limit    int    `help:"Listings per page" default:"20"`
}

// Run prints a page of listings as a table
func (c *ListingsCmd) Run(g *Globals) error {
	ctx := context.Background()

	svc, _, err := g.service()
	if err != nil {
		return trace.Wrap(err)
	}
	// listings are public, a stored session is used when there is one
	if _, err := svc.Restore(ctx); err != nil && !trace.IsNotFound(err) {
		return trace.Wrap(err)
	}

	page, err := svc.ListListings(ctx, market.ListingsQuery{
		Category: c.Category,
		Kind:     market.Kind(c.Kind),
		Search:   c.Search,
		Page:     c.Page,
		Limit:    c.Limit,
	})
	if err != nil {
		return trace.Wrap(err)
	}

	renderListings(g, page)
	return nil
}

func renderListings(g *Globals, page *market.ListingsPage) {
	out := g.out()
	if len(page.Listings) == 0 {
		fmt.Fprintln(out, "No listings found")
		return
	}

	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"ID", "Title", "Kind", "Category", "Price"})
	table.SetAutoWrapText(false)
	table.SetBorders(tablewriter.Border{Left: true, Top: false, Right: true, Bottom: false})
	table.SetCenterSeparator("|")
	table.SetAutoFormatHeaders(false)
	for _, listing := range page.Listings {
		table.Append([]string{listing.ID, listing.Title, string(listing.Kind), listing.Category, formatPrice(listing)})
	}
	table.Render()

	p := page.Pagination
	fmt.Fprintf(out, "Page %d, %d of %d listings\n", p.Page, len(page.Listings), p.Total)
}

// ListingCmd shows a listing
type ListingCmd struct {
	ID string `arg:"true" help:"Listing ID"`
}

// Run prints the listing details
func (c *ListingCmd) Run(g *Globals) error {
	ctx := context.Background()

	svc, _, err := g.service()
	if err != nil {
		return trace.Wrap(err)
	}
	if _, err := svc.Restore(ctx); err != nil && !trace.IsNotFound(err) {
		return trace.Wrap(err)
	}
	listing, err := svc.GetListing(ctx, c.ID)
	if err != nil {
		return trace.Wrap(err)
	}

	out := g.out()
	fmt.Fprintf(out, "%s\n", listing.Title)
	fmt.Fprintf(out, "Price:    %s\n", formatPrice(*listing))
	fmt.Fprintf(out, "Kind:     %s\n", listing.Kind)
	if listing.Category != "" {
		fmt.Fprintf(out, "Category: %s\n", listing.Category)
	}
	if !listing.CreatedAt.IsZero() {
		fmt.Fprintf(out, "Posted:   %s\n", listing.CreatedAt.Format(time.RFC1123))
	}
	if listing.Description != "" {
		fmt.Fprintf(out, "\n%s\n", listing.Description)
	}
	return nil
}

// WatchCmd keeps the session fresh
type WatchCmd struct{}

// Run refreshes the access token ahead of its expiry until SIGINT or SIGTERM
func (c *WatchCmd) Run(g *Globals) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, apiClient, err := g.signedIn(ctx)
	if err != nil {
		return trace.Wrap(err)
	}
	user, err := svc.Me(ctx)
	if err != nil {
		return trace.Wrap(err)
	}

	w := newWatcher(ctx, apiClient)
	go lib.ServeSignals(w, watchShutdownTimeout)

	fmt.Fprintf(g.out(), "Keeping the session of %s alive, press Ctrl+C to stop\n", displayName(user))
	<-w.Done()
	return nil
}

func displayName(user *session.User) string {
	if user.Name == "" {
		return user.Email
	}
	return fmt.Sprintf("%s <%s>", user.Name, user.Email)
}

func formatPrice(listing market.Listing) string {
	price := strconv.FormatFloat(listing.Price, 'f', 2, 64)
	if listing.Currency == "" {
		return price
	}
	return price + " " + listing.Currency
}
