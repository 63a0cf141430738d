package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/alecthomas/kong"
	"github.com/gravitational/trace"

	"github.com/campusmarket/market-client/client"
	"github.com/campusmarket/market-client/lib"
	"github.com/campusmarket/market-client/lib/logger"
	"github.com/campusmarket/market-client/market"
	"github.com/campusmarket/market-client/session"
	"github.com/campusmarket/market-client/session/storage"
)

// APIConfig is the marketplace API endpoint configuration
type APIConfig struct {
	// URL is the API base URL
	URL string `help:"Marketplace API URL" default:"https://api.campusmarket.app/api/v1" env:"MARKET_API_URL" name:"url"`

	// Timeout is the per-request timeout
	Timeout time.Duration `help:"API request timeout" default:"10s" env:"MARKET_API_TIMEOUT" name:"api-timeout"`

	// Insecure skips server certificate verification
	Insecure bool `help:"Skip API certificate verification (development servers only)" env:"MARKET_API_INSECURE" name:"api-insecure"`
}

// StorageConfig is the durable session storage configuration
type StorageConfig struct {
	// StorageKind is the storage backend
	StorageKind string `help:"Session storage backend" enum:"file,diskv,redis,memory" default:"file" env:"MARKET_STORAGE_KIND"`

	// StoragePath is a file for the file backend and a directory for diskv
	StoragePath string `help:"Session storage file or directory" env:"MARKET_STORAGE_PATH"`

	// RedisAddr is the redis server address
	RedisAddr string `help:"Redis address for the redis backend" env:"MARKET_REDIS_ADDR"`

	// RedisPassword is the redis password
	RedisPassword string `help:"Redis password" env:"MARKET_REDIS_PASSWORD"`

	// RedisKey is the key the refresh token is stored under
	RedisKey string `help:"Redis key of the refresh token" env:"MARKET_REDIS_KEY"`
}

// LogConfig is the logging configuration
type LogConfig struct {
	// LogOutput is stderr, stdout or a file path
	LogOutput string `help:"Log output: stderr, stdout or a file path" default:"stderr" env:"MARKET_LOG_OUTPUT"`

	// LogSeverity is the minimal logged severity
	LogSeverity string `help:"Log severity" default:"info" env:"MARKET_LOG_SEVERITY"`
}

// Globals are the flags shared by every command
type Globals struct {
	// Config is the path to configuration file
	Config kong.ConfigFlag `help:"Path to TOML configuration file" optional:"true" type:"existingfile" env:"MARKET_CONFIG"`

	// Debug is a debug logging mode flag
	Debug bool `help:"Debug logging" short:"d"`

	APIConfig
	StorageConfig
	LogConfig

	stdout io.Writer `kong:"-"`
	stderr io.Writer `kong:"-"`
}

// CLI represents command structure
type CLI struct {
	Globals

	// Version is the version print command
	Version VersionCmd `cmd:"true" help:"Print version"`

	// Login is the sign in command
	Login LoginCmd `cmd:"true" help:"Sign in to the marketplace"`

	// Logout is the sign out command
	Logout LogoutCmd `cmd:"true" help:"Sign out and forget the stored session"`

	// Me is the profile command
	Me MeCmd `cmd:"true" help:"Show the signed-in user"`

	// Listings is the listings index command
	Listings ListingsCmd `cmd:"true" help:"Browse listings"`

	// Listing is the single listing command
	Listing ListingCmd `cmd:"true" help:"Show a listing"`

	// Watch is the session keep-alive command
	Watch WatchCmd `cmd:"true" help:"Keep the session fresh until interrupted"`
}

func (g *Globals) out() io.Writer {
	if g.stdout == nil {
		return os.Stdout
	}
	return g.stdout
}

func (g *Globals) errOut() io.Writer {
	if g.stderr == nil {
		return os.Stderr
	}
	return g.stderr
}

// storageConfig fills in the default location of the session under the user
// config directory.
func (g *Globals) storageConfig() (storage.Config, error) {
	conf := storage.Config{
		Kind:          g.StorageKind,
		Path:          g.StoragePath,
		RedisAddr:     g.RedisAddr,
		RedisPassword: g.RedisPassword,
		RedisKey:      g.RedisKey,
	}
	if conf.Path == "" && (conf.Kind == storage.KindFile || conf.Kind == storage.KindDiskv || conf.Kind == "") {
		dir, err := os.UserConfigDir()
		if err != nil {
			return conf, trace.Wrap(err, "failed to find the user config directory, pass --storage-path")
		}
		conf.Path = filepath.Join(dir, "campusmarket", "session.json")
		if conf.Kind == storage.KindDiskv {
			conf.Path = filepath.Join(dir, "campusmarket", "session")
		}
	}
	return conf, nil
}

func (g *Globals) logConfig() logger.Config {
	conf := logger.Config{Output: g.LogOutput, Severity: g.LogSeverity}
	if g.Debug {
		conf.Severity = "debug"
	}
	return conf
}

// service builds the marketplace service the commands talk to.
func (g *Globals) service() (*market.Service, *client.Client, error) {
	if err := logger.Setup(g.logConfig()); err != nil {
		return nil, nil, trace.Wrap(err)
	}

	storageConf, err := g.storageConfig()
	if err != nil {
		return nil, nil, trace.Wrap(err)
	}
	store, err := storage.FromConfig(storageConf)
	if err != nil {
		return nil, nil, trace.Wrap(err)
	}

	stderr := g.errOut()
	c, err := client.New(lib.APIConfig{
		URL:      g.URL,
		Timeout:  g.Timeout,
		Insecure: g.Insecure,
	}, client.Config{
		Session: session.New(),
		Storage: store,
		Notifier: client.NotifierFunc(func(_ context.Context, _ error) {
			fmt.Fprintln(stderr, client.SessionExpiredNotice)
		}),
	})
	if err != nil {
		return nil, nil, trace.Wrap(err)
	}
	return market.NewService(c), c, nil
}

// signedIn builds the service and restores the stored session.
func (g *Globals) signedIn(ctx context.Context) (*market.Service, *client.Client, error) {
	svc, c, err := g.service()
	if err != nil {
		return nil, nil, trace.Wrap(err)
	}
	if _, err := svc.Restore(ctx); err != nil {
		if trace.IsNotFound(err) {
			return nil, nil, trace.AccessDenied("not signed in, run `%s login` first", appName)
		}
		return nil, nil, trace.Wrap(err)
	}
	return svc, c, nil
}
