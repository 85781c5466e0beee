package storage

import (
	"crypto/tls"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/desertthunder/katelyatv/internal/shared"
	"github.com/redis/go-redis/v9"
)

// NewClient builds the connection handle for a key-value backend.
//
// Both URL and token are required; envPrefix ("KVROCKS", "REDIS") only names the missing
// variables in the error. Accepted URL forms:
//   - redis://[user@]host:port[/db] and rediss:// (TLS)
//   - http(s)://host:port, as handed out by hosted providers; https enables TLS
//   - bare host:port
//
// The token is sent as the AUTH password. The handle is safe for concurrent use and is meant
// to be created once per process and passed to every adapter that needs it.
func NewClient(cfg shared.BackendConfig, envPrefix string) (*redis.Client, error) {
	if cfg.URL == "" || cfg.Token == "" {
		return nil, fmt.Errorf("%w: %s_URL and %s_TOKEN must both be set", shared.ErrMissingConfig, envPrefix, envPrefix)
	}

	opts, err := clientOptions(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s_URL: %v", shared.ErrInvalidConfig, envPrefix, err)
	}
	opts.Password = cfg.Token
	// Retries belong to the adapters' retry.Do; go-redis must not add its own on top.
	opts.MaxRetries = -1
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 5 * time.Second
	opts.WriteTimeout = 5 * time.Second

	return redis.NewClient(opts), nil
}

func clientOptions(raw string) (*redis.Options, error) {
	switch {
	case strings.HasPrefix(raw, "redis://"), strings.HasPrefix(raw, "rediss://"):
		return redis.ParseURL(raw)

	case strings.HasPrefix(raw, "http://"), strings.HasPrefix(raw, "https://"):
		u, err := url.Parse(raw)
		if err != nil {
			return nil, err
		}
		if u.Host == "" {
			return nil, fmt.Errorf("missing host in %q", raw)
		}
		opts := &redis.Options{Addr: u.Host}
		if u.Port() == "" {
			opts.Addr = u.Hostname() + ":6379"
		}
		if u.Scheme == "https" {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12, ServerName: u.Hostname()}
		}
		return opts, nil

	case strings.Contains(raw, "://"):
		return nil, fmt.Errorf("unsupported scheme in %q", raw)

	default:
		if !strings.Contains(raw, ":") {
			return nil, fmt.Errorf("expected host:port, got %q", raw)
		}
		return &redis.Options{Addr: raw}, nil
	}
}
