// ABOUTME: Charm KV driver for the local store with optional cloud sync between devices
// ABOUTME: Wraps charm kv with SSH key auth and maps badger misses to localstore.ErrNotFound
package charm

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/charm/client"
	"github.com/charmbracelet/charm/kv"
	"github.com/dgraph-io/badger/v3"

	"github.com/harper/om/internal/localstore"
)

// Config holds charm client configuration
type Config struct {
	Host     string
	DBName   string
	AutoSync bool
}

// DefaultHost is the public charm cloud
const DefaultHost = "cloud.charm.sh"

// Client wraps charm KV as a localstore.Store
type Client struct {
	kv     *kv.KV
	config *Config
	mu     sync.Mutex
}

var (
	_ localstore.Store  = (*Client)(nil)
	_ localstore.Lister = (*Client)(nil)
)

// NewClient opens the charm KV database named in cfg
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil || cfg.DBName == "" {
		return nil, fmt.Errorf("charm database name is required")
	}
	host := cfg.Host
	if host == "" {
		host = DefaultHost
	}
	// kv reads the host from the environment
	if err := os.Setenv("CHARM_HOST", host); err != nil {
		return nil, fmt.Errorf("failed to set charm host: %w", err)
	}

	db, err := kv.OpenWithDefaults(cfg.DBName)
	if err != nil {
		return nil, fmt.Errorf("failed to open charm kv: %w", err)
	}

	c := &Client{
		kv:     db,
		config: cfg,
	}

	// Pull remote data on startup
	if cfg.AutoSync {
		_ = db.Sync()
	}

	return c, nil
}

// Close closes the KV database
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.kv != nil {
		err := c.kv.Close()
		c.kv = nil
		return err
	}
	return nil
}

func (c *Client) syncIfEnabled() {
	if c.config.AutoSync {
		_ = c.kv.Sync()
	}
}

// ID returns the charm user ID, usable as a stable user id across linked devices
func (c *Client) ID() (string, error) {
	cc, err := client.NewClientWithDefaults()
	if err != nil {
		return "", fmt.Errorf("failed to create charm client: %w", err)
	}
	return cc.ID()
}

// Set stores a value with the given key
func (c *Client) Set(key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.kv == nil {
		return fmt.Errorf("charm kv is closed")
	}

	if err := c.kv.Set([]byte(key), value); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	c.syncIfEnabled()
	return nil
}

// Get retrieves a value by key
func (c *Client) Get(key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.kv == nil {
		return nil, fmt.Errorf("charm kv is closed")
	}

	data, err := c.kv.Get([]byte(key))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, localstore.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	if data == nil {
		return nil, localstore.ErrNotFound
	}
	return data, nil
}

// Delete removes a key
func (c *Client) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.kv == nil {
		return fmt.Errorf("charm kv is closed")
	}

	if err := c.kv.Delete([]byte(key)); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	c.syncIfEnabled()
	return nil
}

// Keys returns all keys with the given prefix
func (c *Client) Keys(prefix string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.kv == nil {
		return nil, fmt.Errorf("charm kv is closed")
	}

	keys, err := c.kv.Keys()
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}

	var result []string
	for _, key := range keys {
		keyStr := string(key)
		if strings.HasPrefix(keyStr, prefix) {
			result = append(result, keyStr)
		}
	}
	return result, nil
}

// Sync pulls and pushes the local database against the charm cloud
func (c *Client) Sync() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.kv == nil {
		return fmt.Errorf("charm kv is closed")
	}
	return c.kv.Sync()
}
