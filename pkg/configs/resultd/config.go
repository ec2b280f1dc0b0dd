package resultd

import "time"

type ResultdConfig struct {
	upstream string
	serve    *ServeConfig
	store    *StoreConfig

	backoff time.Duration
}

// Upstream is the result socket to listen on, like
// "ws://lse-host:8765/results".
func (c *ResultdConfig) Upstream() string {
	return c.upstream
}

func (c *ResultdConfig) Serve() *ServeConfig {
	return c.serve
}

func (c *ResultdConfig) Store() *StoreConfig {
	return c.store
}

// Backoff between reconnect attempts to the upstream.
func (c *ResultdConfig) Backoff() time.Duration {
	return c.backoff
}

// Configuration of the republishing WebSocket server.
type ServeConfig struct {
	port int
	path string
}

func (c *ServeConfig) Port() int {
	return c.port
}

func (c *ServeConfig) Path() string {
	return c.path
}

// Configuration of the array store connection.
type StoreConfig struct {
	url    string
	apiKey string
}

func (c *StoreConfig) URL() string {
	return c.url
}

func (c *StoreConfig) APIKey() string {
	return c.apiKey
}
