package arrayd

type ArraydConfig struct {
	port     int
	root     string
	apiKey   string
	loglevel string
}

func (c *ArraydConfig) Port() int {
	return c.port
}

// Root is the filesystem directory holding the node tree.
func (c *ArraydConfig) Root() string {
	return c.root
}

// APIKey gates every request when set. Empty means open.
func (c *ArraydConfig) APIKey() string {
	return c.apiKey
}

func (c *ArraydConfig) LogLevel() string {
	return c.loglevel
}
