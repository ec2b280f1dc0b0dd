package flowpoold

import "time"

type FlowpooldConfig struct {
	port     int
	database string
	loglevel string

	requeueInterval time.Duration
}

func (c *FlowpooldConfig) Port() int {
	return c.port
}

// Connection string for database.
func (c *FlowpooldConfig) Database() string {
	return c.database
}

func (c *FlowpooldConfig) LogLevel() string {
	return c.loglevel
}

// RequeueInterval is how often expired-lease runs are recovered.
func (c *FlowpooldConfig) RequeueInterval() time.Duration {
	return c.requeueInterval
}
