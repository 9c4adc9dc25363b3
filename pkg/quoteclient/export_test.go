package quoteclient

// PendingCount exposes the size of the correlation table to tests.
func (c *Client) PendingCount() int { return c.pending.len() }

// Defaults returns o as New would complete it.
func (o Options) Defaults() Options {
	o.withDefaults()
	return o
}
