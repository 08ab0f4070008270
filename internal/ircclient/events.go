package ircclient

// Events holds the callbacks the client dispatches into (spec §4.3). All
// callbacks may be called concurrently with each other only in the sense
// that multiple Client instances share workers; a single Client's events
// are always delivered from its own read loop, in arrival order.
type Events struct {
	OnConnect         func(c *Client)
	OnServerMessage   func(c *Client, text string)
	OnJoinChannel     func(c *Client, channel, nickname string)
	OnPartChannel     func(c *Client, channel, nickname string)
	OnChannelMessage  func(c *Client, channel, nickname, text string)
	OnChannelNotice   func(c *Client, channel, nickname, text string) // channel == "" for server notices
	OnPersonalMessage func(c *Client, nickname, text string)
}
