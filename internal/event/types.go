package event

// TopologyLoadedData is the data for topology.loaded events.
type TopologyLoadedData struct {
	Path     string   `json:"path"`
	Channels []string `json:"channels"`
}

// TopologyChangedData is the data for topology.changed events.
type TopologyChangedData struct {
	Path string `json:"path"`
	Op   string `json:"op"`
}

// ChannelFiredData is the data for channel.fired events.
type ChannelFiredData struct {
	Channel    string `json:"channel"`
	Payload    string `json:"payload"`
	Deliveries int    `json:"deliveries"`
	Error      string `json:"error,omitempty"`
}

// ListenerFailedData is the data for listener.failed events.
type ListenerFailedData struct {
	Channel  string `json:"channel"`
	Listener string `json:"listener"`
	Error    string `json:"error"`
}
