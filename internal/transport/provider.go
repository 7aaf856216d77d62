package transport

// Network is the network acquisition half of the provider.
type Network interface {
	// RequestNetwork asks the provider to bring up (or keep up) a network
	// link. Status changes are announced with NetworkStatusChanged on tag.
	RequestNetwork(tag Tag) (Handle, error)

	// ReleaseNetwork drops the reservation.
	ReleaseNetwork(h Handle) error

	// NetworkStatus returns the current state of the reservation.
	NetworkStatus(h Handle) (NetworkStatus, error)
}

// Channels opens and closes channels.
type Channels interface {
	OpenChannel(p ChannelParams) (Handle, error)

	// CloseChannel releases the channel. Any queued readable data is
	// discarded and no further notifications are raised for its tag.
	CloseChannel(h Handle) error
}

// ConfigFetcher runs configuration fetches on a ChannelConfigFetch channel.
type ConfigFetcher interface {
	SendConfigFetchRequest(h Handle, keys []ConfigKey) error
	ReadConfigFetchResponse(h Handle) (ConfigFetchResponse, error)

	// ReadConfigItem copies item index into the channel's receive buffer.
	ReadConfigItem(h Handle, index int) (ConfigItem, error)
}

// Broker runs an MQTT session on a ChannelMQTT channel.
type Broker interface {
	RequestConnect(h Handle, req ConnectRequest) error
	RequestSubscribe(h Handle, req SubscribeRequest) error
	RequestUnsubscribe(h Handle, req UnsubscribeRequest) error

	// RequestPublish returns ErrRateLimited when too many publishes are in
	// flight.
	RequestPublish(h Handle, req PublishRequest) error
	RequestDisconnect(h Handle) error

	// NextReadableKind peeks at the head of the readable FIFO. It also
	// accepts config-fetch channels, whose only readable kind is
	// ReadableConfigResponse.
	NextReadableKind(h Handle) (ReadableKind, error)

	ReadConnectResponse(h Handle) (ConnectResponse, error)
	ReadSubscribeResponse(h Handle) (SubscribeResponse, error)
	ReadUnsubscribeResponse(h Handle) (UnsubscribeResponse, error)
	ReadPublishResponse(h Handle) (PublishResponse, error)
	ReadDisconnectResponse(h Handle) (DisconnectResponse, error)

	ReceiveMessage(h Handle) (Message, error)
	ReceiveLostMessageInfo(h Handle) (LostMessage, error)

	// AcknowledgeMessage releases the message with the given correlation id
	// back to the broker.
	AcknowledgeMessage(h Handle, correlationID uint32) error
}

// Provider is everything the orchestrator consumes from the transport.
type Provider interface {
	Network
	Channels
	ConfigFetcher
	Broker
}
