package hubconn

// HubConnectionBuilder assembles a HubConnection from a URL and a set of
// HubConnectionOptions (C12): it wires an HttpConnection factory (C2),
// wraps it in a ReconnectableConnection (C3) when automatic reconnect is
// configured, and hands the result to a new HubConnection (C6) as its
// transportConnection.
type HubConnectionBuilder struct {
	opts hubConnectionOptions
}

// NewHubConnectionBuilder starts building a connection to url.
func NewHubConnectionBuilder(url string) *HubConnectionBuilder {
	return &HubConnectionBuilder{opts: defaultHubConnectionOptions(url)}
}

// WithOptions applies additional HubConnectionOptions, returning the builder
// for chaining.
func (b *HubConnectionBuilder) WithOptions(opts ...HubConnectionOption) *HubConnectionBuilder {
	for _, o := range opts {
		o.apply(&b.opts)
	}
	return b
}

// Build constructs the HubConnection. delegate receives the hub-level
// lifecycle events (HubConnectionDidOpen/DidClose/WillReconnect/DidReconnect).
func (b *HubConnectionBuilder) Build(delegate HubConnectionDelegate) *HubConnection {
	opts := b.opts

	httpOpts := HttpConnectionOptions{
		SkipNegotiation:                opts.skipNegotiation,
		TransportFactory:               opts.transportFactory,
		AccessTokenProvider:            opts.accessTokenProvider,
		Headers:                        opts.headers,
		HTTPClientFactory:              opts.httpClientFactory,
		MaximumWebsocketMessageSize:    opts.maxMessageSize,
		AuthenticationChallengeHandler: opts.tlsChallengeHandler,
		Executor:                       opts.executor,
		Logger:                         opts.logger,
	}

	// hub is built with a nil transportConnection first since hub itself
	// must be passed as the delegate of whichever connection layer gets
	// constructed next (HubConnection implements both HttpConnectionDelegate
	// and the extra ReconnectableConnectionDelegate events).
	hub := NewHubConnection(nil, delegate, HubConnectionOptions{
		Protocol:          opts.protocol,
		KeepAliveInterval: opts.keepAliveInterval,
		Executor:          opts.executor,
		Logger:            opts.logger,
	})

	if opts.reconnectPolicy != nil {
		factory := func(d HttpConnectionDelegate) *HttpConnection {
			return NewHttpConnection(opts.url, httpOpts, d)
		}
		hub.conn = NewReconnectableConnection(factory, hub, ReconnectableConnectionOptions{
			Policy:   opts.reconnectPolicy,
			Logger:   opts.logger,
			Executor: opts.executor,
		})
		return hub
	}

	hub.conn = NewHttpConnection(opts.url, httpOpts, hub)
	return hub
}
