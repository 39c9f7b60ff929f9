package main

import (
	"context"

	"relay-ai/internal/adapter/gateway"
)

func newGateway(a *app) *gateway.Server {
	return gateway.NewServer(gateway.ServerDeps{
		Dispatcher:   a.dispatcher,
		Sessions:     a.sessions,
		Bus:          a.bus,
		DefaultAgent: a.start,
		Agents:       a.catalog.Agents.Names(),
		Profile:      a.catalog.Name,
		Welcome:      a.catalog.Welcome,
		RunConfig:    a.runConfig(),
		Logger:       a.log,
	}, a.cfg.Gateway)
}

// runServe serves the WebSocket gateway until ctx is cancelled.
func runServe(ctx context.Context, a *app) error {
	return newGateway(a).Start(ctx)
}
