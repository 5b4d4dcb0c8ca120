package main

import (
	"context"

	"github.com/kandobyte/mcpbox/pkg/config"
	"github.com/kandobyte/mcpbox/pkg/log"
	"github.com/kandobyte/mcpbox/pkg/multiplexer"
)

// watchAndReconcile re-loads configPath on every change event and brings
// the multiplexer's running children in line with the new mcpServers map.
// A bad edit is logged and ignored rather than aborting the gateway.
func watchAndReconcile(ctx context.Context, watcher *config.Watcher, configPath string, mux *multiplexer.Multiplexer) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-watcher.Events:
			cfg, err := config.Load(configPath)
			if err != nil {
				log.Warnf("config watch: reload failed, keeping previous configuration: %v", err)
				continue
			}
			log.Logf("config watch: reconciling mcpServers")
			mux.Reconcile(cfg.ChildSpecs())
		}
	}
}
