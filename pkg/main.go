package main

import (
	"os"

	"github.com/dashchat/grafana-dashchat-plugin/pkg/plugin"
	"github.com/grafana/grafana-plugin-sdk-go/backend"
	"github.com/grafana/grafana-plugin-sdk-go/backend/log"
)

func main() {
	// Create plugin
	p := plugin.NewPlugin()

	// Serve plugin
	if err := backend.Serve(backend.ServeOpts{CallResourceHandler: p}); err != nil {
		log.DefaultLogger.Error("Plugin exited with error", "error", err)
		os.Exit(1)
	}
}
