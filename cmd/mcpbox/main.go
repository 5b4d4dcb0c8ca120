// Command mcpbox is the gateway binary: it loads a configuration file,
// spawns the configured MCP children, optionally brings up the embedded
// OAuth authorization server, and serves the HTTP transport until a
// termination signal arrives.
package main

import (
	"fmt"
	"os"
)

// gatewayVersion is stamped at release time; the dev default is what ships
// when building from a working tree.
const gatewayVersion = "0.0.0-dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
