// Command profilex aggregates a person's public profile from a social
// site and a code host.
//
// Usage:
//
//	profilex extract --name "Ada Lovelace" --username ada --profile-url https://www.linkedin.com/in/ada
//	profilex serve --config profilex.yaml
//	profilex mcp
//	profilex history list
//	profilex history show run_0193...
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/hazyhaar/profilex/cmd/profilex/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	commands.ExecuteContext(ctx)
}
