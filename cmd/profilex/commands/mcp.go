package commands

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/profilex/mcptool"
)

func newMCPCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the profilex tools over MCP on stdio.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, closeFn, err := a.newService(true)
			if err != nil {
				return err
			}
			defer closeFn()

			srv := mcp.NewServer(&mcp.Implementation{Name: "profilex", Version: version}, nil)
			mcptool.Register(srv, svc)
			return srv.Run(cmd.Context(), &mcp.StdioTransport{})
		},
	}
}
