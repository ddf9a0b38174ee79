package cmd

import (
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/graphmind/taskstream/pkg/service"
)

var (
	addrFlag string

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the reference job server",
		Long:  longServe,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr := addrFlag
			if addr == "" {
				addr = viper.GetString("server.addr")
			}

			srv := service.NewDefaultServer()
			log.Info("job server listening", "addr", addr)
			return srv.Listen(addr)
		},
	}
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&addrFlag, "addr", "a", "", "Address to serve on")
}

var longServe = `
Run the reference job server with the built-in runners.

Endpoints:
  POST /jobs/:kind?background=true   submit a job
  GET  /tasks/:id                    inspect a task
  GET  /tasks/:id/events             per-task SSE stream
  POST /tasks/:id/cancel             request cancellation
  GET  /metrics                      Prometheus metrics

Examples:
  taskstream serve --addr :3210
`
