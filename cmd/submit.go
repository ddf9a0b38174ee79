package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/graphmind/taskstream/pkg/client"
	"github.com/graphmind/taskstream/pkg/lifecycle"
	"github.com/graphmind/taskstream/pkg/sse"
	"github.com/graphmind/taskstream/pkg/task"
	"github.com/graphmind/taskstream/pkg/ui"
)

var (
	kindFlag       string
	payloadFlag    string
	backgroundFlag bool
	baseURLFlag    string

	submitCmd = &cobra.Command{
		Use:   "submit",
		Short: "Submit a job and follow it to completion",
		Long:  longSubmit,
		RunE:  runSubmit,
	}
)

func init() {
	rootCmd.AddCommand(submitCmd)

	submitCmd.Flags().StringVarP(&kindFlag, "kind", "k", "rebuild_communities", "Job kind to submit")
	submitCmd.Flags().StringVarP(&payloadFlag, "payload", "p", "{}", "Job payload as JSON")
	submitCmd.Flags().BoolVarP(&backgroundFlag, "background", "b", true, "Request background execution")
	submitCmd.Flags().StringVar(&baseURLFlag, "base-url", "", "Backend base URL")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	baseURL := baseURLFlag
	if baseURL == "" {
		baseURL = viper.GetString("client.base_url")
	}
	idleTimeout := viper.GetDuration("client.idle_timeout")

	var payload json.RawMessage
	if err := json.Unmarshal([]byte(payloadFlag), &payload); err != nil {
		return fmt.Errorf("payload is not valid JSON: %w", err)
	}

	done := make(chan task.Task, 1)

	controller, err := lifecycle.New(lifecycle.Config{
		Submitter: client.NewSubmitter(baseURL),
		OpenStream: func(taskID string) lifecycle.Stream {
			return sse.NewStreamClient(baseURL, sse.WithIdleTimeout(idleTimeout))
		},
	})
	if err != nil {
		return err
	}

	controller.Store().Observe(func(snap task.Task) {
		if snap.Terminal() {
			select {
			case done <- snap:
			default:
			}
			return
		}
		cmd.Println(ui.ProgressLine(snap))
	})

	if err := controller.Start(cmd.Context(), kindFlag, payload, backgroundFlag); err != nil {
		return err
	}

	var final task.Task
	if snap, ok := controller.Snapshot(); ok && snap.Terminal() {
		final = snap
	} else {
		select {
		case final = <-done:
		case <-cmd.Context().Done():
			_ = controller.Cancel(context.Background())
			return cmd.Context().Err()
		}
	}

	cmd.Println(ui.Report(final))
	if final.Status != task.StatusCompleted {
		return fmt.Errorf("task %s", final.Status)
	}
	return nil
}

var longSubmit = `
Submit a job to the backend and follow its event stream until it
reaches a terminal status. Exits non-zero when the task fails.

Examples:
  taskstream submit --kind rebuild_communities
  taskstream submit --kind ingest_memory --payload '{"content":"..."}'
  taskstream submit --kind rebuild_communities --background=false
`
