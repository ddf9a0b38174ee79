package ui

import (
	"fmt"
	"strings"

	"github.com/graphmind/taskstream/pkg/task"
)

const barWidth = 20

/*
ProgressLine renders one status line for a tracked task, with a progress
bar when the task reports step progress.
*/
func ProgressLine(snap task.Task) string {
	bar := ""
	if snap.HasProgress {
		filled := snap.Progress * barWidth / 100
		bar = fmt.Sprintf(" [%s%s] %3d%%",
			strings.Repeat("█", filled),
			strings.Repeat("░", barWidth-filled),
			snap.Progress,
		)
	}
	return fmt.Sprintf("%s %s%s %s",
		labelStyle.Render(string(snap.Status)),
		valueStyle.Render(snap.Kind),
		bar,
		valueStyle.Render(snap.Message),
	)
}

/*
Report renders the final card for a terminal task: kind, status, and
the result payload or the failure reason.
*/
func Report(snap task.Task) string {
	var sb strings.Builder

	statusStyle := okStyle
	if snap.Status != task.StatusCompleted {
		statusStyle = errorStyle
	}

	sb.WriteString(labelStyle.Render("Task: ") + valueStyle.Render(snap.Kind))
	if snap.ID != "" {
		sb.WriteString(valueStyle.Render(" (" + snap.ID + ")"))
	}
	sb.WriteString("\n" + labelStyle.Render("Status: ") + statusStyle.Render(string(snap.Status)))

	if len(snap.Result) > 0 {
		sb.WriteString("\n" + labelStyle.Render("Result: ") + valueStyle.Render(string(snap.Result)))
	}
	if snap.Error != "" {
		sb.WriteString("\n" + labelStyle.Render("Error: ") + errorStyle.Render(snap.Error))
	}

	return sb.String()
}
