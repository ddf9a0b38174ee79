package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

/*
Runner executes one kind of backend job. Run reports step progress
through the report callback and returns the job's result payload. A
cancelled context must abort the run with the context's error.
*/
type Runner interface {
	Kind() string
	Run(ctx context.Context, payload json.RawMessage, report func(progress int, message string)) (json.RawMessage, error)
}

// step pauses between reported steps, honoring cancellation.
func step(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

/*
CommunityRebuildRunner simulates the knowledge-graph community rebuild
job: it walks the entity graph, detects communities and persists them.
StepDelay spaces the progress reports; zero runs the job immediately,
which is what the tests use.
*/
type CommunityRebuildRunner struct {
	StepDelay time.Duration
}

func (r *CommunityRebuildRunner) Kind() string { return "rebuild_communities" }

func (r *CommunityRebuildRunner) Run(ctx context.Context, payload json.RawMessage, report func(int, string)) (json.RawMessage, error) {
	var params struct {
		GroupID string `json:"group_id"`
	}
	// The payload is optional; a missing group id rebuilds everything.
	_ = json.Unmarshal(payload, &params)

	steps := []struct {
		progress int
		message  string
	}{
		{10, "loading entity graph"},
		{35, "scoring relations"},
		{70, "detecting communities"},
		{90, "persisting communities"},
	}

	for _, st := range steps {
		if err := step(ctx, r.StepDelay); err != nil {
			return nil, err
		}
		report(st.progress, st.message)
	}

	result := map[string]any{"communities_count": 12}
	if params.GroupID != "" {
		result["group_id"] = params.GroupID
	}
	return json.Marshal(result)
}

/*
MemoryIngestRunner simulates the memory ingestion job: chunk the
submitted content, extract entities and link the resulting memories
into the graph.
*/
type MemoryIngestRunner struct {
	StepDelay time.Duration
}

func (r *MemoryIngestRunner) Kind() string { return "ingest_memory" }

func (r *MemoryIngestRunner) Run(ctx context.Context, payload json.RawMessage, report func(int, string)) (json.RawMessage, error) {
	var params struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(payload, &params); err != nil || params.Content == "" {
		return nil, fmt.Errorf("ingest_memory requires a content field")
	}

	chunks := len(params.Content)/64 + 1

	steps := []struct {
		progress int
		message  string
	}{
		{15, fmt.Sprintf("chunking content into %d chunks", chunks)},
		{40, "extracting entities"},
		{75, "embedding chunks"},
		{95, "linking memories"},
	}

	for _, st := range steps {
		if err := step(ctx, r.StepDelay); err != nil {
			return nil, err
		}
		report(st.progress, st.message)
	}

	return json.Marshal(map[string]any{"memories_ingested": chunks})
}
