package coord

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jaakkos/switchboard/internal/app"
	"github.com/jaakkos/switchboard/internal/pipeline"
)

// registerRunPipeline registers the run_pipeline tool.
func registerRunPipeline(s *server.MCPServer, coord *app.Coordinator, logger *log.Logger) {
	register(s, coord, logger,
		mcp.NewTool("run_pipeline",
			mcp.WithDescription("Run a sequence of agent tasks in one terminal, each step fed the previous context. Progress lands in get_pipeline."),
			mcp.WithString("directory", mcp.Required(), mcp.Description("Project directory the pipeline runs in")),
			mcp.WithArray("tasks", mcp.Required(), mcp.Description("Ordered steps: objects with name, prompt and optional model, agent")),
			mcp.WithString("pipeline_id", mcp.Description("Explicit pipeline id (default: generated P<millis>)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (string, error) {
			args := req.GetArguments()
			dir, err := requireString(args, "directory")
			if err != nil {
				return "", err
			}
			steps, err := parseSteps(args)
			if err != nil {
				return "", err
			}
			pipelineID, _ := args["pipeline_id"].(string)
			res, err := coord.Pipelines().Run(pipeline.RunRequest{
				Directory:  dir,
				PipelineID: pipelineID,
				Steps:      steps,
			})
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Pipeline %s started in %s (%d steps)", res.PipelineID, res.Directory, res.Steps), nil
		})
}

// parseSteps decodes the tasks argument into pipeline steps. Per-step
// validation (names, prompts, models) belongs to the executor.
func parseSteps(args map[string]any) ([]pipeline.Step, error) {
	raw, exists := args["tasks"]
	if !exists || raw == nil {
		return nil, fmt.Errorf("tasks is required")
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("tasks must be an array of step objects, got %T", raw)
	}
	steps := make([]pipeline.Step, 0, len(items))
	for i, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("tasks[%d] must be an object, got %T", i, it)
		}
		name, _ := m["name"].(string)
		prompt, _ := m["prompt"].(string)
		model, _ := m["model"].(string)
		agent, _ := m["agent"].(string)
		steps = append(steps, pipeline.Step{Name: name, Prompt: prompt, Model: model, Agent: agent})
	}
	return steps, nil
}

// registerGetPipeline registers the get_pipeline tool.
func registerGetPipeline(s *server.MCPServer, coord *app.Coordinator, logger *log.Logger) {
	register(s, coord, logger,
		mcp.NewTool("get_pipeline",
			mcp.WithDescription("Show a pipeline's per-step progress and the output tail of the step currently running."),
			mcp.WithString("pipeline_id", mcp.Required(), mcp.Description("Pipeline id")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (string, error) {
			pipelineID, err := requireString(req.GetArguments(), "pipeline_id")
			if err != nil {
				return "", err
			}
			view, err := coord.Pipelines().Status(pipelineID)
			if err != nil {
				return "", err
			}
			return renderPipeline(view), nil
		})
}

func renderPipeline(view pipeline.View) string {
	completed := 0
	for _, st := range view.Steps {
		if st.Status == "completed" {
			completed++
		}
	}
	state := "running"
	if view.Done {
		state = view.DoneStatus
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Pipeline %s: %s (%d/%d steps completed)\n", view.Meta.PipelineID, state, completed, view.Meta.TotalSteps)
	fmt.Fprintf(&b, "directory: %s\n", view.Meta.Directory)
	for _, st := range view.Steps {
		fmt.Fprintf(&b, "  %d. %s: %s", st.Step, st.Name, st.Status)
		if st.Status == "running" && !st.Started.IsZero() {
			fmt.Fprintf(&b, " (started %s)", st.Started.Format("15:04:05"))
		}
		b.WriteByte('\n')
	}
	if len(view.Tail) > 0 {
		fmt.Fprintf(&b, "\nOutput tail of step %d (%s):\n", view.TailStep, view.TailName)
		for _, line := range view.Tail {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	return b.String()
}
