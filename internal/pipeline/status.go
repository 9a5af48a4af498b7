package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jaakkos/switchboard/internal/domain"
	"github.com/jaakkos/switchboard/internal/statedir"
	"github.com/jaakkos/switchboard/internal/validate"
)

// stepTailLines is how much of a step's output the status view carries.
const stepTailLines = 15

// StepState is one step's progress as reconstructed from pipeline.log.
type StepState struct {
	Step     int       `json:"step"`
	Name     string    `json:"name"`
	Status   string    `json:"status"`
	Started  time.Time `json:"started,omitzero"`
	Finished time.Time `json:"finished,omitzero"`
}

// View is the full get_pipeline picture. Current is the step number of the
// most recent running step without a completion, or zero. TailStep names the
// step whose output tail is attached: the current step, else the last
// completed one.
type View struct {
	Meta       domain.PipelineMeta
	Done       bool
	DoneStatus string
	Steps      []StepState
	Current    int
	TailStep   int
	TailName   string
	Tail       []string
}

// Status reads the meta, done marker and log for a pipeline and folds them
// into a View. Only the meta is required; everything else degrades to
// "pending" when missing.
func (e *Executor) Status(pipelineID string) (View, error) {
	var view View
	id, err := validate.ID(pipelineID)
	if err != nil {
		return view, fmt.Errorf("pipeline_id: %w", err)
	}
	if err := statedir.ReadJSON(e.metaPath(id), &view.Meta); err != nil {
		return view, fmt.Errorf("no pipeline %s", id)
	}

	var marker domain.DoneMarker
	if err := statedir.ReadJSON(e.donePath(id), &marker); err == nil {
		view.Done = true
		view.DoneStatus = string(marker.Status)
		if view.DoneStatus == "" {
			view.DoneStatus = "completed"
		}
	} else if _, serr := os.Stat(e.donePath(id)); serr == nil {
		view.Done = true
		view.DoneStatus = "completed"
	}

	states := make([]StepState, 0, len(view.Meta.Tasks))
	byStep := make(map[int]*StepState, len(view.Meta.Tasks))
	for _, t := range view.Meta.Tasks {
		states = append(states, StepState{Step: t.Step, Name: t.Name, Status: "pending"})
		byStep[t.Step] = &states[len(states)-1]
	}

	// Banner lines in the log are not valid JSON and fall out of the
	// bounded read on their own.
	res, err := statedir.ReadBounded(e.logPath(id), 0, 0)
	if err == nil {
		for _, item := range res.Items {
			var entry domain.PipelineLogEntry
			if json.Unmarshal(item, &entry) != nil || entry.Step == 0 {
				continue
			}
			st, ok := byStep[entry.Step]
			if !ok {
				continue
			}
			switch entry.Status {
			case "running":
				st.Status = "running"
				st.Started = entry.Started
			case "completed":
				st.Status = "completed"
				st.Finished = entry.Finished
			}
		}
	}
	view.Steps = states

	lastCompleted := 0
	for i := range states {
		switch states[i].Status {
		case "running":
			view.Current = states[i].Step
		case "completed":
			lastCompleted = states[i].Step
		}
	}
	target := view.Current
	if target == 0 {
		target = lastCompleted
	}
	if target != 0 {
		st := byStep[target]
		view.TailStep = st.Step
		view.TailName = st.Name
		view.Tail = e.stepTail(id, st.Step, st.Name)
	}
	return view, nil
}

// stepTail returns the last stepTailLines lines of a step's output file.
func (e *Executor) stepTail(id string, step int, name string) []string {
	path := filepath.Join(e.pol.PipelineDir(id), stepBase(step, name)+".txt")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return nil
	}
	if len(lines) > stepTailLines {
		lines = lines[len(lines)-stepTailLines:]
	}
	return lines
}
