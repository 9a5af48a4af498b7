// Package team keeps named member groupings under teams/<name>.json.
// create_team is an upsert: existing members keep their joined timestamp and
// take the supplied role/session/task, new ones join now.
package team

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jaakkos/switchboard/internal/domain"
	"github.com/jaakkos/switchboard/internal/policy"
	"github.com/jaakkos/switchboard/internal/statedir"
	"github.com/jaakkos/switchboard/internal/validate"
)

// Registry reads and upserts team records.
type Registry struct {
	pol    *policy.Policy
	logger *log.Logger
}

func NewRegistry(pol *policy.Policy, logger *log.Logger) *Registry {
	return &Registry{pol: pol, logger: logger}
}

// Member carries one member's upsert payload.
type Member struct {
	Name      string
	Role      string
	SessionID string
	TaskID    string
}

// UpsertRequest carries create_team parameters.
type UpsertRequest struct {
	TeamName    string
	Project     string
	Description string
	Members     []Member
}

// Upsert creates or updates a team. Member names are matched exactly;
// empty optional fields on an existing member leave its values alone.
func (r *Registry) Upsert(req UpsertRequest) (*domain.TeamRecord, error) {
	name, err := validate.Name(req.TeamName)
	if err != nil {
		return nil, fmt.Errorf("team_name: %w", err)
	}

	now := time.Now()
	var rec domain.TeamRecord
	if err := statedir.ReadJSON(r.pol.TeamFile(name), &rec); err != nil {
		rec = domain.TeamRecord{TeamName: name, Created: now}
	}
	if req.Project != "" {
		rec.Project = req.Project
	}
	if req.Description != "" {
		rec.Description = req.Description
	}

	for _, m := range req.Members {
		mname := strings.TrimSpace(m.Name)
		if mname == "" {
			return nil, fmt.Errorf("member name must not be empty")
		}
		idx := -1
		for i := range rec.Members {
			if rec.Members[i].Name == mname {
				idx = i
				break
			}
		}
		if idx < 0 {
			rec.Members = append(rec.Members, domain.TeamMember{
				Name:      mname,
				Role:      m.Role,
				SessionID: m.SessionID,
				TaskID:    m.TaskID,
				Joined:    now,
				Updated:   now,
			})
			continue
		}
		have := &rec.Members[idx]
		if m.Role != "" {
			have.Role = m.Role
		}
		if m.SessionID != "" {
			have.SessionID = m.SessionID
		}
		if m.TaskID != "" {
			have.TaskID = m.TaskID
		}
		have.Updated = now
	}

	rec.Updated = now
	if err := statedir.WriteJSON(r.pol.TeamFile(name), rec); err != nil {
		return nil, err
	}
	r.logger.Printf("TeamRegistry: upserted %s (%d members)", name, len(rec.Members))
	return &rec, nil
}

// Get returns one team by name.
func (r *Registry) Get(teamName string) (*domain.TeamRecord, error) {
	name, err := validate.Name(teamName)
	if err != nil {
		return nil, fmt.Errorf("team_name: %w", err)
	}
	var rec domain.TeamRecord
	if err := statedir.ReadJSON(r.pol.TeamFile(name), &rec); err != nil {
		return nil, fmt.Errorf("no team %s", name)
	}
	return &rec, nil
}

// List returns all teams sorted by name. Corrupt files are skipped.
func (r *Registry) List() ([]*domain.TeamRecord, error) {
	entries, err := os.ReadDir(r.pol.TeamsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read teams dir: %w", err)
	}
	var teams []*domain.TeamRecord
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		var rec domain.TeamRecord
		if statedir.ReadJSON(filepath.Join(r.pol.TeamsDir(), e.Name()), &rec) != nil || rec.TeamName == "" {
			continue
		}
		teams = append(teams, &rec)
	}
	sort.Slice(teams, func(i, j int) bool { return teams[i].TeamName < teams[j].TeamName })
	return teams, nil
}
