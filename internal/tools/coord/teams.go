package coord

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jaakkos/switchboard/internal/app"
	"github.com/jaakkos/switchboard/internal/domain"
	"github.com/jaakkos/switchboard/internal/team"
)

// registerCreateTeam registers the create_team tool.
func registerCreateTeam(s *server.MCPServer, coord *app.Coordinator, logger *log.Logger) {
	register(s, coord, logger,
		mcp.NewTool("create_team",
			mcp.WithDescription("Create or update a named team. Existing members keep their join time; new members are added."),
			mcp.WithString("team_name", mcp.Required(), mcp.Description("Team name")),
			mcp.WithString("project", mcp.Description("Project the team works on")),
			mcp.WithString("description", mcp.Description("What the team is for")),
			mcp.WithArray("members", mcp.Description("Member objects with name and optional role, session_id, task_id")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (string, error) {
			args := req.GetArguments()
			teamName, err := requireString(args, "team_name")
			if err != nil {
				return "", err
			}
			members, err := memberList(args)
			if err != nil {
				return "", err
			}
			project, _ := args["project"].(string)
			description, _ := args["description"].(string)

			rec, err := coord.Teams().Upsert(team.UpsertRequest{
				TeamName:    teamName,
				Project:     project,
				Description: description,
				Members:     members,
			})
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Team %s saved (%d member(s))", rec.TeamName, len(rec.Members)), nil
		})
}

// memberList decodes the members argument.
func memberList(args map[string]any) ([]team.Member, error) {
	raw, exists := args["members"]
	if !exists || raw == nil {
		return nil, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("members must be an array of member objects, got %T", raw)
	}
	members := make([]team.Member, 0, len(items))
	for i, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("members[%d] must be an object, got %T", i, it)
		}
		name, _ := m["name"].(string)
		if name == "" {
			return nil, fmt.Errorf("members[%d]: name is required", i)
		}
		role, _ := m["role"].(string)
		sessionID, _ := m["session_id"].(string)
		taskID, _ := m["task_id"].(string)
		members = append(members, team.Member{Name: name, Role: role, SessionID: sessionID, TaskID: taskID})
	}
	return members, nil
}

// registerGetTeam registers the get_team tool.
func registerGetTeam(s *server.MCPServer, coord *app.Coordinator, logger *log.Logger) {
	register(s, coord, logger,
		mcp.NewTool("get_team",
			mcp.WithDescription("Show one team's record and member roster."),
			mcp.WithString("team_name", mcp.Required(), mcp.Description("Team name")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (string, error) {
			teamName, err := requireString(req.GetArguments(), "team_name")
			if err != nil {
				return "", err
			}
			rec, err := coord.Teams().Get(teamName)
			if err != nil {
				return "", err
			}
			return renderTeam(rec), nil
		})
}

func renderTeam(rec *domain.TeamRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Team %s\n", rec.TeamName)
	if rec.Project != "" {
		fmt.Fprintf(&b, "project: %s\n", rec.Project)
	}
	if rec.Description != "" {
		fmt.Fprintf(&b, "description: %s\n", rec.Description)
	}
	fmt.Fprintf(&b, "members (%d):\n", len(rec.Members))
	for _, m := range rec.Members {
		fmt.Fprintf(&b, "- %s", m.Name)
		if m.Role != "" {
			fmt.Fprintf(&b, " [%s]", m.Role)
		}
		if m.SessionID != "" {
			fmt.Fprintf(&b, " session %s", m.SessionID)
		}
		if m.TaskID != "" {
			fmt.Fprintf(&b, " task %s", m.TaskID)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// registerListTeams registers the list_teams tool.
func registerListTeams(s *server.MCPServer, coord *app.Coordinator, logger *log.Logger) {
	register(s, coord, logger,
		mcp.NewTool("list_teams",
			mcp.WithDescription("List all teams with their size and project."),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (string, error) {
			teams, err := coord.Teams().List()
			if err != nil {
				return "", err
			}
			if len(teams) == 0 {
				return "No teams.", nil
			}
			var b strings.Builder
			fmt.Fprintf(&b, "%d team(s):\n", len(teams))
			for _, rec := range teams {
				fmt.Fprintf(&b, "- %s (%d member(s))", rec.TeamName, len(rec.Members))
				if rec.Project != "" {
					fmt.Fprintf(&b, " project=%s", rec.Project)
				}
				b.WriteByte('\n')
			}
			return b.String(), nil
		})
}
