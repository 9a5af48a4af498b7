package coord

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jaakkos/switchboard/internal/app"
	"github.com/jaakkos/switchboard/internal/domain"
	"github.com/jaakkos/switchboard/internal/policy"
)

// testServer creates an MCPServer with all tools registered over a temp
// state root. Nothing is booted; the first tool call does that.
func testServer(t *testing.T) (*server.MCPServer, *app.Coordinator, *policy.Policy) {
	t.Helper()
	return testServerWithConfig(t, nil)
}

func testServerWithConfig(t *testing.T, mutate func(*policy.Config)) (*server.MCPServer, *app.Coordinator, *policy.Policy) {
	t.Helper()
	cfg := policy.DefaultConfig()
	cfg.StateRoot = t.TempDir()
	if mutate != nil {
		mutate(cfg)
	}
	pol := policy.New(cfg)
	logger := log.New(io.Discard, "", 0)
	coord := app.NewCoordinator(pol, logger)
	s := server.NewMCPServer("test", "1.0.0")
	Register(s, coord, logger)
	return s, coord, pol
}

// boot runs the coordinator's boot step so tests can seed state before the
// first tool call.
func boot(t *testing.T, coord *app.Coordinator) {
	t.Helper()
	if err := coord.Boot(); err != nil {
		t.Fatalf("Boot: %v", err)
	}
}

// seedSession writes a registered session record.
func seedSession(t *testing.T, coord *app.Coordinator, sid8 string, mutate func(*domain.SessionRecord)) *domain.SessionRecord {
	t.Helper()
	rec := domain.NewSessionRecord(sid8, time.Now())
	if mutate != nil {
		mutate(rec)
	}
	if err := coord.Sessions().Write(rec); err != nil {
		t.Fatalf("Write(%s): %v", sid8, err)
	}
	return rec
}

// fakeAgent ignores its flags and echoes stdin, standing in for the real
// agent binary.
func fakeAgent(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fakeagent")
	if err := os.WriteFile(path, []byte("#!/bin/sh\ncat\n"), 0o755); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// callTool calls a registered tool via the MCPServer's HandleMessage.
// Returns the parsed CallToolResult or an error.
func callTool(t *testing.T, s *server.MCPServer, name string, args map[string]any) (*mcp.CallToolResult, error) {
	t.Helper()

	reqJSON, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params": map[string]any{
			"name":      name,
			"arguments": args,
		},
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	respJSON := s.HandleMessage(context.Background(), reqJSON)

	respBytes, marshalErr := json.Marshal(respJSON)
	if marshalErr != nil {
		t.Fatalf("marshal response: %v", marshalErr)
	}

	var resp struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}

	if resp.Error != nil {
		return nil, fmt.Errorf("RPC error %d: %s", resp.Error.Code, resp.Error.Message)
	}

	var result mcp.CallToolResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}

	return &result, nil
}

// callText calls a tool and returns its text response, failing the test on
// protocol errors.
func callText(t *testing.T, s *server.MCPServer, name string, args map[string]any) string {
	t.Helper()
	result, err := callTool(t, s, name, args)
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	return resultText(t, result)
}

// resultText extracts the first text content from a CallToolResult.
func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil {
		t.Fatal("result is nil")
	}
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	t.Fatal("no text content in result")
	return ""
}
