package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/keygate/keygate/internal/keygen"
	"github.com/keygate/keygate/internal/license"
	"github.com/keygate/keygate/internal/store"
)

func newTestMCP(t *testing.T) *MCPServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := license.New(store.New(), keygen.New(""), logger)
	return NewMCPServer(svc, logger)
}

// callRequest builds a CallToolRequest with the given arguments.
func callRequest(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

// resultText extracts the text payload from a tool result.
func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("tool result has no content")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T, want TextContent", result.Content[0])
	}
	return text.Text
}

func TestHandleCreateKey(t *testing.T) {
	s := newTestMCP(t)

	result, err := s.handleCreateKey(context.Background(), callRequest(nil))
	if err != nil {
		t.Fatalf("handleCreateKey: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", resultText(t, result))
	}

	var resp struct {
		Key      string `json:"key"`
		Duration int    `json:"duration"`
	}
	if err := json.Unmarshal([]byte(resultText(t, result)), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Key == "" {
		t.Error("expected non-empty key")
	}
	if resp.Duration != 24 {
		t.Errorf("duration = %d, want default 24", resp.Duration)
	}
}

func TestHandleCreateBulk(t *testing.T) {
	s := newTestMCP(t)

	result, err := s.handleCreateBulk(context.Background(), callRequest(map[string]interface{}{
		"count": 3,
	}))
	if err != nil {
		t.Fatalf("handleCreateBulk: %v", err)
	}

	var resp struct {
		Count int      `json:"count"`
		Keys  []string `json:"keys"`
	}
	if err := json.Unmarshal([]byte(resultText(t, result)), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 3 || len(resp.Keys) != 3 {
		t.Errorf("count = %d, len(keys) = %d, want 3", resp.Count, len(resp.Keys))
	}
}

func TestHandleVerifyKey_Flow(t *testing.T) {
	s := newTestMCP(t)
	rec, err := s.svc.CreateKey(1)
	if err != nil {
		t.Fatalf("CreateKey: %v", err)
	}

	result, err := s.handleVerifyKey(context.Background(), callRequest(map[string]interface{}{
		"key": rec.Key, "hwid": "device-A", "username": "alice",
	}))
	if err != nil {
		t.Fatalf("handleVerifyKey: %v", err)
	}

	var resp struct {
		Valid   bool   `json:"valid"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(resultText(t, result)), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Valid {
		t.Fatalf("valid=false, message=%q", resp.Message)
	}

	// Foreign device is a valid=false payload, not a tool error.
	result, err = s.handleVerifyKey(context.Background(), callRequest(map[string]interface{}{
		"key": rec.Key, "hwid": "device-B",
	}))
	if err != nil {
		t.Fatalf("handleVerifyKey: %v", err)
	}
	if result.IsError {
		t.Fatal("foreign-device outcome should not be a tool error")
	}
	if err := json.Unmarshal([]byte(resultText(t, result)), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Valid {
		t.Error("expected valid=false for foreign device")
	}
}

func TestHandleVerifyKey_MissingParams(t *testing.T) {
	s := newTestMCP(t)

	result, err := s.handleVerifyKey(context.Background(), callRequest(map[string]interface{}{
		"key": "KG-AAAA-BBBB-CCCC",
	}))
	if err != nil {
		t.Fatalf("handleVerifyKey: %v", err)
	}
	if !result.IsError {
		t.Error("expected tool error for missing hwid")
	}
}

func TestHandleInspectKey_NotFound(t *testing.T) {
	s := newTestMCP(t)

	result, err := s.handleInspectKey(context.Background(), callRequest(map[string]interface{}{
		"key": "KG-ZZZZ-ZZZZ-ZZZZ",
	}))
	if err != nil {
		t.Fatalf("handleInspectKey: %v", err)
	}
	if !result.IsError {
		t.Error("expected tool error for unknown key")
	}
}

func TestHandleListAndStatus(t *testing.T) {
	s := newTestMCP(t)
	rec, err := s.svc.CreateKey(1)
	if err != nil {
		t.Fatalf("CreateKey: %v", err)
	}
	if _, err := s.svc.Verify(rec.Key, "device-A", "alice", ""); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	result, err := s.handleListKeys(context.Background(), callRequest(nil))
	if err != nil {
		t.Fatalf("handleListKeys: %v", err)
	}
	var list struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal([]byte(resultText(t, result)), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if list.Count != 1 {
		t.Errorf("count = %d, want 1", list.Count)
	}

	result, err = s.handleStatus(context.Background(), callRequest(nil))
	if err != nil {
		t.Fatalf("handleStatus: %v", err)
	}
	var stats struct {
		Active int `json:"active"`
		Used   int `json:"used"`
	}
	if err := json.Unmarshal([]byte(resultText(t, result)), &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.Active != 1 || stats.Used != 1 {
		t.Errorf("stats = %+v, want active=1 used=1", stats)
	}
}

func TestHandleDeleteKey(t *testing.T) {
	s := newTestMCP(t)
	rec, err := s.svc.CreateKey(1)
	if err != nil {
		t.Fatalf("CreateKey: %v", err)
	}

	result, err := s.handleDeleteKey(context.Background(), callRequest(map[string]interface{}{
		"key": rec.Key,
	}))
	if err != nil {
		t.Fatalf("handleDeleteKey: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", resultText(t, result))
	}

	// Second delete reports not found.
	result, err = s.handleDeleteKey(context.Background(), callRequest(map[string]interface{}{
		"key": rec.Key,
	}))
	if err != nil {
		t.Fatalf("handleDeleteKey: %v", err)
	}
	if !result.IsError {
		t.Error("expected tool error for already-deleted key")
	}
}

func TestAnnotations(t *testing.T) {
	ro := readOnlyAnnotation()
	if ro.ReadOnlyHint == nil || !*ro.ReadOnlyHint {
		t.Error("readOnlyAnnotation should set ReadOnlyHint=true")
	}

	mut := mutatingAnnotation()
	if mut.ReadOnlyHint == nil || *mut.ReadOnlyHint {
		t.Error("mutatingAnnotation should set ReadOnlyHint=false")
	}
}
