package mcp

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/keygate/keygate/internal/license"
)

// registerTools registers all keygate MCP tools on the given server.
func (s *MCPServer) registerTools(srv *server.MCPServer) {

	// ----- Minting tools -----

	srv.AddTool(
		mcp.NewTool("keygate_create_key",
			mcp.WithDescription(
				"Mint one single-use access key. The key is valid for the given "+
					"number of hours (default 24) and binds to the first device that "+
					"redeems it. Returns the key identifier and expiry.",
			),
			mcp.WithToolAnnotation(mutatingAnnotation()),
			mcp.WithNumber("duration",
				mcp.Description("Validity window in hours (default 24)"),
			),
		),
		s.handleCreateKey,
	)

	srv.AddTool(
		mcp.NewTool("keygate_create_bulk",
			mcp.WithDescription(
				"Mint a batch of access keys in one call. The count defaults to 10 "+
					"and is clamped to 100. All keys in the batch share the same "+
					"validity window.",
			),
			mcp.WithToolAnnotation(mutatingAnnotation()),
			mcp.WithNumber("count",
				mcp.Description("Number of keys to mint (default 10, max 100)"),
			),
			mcp.WithNumber("duration",
				mcp.Description("Validity window in hours (default 24)"),
			),
		),
		s.handleCreateBulk,
	)

	// ----- Redemption tool -----

	srv.AddTool(
		mcp.NewTool("keygate_verify_key",
			mcp.WithDescription(
				"Redeem a key for a device. The first successful redemption binds "+
					"the key to the device's hardware id; later redemptions succeed "+
					"only from the same device. Unknown, expired, and wrong-device "+
					"outcomes return valid=false with a reason message.",
			),
			mcp.WithToolAnnotation(mutatingAnnotation()),
			mcp.WithString("key",
				mcp.Required(),
				mcp.Description("Key identifier (e.g. KG-XXXX-XXXX-XXXX)"),
			),
			mcp.WithString("hwid",
				mcp.Required(),
				mcp.Description("Hardware id of the redeeming device"),
			),
			mcp.WithString("username",
				mcp.Description("Display name captured at first redemption"),
			),
			mcp.WithString("userid",
				mcp.Description("External user id captured at first redemption"),
			),
		),
		s.handleVerifyKey,
	)

	// ----- Inspection tools -----

	srv.AddTool(
		mcp.NewTool("keygate_inspect_key",
			mcp.WithDescription(
				"Get the read-only view of one key: used flag, bound username, "+
					"creation and expiry timestamps, remaining seconds, and whether "+
					"the validity window has already passed.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("key",
				mcp.Required(),
				mcp.Description("Key identifier to inspect"),
			),
		),
		s.handleInspectKey,
	)

	srv.AddTool(
		mcp.NewTool("keygate_list_keys",
			mcp.WithDescription(
				"List every live key with its used flag, bound username, expiry "+
					"state, and remaining seconds. Use this to audit outstanding keys.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
		),
		s.handleListKeys,
	)

	srv.AddTool(
		mcp.NewTool("keygate_status",
			mcp.WithDescription(
				"Service status: count of live keys and count of keys already "+
					"bound to a device.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
		),
		s.handleStatus,
	)

	// ----- Deletion tool -----

	srv.AddTool(
		mcp.NewTool("keygate_delete_key",
			mcp.WithDescription(
				"Delete a key immediately. The key stops verifying on any device. "+
					"Deletion is permanent; there is no undo.",
			),
			mcp.WithToolAnnotation(mutatingAnnotation()),
			mcp.WithString("key",
				mcp.Required(),
				mcp.Description("Key identifier to delete"),
			),
		),
		s.handleDeleteKey,
	)
}

// =========================================================================
// Tool handlers
// =========================================================================

func (s *MCPServer) handleCreateKey(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	duration := optionalInt(request, "duration", 0)

	rec, err := s.svc.CreateKey(duration)
	if err != nil {
		return toolError("Failed to create key: %v", err)
	}

	return successJSON(map[string]interface{}{
		"key":        rec.Key,
		"expiration": rec.ExpiresAt,
		"duration":   rec.DurationHours,
	})
}

func (s *MCPServer) handleCreateBulk(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	count := optionalInt(request, "count", 0)
	duration := optionalInt(request, "duration", 0)

	records, err := s.svc.CreateKeysBulk(count, duration)
	if err != nil {
		return toolError("Failed to create keys: %v", err)
	}

	keys := make([]string, 0, len(records))
	for i := range records {
		keys = append(keys, records[i].Key)
	}

	return successJSON(map[string]interface{}{
		"count": len(keys),
		"keys":  keys,
	})
}

func (s *MCPServer) handleVerifyKey(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	key, err := requireString(request, "key")
	if err != nil {
		return toolError("%v", err)
	}
	hwid, err := requireString(request, "hwid")
	if err != nil {
		return toolError("%v", err)
	}
	username := optionalString(request, "username")
	userID := optionalString(request, "userid")

	result, err := s.svc.Verify(key, hwid, username, userID)
	if err != nil {
		return toolError("Verification failed: %v", err)
	}

	return successJSON(result)
}

func (s *MCPServer) handleInspectKey(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	key, err := requireString(request, "key")
	if err != nil {
		return toolError("%v", err)
	}

	info, err := s.svc.Inspect(key)
	if err != nil {
		if errors.Is(err, license.ErrNotFound) {
			return toolError("Key not found: %s", key)
		}
		return toolError("Failed to inspect key: %v", err)
	}

	return successJSON(info)
}

func (s *MCPServer) handleListKeys(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	keys := s.svc.ListAll()
	return successJSON(map[string]interface{}{
		"count": len(keys),
		"keys":  keys,
	})
}

func (s *MCPServer) handleStatus(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	return successJSON(s.svc.Stats())
}

func (s *MCPServer) handleDeleteKey(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	key, err := requireString(request, "key")
	if err != nil {
		return toolError("%v", err)
	}

	if !s.svc.DeleteKey(key) {
		return toolError("Key not found: %s", key)
	}

	return successJSON(map[string]interface{}{
		"success": true,
		"message": "Key deleted",
	})
}
