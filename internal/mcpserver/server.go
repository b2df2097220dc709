// Package mcpserver exposes the recall operations as MCP tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/your-org/recall/internal/service"
)

const serverName = "recall"

type Tools struct {
	svc *service.Service
}

// New registers every tool on a fresh MCP server.
func New(svc *service.Service, version string) *server.MCPServer {
	t := &Tools{svc: svc}
	s := server.NewMCPServer(serverName, version)

	s.AddTool(mcp.NewTool("list_people",
		mcp.WithDescription("Lists everyone with an enrolled face or a saved conversation, most recently seen first."),
	), t.listPeople)

	s.AddTool(mcp.NewTool("get_conversation",
		mcp.WithDescription("Returns every saved conversation with a person, oldest first."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Person name, any casing")),
	), t.getConversation)

	s.AddTool(mcp.NewTool("ask_assistant",
		mcp.WithDescription("Answers a question from saved conversations."),
		mcp.WithString("question", mcp.Required(), mcp.Description("Natural language question")),
		mcp.WithString("person", mcp.Description("Optional person to restrict the search to")),
	), t.askAssistant)

	s.AddTool(mcp.NewTool("list_highlights",
		mcp.WithDescription("Lists upcoming events mentioned in conversations, soonest first."),
		mcp.WithNumber("limit", mcp.Description("Maximum number of highlights")),
	), t.listHighlights)

	s.AddTool(mcp.NewTool("set_highlight_status",
		mcp.WithDescription("Marks a highlight active, completed or dismissed."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Highlight id")),
		mcp.WithString("status", mcp.Required(), mcp.Description("active, completed or dismissed")),
	), t.setHighlightStatus)

	s.AddTool(mcp.NewTool("rename_person",
		mcp.WithDescription("Renames a person across conversations and the face registry."),
		mcp.WithString("old_name", mcp.Required(), mcp.Description("Current name")),
		mcp.WithString("new_name", mcp.Required(), mcp.Description("New name")),
	), t.renamePerson)

	s.AddTool(mcp.NewTool("process_video",
		mcp.WithDescription("Identifies the person in a local video file and saves the conversation."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the video on the server")),
	), t.processVideo)

	s.AddTool(mcp.NewTool("enrich_profile",
		mcp.WithDescription("Looks up a public profile for a person from their latest conversation."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Person name")),
		mcp.WithBoolean("force", mcp.Description("Replace an existing profile")),
	), t.enrichProfile)

	return s
}

// Serve runs the server on stdin/stdout until the peer disconnects.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return strings.TrimSpace(v)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Encoding result failed: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (t *Tools) listPeople(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	people, err := t.svc.ListPeople(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Listing people failed: %v", err)), nil
	}
	if len(people) == 0 {
		return mcp.NewToolResultText("No people known yet."), nil
	}
	return jsonResult(people)
}

func (t *Tools) getConversation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]any)
	name := stringArg(args, "name")
	if name == "" {
		return mcp.NewToolResultError("Name cannot be empty"), nil
	}
	entries, err := t.svc.GetConversation(ctx, name)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Reading conversations failed: %v", err)), nil
	}
	return jsonResult(entries)
}

func (t *Tools) askAssistant(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]any)
	question := stringArg(args, "question")
	if question == "" {
		return mcp.NewToolResultError("Question cannot be empty"), nil
	}
	ans, err := t.svc.AskAssistant(ctx, question, stringArg(args, "person"))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Assistant failed: %v", err)), nil
	}

	var sb strings.Builder
	sb.WriteString(ans.Answer)
	if ans.Suggestion != "" {
		fmt.Fprintf(&sb, "\n\nSuggestion: %s", ans.Suggestion)
	}
	if ans.Match != nil {
		fmt.Fprintf(&sb, "\n\nSource: %s (%s)", ans.Match.Name, ans.Match.ProfileURL)
	}
	for _, et := range ans.Excerpt {
		marker := " "
		if et.IsHighlight {
			marker = ">"
		}
		fmt.Fprintf(&sb, "\n%s %s: %s", marker, et.Speaker, et.Text)
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func (t *Tools) listHighlights(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]any)
	limit := 0
	if n, ok := args["limit"].(float64); ok {
		limit = int(n)
	}
	items, err := t.svc.ListHighlights(ctx, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Listing highlights failed: %v", err)), nil
	}
	if len(items) == 0 {
		return mcp.NewToolResultText("No upcoming highlights."), nil
	}
	return jsonResult(items)
}

func (t *Tools) setHighlightStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]any)
	id, status := stringArg(args, "id"), stringArg(args, "status")
	if id == "" || status == "" {
		return mcp.NewToolResultError("Both id and status are required"), nil
	}
	hl, err := t.svc.SetHighlightStatus(ctx, id, status)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Updating highlight failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Highlight '%s' is now %s.", hl.ID, hl.Status)), nil
}

func (t *Tools) renamePerson(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]any)
	oldName, newName := stringArg(args, "old_name"), stringArg(args, "new_name")
	if err := t.svc.RenamePerson(ctx, oldName, newName); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Rename failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Renamed '%s' to '%s'.", oldName, newName)), nil
}

func (t *Tools) processVideo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]any)
	path := stringArg(args, "path")
	if path == "" {
		return mcp.NewToolResultError("Path cannot be empty"), nil
	}
	res, err := t.svc.ProcessVideo(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Processing failed: %v", err)), nil
	}
	return jsonResult(res)
}

func (t *Tools) enrichProfile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]any)
	name := stringArg(args, "name")
	if name == "" {
		return mcp.NewToolResultError("Name cannot be empty"), nil
	}
	force, _ := args["force"].(bool)
	res, err := t.svc.EnrichProfile(ctx, name, force)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Enrichment failed: %v", err)), nil
	}
	return jsonResult(res)
}
