// Package mcp exposes the topic engine over the Model Context Protocol:
// ingestion, topic/note browsing, rename/reassign, categorization, and
// stats, over stdio transport.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/gistlabs/gist/internal/cluster"
)

// ServerConfig holds configuration for the MCP server.
type ServerConfig struct {
	Engine  *cluster.Engine
	Version string
}

// topicView is the wire shape for topics: everything but the embeddings,
// which are large and useless to an MCP client.
type topicView struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	DisplayTag string   `json:"display_tag,omitempty"`
	Aliases    []string `json:"aliases"`
	NoteCount  int      `json:"note_count"`
	NoteIDs    []string `json:"note_ids"`
	CategoryID string   `json:"category_id,omitempty"`
}

type noteView struct {
	ID           string   `json:"id"`
	CreatedAt    string   `json:"created_at"`
	Summary      string   `json:"summary"`
	TopicID      string   `json:"topic_id,omitempty"`
	Keywords     []string `json:"keywords,omitempty"`
	Subjects     []string `json:"subjects,omitempty"`
	VideoID      string   `json:"video_id,omitempty"`
	VideoTitle   string   `json:"video_title,omitempty"`
	Prominence   int      `json:"prominence,omitempty"`
	VideoGroupID string   `json:"video_group_id,omitempty"`
	IsPrimary    bool     `json:"is_primary,omitempty"`
}

// NewServer creates a configured MCP server with all gist tools.
func NewServer(cfg ServerConfig) *server.MCPServer {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}

	s := server.NewMCPServer(
		"Gist",
		ver,
		server.WithToolCapabilities(false),
	)

	registerIngestTool(s, cfg.Engine)
	registerTopicsTool(s, cfg.Engine)
	registerNotesTool(s, cfg.Engine)
	registerRenameTool(s, cfg.Engine)
	registerReassignTool(s, cfg.Engine)
	registerCategorizeTool(s, cfg.Engine)
	registerStatsTool(s, cfg.Engine)
	registerClearTool(s, cfg.Engine)

	return s
}

// ServeStdio runs the server over stdin/stdout until the client disconnects.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

func registerIngestTool(s *server.MCPServer, engine *cluster.Engine) {
	tool := mcp.NewTool("gist_ingest",
		mcp.WithDescription("Ingest a transcript as a note: summarize it, embed it, and file it under the best-matching topic (creating one if needed)."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("transcript",
			mcp.Required(),
			mcp.Description("Raw source text to summarize and cluster"),
		),
		mcp.WithString("prompt",
			mcp.Description("Extra instructions for the summarizer"),
		),
		mcp.WithBoolean("multi_topic",
			mcp.Description("Decompose the source into up to three topics, each becoming its own note (default: false)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		transcript, err := req.RequireString("transcript")
		if err != nil {
			return mcp.NewToolResultError("transcript is required"), nil
		}

		ingestReq := cluster.IngestRequest{Transcript: transcript}
		if p, err := req.RequireString("prompt"); err == nil {
			ingestReq.UserPrompt = p
		}
		if m, err := req.RequireBool("multi_topic"); err == nil {
			ingestReq.MultiTopic = m
		}

		res, err := engine.Ingest(ctx, ingestReq)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("ingest error: %v", err)), nil
		}
		data, _ := json.MarshalIndent(res, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerTopicsTool(s *server.MCPServer, engine *cluster.Engine) {
	tool := mcp.NewTool("gist_topics",
		mcp.WithDescription("List all topics with their aliases and member counts, in creation order."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		views := make([]topicView, 0)
		for _, t := range engine.Store().Topics() {
			views = append(views, topicView{
				ID:         t.ID,
				Name:       t.Name,
				DisplayTag: t.DisplayTag,
				Aliases:    t.Aliases,
				NoteCount:  len(t.SummaryIDs),
				NoteIDs:    t.SummaryIDs,
				CategoryID: t.CategoryID,
			})
		}
		data, _ := json.MarshalIndent(views, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerNotesTool(s *server.MCPServer, engine *cluster.Engine) {
	tool := mcp.NewTool("gist_notes",
		mcp.WithDescription("List notes (summaries and metadata), optionally scoped to one topic."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("topic_id",
			mcp.Description("Only return notes belonging to this topic"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		topicID := ""
		if v, err := req.RequireString("topic_id"); err == nil {
			topicID = v
		}

		views := make([]noteView, 0)
		for _, n := range engine.Store().Notes() {
			if topicID != "" && n.TopicID != topicID {
				continue
			}
			views = append(views, noteView{
				ID:           n.ID,
				CreatedAt:    n.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
				Summary:      n.Summary,
				TopicID:      n.TopicID,
				Keywords:     n.Keywords,
				Subjects:     n.Subjects,
				VideoID:      n.VideoID,
				VideoTitle:   n.VideoTitle,
				Prominence:   n.Prominence,
				VideoGroupID: n.VideoGroupID,
				IsPrimary:    n.IsPrimary,
			})
		}
		data, _ := json.MarshalIndent(views, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerRenameTool(s *server.MCPServer, engine *cluster.Engine) {
	tool := mcp.NewTool("gist_rename",
		mcp.WithDescription("Rename a topic. A single-member topic renames in place; for a multi-member topic only the given note moves, into an existing topic of that name or a freshly split one."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("topic_id",
			mcp.Required(),
			mcp.Description("Topic to rename"),
		),
		mcp.WithString("new_name",
			mcp.Required(),
			mcp.Description("The new topic name"),
		),
		mcp.WithString("note_id",
			mcp.Description("The note whose view triggered the rename; required for multi-member topics"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		topicID, err := req.RequireString("topic_id")
		if err != nil {
			return mcp.NewToolResultError("topic_id is required"), nil
		}
		newName, err := req.RequireString("new_name")
		if err != nil {
			return mcp.NewToolResultError("new_name is required"), nil
		}
		noteID := ""
		if v, err := req.RequireString("note_id"); err == nil {
			noteID = v
		}

		res, err := engine.RenameTopic(ctx, topicID, noteID, newName)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("rename error: %v", err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf(`{"outcome": %q, "topic_id": %q}`, res.Outcome, res.TopicID)), nil
	})
}

func registerReassignTool(s *server.MCPServer, engine *cluster.Engine) {
	tool := mcp.NewTool("gist_reassign",
		mcp.WithDescription("Manually move a note into another topic; both centroids are recomputed."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("note_id",
			mcp.Required(),
			mcp.Description("Note to move"),
		),
		mcp.WithString("topic_id",
			mcp.Required(),
			mcp.Description("Destination topic"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		noteID, err := req.RequireString("note_id")
		if err != nil {
			return mcp.NewToolResultError("note_id is required"), nil
		}
		topicID, err := req.RequireString("topic_id")
		if err != nil {
			return mcp.NewToolResultError("topic_id is required"), nil
		}

		if err := engine.ReassignNote(ctx, noteID, topicID); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("reassign error: %v", err)), nil
		}
		return mcp.NewToolResultText(`{"status": "ok"}`), nil
	})
}

func registerCategorizeTool(s *server.MCPServer, engine *cluster.Engine) {
	tool := mcp.NewTool("gist_categorize",
		mcp.WithDescription("File a topic under a super category, creating one if no existing category matches."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("topic_id",
			mcp.Required(),
			mcp.Description("Topic to categorize"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		topicID, err := req.RequireString("topic_id")
		if err != nil {
			return mcp.NewToolResultError("topic_id is required"), nil
		}

		catID, err := engine.CategorizeTopic(ctx, topicID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("categorize error: %v", err)), nil
		}
		cat := engine.Store().GetCategory(catID)
		return mcp.NewToolResultText(fmt.Sprintf(`{"category_id": %q, "name": %q}`, catID, cat.Name)), nil
	})
}

func registerStatsTool(s *server.MCPServer, engine *cluster.Engine) {
	tool := mcp.NewTool("gist_stats",
		mcp.WithDescription("Report topic, note, and category counts."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		st := engine.Store().Summary()
		data, _ := json.MarshalIndent(map[string]int{
			"topics":       st.Topics,
			"notes":        st.Notes,
			"categories":   st.Categories,
			"orphan_notes": st.OrphanNotes,
		}, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerClearTool(s *server.MCPServer, engine *cluster.Engine) {
	tool := mcp.NewTool("gist_clear",
		mcp.WithDescription("Delete ALL topics, notes, and categories. Irreversible."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(true),
		mcp.WithBoolean("confirm",
			mcp.Required(),
			mcp.Description("Must be true; guards against accidental wipes"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		confirm, err := req.RequireBool("confirm")
		if err != nil || !confirm {
			return mcp.NewToolResultError("confirm must be true"), nil
		}
		if err := engine.Store().ClearAll(ctx); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("clear error: %v", err)), nil
		}
		return mcp.NewToolResultText(`{"status": "cleared"}`), nil
	})
}
