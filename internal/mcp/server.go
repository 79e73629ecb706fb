// Package mcp exposes document Q&A as Model Context Protocol tools over
// stdio.
package mcp

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/nickcecere/docqa/internal/errs"
	"github.com/nickcecere/docqa/internal/indexer"
	"github.com/nickcecere/docqa/internal/qa"
)

const (
	// ServerName is the name of this MCP server.
	ServerName = "docqa"

	// ServerVersion is the version of this server.
	ServerVersion = "1.0.0"

	// maxPreview is the longest answer or chunk excerpt echoed in history
	// listings.
	maxPreview = 500
)

// Server is the MCP server for docqa.
type Server struct {
	svc      *qa.Service
	uploader *indexer.Uploader
	mcp      *mcpserver.MCPServer
}

// NewServer creates an MCP server with every tool registered.
func NewServer(svc *qa.Service, up *indexer.Uploader) *Server {
	s := &Server{
		svc:      svc,
		uploader: up,
		mcp: mcpserver.NewMCPServer(ServerName, ServerVersion,
			mcpserver.WithToolCapabilities(false),
			mcpserver.WithRecovery(),
		),
	}
	s.registerTools()
	return s
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcp
}

// Run serves requests on stdin/stdout until ctx is cancelled or stdin closes.
func (s *Server) Run(ctx context.Context) error {
	return s.Serve(ctx, os.Stdin, os.Stdout)
}

// Serve serves requests read from in, writing responses to out.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	log.Info("MCP server starting")

	stdio := mcpserver.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(log.StandardLog(log.StandardLogOptions{ForceLevel: log.ErrorLevel}))

	err := stdio.Listen(ctx, in, out)
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	log.Info("MCP server stopped")
	return nil
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.Tool{
		Name:        "docqa_ask",
		Description: "Answer a question from every uploaded document. Returns the answer and the documents it was drawn from.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"question": map[string]interface{}{
					"type":        "string",
					"description": "The question in natural language",
				},
				"top_k": map[string]interface{}{
					"type":        "number",
					"description": "Number of passages to answer from (default: configured top_k)",
				},
			},
			Required: []string{"question"},
		},
	}, s.Ask)

	s.mcp.AddTool(mcp.Tool{
		Name:        "docqa_ask_document",
		Description: "Answer a question using only one named document.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"document": map[string]interface{}{
					"type":        "string",
					"description": "Document name as shown by docqa_list_documents",
				},
				"question": map[string]interface{}{
					"type":        "string",
					"description": "The question in natural language",
				},
			},
			Required: []string{"document", "question"},
		},
	}, s.AskDocument)

	s.mcp.AddTool(mcp.Tool{
		Name:        "docqa_upload",
		Description: "Upload a local file (txt, md, html, csv, json, docx, pdf) so it can be asked about.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Path of the file to upload",
				},
				"name": map[string]interface{}{
					"type":        "string",
					"description": "Document name to use instead of the file name",
				},
			},
			Required: []string{"path"},
		},
	}, s.Upload)

	s.mcp.AddTool(mcp.Tool{
		Name:        "docqa_list_documents",
		Description: "List uploaded documents with their size and chunk count.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, s.ListDocuments)

	s.mcp.AddTool(mcp.Tool{
		Name:        "docqa_rename_document",
		Description: "Rename a document. Its passages follow the new name.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"old_name": map[string]interface{}{
					"type":        "string",
					"description": "Current document name",
				},
				"new_name": map[string]interface{}{
					"type":        "string",
					"description": "New document name",
				},
			},
			Required: []string{"old_name", "new_name"},
		},
	}, s.RenameDocument)

	s.mcp.AddTool(mcp.Tool{
		Name:        "docqa_history",
		Description: "List past questions and answers, newest first.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"limit": map[string]interface{}{
					"type":        "number",
					"description": "Maximum number of entries to return (default: 20)",
					"default":     20,
				},
			},
		},
	}, s.History)

	s.mcp.AddTool(mcp.Tool{
		Name:        "docqa_search_history",
		Description: "Find past questions and answers containing a keyword, or similar to a question when semantic is set.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Keyword, or a question when semantic is true",
				},
				"semantic": map[string]interface{}{
					"type":        "boolean",
					"description": "Rank by similarity to past questions instead of matching a keyword",
					"default":     false,
				},
			},
			Required: []string{"query"},
		},
	}, s.SearchHistory)
}

// Ask handles docqa_ask.
func (s *Server) Ask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := request.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError("question argument is required and must be a string"), nil
	}

	ans, err := s.svc.Ask(ctx, question, request.GetInt("top_k", 0))
	if err != nil {
		return toolError("ask failed", err), nil
	}
	return mcp.NewToolResultText(formatAnswer(ans)), nil
}

// AskDocument handles docqa_ask_document.
func (s *Server) AskDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	document, err := request.RequireString("document")
	if err != nil {
		return mcp.NewToolResultError("document argument is required and must be a string"), nil
	}
	question, err := request.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError("question argument is required and must be a string"), nil
	}

	ans, err := s.svc.AskInDocument(ctx, document, question)
	if err != nil {
		return toolError("ask failed", err), nil
	}
	return mcp.NewToolResultText(formatAnswer(ans)), nil
}

// Upload handles docqa_upload.
func (s *Server) Upload(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError("path argument is required and must be a string"), nil
	}
	name := request.GetString("name", filepath.Base(path))

	content, err := os.ReadFile(path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read %s: %v", path, err)), nil
	}

	res, err := s.uploader.UploadDocument(ctx, content, name)
	if err != nil {
		return toolError("upload failed", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Uploaded %s (%d bytes, %s, %d chunks)",
		res.SavedAs, res.SizeBytes, res.MIME, res.Chunks)), nil
}

// ListDocuments handles docqa_list_documents.
func (s *Server) ListDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docs, err := s.svc.ListDocuments()
	if err != nil {
		return toolError("list failed", err), nil
	}
	if len(docs) == 0 {
		return mcp.NewToolResultText("No documents uploaded."), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d documents:\n\n", len(docs))
	for _, d := range docs {
		fmt.Fprintf(&sb, "- %s (%s, %d bytes, %d chunks)\n", d.Name, d.MIME, d.SizeBytes, d.ChunkCount)
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// RenameDocument handles docqa_rename_document.
func (s *Server) RenameDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	oldName, err := request.RequireString("old_name")
	if err != nil {
		return mcp.NewToolResultError("old_name argument is required and must be a string"), nil
	}
	newName, err := request.RequireString("new_name")
	if err != nil {
		return mcp.NewToolResultError("new_name argument is required and must be a string"), nil
	}

	ok, err := s.svc.RenameDocument(oldName, newName)
	if err != nil {
		return toolError("rename failed", err), nil
	}
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("could not rename %s to %s: the document does not exist or the new name is taken", oldName, newName)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Renamed %s to %s", oldName, strings.TrimSpace(newName))), nil
}

// History handles docqa_history.
func (s *Server) History(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	entries, err := s.svc.ListHistory()
	if err != nil {
		return toolError("history failed", err), nil
	}

	limit := request.GetInt("limit", 20)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	if len(entries) == 0 {
		return mcp.NewToolResultText("No questions asked yet."), nil
	}

	var sb strings.Builder
	for _, e := range entries {
		writeEntry(&sb, e.ID, e.Question, e.Answer, e.Sources)
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// SearchHistory handles docqa_search_history.
func (s *Server) SearchHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("query argument is required and must be a string"), nil
	}

	var sb strings.Builder
	if request.GetBool("semantic", false) {
		results, err := s.svc.SearchHistorySemantic(ctx, query, 0)
		if err != nil {
			return toolError("history search failed", err), nil
		}
		for _, r := range results {
			fmt.Fprintf(&sb, "%.1f%% match\n", r.Score*100)
			writeEntry(&sb, r.Entry.ID, r.Entry.Question, r.Entry.Answer, r.Entry.Sources)
		}
	} else {
		entries, err := s.svc.SearchHistory(query)
		if err != nil {
			return toolError("history search failed", err), nil
		}
		for _, e := range entries {
			writeEntry(&sb, e.ID, e.Question, e.Answer, e.Sources)
		}
	}

	if sb.Len() == 0 {
		return mcp.NewToolResultText("No matching history."), nil
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func formatAnswer(ans *qa.Answer) string {
	if len(ans.Sources) == 0 {
		return ans.Answer
	}
	return fmt.Sprintf("%s\n\nSources: %s", ans.Answer, strings.Join(ans.Sources, ", "))
}

func writeEntry(sb *strings.Builder, id int64, question, answer, sources string) {
	if len(answer) > maxPreview {
		answer = answer[:maxPreview] + "..."
	}
	fmt.Fprintf(sb, "[%d] Q: %s\nA: %s\n", id, question, answer)
	if sources != "" {
		fmt.Fprintf(sb, "Sources: %s\n", sources)
	}
	sb.WriteString("\n")
}

// toolError turns a service error into a tool result. Processing failures
// are logged since the client only sees the message.
func toolError(prefix string, err error) *mcp.CallToolResult {
	switch errs.KindOf(err) {
	case errs.Validation, errs.NotFound:
		return mcp.NewToolResultError(err.Error())
	default:
		log.Error(prefix, "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("%s: %v", prefix, err))
	}
}
