package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/marples/pdfinsight/internal/extract"
	"github.com/marples/pdfinsight/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store    *storage.Store
	Analyzer DocumentAnalyzer
}

// NewMCPServer creates an MCP server exposing the document store and the
// analysis engine as tools, for use by MCP-speaking assistants over stdio.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"pdfinsight",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("pdfinsight — extract text from PDF documents and answer questions about them with a generative model."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("upload_pdf",
			mcp.WithDescription("Extract text from a PDF (base64-encoded bytes) and store it page by page for later analysis."),
			mcp.WithString("filename", mcp.Description("Name to store the document under"), mcp.Required()),
			mcp.WithString("content", mcp.Description("Base64-encoded PDF bytes"), mcp.Required()),
			mcp.WithBoolean("replace", mcp.Description("Replace previously stored pages of the same filename instead of appending")),
		),
		mcpUploadPDF(deps),
	)

	s.AddTool(
		mcp.NewTool("analyze_document",
			mcp.WithDescription("Ask the generative model a question about stored document content. Provide either a free-form instruction or a named intent (summarize, document_information, step_by_step_explanation, key_insights)."),
			mcp.WithString("instruction", mcp.Description("Free-form question or instruction")),
			mcp.WithString("intent", mcp.Description("Named analysis intent")),
			mcp.WithString("filename", mcp.Description("Restrict the analysis to one stored document")),
		),
		mcpAnalyzeDocument(deps),
	)

	s.AddTool(
		mcp.NewTool("read_content",
			mcp.WithDescription("Return the stored extracted text, across all documents or for one filename."),
			mcp.WithString("filename", mcp.Description("Optional filename to read")),
		),
		mcpReadContent(deps),
	)

	s.AddTool(
		mcp.NewTool("list_documents",
			mcp.WithDescription("List stored documents with page counts."),
		),
		mcpListDocuments(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"docs://documents",
			"Stored Documents",
			mcp.WithResourceDescription("Stored documents with page counts and extraction timestamps, as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceDocuments(deps),
	)

	return s
}

func mcpUploadPDF(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		filename, err := req.RequireString("filename")
		if err != nil {
			return mcpError("filename is required"), nil
		}
		content, err := req.RequireString("content")
		if err != nil {
			return mcpError("content is required"), nil
		}
		replace := req.GetBool("replace", false)

		data, err := base64.StdEncoding.DecodeString(content)
		if err != nil {
			return mcpError("content must be base64-encoded PDF bytes"), nil
		}

		doc, err := extract.Extract(filename, data)
		if errors.Is(err, extract.ErrUnreadable) {
			return mcpError(fmt.Sprintf("unreadable PDF: %v", err)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("extracting text: %v", err)), nil
		}

		if err := deps.Store.RecordPages(doc.Filename, doc.Pages, replace); err != nil {
			return mcpError(fmt.Sprintf("storing pages: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Stored %d pages of %s", len(doc.Pages), doc.Filename)), nil
	}
}

func mcpAnalyzeDocument(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		instruction := req.GetString("instruction", "")
		intent := req.GetString("intent", "")
		filename := req.GetString("filename", "")

		if instruction == "" && intent == "" {
			return mcpError("one of instruction or intent is required"), nil
		}
		if instruction != "" && intent != "" {
			return mcpError("instruction and intent are mutually exclusive"), nil
		}

		content, err := readStoredContent(deps.Store, filename)
		if err != nil {
			return mcpError(err.Error()), nil
		}
		if content == "" {
			return mcpError("no document content stored; upload a PDF first"), nil
		}

		if intent != "" {
			res, err := deps.Analyzer.AnalyzeIntent(ctx, intent, content)
			if err != nil {
				return mcpError(err.Error()), nil
			}
			return mcpText(res.Text), nil
		}

		res := deps.Analyzer.Analyze(ctx, instruction, content)
		return mcpText(res.Text), nil
	}
}

func mcpReadContent(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		filename := req.GetString("filename", "")

		content, err := readStoredContent(deps.Store, filename)
		if err != nil {
			return mcpError(err.Error()), nil
		}
		return mcpText(content), nil
	}
}

func mcpListDocuments(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		docs, err := deps.Store.ListDocuments(100, 0)
		if err != nil {
			return mcpError(fmt.Sprintf("listing documents: %v", err)), nil
		}
		if len(docs) == 0 {
			return mcpText("[]"), nil
		}

		b, err := json.Marshal(docs)
		if err != nil {
			return mcpError(fmt.Sprintf("marshaling documents: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceDocuments(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		docs, err := deps.Store.ListDocuments(100, 0)
		if err != nil {
			return nil, fmt.Errorf("listing documents: %w", err)
		}

		type docEntry struct {
			Filename    string `json:"filename"`
			Pages       int    `json:"pages"`
			ExtractedAt string `json:"extracted_at"`
		}
		entries := make([]docEntry, len(docs))
		for i, d := range docs {
			entries[i] = docEntry{
				Filename:    d.Filename,
				Pages:       d.Pages,
				ExtractedAt: d.ExtractedAt.Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(entries)
		if err != nil {
			return nil, fmt.Errorf("marshaling documents: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

// readStoredContent reads joined page content for one filename, or across
// all documents when filename is empty.
func readStoredContent(store *storage.Store, filename string) (string, error) {
	if filename == "" {
		content, err := store.ReadAllContent()
		if err != nil {
			return "", fmt.Errorf("reading content: %w", err)
		}
		return content, nil
	}
	content, err := store.ReadDocumentContent(filename)
	if errors.Is(err, storage.ErrNotFound) {
		return "", fmt.Errorf("document %q not found", filename)
	}
	if err != nil {
		return "", fmt.Errorf("reading content: %w", err)
	}
	return content, nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
