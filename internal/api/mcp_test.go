package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/marples/pdfinsight/internal/storage"
)

func newTestMCPDeps(t *testing.T) (MCPDeps, *storage.Store, *fakeAnalyzer) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	fake := &fakeAnalyzer{text: "mcp analysis result"}
	return MCPDeps{Store: store, Analyzer: fake}, store, fake
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

func TestMCPTool_UploadPDF(t *testing.T) {
	deps, store, _ := newTestMCPDeps(t)
	handler := mcpUploadPDF(deps)

	req := makeCallToolRequest("upload_pdf", map[string]interface{}{
		"filename": "report.pdf",
		"content":  base64.StdEncoding.EncodeToString(fixturePDF(t)),
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	docs, err := store.ListDocuments(10, 0)
	if err != nil {
		t.Fatalf("listing documents: %v", err)
	}
	if len(docs) != 1 || docs[0].Pages != 2 {
		t.Fatalf("docs = %+v, want one 2-page document", docs)
	}
}

func TestMCPTool_UploadPDF_InvalidBase64(t *testing.T) {
	deps, _, _ := newTestMCPDeps(t)
	handler := mcpUploadPDF(deps)

	req := makeCallToolRequest("upload_pdf", map[string]interface{}{
		"filename": "x.pdf",
		"content":  "%%%not-base64%%%",
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result for invalid base64")
	}
}

func TestMCPTool_UploadPDF_Unreadable(t *testing.T) {
	deps, _, _ := newTestMCPDeps(t)
	handler := mcpUploadPDF(deps)

	req := makeCallToolRequest("upload_pdf", map[string]interface{}{
		"filename": "x.pdf",
		"content":  base64.StdEncoding.EncodeToString([]byte("not a pdf")),
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result for unreadable PDF")
	}
}

func TestMCPTool_AnalyzeDocument(t *testing.T) {
	deps, store, fake := newTestMCPDeps(t)
	store.RecordPages("a.pdf", []string{"Alpha", "Beta"}, false)
	handler := mcpAnalyzeDocument(deps)

	req := makeCallToolRequest("analyze_document", map[string]interface{}{
		"instruction": "What is this about?",
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	if text := toolText(t, result); text != "mcp analysis result" {
		t.Errorf("text = %q, want fake response", text)
	}
	if fake.lastDocText != "Alpha Beta" {
		t.Errorf("analyzer saw %q, want joined page content", fake.lastDocText)
	}
}

func TestMCPTool_AnalyzeDocument_Validation(t *testing.T) {
	deps, store, _ := newTestMCPDeps(t)
	store.RecordPages("a.pdf", []string{"Alpha"}, false)
	handler := mcpAnalyzeDocument(deps)

	for name, args := range map[string]map[string]interface{}{
		"neither":        {},
		"both":           {"instruction": "x", "intent": "summarize"},
		"unknown intent": {"intent": "translate_to_klingon"},
	} {
		t.Run(name, func(t *testing.T) {
			result, err := handler(context.Background(), makeCallToolRequest("analyze_document", args))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !result.IsError {
				t.Fatal("expected error result")
			}
		})
	}
}

func TestMCPTool_AnalyzeDocument_NoContent(t *testing.T) {
	deps, _, _ := newTestMCPDeps(t)
	handler := mcpAnalyzeDocument(deps)

	req := makeCallToolRequest("analyze_document", map[string]interface{}{
		"instruction": "anything there?",
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result when nothing is stored")
	}
}

func TestMCPTool_ReadContent(t *testing.T) {
	deps, store, _ := newTestMCPDeps(t)
	store.RecordPages("a.pdf", []string{"Alpha"}, false)
	store.RecordPages("b.pdf", []string{"Beta"}, false)
	handler := mcpReadContent(deps)

	result, err := handler(context.Background(), makeCallToolRequest("read_content", map[string]interface{}{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text := toolText(t, result); text != "Alpha Beta" {
		t.Errorf("text = %q, want all content", text)
	}

	result, err = handler(context.Background(), makeCallToolRequest("read_content", map[string]interface{}{
		"filename": "b.pdf",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text := toolText(t, result); text != "Beta" {
		t.Errorf("text = %q, want b.pdf content", text)
	}
}

func TestMCPTool_ReadContent_NotFound(t *testing.T) {
	deps, _, _ := newTestMCPDeps(t)
	handler := mcpReadContent(deps)

	result, err := handler(context.Background(), makeCallToolRequest("read_content", map[string]interface{}{
		"filename": "missing.pdf",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result for unknown filename")
	}
}

func TestMCPTool_ListDocuments_Empty(t *testing.T) {
	deps, _, _ := newTestMCPDeps(t)
	handler := mcpListDocuments(deps)

	result, err := handler(context.Background(), makeCallToolRequest("list_documents", map[string]interface{}{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text := toolText(t, result); text != "[]" {
		t.Errorf("text = %q, want []", text)
	}
}

func TestMCPResource_Documents(t *testing.T) {
	deps, store, _ := newTestMCPDeps(t)
	store.RecordPages("a.pdf", []string{"Alpha", "Beta"}, false)

	handler := mcpResourceDocuments(deps)
	contents, err := handler(context.Background(), makeReadResourceRequest("docs://documents"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("expected 1 content, got %d", len(contents))
	}

	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}

	var entries []map[string]interface{}
	if err := json.Unmarshal([]byte(tc.Text), &entries); err != nil {
		t.Fatalf("parsing resource JSON: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 document, got %d", len(entries))
	}
	if entries[0]["filename"] != "a.pdf" {
		t.Errorf("filename = %v, want a.pdf", entries[0]["filename"])
	}
	if entries[0]["pages"] != float64(2) {
		t.Errorf("pages = %v, want 2", entries[0]["pages"])
	}
}
