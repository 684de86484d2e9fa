package main

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marples/pdfinsight/internal/composer"
	"github.com/marples/pdfinsight/internal/config"
)

// --- upload ---

var uploadCmd = &cobra.Command{
	Use:   "upload <file.pdf>",
	Short: "Extract text from a PDF and store it page by page",
	Long: `Extract text from a PDF and store it page by page.

Examples:
  pdfinsight upload ./report.pdf
  pdfinsight upload ./report.pdf --name q3-report.pdf --replace`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		name, _ := cmd.Flags().GetString("name")
		replace, _ := cmd.Flags().GetBool("replace")

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading file: %w", err)
		}
		if name == "" {
			name = filepath.Base(path)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := map[string]any{
			"filename": name,
			"content":  base64.StdEncoding.EncodeToString(data),
			"replace":  replace,
		}
		resp, err := client.post(cmd.Context(), "/documents", req)
		if err != nil {
			return err
		}

		var result struct {
			Filename string `json:"filename"`
			Pages    int    `json:"pages"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Stored %d pages of %s", result.Pages, result.Filename)
		return nil
	},
}

func init() {
	uploadCmd.Flags().String("name", "", "store the document under this name (default: file basename)")
	uploadCmd.Flags().Bool("replace", false, "replace previously stored pages of the same name")
}

// --- analyze ---

var analyzeCmd = &cobra.Command{
	Use:   "analyze [instruction]",
	Short: "Ask the generative model about stored document content",
	Long: fmt.Sprintf(`Ask the generative model about stored document content.

Provide a free-form instruction, or pick a named intent with --intent.
Available intents: %s.

Examples:
  pdfinsight analyze "What are the payment terms?"
  pdfinsight analyze --intent summarize
  pdfinsight analyze --intent key_insights --file report.pdf`, strings.Join(composer.Intents(), ", ")),
	RunE: func(cmd *cobra.Command, args []string) error {
		intent, _ := cmd.Flags().GetString("intent")
		filename, _ := cmd.Flags().GetString("file")
		instruction := strings.Join(args, " ")

		if instruction == "" && intent == "" {
			return fmt.Errorf("provide an instruction or --intent")
		}
		if instruction != "" && intent != "" {
			return fmt.Errorf("an instruction and --intent are mutually exclusive")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := map[string]any{}
		if instruction != "" {
			req["instruction"] = instruction
		}
		if intent != "" {
			req["intent"] = intent
		}
		if filename != "" {
			req["filename"] = filename
		}

		resp, err := client.post(cmd.Context(), "/analyze", req)
		if err != nil {
			return err
		}

		var result struct {
			ID       string `json:"id"`
			Result   string `json:"result"`
			Status   string `json:"status"`
			Attempts int    `json:"attempts"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Println(result.Result)
		if result.Status == "failed" {
			printWarning("analysis failed after %d attempts (recorded as %s)", result.Attempts, result.ID)
		}
		return nil
	},
}

func init() {
	analyzeCmd.Flags().String("intent", "", "named analysis intent instead of a free-form instruction")
	analyzeCmd.Flags().String("file", "", "restrict the analysis to one stored document")
}

// --- content ---

var contentCmd = &cobra.Command{
	Use:   "content",
	Short: "Print the stored extracted text",
	RunE: func(cmd *cobra.Command, args []string) error {
		filename, _ := cmd.Flags().GetString("file")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := "/content"
		if filename != "" {
			path += "?filename=" + url.QueryEscape(filename)
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Println(result["content"])
		return nil
	},
}

func init() {
	contentCmd.Flags().String("file", "", "read one stored document instead of everything")
}

// --- documents ---

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "Manage stored documents",
}

var documentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/documents?limit=%d", limit))
		if err != nil {
			return err
		}

		var docs []struct {
			Filename    string `json:"filename"`
			Pages       int    `json:"pages"`
			ExtractedAt string `json:"extracted_at"`
		}
		if err := decodeJSON(resp, &docs); err != nil {
			return err
		}

		if len(docs) == 0 {
			fmt.Println("No documents stored.")
			return nil
		}

		for _, d := range docs {
			fmt.Printf("%s  %3d pages  %s\n",
				colorize(colorCyan, d.ExtractedAt),
				d.Pages,
				colorize(colorBold, d.Filename),
			)
		}
		return nil
	},
}

var documentsDeleteCmd = &cobra.Command{
	Use:   "delete <filename>",
	Short: "Delete all stored pages of a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/documents/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Deleted %s", args[0])
		return nil
	},
}

func init() {
	documentsListCmd.Flags().Int("limit", 20, "maximum number of documents to list")
	documentsCmd.AddCommand(documentsListCmd)
	documentsCmd.AddCommand(documentsDeleteCmd)
}

// --- analyses ---

var analysesCmd = &cobra.Command{
	Use:   "analyses",
	Short: "Manage analysis history",
}

var analysesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent analyses",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/analyses?limit=%d", limit))
		if err != nil {
			return err
		}

		var analyses []struct {
			ID          string `json:"id"`
			CreatedAt   string `json:"created_at"`
			Intent      string `json:"intent"`
			Instruction string `json:"instruction"`
			Status      string `json:"status"`
		}
		if err := decodeJSON(resp, &analyses); err != nil {
			return err
		}

		if len(analyses) == 0 {
			fmt.Println("No analyses recorded.")
			return nil
		}

		for _, a := range analyses {
			label := a.Instruction
			if a.Intent != "" {
				label = "intent:" + a.Intent
			}
			if len(label) > 80 {
				label = label[:80] + "..."
			}
			fmt.Printf("%s  %s  %-9s  %s\n",
				colorize(colorCyan, a.ID[:8]),
				a.CreatedAt,
				a.Status,
				label,
			)
		}
		return nil
	},
}

var analysesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single analysis",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/analyses/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}

		var analysis any
		if err := decodeJSON(resp, &analysis); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(analysis)
	},
}

var analysesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a recorded analysis",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/analyses/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Deleted analysis %s", args[0])
		return nil
	},
}

func init() {
	analysesListCmd.Flags().Int("limit", 20, "maximum number of analyses to list")
	analysesCmd.AddCommand(analysesListCmd)
	analysesCmd.AddCommand(analysesShowCmd)
	analysesCmd.AddCommand(analysesDeleteCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil && !errors.Is(err, config.ErrMissingAPIKey) {
			return err
		}

		for _, line := range config.ShowAll(cfg) {
			fmt.Printf("  %s\n", line)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a configuration value so the default applies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}

		printSuccess("Unset %s", args[0])
		return nil
	},
}

var configSetAPIKeyCmd = &cobra.Command{
	Use:   "set-api-key <key>",
	Short: "Store the Gemini API key in the platform secret store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.StoreGeminiKey(config.NewSecretStore(), args[0]); err != nil {
			return err
		}

		printSuccess("API key stored")
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
	configCmd.AddCommand(configSetAPIKeyCmd)
}
