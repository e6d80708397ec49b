// Command plugscrape-mcp exposes the plugscrape API as MCP tools over stdio.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/use-agent/plugscrape/models"
)

func main() {
	apiURL := os.Getenv("PLUGSCRAPE_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	outDir := os.Getenv("PLUGSCRAPE_MCP_OUTPUT_DIR")
	if outDir == "" {
		outDir = os.TempDir()
	}

	client := &apiClient{
		baseURL: strings.TrimRight(apiURL, "/"),
		apiKey:  os.Getenv("PLUGSCRAPE_API_KEY"),
		http:    &http.Client{Timeout: 120 * time.Second},
	}

	s := server.NewMCPServer(
		"plugscrape",
		"0.1.0",
		server.WithToolCapabilities(false),
	)

	exportTool := mcp.NewTool("export_plugins",
		mcp.WithDescription("Export the additional (non-core) plugins listed on a Moodle admin/plugins.php page. Text and markdown exports are returned inline; document (PDF) and spreadsheet exports are saved to disk and their path is returned."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("Address of the Moodle plugin overview page, e.g. https://lms.example.edu/admin/plugins.php"),
		),
		mcp.WithString("kind",
			mcp.Description("Output: 'text' (default, one component per line), 'document' (PDF table), 'markdown' or 'spreadsheet'"),
			mcp.Enum("text", "document", "markdown", "spreadsheet"),
		),
		mcp.WithString("language",
			mcp.Description("Language of headings and messages, e.g. 'en' or 'fr'. The choice is remembered by the server."),
		),
		mcp.WithString("cookie",
			mcp.Description("Cookie header sent with the page request, e.g. 'MoodleSession=...' of a logged-in administrator"),
		),
	)
	s.AddTool(exportTool, handleExport(client, outDir))

	languagesTool := mcp.NewTool("list_languages",
		mcp.WithDescription("List the languages the export headings and messages are available in."),
	)
	s.AddTool(languagesTool, handleLanguages(client))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func handleExport(client *apiClient, outDir string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		pageURL, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}
		req := models.ExportRequest{
			URL:  pageURL,
			Kind: request.GetString("kind", string(models.KindText)),
		}
		if cookie := request.GetString("cookie", ""); cookie != "" {
			req.Headers = map[string]string{"Cookie": cookie}
		}

		file, err := client.export(ctx, req, request.GetString("language", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		text, err := describeExport(file, outDir)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(text), nil
	}
}

// describeExport returns textual exports inline and writes binary ones to
// outDir.
func describeExport(file *exportFile, outDir string) (string, error) {
	header := fmt.Sprintf("%s: %d plugin(s)", file.Filename, file.Count)
	if strings.HasPrefix(file.MIMEType, "text/") {
		return header + "\n\n" + string(file.Content), nil
	}

	path := filepath.Join(outDir, filepath.Base(file.Filename))
	if err := os.WriteFile(path, file.Content, 0o644); err != nil {
		return "", fmt.Errorf("save %s: %w", file.Filename, err)
	}
	return header + "\nSaved to " + path, nil
}

func handleLanguages(client *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		resp, err := client.locales(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Languages: %s (default %s)",
			strings.Join(resp.Locales, ", "), resp.Default)), nil
	}
}
