package tabsqlctl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func newGetCommand(flags *rootFlags, name, short, path string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return flags.call(cmd, http.MethodGet, path, nil, "")
		},
	}
}

func newAskCommand(flags *rootFlags) *cobra.Command {
	var file, question, export string
	cmd := &cobra.Command{
		Use:   "ask",
		Short: "POST /v1/query: translate a question and run it against a file",
		Example: `  tabsqlctl ask --file sales.csv --question "top 5 regions by revenue"
  tabsqlctl ask --file sales.xlsx --question "sales in 2023" --export parquet`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return flags.upload(cmd, withExport("/v1/query", export), file, map[string]string{"question": question})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "CSV or Excel file to upload")
	cmd.Flags().StringVar(&question, "question", "", "question in plain language")
	cmd.Flags().StringVar(&export, "export", "", "also export the result (parquet)")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("question")
	return cmd
}

func newSQLCommand(flags *rootFlags) *cobra.Command {
	var file, sqlText, export string
	cmd := &cobra.Command{
		Use:   "sql",
		Short: "POST /v1/sql: run read-only SQL against a file (table df)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return flags.upload(cmd, withExport("/v1/sql", export), file, map[string]string{"sql": sqlText})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "CSV or Excel file to upload")
	cmd.Flags().StringVar(&sqlText, "sql", "", "SELECT statement to run")
	cmd.Flags().StringVar(&export, "export", "", "also export the result (parquet)")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("sql")
	return cmd
}

func newTranslateCommand(flags *rootFlags) *cobra.Command {
	var file, question string
	cmd := &cobra.Command{
		Use:   "translate",
		Short: "POST /v1/translate: show the SQL for a question without running it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return flags.upload(cmd, "/v1/translate", file, map[string]string{"question": question})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "CSV or Excel file to upload")
	cmd.Flags().StringVar(&question, "question", "", "question in plain language")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("question")
	return cmd
}

func newHistoryCommand(flags *rootFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "GET /v1/history: list recent queries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := "/v1/history"
			if limit > 0 {
				path += "?limit=" + strconv.Itoa(limit)
			}
			return flags.call(cmd, http.MethodGet, path, nil, "")
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of records")
	return cmd
}

func newExportCommand(flags *rootFlags) *cobra.Command {
	var output string
	var presign bool
	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "GET /v1/exports/{id}: download an exported result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/v1/exports/" + url.PathEscape(strings.TrimSpace(args[0]))
			if presign {
				return flags.call(cmd, http.MethodGet, path+"?presign=true", nil, "")
			}
			return flags.download(cmd, path, output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "file to write (default tabsql-<id>.parquet)")
	cmd.Flags().BoolVar(&presign, "presign", false, "print a presigned download link instead")
	return cmd
}

func withExport(path, format string) string {
	format = strings.TrimSpace(format)
	if format == "" {
		return path
	}
	return path + "?export=" + url.QueryEscape(format)
}

func (f *rootFlags) upload(cmd *cobra.Command, path, file string, fields map[string]string) error {
	body, contentType, err := multipartBody(file, fields)
	if err != nil {
		return failed("%v", err)
	}
	return f.call(cmd, http.MethodPost, path, body, contentType)
}

func (f *rootFlags) call(cmd *cobra.Command, method, path string, body io.Reader, contentType string) error {
	code, responseBody, err := f.do(cmd.Context(), method, path, body, contentType)
	if err != nil {
		return failed("request failed: %v", err)
	}
	if code >= 400 {
		return failed("http %d: %s", code, strings.TrimSpace(string(responseBody)))
	}
	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), pretty)
		return nil
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(responseBody))
	}
	return nil
}

func (f *rootFlags) download(cmd *cobra.Command, path, output string) error {
	code, responseBody, err := f.do(cmd.Context(), http.MethodGet, path, nil, "")
	if err != nil {
		return failed("request failed: %v", err)
	}
	if code >= 400 {
		return failed("http %d: %s", code, strings.TrimSpace(string(responseBody)))
	}
	if output == "" {
		output = "tabsql-" + filepath.Base(path) + ".parquet"
	}
	if err := os.WriteFile(output, responseBody, 0o644); err != nil {
		return failed("write %s: %v", output, err)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes to %s\n", len(responseBody), output)
	return nil
}

func (f *rootFlags) do(ctx context.Context, method, path string, body io.Reader, contentType string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, f.endpoint(path), body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if strings.TrimSpace(f.apiKey) != "" {
		req.Header.Set("X-API-Key", strings.TrimSpace(f.apiKey))
	}

	resp, err := f.httpClient().Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, responseBody, nil
}

func multipartBody(path string, fields map[string]string) (io.Reader, string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", fmt.Errorf("read %s: %w", path, err)
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, "", err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &buf, writer.FormDataContentType(), nil
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	// Indent keeps the server's key order, which for result rows is column order.
	var formatted bytes.Buffer
	if err := json.Indent(&formatted, bytes.TrimSpace(raw), "", "  "); err != nil {
		return "", false
	}
	return formatted.String(), true
}
