package tabsqlctl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

// commandError marks failures that happened after argument parsing, so they
// exit 1 rather than the usage code 2.
type commandError struct {
	err error
}

func (e *commandError) Error() string { return e.err.Error() }
func (e *commandError) Unwrap() error { return e.err }

func failed(format string, args ...any) error {
	return &commandError{err: fmt.Errorf(format, args...)}
}

// Run executes tabsqlctl with args and returns the process exit code.
func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	root := NewRootCommand(defaults)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		var cmdErr *commandError
		if errors.As(err, &cmdErr) {
			_, _ = fmt.Fprintln(stderr, cmdErr.Error())
			return 1
		}
		_, _ = fmt.Fprintf(stderr, "%v\n\n", err)
		_, _ = fmt.Fprint(stderr, root.UsageString())
		return 2
	}
	return 0
}

type rootFlags struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	client  *http.Client
}

func (f *rootFlags) httpClient() *http.Client {
	if f.client != nil {
		return f.client
	}
	return &http.Client{Timeout: f.timeout}
}

func (f *rootFlags) endpoint(path string) string {
	return strings.TrimRight(f.baseURL, "/") + path
}

func NewRootCommand(defaults Options) *cobra.Command {
	flags := &rootFlags{client: defaults.HTTPClient}

	cmd := &cobra.Command{
		Use:           "tabsqlctl",
		Short:         "Ask questions of CSV and Excel files through a tabsql server or locally",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&flags.baseURL, "base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "tabsql API base URL")
	cmd.PersistentFlags().StringVar(&flags.apiKey, "api-key", defaults.APIKey, "API key for authenticated requests")
	cmd.PersistentFlags().DurationVar(&flags.timeout, "timeout", durationOr(defaults.Timeout, 30*time.Second), "HTTP timeout (e.g. 10s)")

	cmd.AddCommand(newGetCommand(flags, "health", "GET /v1/health", "/v1/health"))
	cmd.AddCommand(newGetCommand(flags, "ready", "GET /v1/ready", "/v1/ready"))
	cmd.AddCommand(newAskCommand(flags))
	cmd.AddCommand(newSQLCommand(flags))
	cmd.AddCommand(newTranslateCommand(flags))
	cmd.AddCommand(newHistoryCommand(flags))
	cmd.AddCommand(newExportCommand(flags))
	cmd.AddCommand(newLocalCommand())
	return cmd
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
