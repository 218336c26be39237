package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/jguan/dockman/pkg/infra/docker"
)

type OutputFormat string

const (
	OutputTable OutputFormat = "table"
	OutputJSON  OutputFormat = "json"
	OutputYAML  OutputFormat = "yaml"
)

// ParseOutputFormat accepts table, json and yaml.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case OutputTable, OutputJSON, OutputYAML:
		return f, nil
	case "":
		return OutputTable, nil
	default:
		return "", fmt.Errorf("invalid output format %q (table, json, yaml)", s)
	}
}

type OutputOptions struct {
	Format    OutputFormat
	Quiet     bool
	Writer    io.Writer
	ErrWriter io.Writer
}

func NewOutputOptions() *OutputOptions {
	return &OutputOptions{
		Format:    OutputTable,
		Writer:    os.Stdout,
		ErrWriter: os.Stderr,
	}
}

// Table is the text rendering of a result. Structured formats marshal the
// underlying data instead.
type Table struct {
	Headers []string
	Rows    [][]string
}

func (t *Table) Append(cells ...string) {
	t.Rows = append(t.Rows, cells)
}

func FormatOutput(data any, table Table, format OutputFormat) (string, error) {
	switch format {
	case OutputJSON:
		return formatJSON(data)
	case OutputYAML:
		return formatYAML(data)
	default:
		return formatTable(table), nil
	}
}

func formatJSON(data any) (string, error) {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal JSON: %w", err)
	}
	return string(b) + "\n", nil
}

func formatYAML(data any) (string, error) {
	b, err := yaml.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("marshal YAML: %w", err)
	}
	return string(b), nil
}

func formatTable(t Table) string {
	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 0, 3, ' ', 0)
	if len(t.Headers) > 0 {
		fmt.Fprintln(w, strings.Join(t.Headers, "\t"))
	}
	for _, row := range t.Rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	w.Flush()
	return sb.String()
}

// PrintOutput writes data in the selected format. Table output uses table.
func PrintOutput(data any, table Table, opts *OutputOptions) error {
	if opts.Quiet {
		return nil
	}

	output, err := FormatOutput(data, table, opts.Format)
	if err != nil {
		return err
	}

	fmt.Fprint(opts.Writer, output)
	return nil
}

// errorEnvelope is the structured form of a failed command.
type errorEnvelope struct {
	Success bool      `json:"success" yaml:"success"`
	Error   errorBody `json:"error" yaml:"error"`
}

type errorBody struct {
	Kind       string `json:"kind,omitempty" yaml:"kind,omitempty"`
	Operation  string `json:"operation,omitempty" yaml:"operation,omitempty"`
	StatusCode int    `json:"status_code,omitempty" yaml:"status_code,omitempty"`
	Message    string `json:"message" yaml:"message"`
}

func describeError(err error) errorBody {
	var de *docker.Error
	if !errors.As(err, &de) {
		return errorBody{Message: err.Error()}
	}
	body := errorBody{
		Kind:       string(de.Kind),
		Operation:  de.Op,
		StatusCode: de.StatusCode,
	}
	switch {
	case de.Kind == docker.KindEngine:
		body.Message = de.EngineMessage()
	case de.Detail != "":
		body.Message = de.Detail
	case de.Cause != nil:
		body.Message = de.Cause.Error()
	}
	return body
}

// ErrorText renders err as "<Kind>: <message>" for classified errors.
func ErrorText(err error) string {
	body := describeError(err)
	switch {
	case body.Kind == "":
		return body.Message
	case body.Message == "":
		return body.Kind
	default:
		return body.Kind + ": " + body.Message
	}
}

func PrintError(err error, opts *OutputOptions) {
	switch opts.Format {
	case OutputJSON, OutputYAML:
		out, ferr := FormatOutput(errorEnvelope{Error: describeError(err)}, Table{}, opts.Format)
		if ferr == nil {
			fmt.Fprint(opts.ErrWriter, out)
			return
		}
	}
	fmt.Fprintf(opts.ErrWriter, "Error: %s\n", ErrorText(err))
}

func PrintSuccess(message string, opts *OutputOptions) {
	if opts.Quiet {
		return
	}

	switch opts.Format {
	case OutputJSON, OutputYAML:
		data := map[string]any{
			"success": true,
			"message": message,
		}
		out, err := FormatOutput(data, Table{}, opts.Format)
		if err == nil {
			fmt.Fprint(opts.Writer, out)
			return
		}
	}
	fmt.Fprintln(opts.Writer, message)
}
