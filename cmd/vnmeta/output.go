package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// output holds global output settings and destinations.
type output struct {
	JSON  bool
	Quiet bool

	w    io.Writer
	errW io.Writer
}

func (o *output) stdout() io.Writer {
	if o.w == nil {
		return os.Stdout
	}
	return o.w
}

func (o *output) stderr() io.Writer {
	if o.errW == nil {
		return os.Stderr
	}
	return o.errW
}

// Result outputs data based on output config
func (o *output) Result(data any) {
	if !o.JSON {
		switch v := data.(type) {
		case string:
			_, _ = fmt.Fprintln(o.stdout(), v)
			return
		case []string:
			for _, s := range v {
				_, _ = fmt.Fprintln(o.stdout(), s)
			}
			return
		}
	}

	// JSON, and the fallback for complex types
	enc := json.NewEncoder(o.stdout())
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

// Table outputs tabular data
func (o *output) Table(headers []string, rows [][]string) {
	if o.JSON {
		result := make([]map[string]string, len(rows))
		for i, row := range rows {
			m := make(map[string]string)
			for j, h := range headers {
				if j < len(row) {
					m[h] = row[j]
				}
			}
			result[i] = m
		}
		o.Result(result)
		return
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	w := o.stdout()
	for i, h := range headers {
		_, _ = fmt.Fprintf(w, "%-*s  ", widths[i], h)
	}
	_, _ = fmt.Fprintln(w)
	for i := range headers {
		_, _ = fmt.Fprint(w, strings.Repeat("-", widths[i]), "  ")
	}
	_, _ = fmt.Fprintln(w)
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) {
				_, _ = fmt.Fprintf(w, "%-*s  ", widths[i], cell)
			}
		}
		_, _ = fmt.Fprintln(w)
	}
}

// Progress prints progress if not quiet or JSON mode
func (o *output) Progress(format string, args ...any) {
	if !o.Quiet && !o.JSON {
		_, _ = fmt.Fprintf(o.stdout(), format, args...)
	}
}

// Info prints info message if not quiet
func (o *output) Info(format string, args ...any) {
	if !o.Quiet {
		_, _ = fmt.Fprintf(o.stdout(), format, args...)
	}
}

// Error prints error to stderr
func (o *output) Error(format string, args ...any) {
	_, _ = fmt.Fprintf(o.stderr(), format, args...)
}
