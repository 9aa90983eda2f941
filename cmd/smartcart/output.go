package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/matheus3301/smartcart/internal/model"
	"github.com/matheus3301/smartcart/internal/offline"
	"github.com/shopspring/decimal"
)

type output struct {
	json bool
}

// emit writes v as JSON when --json is set, otherwise calls text.
func (o *output) emit(v any, text func()) {
	if o.json {
		outputJSON(v)
		return
	}
	text()
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}

func table(header ...string) *tabwriter.Writer {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(header, "\t"))
	return w
}

// queued turns a queued write into a notice on stderr. The local change
// stands, so the command still succeeds.
func queued(err error) error {
	if err == nil {
		return nil
	}
	if offline.IsQueued(err) {
		fmt.Fprintf(os.Stderr, "saved locally, will sync later (%v)\n", err)
		return nil
	}
	return err
}

func pending(id string) string {
	if model.IsTempID(id) {
		return id + " (pending)"
	}
	return id
}

func money(d decimal.NullDecimal) string {
	if !d.Valid {
		return "-"
	}
	return d.Decimal.StringFixed(2)
}

func day(t time.Time) string { return t.Format(time.DateOnly) }

func optional(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
