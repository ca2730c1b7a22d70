package renderer

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	portfolio "github.com/etnz/portfolio-tracker"
)

// LedgerMarkdown lists trades and cash transactions in ledger order.
// assets resolves the asset of every trade.
func LedgerMarkdown(trades []portfolio.Trade, cash []portfolio.CashTransaction, assets map[string]portfolio.Asset) string {
	r := &logRenderer{Builder: &strings.Builder{}, assets: assets}
	r.Printf("# Ledger\n\n")
	trading := conditionalBlock(r, func(w io.Writer) bool {
		fmt.Fprintf(w, "## Trades\n\n")
		fmt.Fprintf(w, "| Seq | Date | Trade |\n")
		fmt.Fprintf(w, "|---:|:---|:---|\n")
		for _, t := range trades {
			fmt.Fprintf(w, "| %d | %s | %s |\n", t.Seq, t.Date, Trade(t, r.asset(t.Asset)))
		}
		fmt.Fprintln(w)
		return len(trades) > 0
	})
	moving := conditionalBlock(r, func(w io.Writer) bool {
		fmt.Fprintf(w, "## Cash\n\n")
		fmt.Fprintf(w, "| Seq | Date | Amount | Movement |\n")
		fmt.Fprintf(w, "|---:|:---|---:|:---|\n")
		for _, c := range cash {
			fmt.Fprintf(w, "| %d | %s | %s | %s |\n", c.Seq, c.Date, c.Net().SignedString(), Cash(c))
		}
		fmt.Fprintln(w)
		return len(cash) > 0
	})
	if !trading && !moving {
		r.Printf("The ledger is empty.\n")
	}
	return r.String()
}

// conditionalBlock writes block to a buffer and copies it to w only if block
// returns true. It reports whether the block was written.
func conditionalBlock(w io.Writer, block func(io.Writer) bool) bool {
	var buf bytes.Buffer
	if !block(&buf) {
		return false
	}
	io.Copy(w, &buf)
	return true
}

// logRenderer formats a ledger listing into a markdown string.
type logRenderer struct {
	*strings.Builder
	assets map[string]portfolio.Asset
}

// Printf formats according to a format specifier and writes to the renderer's buffer.
func (r *logRenderer) Printf(format string, args ...any) {
	fmt.Fprintf(r, format, args...)
}

// asset returns the asset id, or a placeholder named after the id.
func (r *logRenderer) asset(id string) portfolio.Asset {
	if a, ok := r.assets[id]; ok {
		return a
	}
	return portfolio.Asset{ID: id, Symbol: id}
}
