// Package renderer formats engine results as markdown, for the terminal or
// as an HTML page.
package renderer

import (
	"embed"
	"fmt"
	"io/fs"
	"strings"
	"text/template"

	portfolio "github.com/etnz/portfolio-tracker"
)

//go:embed templates/*.md
var templates embed.FS

var funcs = template.FuncMap{
	"join":        strings.Join,
	"incomeTypes": func() []portfolio.CashType { return portfolio.IncomeTypes },
}

// RenderPositions renders a valuation as a table of open positions.
func RenderPositions(v portfolio.Valuation) string {
	partials := map[string]string{
		"positions_table": "positions_table.md",
		"excluded":        "excluded.md",
	}
	return renderTemplate("positions", "positions.md", partials, v)
}

// RenderPnL renders a performance summary and its income breakdown.
func RenderPnL(s portfolio.PnLSummary) string {
	partials := map[string]string{
		"pnl_income": "pnl_income.md",
		"excluded":   "excluded.md",
	}
	return renderTemplate("pnl", "pnl.md", partials, s)
}

// RenderDashboard renders the dashboard stats of the portfolio named name.
func RenderDashboard(name string, d portfolio.DashboardStats) string {
	partials := map[string]string{
		"excluded": "excluded.md",
	}
	view := struct {
		portfolio.DashboardStats
		Name string
	}{d, name}
	return renderTemplate("dashboard", "dashboard.md", partials, view)
}

// renderTemplate is a generic utility to render a main template that depends on several partials.
func renderTemplate(templateName, mainFile string, partials map[string]string, data any) string {
	mainContent, err := fs.ReadFile(templates, "templates/"+mainFile)
	if err != nil {
		return fmt.Sprintf("error reading main template %q: %v", mainFile, err)
	}

	tmpl, err := template.New(templateName).Funcs(funcs).Parse(string(mainContent))
	if err != nil {
		return fmt.Sprintf("error parsing main template %q: %v", mainFile, err)
	}

	for name, file := range partials {
		content, err := fs.ReadFile(templates, "templates/"+file)
		if err != nil {
			return fmt.Sprintf("error reading partial template %q: %v", file, err)
		}
		if _, err := tmpl.New(name).Parse(string(content)); err != nil {
			return fmt.Sprintf("error parsing partial template %q for %q: %v", file, name, err)
		}
	}

	var b strings.Builder
	if err := tmpl.ExecuteTemplate(&b, templateName, data); err != nil {
		return fmt.Sprintf("error executing template %q: %v", templateName, err)
	}
	return b.String()
}
