package renderer

import (
	"fmt"
	"strings"

	portfolio "github.com/etnz/portfolio-tracker"
)

// AssetsMarkdown renders the declared assets, marking the ones held in v.
func AssetsMarkdown(assets []portfolio.Asset, v portfolio.Valuation) string {
	held := make(map[string]bool, len(v.Positions))
	for _, p := range v.Positions {
		held[p.Asset] = true
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# Assets\n\n")
	fmt.Fprintln(&b, "| Ticker | Held | Type | Currency | ID | Name |")
	fmt.Fprintln(&b, "|:---|:---:|:---|:---|:---|:---|")

	for _, a := range assets {
		mark := " "
		if held[a.ID] {
			mark = "X"
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s |\n",
			a.Ticker(),
			mark,
			a.Type,
			a.Currency,
			a.ID,
			a.Name,
		)
	}
	return b.String()
}
