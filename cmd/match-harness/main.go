// match-harness replays the thumbnail placement matcher over a JSON dump of
// extracted placements, printing per-placement geometry and scores. Useful
// for tuning the heuristics against real vendor invoices.
//
// Example:
//   go run ./cmd/match-harness --placements=placements.json --line_items=3
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/nine4-team/inventory_backend/importer"
)

func main() {
	var (
		placementsPath = flag.String("placements", "", "path to a JSON array of placements (required)")
		lineItemCount  = flag.Int("line_items", 0, "number of parsed line items (required)")
	)
	flag.Parse()

	if *placementsPath == "" || *lineItemCount <= 0 {
		fmt.Fprintln(os.Stderr, "missing required flags")
		flag.Usage()
		os.Exit(2)
	}

	raw, err := os.ReadFile(*placementsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read placements: %v\n", err)
		os.Exit(1)
	}
	var placements []importer.ImagePlacement
	if err := json.Unmarshal(raw, &placements); err != nil {
		fmt.Fprintf(os.Stderr, "parse placements: %v\n", err)
		os.Exit(1)
	}

	drafts := make([]importer.ItemDraft, *lineItemCount)
	for i := range drafts {
		drafts[i].SourceIndex = i
		drafts[i].Quantity = 1
	}

	result := importer.MatchThumbnails(drafts, placements)

	fmt.Printf("raw=%d afterFilter=%d survivors=%d assigned=%d\n",
		result.Debug.RawCount, result.Debug.AfterFilter,
		result.Debug.SurvivorCount, result.Debug.AssignedCount)
	for _, w := range result.Warnings {
		fmt.Printf("warning: %s\n", w)
	}
	for _, p := range result.Debug.Placements {
		status := "kept"
		if p.Dropped {
			status = "dropped (" + p.Reason + ")"
		}
		fmt.Printf("  #%d page=%d w=%.1f h=%.1f aspect=%.2f score=%d %s\n",
			p.Index, p.Page, p.Width, p.Height, p.Aspect, p.Score, status)
	}
	for _, d := range result.Drafts {
		if d.Template.Thumbnail != nil {
			fmt.Printf("draft sourceIndex=%d thumbnail=%s (%d bytes)\n",
				d.SourceIndex, d.Template.Thumbnail.Name, len(d.Template.Thumbnail.Data))
		}
	}
}
