package importer

import (
	"fmt"
	"sort"

	"github.com/nine4-team/inventory_backend/utils"
)

// Header/decorative filter thresholds (first page only). Vendor invoice
// headers and logos are wide-and-flat or tiny, and always anchored to the
// top of page one; genuine item thumbnails are not.
const (
	headerBandHeight  = 180.0
	headerWideWidth   = 140.0
	headerWideAspect  = 2.2
	headerShortHeight = 70.0
)

// Desirability score weights. Item thumbnails on vendor invoices are
// near-square, at least medium sized, and sit in the left column.
const (
	areaMedium       = 4000.0
	areaLarge        = 9000.0
	solidDimension   = 40.0
	leftColumnXMax   = 240.0
	aspectSquareLow  = 0.7
	aspectSquareHigh = 1.5
	aspectExtremeLow = 0.5
	// aspectExtremeHigh shares headerWideAspect (2.2).
	page1HighYMax  = 650.0
	noiseDimension = 35.0

	scoreAreaMedium    = 2
	scoreAreaLarge     = 1
	scoreSolidDims     = 1
	scoreLeftColumn    = 1
	scoreNearSquare    = 2
	scoreExtremeAspect = -3
	scorePage1High     = -4
	scoreNoiseDims     = -2
)

// PlacementDebug records one placement's geometry and scoring outcome.
type PlacementDebug struct {
	Index   int     `json:"index"`
	Page    int     `json:"page"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
	Aspect  float64 `json:"aspect"`
	Score   int     `json:"score"`
	Dropped bool    `json:"dropped"`
	Reason  string  `json:"reason,omitempty"`
}

// MatchDebug is the per-stage diagnostic payload for a matching run.
type MatchDebug struct {
	RawCount      int              `json:"rawCount"`
	AfterFilter   int              `json:"afterFilter"`
	SurvivorCount int              `json:"survivorCount"`
	AssignedCount int              `json:"assignedCount"`
	Placements    []PlacementDebug `json:"placements"`
}

// MatchResult carries the drafts (with thumbnails attached where matched),
// human-readable warnings, and the debug payload.
type MatchResult struct {
	Drafts   []ItemDraft `json:"drafts"`
	Warnings []string    `json:"warnings,omitempty"`
	Debug    MatchDebug  `json:"debug"`
}

// MatchThumbnails assigns extracted image placements to drafts by source
// order: decorative header images are filtered out, survivors are scored,
// the lowest-scoring excess is dropped so survivors never outnumber line
// items, and the Nth surviving placement (in document order) becomes the
// thumbnail of the draft whose SourceIndex equals N. This step never fails;
// it degrades to "no thumbnail" and emits warnings.
func MatchThumbnails(drafts []ItemDraft, placements []ImagePlacement) MatchResult {
	result := MatchResult{Drafts: drafts}
	result.Debug.RawCount = len(placements)

	if len(placements) == 0 {
		result.Warnings = append(result.Warnings, "no thumbnails detected in document")
		return result
	}

	type candidate struct {
		placement ImagePlacement
		index     int
		score     int
	}

	var candidates []candidate
	for i, p := range placements {
		dbg := PlacementDebug{
			Index:  i,
			Page:   p.Page,
			Width:  p.Width(),
			Height: p.Height(),
			Aspect: p.AspectRatio(),
		}
		if isDecorativeHeader(p) {
			dbg.Dropped = true
			dbg.Reason = "page-1 header band"
			result.Debug.Placements = append(result.Debug.Placements, dbg)
			continue
		}
		score := scorePlacement(p)
		dbg.Score = score
		result.Debug.Placements = append(result.Debug.Placements, dbg)
		candidates = append(candidates, candidate{placement: p, index: i, score: score})
	}
	result.Debug.AfterFilter = len(candidates)

	// Normalize to the line-item count: drop the lowest-scoring excess,
	// ties broken by original index ascending (lowest index dropped first).
	if len(candidates) > len(drafts) {
		order := make([]int, len(candidates))
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool {
			ca, cb := candidates[order[a]], candidates[order[b]]
			if ca.score != cb.score {
				return ca.score < cb.score
			}
			return ca.index < cb.index
		})
		dropped := make(map[int]bool)
		for _, idx := range order[:len(candidates)-len(drafts)] {
			dropped[idx] = true
			for di := range result.Debug.Placements {
				if result.Debug.Placements[di].Index == candidates[idx].index {
					result.Debug.Placements[di].Dropped = true
					result.Debug.Placements[di].Reason = "low score"
				}
			}
		}
		kept := candidates[:0]
		for i, c := range candidates {
			if !dropped[i] {
				kept = append(kept, c)
			}
		}
		candidates = kept
	}
	result.Debug.SurvivorCount = len(candidates)

	if len(candidates) != len(drafts) {
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"detected %d item photos for %d line items; unmatched items will have no photo",
			len(candidates), len(drafts)))
	}

	// Assignment is strictly by document order: the Nth survivor attaches to
	// the draft whose SourceIndex equals N.
	bySourceIndex := make(map[int]int, len(drafts))
	for di := range drafts {
		bySourceIndex[drafts[di].SourceIndex] = di
	}
	assigned := 0
	for n, c := range candidates {
		di, ok := bySourceIndex[n]
		if !ok {
			continue
		}
		thumb := placementAsset(c.placement, c.index)
		drafts[di].Template.Thumbnail = &thumb
		assigned++
	}
	result.Debug.AssignedCount = assigned

	return result
}

// isDecorativeHeader drops page-1 placements whose top edge reaches the
// header band and whose shape is header-like: unusually wide, flat, or
// unusually short. Without a page height the band cannot be located, so the
// placement is kept and left to the scoring pass.
func isDecorativeHeader(p ImagePlacement) bool {
	if p.Page != 1 || p.PageHeight <= 0 {
		return false
	}
	if p.YMax < p.PageHeight-headerBandHeight {
		return false
	}
	return p.Width() >= headerWideWidth ||
		p.AspectRatio() >= headerWideAspect ||
		p.Height() <= headerShortHeight
}

func scorePlacement(p ImagePlacement) int {
	score := 0
	if p.Area() >= areaMedium {
		score += scoreAreaMedium
	}
	if p.Area() >= areaLarge {
		score += scoreAreaLarge
	}
	if p.Width() >= solidDimension && p.Height() >= solidDimension {
		score += scoreSolidDims
	}
	if p.XMin <= leftColumnXMax {
		score += scoreLeftColumn
	}
	aspect := p.AspectRatio()
	if aspect >= aspectSquareLow && aspect <= aspectSquareHigh {
		score += scoreNearSquare
	}
	if aspect >= headerWideAspect || aspect <= aspectExtremeLow {
		score += scoreExtremeAspect
	}
	if p.Page == 1 && p.YMax >= page1HighYMax {
		score += scorePage1High
	}
	if p.Width() < noiseDimension || p.Height() < noiseDimension {
		score += scoreNoiseDims
	}
	return score
}

func placementAsset(p ImagePlacement, originalIndex int) AssetFile {
	mime := utils.DetectMimeType("", p.Data)
	ext := ".img"
	switch mime {
	case "image/jpeg":
		ext = ".jpg"
	case "image/png":
		ext = ".png"
	case "image/gif":
		ext = ".gif"
	}
	return AssetFile{
		Name:     fmt.Sprintf("thumbnail-%03d%s", originalIndex, ext),
		MimeType: mime,
		Size:     int64(len(p.Data)),
		Data:     p.Data,
	}
}
