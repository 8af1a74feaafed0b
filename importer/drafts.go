package importer

import (
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nine4-team/inventory_backend/utils"
)

const genericImportNote = "imported from invoice"

// BuildItemDrafts turns parsed line items into reviewable drafts. Bad or
// missing fields normalize to safe defaults instead of failing the import;
// the user reviews the drafts before anything is persisted.
func BuildItemDrafts(lineItems []LineItem) []ItemDraft {
	drafts := make([]ItemDraft, 0, len(lineItems))
	for _, li := range lineItems {
		drafts = append(drafts, buildDraft(li))
	}
	return drafts
}

func buildDraft(li LineItem) ItemDraft {
	qty := draftQuantity(li.Quantity)
	qtyDec := decimal.NewFromInt(int64(qty))

	return ItemDraft{
		Quantity:    qty,
		SourceIndex: li.SourceIndex,
		Template: DraftTemplate{
			Description:   strings.TrimSpace(li.Description),
			Sku:           strings.TrimSpace(li.Sku),
			PurchasePrice: perUnitPrice(li, qtyDec).StringFixed(2),
			TaxAmount:     utils.MoneyFromString(li.Tax).Div(qtyDec).StringFixed(2),
			Notes:         draftNotes(li),
		},
	}
}

func draftQuantity(parsed float64) int {
	if math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return 1
	}
	q := int(math.Floor(parsed))
	if q < 1 {
		return 1
	}
	return q
}

// perUnitPrice prefers an explicit unit price (adjusted by per-unit
// adjustment and shipping), then total divided by quantity, then zero.
func perUnitPrice(li LineItem, qty decimal.Decimal) decimal.Decimal {
	if raw := strings.TrimSpace(li.UnitPrice); raw != "" {
		if unit, err := decimal.NewFromString(raw); err == nil {
			adjustment := utils.MoneyFromString(li.Adjustment).Div(qty)
			shipping := utils.MoneyFromString(li.Shipping).Div(qty)
			return unit.Sub(adjustment).Add(shipping)
		}
	}
	if total, err := decimal.NewFromString(strings.TrimSpace(li.Total)); err == nil {
		return total.Div(qty)
	}
	return decimal.Zero
}

func draftNotes(li LineItem) string {
	var notes []string
	if shipped := strings.TrimSpace(li.ShippedOnDate); shipped != "" {
		notes = append(notes, "shipped on "+shipped)
	}
	if li.Section == SectionToBeShipped {
		notes = append(notes, "to be shipped")
	}

	// Explicit attribute lines take priority over discrete color/size fields.
	attrs := make([]string, 0, len(li.AttributeLines))
	for _, line := range li.AttributeLines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			attrs = append(attrs, trimmed)
		}
	}
	if len(attrs) == 0 {
		if color := strings.TrimSpace(li.Color); color != "" {
			attrs = append(attrs, color)
		}
		if size := strings.TrimSpace(li.Size); size != "" {
			attrs = append(attrs, size)
		}
	}
	notes = append(notes, utils.UniqueSlice(attrs)...)

	if len(notes) == 0 {
		return genericImportNote
	}
	return strings.Join(notes, "; ")
}

// ExpandDrafts explodes each draft into Quantity ExpandedDraftRecords (at
// least one), each with a fresh id and its own copy of the template. The returned side map
// gives each unit an independently owned image file list, since several
// units trace back to one draft but must not share file slices.
func ExpandDrafts(drafts []ItemDraft) ([]ExpandedDraftRecord, map[string][]AssetFile) {
	var records []ExpandedDraftRecord
	filesByID := make(map[string][]AssetFile)

	for _, draft := range drafts {
		// Drafts normally arrive from the builder with quantity >= 1, but the
		// confirm endpoint accepts client-edited drafts; treat anything less
		// as one unit rather than silently expanding to nothing.
		qty := draft.Quantity
		if qty < 1 {
			qty = 1
		}
		for i := 0; i < qty; i++ {
			id := uuid.NewString()
			record := ExpandedDraftRecord{
				ID:       id,
				GroupKey: groupKeyFor(draft.Template, id),
				Template: copyTemplate(draft.Template),
			}
			records = append(records, record)
			filesByID[id] = unitImageFiles(record.Template)
		}
	}
	return records, filesByID
}

// groupKeyFor is stable for identical normalized SKU + per-unit price pairs.
// SKU-less units get a key derived from their own id so they never group,
// not even with each other.
func groupKeyFor(tpl DraftTemplate, recordID string) string {
	sku := strings.ToLower(strings.TrimSpace(tpl.Sku))
	if sku == "" {
		return "nosku:" + recordID
	}
	return "sku:" + sku + "|" + utils.NormalizeMoney(tpl.PurchasePrice)
}

func copyTemplate(tpl DraftTemplate) DraftTemplate {
	out := tpl
	if len(tpl.Images) > 0 {
		out.Images = append([]AssetFile(nil), tpl.Images...)
	}
	if len(tpl.Files) > 0 {
		out.Files = append([]AssetFile(nil), tpl.Files...)
	}
	return out
}

func unitImageFiles(tpl DraftTemplate) []AssetFile {
	var files []AssetFile
	if tpl.Thumbnail != nil {
		files = append(files, *tpl.Thumbnail)
	}
	files = append(files, tpl.Images...)
	return files
}
