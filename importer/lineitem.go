package importer

// Section tags assigned by the vendor line-item parser.
const (
	SectionShipped     = "shipped"
	SectionToBeShipped = "to_be_shipped"
)

// LineItem is one row parsed out of a vendor invoice by the external
// vendor-grammar parser. Immutable once parsed; SourceIndex is the
// zero-based position of the row in the parsed document and is the only
// correlation key back to the source.
type LineItem struct {
	Description    string   `json:"description"`
	Sku            string   `json:"sku"`
	Quantity       float64  `json:"quantity"`
	UnitPrice      string   `json:"unitPrice"`
	Total          string   `json:"total"`
	Shipping       string   `json:"shipping"`
	Adjustment     string   `json:"adjustment"`
	Tax            string   `json:"tax"`
	Color          string   `json:"color"`
	Size           string   `json:"size"`
	AttributeLines []string `json:"attributeLines"`
	Section        string   `json:"section"`
	ShippedOnDate  string   `json:"shippedOnDate"`
	SourceIndex    int      `json:"sourceIndex"`
}

// ImagePlacement is one embedded image extracted from the source document:
// its page, bounding box, page height and raw bytes. Coordinates are
// PDF-style (y grows upward from the page bottom). Read-only.
type ImagePlacement struct {
	Page       int     `json:"page"`
	XMin       float64 `json:"xMin"`
	XMax       float64 `json:"xMax"`
	YMin       float64 `json:"yMin"`
	YMax       float64 `json:"yMax"`
	PageHeight float64 `json:"pageHeight"`
	Data       []byte  `json:"data"`
}

func (p ImagePlacement) Width() float64  { return p.XMax - p.XMin }
func (p ImagePlacement) Height() float64 { return p.YMax - p.YMin }

// AspectRatio is width over height; zero-height placements report 0.
func (p ImagePlacement) AspectRatio() float64 {
	h := p.Height()
	if h <= 0 {
		return 0
	}
	return p.Width() / h
}

func (p ImagePlacement) Area() float64 { return p.Width() * p.Height() }

// AssetFile is one binary asset awaiting upload.
type AssetFile struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
	Data     []byte `json:"data"`
}

// DraftTemplate holds the per-unit fields stamped onto each expanded copy.
type DraftTemplate struct {
	Description   string      `json:"description"`
	Sku           string      `json:"sku"`
	PurchasePrice string      `json:"purchasePrice"`
	TaxAmount     string      `json:"taxAmount"`
	Notes         string      `json:"notes"`
	Thumbnail     *AssetFile  `json:"thumbnail,omitempty"`
	Images        []AssetFile `json:"images,omitempty"`
	Files         []AssetFile `json:"files,omitempty"`
}

// ItemDraft is one reviewable row that will become Quantity persisted items.
// Created once by the builder; the matcher may set Template.Thumbnail once;
// the expansion step consumes it read-only.
type ItemDraft struct {
	Quantity    int           `json:"quantity"`
	SourceIndex int           `json:"sourceIndex"`
	Template    DraftTemplate `json:"template"`
}

// ExpandedDraftRecord is one physical unit, produced by exploding an
// ItemDraft by its quantity.
type ExpandedDraftRecord struct {
	ID       string        `json:"id"`
	GroupKey string        `json:"groupKey"`
	Template DraftTemplate `json:"template"`
}
