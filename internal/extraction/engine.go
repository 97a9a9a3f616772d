package extraction

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// document is the pre-split view of the raw text every strategy reads.
type document struct {
	raw   string
	lines []string
}

func newDocument(rawText string) *document {
	raw := strings.ReplaceAll(rawText, "\r\n", "\n")
	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	return &document{raw: raw, lines: lines}
}

// strategy is one independent parsing pass. It reads the document and
// returns a partial receipt; it never sees what earlier strategies
// produced. The engine merges partials in priority order with
// fill-only-if-empty semantics.
type strategy func(doc *document) *StructuredReceipt

// The pipeline, in priority order: structured markup first, then the
// labeled line fields, then item-shaped lines, then loose
// document-wide patterns, and a last-resort item scan.
var strategies = []strategy{
	extractStructuredBlocks,
	extractLineFields,
	extractItemLines,
	extractDocumentWide,
	extractLooseItems,
}

// itemCodeNamespace seeds the UUIDv5 item codes. Codes are a pure
// function of store context, item position and normalized product
// name, so reprocessing identical text yields identical codes.
var itemCodeNamespace = uuid.MustParse("b5e7f7a4-3f11-4f6e-9b3a-57c9d2a6f0e1")

// Extract converts raw recognized text into a StructuredReceipt. It is
// a pure function of the text: no I/O, deterministic, and it never
// fails - fields that cannot be resolved stay empty and a diagnostic
// is appended to the receipt's Errors instead.
func Extract(rawText string) *StructuredReceipt {
	out := &StructuredReceipt{RawText: rawText}
	doc := newDocument(rawText)

	for _, s := range strategies {
		merge(out, s(doc))
	}

	if out.Totals.Currency == "" {
		out.Totals.Currency = "EUR"
	}
	finalizeItems(out)

	if len(out.Items) == 0 {
		out.Errors = append(out.Errors, "no line items recognized")
	}
	if out.Store.Name == "" {
		out.Errors = append(out.Errors, "store not identified")
	}
	if out.Metadata.Date == "" {
		out.Errors = append(out.Errors, "no date found")
	}
	if out.Totals.TotalAmount == nil {
		out.Errors = append(out.Errors, "no total amount found")
	}

	return out
}

// finalizeItems fills per-item defaults, infers brands and assigns
// deterministic, receipt-unique item codes.
func finalizeItems(r *StructuredReceipt) {
	for i := range r.Items {
		item := &r.Items[i]
		if item.Quantity == 0 {
			item.Quantity = 1
		}
		if item.Brand == "" {
			item.Brand = inferBrand(item.ProductName)
		}
		item.ItemCode = itemCode(r.Store.Name, i, item.ProductName)
		item.Matched = false
	}
}

// itemCode derives a stable code from the store, the item's position
// within the receipt and the normalized product name. The position
// keeps codes unique when a receipt lists the same product twice.
func itemCode(storeName string, index int, productName string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(productName)), " ")
	key := fmt.Sprintf("%s|%d|%s", strings.ToLower(storeName), index, normalized)
	return uuid.NewSHA1(itemCodeNamespace, []byte(key)).String()
}
