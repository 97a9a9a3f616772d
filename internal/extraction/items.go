package extraction

import (
	"regexp"
	"strings"
)

// Item-shaped line patterns, tried in order. German receipts print
// either "name unit x qty total" or "name qty x unit total"; the two
// are told apart by which side of the x carries decimals.
var (
	// name, unit price, x, quantity, total: "G&G Gouda 1,99 € x 2 3,98 €"
	itemUnitQtyPattern = regexp.MustCompile(`^(.{2,60}?)\s+(\d{1,4}[.,]\d{2})\s*€?\s*[xX*]\s*(\d{1,3}(?:[.,]\d{1,3})?)\s+(\d{1,5}[.,]\d{2})\s*€?\s*[AB12]?\s*$`)
	// name, quantity, x, unit price, total: "Gouda 2 x 1,99 3,98"
	itemQtyUnitPattern = regexp.MustCompile(`^(.{2,60}?)\s+(\d{1,3}(?:[.,]\d{1,3})?)\s*[xX*]\s*(\d{1,4}[.,]\d{2})\s*€?\s+(\d{1,5}[.,]\d{2})\s*€?\s*[AB12]?\s*$`)
	// quantity, x, unit price on the line below the name: "2 x 1,99"
	qtyUnitOnlyPattern = regexp.MustCompile(`^\s*(\d{1,3}(?:[.,]\d{1,3})?)\s*[xX*]\s*(\d{1,4}[.,]\d{2})\s*€?\s*$`)
	// name and total price alone, optional tax class: "Butter 2,29 A"
	itemNamePricePattern = regexp.MustCompile(`^(.{2,60}?)\s+(\d{1,5}[.,]\d{2})\s*€?\s*-?\s*[AB12]?\s*$`)
)

// notProductPattern is the "likely not a product" dictionary: totals,
// tax, date, store, payment and fiscal keywords disqualify a line from
// item extraction.
var notProductPattern = regexp.MustCompile(`(?i)\b(summe|gesamt|zwischensumme|total|subtotal|mwst|ust|mehrwertsteuer|vat|tax|steuer|datum|date|uhrzeit|tel|telefon|fax|kasse|kassen|bediener|kassierer|terminal|pos|beleg|bon(?:nr)?|rechnung|quittung|danke|vielen dank|thank|willkommen|öffnungszeiten|rückgeld|gegeben|bar|karte|kartenzahlung|girocard|visa|mastercard|maestro|kredit|payback|punkte|tse|sig|ust-id|kundenbeleg|eur|posten|stück)\b`)

var pureNumericPattern = regexp.MustCompile(`^[\d\s.,:%€*#x-]+$`)

// structured-markup cues
var (
	tableRowPattern     = regexp.MustCompile(`^\s*\|?([^|]+)\|([^|]+)\|([^|]+)\|?\s*$`)
	tableRulePattern    = regexp.MustCompile(`^[\s|:-]+$`)
	boldNamePattern     = regexp.MustCompile(`^\s*\*\*(.+?)\*\*\s*$`)
	labeledQtyPattern   = regexp.MustCompile(`(?i)\b(?:menge|anzahl|qty|quantity)\b\s*[.:]?\s*(\d{1,3}(?:[.,]\d{1,3})?)`)
	labeledPricePattern = regexp.MustCompile(`(?i)\b(?:einzelpreis|preis|unit price|price)\b\s*[.:]?\s*(\d{1,5}[.,]\d{2})`)
	labeledTotalPattern = regexp.MustCompile(`(?i)\b(?:gesamt|summe|total)\b\s*[.:]?\s*(\d{1,5}[.,]\d{2})`)
	itemsHeadingPattern = regexp.MustCompile(`(?i)^\s*#*\s*(?:items purchased|ihre artikel|artikel|positionen|posten)\s*:?\s*$`)
	tableHeaderPattern  = regexp.MustCompile(`(?i)\b(?:artikel|produkt|item|bezeichnung|name)\b`)
)

// blockLookahead bounds how far past a markup cue the block scanner
// reads for the quantity/price details of one product.
const blockLookahead = 4

// extractStructuredBlocks is the first strategy: it scans for markup
// cues left by recognition backends that emit light structure -
// table-like rows, bold-emphasized product names followed by labeled
// quantity/price lines, and item section headings - and emits line
// items directly when a clear product/quantity/price group is found.
func extractStructuredBlocks(doc *document) *StructuredReceipt {
	out := &StructuredReceipt{}

	for i := 0; i < len(doc.lines); i++ {
		line := doc.lines[i]

		if m := tableRowPattern.FindStringSubmatch(line); m != nil {
			name := strings.TrimSpace(m[1])
			if tableRulePattern.MatchString(line) || tableHeaderPattern.MatchString(name) || name == "" {
				continue
			}
			qty := parseQuantity(strings.TrimSpace(m[2]))
			price := ParsePrice(strings.TrimSpace(m[3]))
			if price == nil {
				out.Errors = append(out.Errors, "table row without parseable price: "+name)
				continue
			}
			out.Items = append(out.Items, LineItem{
				ProductName: name,
				Quantity:    qty,
				TotalPrice:  price,
				LineText:    line,
			})
			continue
		}

		if m := boldNamePattern.FindStringSubmatch(line); m != nil {
			item := LineItem{ProductName: strings.TrimSpace(m[1]), Quantity: 1, LineText: line}
			for j := i + 1; j < len(doc.lines) && j <= i+blockLookahead; j++ {
				next := doc.lines[j]
				if qm := labeledQtyPattern.FindStringSubmatch(next); qm != nil {
					item.Quantity = parseQuantity(qm[1])
				}
				if pm := labeledPricePattern.FindStringSubmatch(next); pm != nil && item.UnitPrice == nil {
					item.UnitPrice = ParsePrice(pm[1])
				}
				if tm := labeledTotalPattern.FindStringSubmatch(next); tm != nil && item.TotalPrice == nil {
					item.TotalPrice = ParsePrice(tm[1])
				}
				if qm := qtyUnitOnlyPattern.FindStringSubmatch(next); qm != nil {
					item.Quantity = parseQuantity(qm[1])
					item.UnitPrice = ParsePrice(qm[2])
				}
			}
			if item.UnitPrice == nil && item.TotalPrice == nil {
				out.Errors = append(out.Errors, "emphasized name without price block: "+item.ProductName)
				continue
			}
			out.Items = append(out.Items, item)
			continue
		}

		if itemsHeadingPattern.MatchString(line) {
			for j := i + 1; j < len(doc.lines); j++ {
				next := doc.lines[j]
				if notProductPattern.MatchString(next) {
					break
				}
				item, ok := parseItemLine(next)
				if !ok {
					break
				}
				out.Items = append(out.Items, item)
			}
		}
	}

	return out
}

// extractItemLines is the third strategy, the item fallback: it only
// contributes when no items were found by the block scanner (merge
// drops its items otherwise), retrying every line against the
// item-shaped patterns with the not-a-product dictionary applied.
func extractItemLines(doc *document) *StructuredReceipt {
	out := &StructuredReceipt{}

	for _, line := range doc.lines {
		if excludedFromItems(line) {
			continue
		}
		item, ok := parseItemLine(line)
		if !ok {
			continue
		}
		out.Items = append(out.Items, item)
	}

	return out
}

// parseItemLine tests one line against the item-shaped patterns and
// builds a LineItem. Directly observed totals are kept over computed
// ones; OCR noise may make total differ from unit times quantity.
func parseItemLine(line string) (LineItem, bool) {
	if m := itemUnitQtyPattern.FindStringSubmatch(line); m != nil {
		return LineItem{
			ProductName: strings.TrimSpace(m[1]),
			UnitPrice:   ParsePrice(m[2]),
			Quantity:    parseQuantity(m[3]),
			TotalPrice:  ParsePrice(m[4]),
			LineText:    line,
		}, true
	}
	if m := itemQtyUnitPattern.FindStringSubmatch(line); m != nil {
		return LineItem{
			ProductName: strings.TrimSpace(m[1]),
			Quantity:    parseQuantity(m[2]),
			UnitPrice:   ParsePrice(m[3]),
			TotalPrice:  ParsePrice(m[4]),
			LineText:    line,
		}, true
	}
	if m := itemNamePricePattern.FindStringSubmatch(line); m != nil {
		name := strings.TrimSpace(m[1])
		if !looksLikeProductName(name) {
			return LineItem{}, false
		}
		return LineItem{
			ProductName: name,
			Quantity:    1,
			TotalPrice:  ParsePrice(m[2]),
			LineText:    line,
		}, true
	}
	return LineItem{}, false
}

// looseItemPattern accepts a bare product name with optional trailing
// quantity or price, for the last-resort scan.
var looseItemPattern = regexp.MustCompile(`^([A-Za-zÄÖÜäöüß&][\wÄÖÜäöüß&.\-\s\/%]{2,60}?)(?:\s+(\d{1,3})\s*(?:x|stk|st))?(?:\s+(\d{1,5}[.,]\d{2}))?\s*€?\s*$`)

// extractLooseItems is the fifth strategy, the last resort: it only
// contributes when every prior strategy left the item list empty,
// scanning each remaining non-header line for anything that looks
// like a product name, deduplicated by case-insensitive name.
func extractLooseItems(doc *document) *StructuredReceipt {
	out := &StructuredReceipt{}
	seen := make(map[string]bool)

	for _, line := range doc.lines {
		if excludedFromItems(line) {
			continue
		}
		m := looseItemPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name := strings.TrimSpace(m[1])
		if !looksLikeProductName(name) {
			continue
		}
		key := strings.ToLower(name)
		if seen[key] {
			continue
		}
		seen[key] = true

		item := LineItem{ProductName: name, Quantity: 1, LineText: line}
		if m[2] != "" {
			item.Quantity = parseQuantity(m[2])
		}
		if m[3] != "" {
			item.TotalPrice = ParsePrice(m[3])
		}
		out.Items = append(out.Items, item)
	}

	return out
}

// excludedFromItems applies the not-a-product checks: keyword
// dictionary, retailer names, all-caps header lines without digits,
// pure numeric lines, and lines that already parsed as dates.
func excludedFromItems(line string) bool {
	if notProductPattern.MatchString(line) {
		return true
	}
	upper := strings.ToUpper(line)
	for _, sc := range storeChains {
		if strings.Contains(upper, sc.keyword) {
			return true
		}
	}
	if pureNumericPattern.MatchString(line) {
		return true
	}
	for _, p := range datePatterns {
		if p.MatchString(line) {
			return true
		}
	}
	if line == strings.ToUpper(line) && line != strings.ToLower(line) && !strings.ContainsAny(line, "0123456789") {
		return true
	}
	return false
}

// looksLikeProductName filters out fragments too short or too
// symbol-heavy to be a product.
func looksLikeProductName(name string) bool {
	if len(name) < 3 {
		return false
	}
	letters := 0
	for _, r := range name {
		if ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || strings.ContainsRune("äöüÄÖÜß", r) {
			letters++
		}
	}
	return letters >= 3
}

// inferBrand is a best-effort prefix heuristic: the first capitalized
// token of the product name, empty when nothing fits.
func inferBrand(productName string) string {
	fields := strings.Fields(productName)
	if len(fields) == 0 {
		return ""
	}
	first := fields[0]
	r := []rune(first)
	if len(r) < 2 {
		return ""
	}
	if r[0] >= 'A' && r[0] <= 'Z' || strings.ContainsRune("ÄÖÜ", r[0]) {
		return strings.Trim(first, ".,")
	}
	return ""
}
