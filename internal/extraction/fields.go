package extraction

import (
	"regexp"
	"strings"
)

// datePatterns are tried in fixed priority order: day-first dotted
// (German), day-first slashed, ISO, then two-digit-year dotted.
var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(\d{2}\.\d{2}\.\d{4})\b`),
	regexp.MustCompile(`\b(\d{2}/\d{2}/\d{4})\b`),
	regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`),
	regexp.MustCompile(`\b(\d{2}\.\d{2}\.\d{2})\b`),
}

var timePattern = regexp.MustCompile(`\b([01]?\d|2[0-3]):[0-5]\d\b`)

var eurPattern = regexp.MustCompile(`\bEUR\b`)

// pricePattern matches one money amount with two decimals, comma or
// dot separated, optional trailing minus on refund lines.
var pricePattern = regexp.MustCompile(`(\d{1,6}[.,]\d{2})\s*-?`)

// storeChains is the fixed retailer dictionary, matched
// case-insensitively against every line; the first hit sets both the
// store name (the matched line) and the chain tag.
var storeChains = []struct {
	keyword string
	chain   string
}{
	{"EDEKA", "EDEKA"},
	{"REWE", "REWE"},
	{"ALDI SÜD", "ALDI"},
	{"ALDI NORD", "ALDI"},
	{"ALDI", "ALDI"},
	{"LIDL", "LIDL"},
	{"KAUFLAND", "Kaufland"},
	{"NETTO", "Netto"},
	{"PENNY", "Penny"},
	{"ROSSMANN", "Rossmann"},
	{"DM-DROGERIE", "dm"},
	{"DM DROGERIE", "dm"},
	{"MÜLLER", "Müller"},
	{"TEGUT", "tegut"},
	{"NORMA", "Norma"},
	{"GLOBUS", "Globus"},
	{"FAMILA", "famila"},
	{"COMBI", "combi"},
}

var (
	addressStreetPattern = regexp.MustCompile(`(?i)(straße|strasse|str\.|weg|platz|allee|gasse|damm|ring|ufer)\s*\.?\s*\d+`)
	addressZipPattern    = regexp.MustCompile(`(?:^|\s)(\d{5})\s+[A-ZÄÖÜ][a-zäöüß]`)
	phonePattern         = regexp.MustCompile(`(?i)\btel(?:efon)?\b\s*[.:]?\s*([+0-9][0-9 ()\/-]{5,})`)
	taxIDPattern         = regexp.MustCompile(`(?i)\b(?:ust[-.\s]?id(?:nr)?|st(?:euer)?[-.\s]?nr|tax[-.\s]?id|vat[-.\s]?(?:no|id))\b\s*[.:]?\s*([A-Z0-9][A-Z0-9\/-]*)`)

	totalLinePattern    = regexp.MustCompile(`(?i)^\s*\**\s*(?:summe|gesamt(?:betrag|summe)?|total(?:betrag)?|zu zahlen|betrag)\b`)
	subtotalLinePattern = regexp.MustCompile(`(?i)\b(?:zwischensumme|subtotal|zwischen-summe)\b`)
	vatLinePattern      = regexp.MustCompile(`(?i)\b(?:mwst|ust\b|mehrwertsteuer|vat|incl\. tax)\b`)
	vatRatePattern      = regexp.MustCompile(`(\d{1,2}(?:[.,]\d{1,2})?)\s*%`)

	amountPaidPattern = regexp.MustCompile(`(?i)\b(?:gegeben|bar gegeben|tendered|given|erhalten)\b`)
	changePattern     = regexp.MustCompile(`(?i)\b(?:rückgeld|rueckgeld|wechselgeld|change)\b`)

	cashierStartPattern  = regexp.MustCompile(`(?i)\b(?:beginn|start)\b\D*?(\d{1,2}:\d{2}(?::\d{2})?)`)
	cashierEndPattern    = regexp.MustCompile(`(?i)\b(?:ende|end)\b\D*?(\d{1,2}:\d{2}(?::\d{2})?)`)
	cashierNumberPattern = regexp.MustCompile(`(?i)\b(?:bed|bediener|kassierer(?:in)?|cashier)\b\s*[.:]?\s*(?:nr\s*[.:]?\s*)?(\d+)`)
	terminalPattern      = regexp.MustCompile(`(?i)\b(?:kassen?[-\s]?nr|kasse|terminal|pos)\b\s*[.:]?\s*(\d+)`)

	fiscalSignaturePattern   = regexp.MustCompile(`(?i)\btse[-\s]?sig(?:natur)?\b\s*[.:]?\s*(\S+)`)
	fiscalSigCounterPattern  = regexp.MustCompile(`(?i)\bsig(?:natur)?[-\s]?z(?:ähler|aehler)?\b\s*[.:]?\s*(\d+)`)
	fiscalTransactionPattern = regexp.MustCompile(`(?i)\btse[-\s]?(?:trans(?:aktion)?(?:s-?nr)?|ta)\b\s*[.:]?\s*(\S+)`)
	fiscalSerialPattern      = regexp.MustCompile(`(?i)\btse[-\s]?serien(?:nr|nummer)?\b\s*[.:]?\s*(\S+)`)

	loyaltyProgramPattern = regexp.MustCompile(`(?i)\b(payback|deutschlandcard|lidl plus|rewe bonus|dm app)\b`)
	loyaltyPointsPattern  = regexp.MustCompile(`(?i)(?:\bpunkte\b\s*[.:]?\s*(\d+)|(\d+)\s*punkte\b)`)
)

// paymentKeywords map settlement keywords to (method, card type).
var paymentKeywords = []struct {
	pattern  *regexp.Regexp
	method   string
	cardType string
}{
	{regexp.MustCompile(`(?i)\bvisa\b`), "card", "Visa"},
	{regexp.MustCompile(`(?i)\bmastercard\b`), "card", "Mastercard"},
	{regexp.MustCompile(`(?i)\bmaestro\b`), "card", "Maestro"},
	{regexp.MustCompile(`(?i)\b(?:amex|american express)\b`), "card", "Amex"},
	{regexp.MustCompile(`(?i)\b(?:girocard|ec[-\s]?karte|ec[-\s]?cash)\b`), "card", "Girocard"},
	{regexp.MustCompile(`(?i)\bkreditkarte\b`), "card", ""},
	{regexp.MustCompile(`(?i)\bkarte(?:nzahlung)?\b`), "card", ""},
	{regexp.MustCompile(`(?i)\b(?:bar(?:zahlung)?|cash)\b`), "cash", ""},
}

// extractLineFields is the second strategy: one pass over every line,
// independently testing each against the labeled-field patterns. Each
// field is set at most once; the first match in document order wins,
// which merge enforces via its fill-only-if-empty semantics.
func extractLineFields(doc *document) *StructuredReceipt {
	out := &StructuredReceipt{}

	for _, line := range doc.lines {
		if out.Metadata.Date == "" {
			for _, p := range datePatterns {
				if m := p.FindStringSubmatch(line); m != nil {
					out.Metadata.Date = m[1]
					break
				}
			}
		}
		if out.Metadata.Time == "" {
			// A start/end-of-transaction label makes the time on this
			// line cashier metadata, not the receipt time.
			if !cashierStartPattern.MatchString(line) && !cashierEndPattern.MatchString(line) {
				if m := timePattern.FindString(line); m != "" {
					out.Metadata.Time = m
				}
			}
		}

		if out.Store.Name == "" {
			upper := strings.ToUpper(line)
			for _, sc := range storeChains {
				if strings.Contains(upper, sc.keyword) {
					out.Store.Name = strings.TrimSpace(line)
					out.Store.Chain = sc.chain
					break
				}
			}
		}
		if out.Store.Address == "" && (addressStreetPattern.MatchString(line) || addressZipPattern.MatchString(line)) {
			out.Store.Address = strings.TrimSpace(line)
		}
		if out.Store.Phone == "" {
			if m := phonePattern.FindStringSubmatch(line); m != nil {
				out.Store.Phone = strings.TrimSpace(m[1])
			}
		}
		if out.Store.TaxID == "" {
			if m := taxIDPattern.FindStringSubmatch(line); m != nil {
				out.Store.TaxID = m[1]
			}
		}

		if out.Totals.Subtotal == nil && subtotalLinePattern.MatchString(line) {
			out.Totals.Subtotal = lastPriceOnLine(line)
		} else if out.Totals.TotalAmount == nil && totalLinePattern.MatchString(line) {
			out.Totals.TotalAmount = lastPriceOnLine(line)
		}
		if vatLinePattern.MatchString(line) {
			if out.Totals.VATRate == nil {
				if m := vatRatePattern.FindStringSubmatch(line); m != nil {
					out.Totals.VATRate = ParsePrice(m[1])
				}
			}
			if out.Totals.VATAmount == nil {
				out.Totals.VATAmount = lastPriceOnLine(line)
			}
		}
		if out.Totals.Currency == "" && (strings.Contains(line, "€") || eurPattern.MatchString(line)) {
			out.Totals.Currency = "EUR"
		}

		if out.Payment.Method == "" || out.Payment.CardType == "" {
			for _, pk := range paymentKeywords {
				if pk.pattern.MatchString(line) {
					setString(&out.Payment.Method, pk.method)
					setString(&out.Payment.CardType, pk.cardType)
					break
				}
			}
		}
		if out.Payment.AmountPaid == nil && amountPaidPattern.MatchString(line) {
			out.Payment.AmountPaid = lastPriceOnLine(line)
		}
		if out.Payment.Change == nil && changePattern.MatchString(line) {
			out.Payment.Change = lastPriceOnLine(line)
		}

		if out.Cashier.StartTime == "" {
			if m := cashierStartPattern.FindStringSubmatch(line); m != nil {
				out.Cashier.StartTime = m[1]
			}
		}
		if out.Cashier.EndTime == "" {
			if m := cashierEndPattern.FindStringSubmatch(line); m != nil {
				out.Cashier.EndTime = m[1]
			}
		}
		if out.Cashier.CashierNumber == "" {
			if m := cashierNumberPattern.FindStringSubmatch(line); m != nil {
				out.Cashier.CashierNumber = m[1]
			}
		}
		if out.Cashier.TerminalNumber == "" {
			if m := terminalPattern.FindStringSubmatch(line); m != nil {
				out.Cashier.TerminalNumber = m[1]
			}
		}

		if out.Fiscal.Signature == "" {
			if m := fiscalSignaturePattern.FindStringSubmatch(line); m != nil {
				out.Fiscal.Signature = m[1]
			}
		}
		if out.Fiscal.SignatureCounter == "" {
			if m := fiscalSigCounterPattern.FindStringSubmatch(line); m != nil {
				out.Fiscal.SignatureCounter = m[1]
			}
		}
		if out.Fiscal.TransactionNumber == "" {
			if m := fiscalTransactionPattern.FindStringSubmatch(line); m != nil {
				out.Fiscal.TransactionNumber = m[1]
			}
		}
		if out.Fiscal.SerialNumber == "" {
			if m := fiscalSerialPattern.FindStringSubmatch(line); m != nil {
				out.Fiscal.SerialNumber = m[1]
			}
		}

		if out.Loyalty.Program == "" {
			if m := loyaltyProgramPattern.FindStringSubmatch(line); m != nil {
				out.Loyalty.Program = m[1]
			}
		}
		if out.Loyalty.Points == nil {
			if m := loyaltyPointsPattern.FindStringSubmatch(line); m != nil {
				digits := m[1]
				if digits == "" {
					digits = m[2]
				}
				out.Loyalty.Points = ParsePrice(digits)
			}
		}
	}

	return out
}

// documentTotalPattern tolerates the label and the amount being
// separated by line breaks or OCR noise.
var documentTotalPattern = regexp.MustCompile(`(?is)\b(?:summe|gesamt|total|zu zahlen)\b[^0-9%]{0,40}?(\d{1,6}[.,]\d{2})`)

// extractDocumentWide is the fourth strategy: for fields still empty
// after the line pass (chiefly total amount and date), re-scan the
// whole text with looser patterns, in case the value spans line
// boundaries or appears only once near the end.
func extractDocumentWide(doc *document) *StructuredReceipt {
	out := &StructuredReceipt{}

	if m := documentTotalPattern.FindStringSubmatch(doc.raw); m != nil {
		out.Totals.TotalAmount = ParsePrice(m[1])
	}

	for _, p := range datePatterns {
		if m := p.FindStringSubmatch(doc.raw); m != nil {
			out.Metadata.Date = m[1]
			break
		}
	}

	return out
}

// lastPriceOnLine returns the last money amount on a line; labeled
// amounts print the value after the label.
func lastPriceOnLine(line string) *float64 {
	matches := pricePattern.FindAllStringSubmatch(line, -1)
	if len(matches) == 0 {
		return nil
	}
	last := matches[len(matches)-1]
	raw := last[1]
	// Carry a trailing minus into the parsed value.
	if strings.HasSuffix(strings.TrimSpace(last[0]), "-") {
		raw += "-"
	}
	return ParsePrice(raw)
}
