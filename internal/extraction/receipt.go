package extraction

// StructuredReceipt is the normalized record extracted from one
// receipt's raw text. Fields the parser could not resolve stay at
// their zero value; diagnostics about ambiguous parses are collected
// in Errors and are never fatal.
type StructuredReceipt struct {
	Metadata   Metadata   `json:"metadata"`
	Store      Store      `json:"store"`
	Items      []LineItem `json:"items"`
	Totals     Totals     `json:"totals"`
	Payment    Payment    `json:"payment"`
	Cashier    Cashier    `json:"cashier_info"`
	Fiscal     Fiscal     `json:"fiscal_info"`
	Loyalty    Loyalty    `json:"loyalty"`
	Confidence float64    `json:"confidence"`
	RawText    string     `json:"raw_text"`
	Errors     []string   `json:"errors,omitempty"`
}

// Metadata keeps date and time in their source format.
type Metadata struct {
	Date string `json:"date,omitempty"`
	Time string `json:"time,omitempty"`
}

// Store is the merchant identity block.
type Store struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address,omitempty"`
	Phone   string `json:"phone,omitempty"`
	TaxID   string `json:"tax_id,omitempty"`
	Chain   string `json:"chain,omitempty"`
}

// Totals holds the money summary. Amounts are nil when unparsed; the
// currency defaults to EUR.
type Totals struct {
	Subtotal    *float64 `json:"subtotal,omitempty"`
	VATAmount   *float64 `json:"vat_amount,omitempty"`
	VATRate     *float64 `json:"vat_rate,omitempty"`
	TotalAmount *float64 `json:"total_amount,omitempty"`
	Currency    string   `json:"currency"`
}

// Payment describes how the receipt was settled.
type Payment struct {
	Method     string   `json:"method,omitempty"`
	AmountPaid *float64 `json:"amount_paid,omitempty"`
	Change     *float64 `json:"change,omitempty"`
	CardType   string   `json:"card_type,omitempty"`
}

// Cashier holds till and operator details.
type Cashier struct {
	StartTime      string `json:"start_time,omitempty"`
	EndTime        string `json:"end_time,omitempty"`
	CashierNumber  string `json:"cashier_number,omitempty"`
	TerminalNumber string `json:"terminal_number,omitempty"`
}

// Fiscal holds the fiscal signature block (TSE fields on German
// receipts).
type Fiscal struct {
	Signature         string `json:"signature,omitempty"`
	SignatureCounter  string `json:"signature_counter,omitempty"`
	TransactionNumber string `json:"transaction_number,omitempty"`
	SerialNumber      string `json:"serial_number,omitempty"`
}

// Loyalty holds loyalty program details.
type Loyalty struct {
	Program string   `json:"program,omitempty"`
	Points  *float64 `json:"points,omitempty"`
}

// LineItem is one purchased product. Matched is always false at
// creation; the catalog-matching collaborator sets it later.
type LineItem struct {
	ProductName string   `json:"product_name"`
	Quantity    float64  `json:"quantity"`
	UnitPrice   *float64 `json:"unit_price,omitempty"`
	TotalPrice  *float64 `json:"total_price,omitempty"`
	Brand       string   `json:"brand,omitempty"`
	ItemCode    string   `json:"item_code"`
	LineText    string   `json:"line_text"`
	Matched     bool     `json:"matched"`
}

// merge copies src into dst under fill-only-if-empty semantics: a
// later strategy never overwrites a field an earlier one already set.
// Items are taken only when dst has none, preserving source order.
// Diagnostics are always appended.
func merge(dst, src *StructuredReceipt) {
	if src == nil {
		return
	}

	setString(&dst.Metadata.Date, src.Metadata.Date)
	setString(&dst.Metadata.Time, src.Metadata.Time)

	setString(&dst.Store.Name, src.Store.Name)
	setString(&dst.Store.Address, src.Store.Address)
	setString(&dst.Store.Phone, src.Store.Phone)
	setString(&dst.Store.TaxID, src.Store.TaxID)
	setString(&dst.Store.Chain, src.Store.Chain)

	setAmount(&dst.Totals.Subtotal, src.Totals.Subtotal)
	setAmount(&dst.Totals.VATAmount, src.Totals.VATAmount)
	setAmount(&dst.Totals.VATRate, src.Totals.VATRate)
	setAmount(&dst.Totals.TotalAmount, src.Totals.TotalAmount)
	setString(&dst.Totals.Currency, src.Totals.Currency)

	setString(&dst.Payment.Method, src.Payment.Method)
	setAmount(&dst.Payment.AmountPaid, src.Payment.AmountPaid)
	setAmount(&dst.Payment.Change, src.Payment.Change)
	setString(&dst.Payment.CardType, src.Payment.CardType)

	setString(&dst.Cashier.StartTime, src.Cashier.StartTime)
	setString(&dst.Cashier.EndTime, src.Cashier.EndTime)
	setString(&dst.Cashier.CashierNumber, src.Cashier.CashierNumber)
	setString(&dst.Cashier.TerminalNumber, src.Cashier.TerminalNumber)

	setString(&dst.Fiscal.Signature, src.Fiscal.Signature)
	setString(&dst.Fiscal.SignatureCounter, src.Fiscal.SignatureCounter)
	setString(&dst.Fiscal.TransactionNumber, src.Fiscal.TransactionNumber)
	setString(&dst.Fiscal.SerialNumber, src.Fiscal.SerialNumber)

	setString(&dst.Loyalty.Program, src.Loyalty.Program)
	setAmount(&dst.Loyalty.Points, src.Loyalty.Points)

	if len(dst.Items) == 0 && len(src.Items) > 0 {
		dst.Items = append(dst.Items, src.Items...)
	}

	dst.Errors = append(dst.Errors, src.Errors...)
}

func setString(dst *string, src string) {
	if *dst == "" && src != "" {
		*dst = src
	}
}

func setAmount(dst **float64, src *float64) {
	if *dst == nil && src != nil {
		*dst = src
	}
}
