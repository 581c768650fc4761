package report

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/ledgerstack/ledgerstack/internal/billing"
)

const invoiceTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<style>
body { font-family: Helvetica, Arial, sans-serif; font-size: 12px; color: #222; }
h1 { font-size: 20px; margin-bottom: 0; }
.meta { color: #666; margin-bottom: 24px; }
table { width: 100%; border-collapse: collapse; margin-top: 16px; }
th, td { padding: 6px 8px; border-bottom: 1px solid #ddd; text-align: left; }
td.num, th.num { text-align: right; }
.totals td { border: none; }
.totals tr.grand td { font-weight: bold; border-top: 2px solid #222; }
.status { text-transform: uppercase; letter-spacing: 1px; }
</style>
</head>
<body>
<h1>{{.Bill.Number}}</h1>
<div class="meta">
  <div>Billed to: {{.Bill.ClientName}}</div>
  <div>Date: {{.Bill.BillDate.Format "2006-01-02"}}</div>
  {{if .Bill.DueDate}}<div>Due: {{.Bill.DueDate.Format "2006-01-02"}}</div>{{end}}
  {{if .Bill.InvoiceNumber}}<div>Reference: {{.Bill.InvoiceNumber}}</div>{{end}}
  <div class="status">{{.Bill.Status}}</div>
</div>
<table>
<tr><th>Lot</th><th class="num">Qty</th><th class="num">Unit Price</th><th class="num">Total</th></tr>
{{range .Bill.Items}}
<tr><td>#{{.LotID}}</td><td class="num">{{.Quantity}}</td><td class="num">{{amount .SellingPrice}}</td><td class="num">{{amount .Total}}</td></tr>
{{end}}
</table>
<table class="totals">
<tr><td>Subtotal</td><td class="num">{{amount .Bill.Subtotal}}</td></tr>
<tr><td>Tax ({{.Bill.TaxRate}}%)</td><td class="num">{{amount .Bill.Tax}}</td></tr>
{{range .Bill.ExtraCharges}}
<tr><td>{{.Name}}</td><td class="num">{{amount .Amount}}</td></tr>
{{end}}
<tr class="grand"><td>Total</td><td class="num">{{amount .Bill.Total}}</td></tr>
</table>
{{if .Bill.Notes}}<p>{{.Bill.Notes}}</p>{{end}}
</body>
</html>`

// InvoiceRenderer builds invoice HTML for a bill and converts it to PDF via
// Gotenberg.
type InvoiceRenderer struct {
	client *Client
	tmpl   *template.Template
}

// NewInvoiceRenderer constructs InvoiceRenderer.
func NewInvoiceRenderer(client *Client) *InvoiceRenderer {
	printer := message.NewPrinter(language.English)
	funcs := template.FuncMap{
		"amount": func(d decimal.Decimal) string {
			f, _ := d.Float64()
			return printer.Sprintf("%.2f", f)
		},
	}
	tmpl := template.Must(template.New("invoice").Funcs(funcs).Parse(invoiceTemplate))
	return &InvoiceRenderer{client: client, tmpl: tmpl}
}

// BuildHTML renders the invoice document markup.
func (r *InvoiceRenderer) BuildHTML(bill *billing.Bill) (string, error) {
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, map[string]any{"Bill": bill}); err != nil {
		return "", fmt.Errorf("report: build invoice html: %w", err)
	}
	return buf.String(), nil
}

// RenderInvoice implements billing.PDFRenderer.
func (r *InvoiceRenderer) RenderInvoice(ctx context.Context, bill *billing.Bill) ([]byte, error) {
	html, err := r.BuildHTML(bill)
	if err != nil {
		return nil, err
	}
	return r.client.RenderHTML(ctx, html)
}

var _ billing.PDFRenderer = (*InvoiceRenderer)(nil)
