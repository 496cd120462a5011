package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-sdeal/internal/common"
	"github.com/noah-isme/backend-sdeal/internal/queue"
)

// QuoteEmailTask is the queue kind consumed by the worker.
const QuoteEmailTask = "quote-email"

// QuoteCustomer is the contact block of a lead.
type QuoteCustomer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
	Notes string `json:"notes,omitempty"`
}

// QuoteEmailItem is one estimate row as shown to the sales team.
type QuoteEmailItem struct {
	Label     string          `json:"label"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	LineTotal decimal.Decimal `json:"lineTotal"`
}

// QuoteEmail is the task payload for a new lead notification.
type QuoteEmail struct {
	QuoteID     string           `json:"quoteId"`
	ProductSlug string           `json:"productSlug"`
	Customer    QuoteCustomer    `json:"customer"`
	Items       []QuoteEmailItem `json:"items"`
	Total       decimal.Decimal  `json:"total"`
}

// EnqueueQuoteEmail schedules the sales notification for a saved lead. The
// quote ID doubles as the idempotency key so a retried submit never mails twice.
func EnqueueQuoteEmail(ctx context.Context, pub queue.Publisher, msg QuoteEmail, maxAttempts int) error {
	if pub == nil {
		return errors.New("notify: queue not configured")
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode quote email: %w", err)
	}
	return pub.Enqueue(ctx, queue.Task{
		Kind:           QuoteEmailTask,
		Payload:        payload,
		IdempotencyKey: msg.QuoteID,
		MaxAttempts:    maxAttempts,
	})
}

var quoteTemplate = template.Must(template.New("quote").Funcs(template.FuncMap{
	"euro":   func(d decimal.Decimal) string { return "€" + d.StringFixed(0) },
	"orDash": orDash,
}).Parse(`<div>
<h2>New Quote Request — {{.QuoteID}}</h2>
<p><strong>Product:</strong> {{.ProductSlug}}</p>
<p><strong>Customer:</strong> {{orDash .Customer.Name}} — {{orDash .Customer.Email}} — {{orDash .Customer.Phone}}</p>
{{- if .Customer.Notes}}
<p><strong>Notes:</strong> {{.Customer.Notes}}</p>
{{- end}}
<h3>Estimate</h3>
<table style="border-collapse: collapse; width: 100%">
<thead><tr><th align="left">Item</th><th align="right">Qty</th><th align="right">Unit</th><th align="right">Total</th></tr></thead>
<tbody>
{{- range .Items}}
<tr><td>{{.Label}}</td><td align="right">{{.Quantity.String}}</td><td align="right">{{euro .UnitPrice}}</td><td align="right">{{euro .LineTotal}}</td></tr>
{{- end}}
</tbody>
<tfoot><tr><td colspan="3"><strong>Total</strong></td><td align="right"><strong>{{euro .Total}}</strong></td></tr></tfoot>
</table>
</div>
`))

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "—"
	}
	return s
}

// RenderQuoteEmail builds the sales notification addressed to inbox. Replies
// go to the customer.
func RenderQuoteEmail(inbox string, msg QuoteEmail) (common.Email, error) {
	var buf bytes.Buffer
	if err := quoteTemplate.Execute(&buf, msg); err != nil {
		return common.Email{}, fmt.Errorf("render quote email: %w", err)
	}
	return common.Email{
		To:      inbox,
		ReplyTo: strings.TrimSpace(msg.Customer.Email),
		Subject: fmt.Sprintf("New Quote — %s — %s", msg.QuoteID, msg.ProductSlug),
		HTML:    buf.String(),
	}, nil
}
