package email

import (
	"fmt"
	"html/template"
	"strings"
)

// OrderItem represents an item in an order for email purposes
type OrderItem struct {
	ProductRef string
	Quantity   int
	UnitPrice  int
}

// StatusUpdate is the content of one order status email.
type StatusUpdate struct {
	OrderID  string
	Headline string
	Message  string
	Items    []OrderItem
	Total    int
}

var statusUpdateTmpl = template.Must(template.New("status").Funcs(template.FuncMap{
	"money": formatNumber,
	"mul":   func(a, b int) int { return a * b },
}).Parse(`<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
	<div style="background: #4f46e5; padding: 24px; border-radius: 10px 10px 0 0;">
		<h1 style="color: white; margin: 0; font-size: 22px;">{{.Headline}}</h1>
	</div>
	<div style="background: #fff; padding: 24px; border: 1px solid #eee; border-top: none; border-radius: 0 0 10px 10px;">
		<p style="margin-top: 0;">{{.Message}}</p>
		<p style="font-size: 14px; color: #666;">Order <span style="font-family: monospace;">{{.OrderID}}</span></p>
		{{- if .Items}}
		<table style="width: 100%; border-collapse: collapse; margin: 20px 0;">
			<thead>
				<tr style="background: #f8f9fa;">
					<th style="padding: 10px; text-align: left;">Item</th>
					<th style="padding: 10px; text-align: center;">Qty</th>
					<th style="padding: 10px; text-align: right;">Subtotal</th>
				</tr>
			</thead>
			<tbody>
			{{- range .Items}}
				<tr>
					<td style="padding: 10px; border-bottom: 1px solid #eee;">{{.ProductRef}}</td>
					<td style="padding: 10px; border-bottom: 1px solid #eee; text-align: center;">{{.Quantity}}</td>
					<td style="padding: 10px; border-bottom: 1px solid #eee; text-align: right;">{{money (mul .UnitPrice .Quantity)}}</td>
				</tr>
			{{- end}}
			</tbody>
		</table>
		<p style="text-align: right; font-size: 18px; font-weight: bold;">Total {{money .Total}}</p>
		{{- end}}
		<hr style="border: none; border-top: 1px solid #eee; margin: 24px 0;">
		<p style="font-size: 12px; color: #999; margin-bottom: 0;">This email was sent automatically. Please do not reply.</p>
	</div>
</body>
</html>`))

// BuildStatusUpdateBody renders the HTML body for a status update email.
// Text fields are HTML-escaped.
func BuildStatusUpdateBody(u StatusUpdate) (string, error) {
	var b strings.Builder
	if err := statusUpdateTmpl.Execute(&b, u); err != nil {
		return "", fmt.Errorf("failed to render status email: %w", err)
	}
	return b.String(), nil
}

// formatNumber formats a number with comma separators
func formatNumber(n int) string {
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}

	var result strings.Builder
	remainder := len(str) % 3
	if remainder > 0 {
		result.WriteString(str[:remainder])
		result.WriteString(",")
	}
	for i := remainder; i < len(str); i += 3 {
		result.WriteString(str[i : i+3])
		if i+3 < len(str) {
			result.WriteString(",")
		}
	}
	return result.String()
}
