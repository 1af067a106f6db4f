package notification

import (
	"fmt"
	"strings"
	"text/template"
)

var templates = template.Must(template.New("notification").Parse(`
{{define "receipt"}}Payment of {{.Currency}} {{.Amount}} to {{.Payee}} confirmed. M-Pesa ref {{.ReceiptNumber}}, {{.AmountSats}} sats settled. Ref {{.Reference}}.{{end}}
{{define "reconciliation"}}RECONCILIATION REQUIRED: transaction {{.TransactionID}} (user {{.UserID}}) collected {{.Currency}} {{.Amount}} on M-Pesa (checkout {{.CheckoutRequestID}}, receipt {{.ReceiptNumber}}) {{if .Preimage}}and paid {{.AmountSats}} sats on lightning (hash {{.PaymentHash}}, preimage {{.Preimage}}) but the wallet was not credited{{else}}but lightning settlement of {{.AmountSats}} sats (hash {{.PaymentHash}}) failed{{end}}: {{.Reason}}{{end}}
`))

func render(name string, data interface{}) (string, error) {
	var body strings.Builder
	if err := templates.ExecuteTemplate(&body, name, data); err != nil {
		return "", fmt.Errorf("error executing template: %v", err)
	}
	return body.String(), nil
}
