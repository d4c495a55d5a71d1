// Package format renders invoice amounts and documents for customer-facing
// output. Amounts are stored in minor units and only formatted here.
package format

import (
	"fmt"
	"time"

	customerdomain "github.com/hashridge/hostbill/internal/customer/domain"
	invoicedomain "github.com/hashridge/hostbill/internal/invoice/domain"
	"github.com/hashridge/hostbill/internal/providers/pdf"
)

// Amount renders minor units as "USD 25.50".
func Amount(cents int64, currency string) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s %s%d.%02d", currency, sign, cents/100, cents%100)
}

// Date renders a timestamp for invoice documents; zero renders as a dash.
func Date(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02")
}

// PDFData assembles the document fields for an invoice PDF.
func PDFData(inv invoicedomain.Invoice, customer customerdomain.Customer, providerName, providerEmail string) pdf.InvoiceData {
	issued := "-"
	if inv.IssuedAt != nil {
		issued = Date(*inv.IssuedAt)
	}
	return pdf.InvoiceData{
		ProviderName:  providerName,
		ProviderEmail: providerEmail,
		InvoiceNumber: inv.InvoiceNumber,
		Status:        string(inv.Status),
		GeneratedDate: Date(inv.GeneratedAt),
		IssueDate:     issued,
		DueDate:       Date(inv.DueAt),
		BillToName:    customer.Name,
		BillToEmail:   customer.Email,
		MinerCount:    inv.MinerCount,
		UnitPrice:     Amount(inv.UnitPriceCents, inv.Currency),
		Total:         Amount(inv.TotalCents, inv.Currency),
		Notes:         inv.Notes,
	}
}
