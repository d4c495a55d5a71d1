package pdf

import "context"

// InvoiceData carries the pre-formatted fields rendered onto the invoice PDF.
type InvoiceData struct {
	ProviderName  string
	ProviderEmail string

	InvoiceNumber string
	Status        string
	GeneratedDate string
	IssueDate     string
	DueDate       string

	BillToName  string
	BillToEmail string

	MinerCount int64
	UnitPrice  string
	Total      string
	Notes      string
}

type Provider interface {
	GenerateInvoice(ctx context.Context, data InvoiceData) ([]byte, error)
}

// NoOpProvider returns an empty document. Used in tests.
type NoOpProvider struct{}

func (p *NoOpProvider) GenerateInvoice(ctx context.Context, data InvoiceData) ([]byte, error) {
	return []byte{}, nil
}
