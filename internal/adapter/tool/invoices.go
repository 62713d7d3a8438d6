package tool

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"go.opentelemetry.io/otel/trace"

	"donna-ai/internal/domain"
	"donna-ai/internal/infra/tracer"
)

// Invoice is a captured purchase invoice awaiting review.
type Invoice struct {
	ID            string  `json:"id"`
	VendorName    string  `json:"vendor_name"`
	VendorNIF     string  `json:"vendor_nif"`
	InvoiceNumber string  `json:"invoice_number"`
	InvoiceDate   string  `json:"invoice_date"`
	Total         float64 `json:"total"`
	Subtotal      float64 `json:"subtotal"`
	TotalIVA      float64 `json:"total_iva"`
	Category      string  `json:"category"`
	Note          string  `json:"note,omitempty"`
	Confidence    string  `json:"confidence"`
	CreatedAt     string  `json:"created_at"`
}

// InvoiceBackend stores captured invoices per principal.
type InvoiceBackend interface {
	List(ctx context.Context, principal string) ([]Invoice, error)
	Add(ctx context.Context, principal string, inv Invoice) (string, error)
	UpdateFields(ctx context.Context, principal, id string, fields map[string]string) error
	Delete(ctx context.Context, principal, id string) error
	Count(ctx context.Context, principal string) (int, error)
	Clear(ctx context.Context, principal string) error
}

// invoiceUpdatableFields maps tool-facing field names to their kind for
// validation. Category changes also stamp confidence as user-confirmed.
var invoiceUpdatableFields = map[string]bool{
	"category":       true,
	"note":           true,
	"vendor_name":    true,
	"vendor_nif":     true,
	"invoice_number": true,
	"invoice_date":   true,
	"total":          true,
	"subtotal":       true,
	"total_iva":      true,
}

// invoiceView numbers invoices 1-based the way they are presented.
func invoiceView(invoices []Invoice) []map[string]any {
	out := make([]map[string]any, 0, len(invoices))
	for i, inv := range invoices {
		out = append(out, map[string]any{
			"number":         i + 1,
			"vendor_name":    inv.VendorName,
			"invoice_number": inv.InvoiceNumber,
			"invoice_date":   inv.InvoiceDate,
			"total":          inv.Total,
			"category":       inv.Category,
			"confidence":     inv.Confidence,
		})
	}
	return out
}

// resolveInvoice maps a 1-based number to the stored invoice.
func resolveInvoice(ctx context.Context, backend InvoiceBackend, principal string, number int) (*Invoice, error) {
	invoices, err := backend.List(ctx, principal)
	if err != nil {
		return nil, err
	}
	if number < 1 || number > len(invoices) {
		return nil, fmt.Errorf("invoice #%d not found, there are %d invoices", number, len(invoices))
	}
	return &invoices[number-1], nil
}

// --- get_invoice_status ---

// InvoiceStatusTool summarizes the captured invoices.
type InvoiceStatusTool struct {
	backend InvoiceBackend
	logger  *slog.Logger
}

func NewInvoiceStatusTool(backend InvoiceBackend, logger *slog.Logger) *InvoiceStatusTool {
	return &InvoiceStatusTool{backend: backend, logger: logger}
}

func (t *InvoiceStatusTool) Name() string { return "get_invoice_status" }
func (t *InvoiceStatusTool) Description() string {
	return "Get a summary of captured invoices: how many are pending, their total amount, and which need review."
}

func (t *InvoiceStatusTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  json.RawMessage(`{"type": "object", "properties": {}}`),
	}
}

func (t *InvoiceStatusTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.get_invoice_status", t.logger, params,
		func(ctx context.Context, span trace.Span, _ emptyParams) (any, error) {
			principal := domain.PrincipalFromContext(ctx)
			invoices, err := t.backend.List(ctx, principal)
			if err != nil {
				return nil, err
			}
			span.SetAttributes(tracer.IntAttr("invoices.count", len(invoices)))

			var total float64
			var needReview []int
			for i, inv := range invoices {
				total += inv.Total
				if inv.Confidence == "low" || inv.Category == "" {
					needReview = append(needReview, i+1)
				}
			}
			return map[string]any{
				"count":       len(invoices),
				"total":       total,
				"need_review": needReview,
			}, nil
		})
}

// --- list_invoices ---

// ListInvoicesTool lists captured invoices with their numbers.
type ListInvoicesTool struct {
	backend InvoiceBackend
	logger  *slog.Logger
}

func NewListInvoicesTool(backend InvoiceBackend, logger *slog.Logger) *ListInvoicesTool {
	return &ListInvoicesTool{backend: backend, logger: logger}
}

func (t *ListInvoicesTool) Name() string        { return "list_invoices" }
func (t *ListInvoicesTool) Description() string { return "List the captured invoices." }

func (t *ListInvoicesTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  json.RawMessage(`{"type": "object", "properties": {}}`),
	}
}

func (t *ListInvoicesTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.list_invoices", t.logger, params,
		func(ctx context.Context, _ trace.Span, _ emptyParams) (any, error) {
			invoices, err := t.backend.List(ctx, domain.PrincipalFromContext(ctx))
			if err != nil {
				return nil, err
			}
			return map[string]any{"invoices": invoiceView(invoices), "count": len(invoices)}, nil
		})
}

// --- update_invoice ---

// UpdateInvoiceTool corrects fields on a captured invoice.
type UpdateInvoiceTool struct {
	backend InvoiceBackend
	logger  *slog.Logger
}

func NewUpdateInvoiceTool(backend InvoiceBackend, logger *slog.Logger) *UpdateInvoiceTool {
	return &UpdateInvoiceTool{backend: backend, logger: logger}
}

func (t *UpdateInvoiceTool) Name() string { return "update_invoice" }
func (t *UpdateInvoiceTool) Description() string {
	return "Update fields of an invoice by its number. Allowed fields: category, note, vendor_name, vendor_nif, invoice_number, invoice_date, total, subtotal, total_iva."
}

func (t *UpdateInvoiceTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"invoice_number": {"type": "integer", "description": "Invoice number from the list"},
				"fields": {
					"type": "object",
					"description": "Field name to new value, e.g. {\"category\": \"office supplies\"}",
					"additionalProperties": {"type": "string"}
				}
			},
			"required": ["invoice_number", "fields"]
		}`),
	}
}

type updateInvoiceParams struct {
	InvoiceNumber int               `json:"invoice_number"`
	Fields        map[string]string `json:"fields"`
}

func (t *UpdateInvoiceTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.update_invoice", t.logger, params,
		func(ctx context.Context, _ trace.Span, p updateInvoiceParams) (any, error) {
			if err := ValidatePositive("invoice_number", p.InvoiceNumber); err != nil {
				return nil, err
			}
			if len(p.Fields) == 0 {
				return nil, fmt.Errorf("fields must not be empty")
			}
			for name := range p.Fields {
				if !invoiceUpdatableFields[name] {
					return nil, fmt.Errorf("field %q cannot be updated", name)
				}
			}
			for _, name := range []string{"total", "subtotal", "total_iva"} {
				if v, ok := p.Fields[name]; ok {
					if _, err := strconv.ParseFloat(v, 64); err != nil {
						return nil, fmt.Errorf("%s %q is not a number", name, v)
					}
				}
			}

			principal := domain.PrincipalFromContext(ctx)
			inv, err := resolveInvoice(ctx, t.backend, principal, p.InvoiceNumber)
			if err != nil {
				return nil, err
			}
			// A user-supplied category is authoritative.
			if _, ok := p.Fields["category"]; ok {
				p.Fields["confidence"] = "user"
			}
			if err := t.backend.UpdateFields(ctx, principal, inv.ID, p.Fields); err != nil {
				return nil, err
			}
			return map[string]any{"success": true, "message": fmt.Sprintf("Invoice #%d updated", p.InvoiceNumber)}, nil
		})
}

// --- delete_invoice ---

// DeleteInvoiceTool removes a captured invoice.
type DeleteInvoiceTool struct {
	backend InvoiceBackend
	logger  *slog.Logger
}

func NewDeleteInvoiceTool(backend InvoiceBackend, logger *slog.Logger) *DeleteInvoiceTool {
	return &DeleteInvoiceTool{backend: backend, logger: logger}
}

func (t *DeleteInvoiceTool) Name() string { return "delete_invoice" }
func (t *DeleteInvoiceTool) Description() string {
	return "Delete an invoice by its number, e.g. when it was captured by mistake."
}

func (t *DeleteInvoiceTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"invoice_number": {"type": "integer", "description": "Invoice number from the list"}
			},
			"required": ["invoice_number"]
		}`),
	}
}

type deleteInvoiceParams struct {
	InvoiceNumber int `json:"invoice_number"`
}

func (t *DeleteInvoiceTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.delete_invoice", t.logger, params,
		func(ctx context.Context, _ trace.Span, p deleteInvoiceParams) (any, error) {
			if err := ValidatePositive("invoice_number", p.InvoiceNumber); err != nil {
				return nil, err
			}
			principal := domain.PrincipalFromContext(ctx)
			inv, err := resolveInvoice(ctx, t.backend, principal, p.InvoiceNumber)
			if err != nil {
				return nil, err
			}
			if err := t.backend.Delete(ctx, principal, inv.ID); err != nil {
				return nil, err
			}
			return map[string]any{"success": true, "message": fmt.Sprintf("Invoice #%d (%s) deleted", p.InvoiceNumber, inv.VendorName)}, nil
		})
}

// --- export_invoices ---

// ExportInvoicesTool renders the invoices as CSV and clears them.
type ExportInvoicesTool struct {
	backend InvoiceBackend
	logger  *slog.Logger
}

func NewExportInvoicesTool(backend InvoiceBackend, logger *slog.Logger) *ExportInvoicesTool {
	return &ExportInvoicesTool{backend: backend, logger: logger}
}

func (t *ExportInvoicesTool) Name() string { return "export_invoices" }
func (t *ExportInvoicesTool) Description() string {
	return "Export all captured invoices as CSV and clear them. Only use when the user confirms they are done reviewing."
}

func (t *ExportInvoicesTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  json.RawMessage(`{"type": "object", "properties": {}}`),
	}
}

func (t *ExportInvoicesTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.export_invoices", t.logger, params,
		func(ctx context.Context, _ trace.Span, _ emptyParams) (any, error) {
			principal := domain.PrincipalFromContext(ctx)
			invoices, err := t.backend.List(ctx, principal)
			if err != nil {
				return nil, err
			}
			if len(invoices) == 0 {
				return nil, fmt.Errorf("no invoices to export")
			}
			csvText := renderInvoiceCSV(invoices)
			if err := t.backend.Clear(ctx, principal); err != nil {
				return nil, err
			}
			return map[string]any{
				"csv":      csvText,
				"exported": len(invoices),
				"message":  fmt.Sprintf("Exported %d invoices.", len(invoices)),
			}, nil
		})
}

func renderInvoiceCSV(invoices []Invoice) string {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"invoice_date", "vendor_name", "vendor_nif", "invoice_number", "subtotal", "total_iva", "total", "category", "note"})
	for _, inv := range invoices {
		_ = w.Write([]string{
			inv.InvoiceDate,
			inv.VendorName,
			inv.VendorNIF,
			inv.InvoiceNumber,
			strconv.FormatFloat(inv.Subtotal, 'f', 2, 64),
			strconv.FormatFloat(inv.TotalIVA, 'f', 2, 64),
			strconv.FormatFloat(inv.Total, 'f', 2, 64),
			inv.Category,
			inv.Note,
		})
	}
	w.Flush()
	return buf.String()
}
