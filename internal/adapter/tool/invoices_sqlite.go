package tool

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"donna-ai/internal/domain"
)

// SQLiteInvoiceBackend persists invoices in SQLite.
type SQLiteInvoiceBackend struct {
	db *sql.DB
}

func NewSQLiteInvoiceBackend(path string) (*SQLiteInvoiceBackend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, domain.WrapOp("invoices.open", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, domain.WrapOp("invoices.open", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS invoices (
			id             TEXT PRIMARY KEY,
			principal      TEXT NOT NULL,
			vendor_name    TEXT NOT NULL DEFAULT '',
			vendor_nif     TEXT NOT NULL DEFAULT '',
			invoice_number TEXT NOT NULL DEFAULT '',
			invoice_date   TEXT NOT NULL DEFAULT '',
			total          REAL NOT NULL DEFAULT 0,
			subtotal       REAL NOT NULL DEFAULT 0,
			total_iva      REAL NOT NULL DEFAULT 0,
			category       TEXT NOT NULL DEFAULT '',
			note           TEXT NOT NULL DEFAULT '',
			confidence     TEXT NOT NULL DEFAULT 'low',
			created_at     TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_invoices_principal ON invoices(principal, created_at);
	`); err != nil {
		db.Close()
		return nil, domain.WrapOp("invoices.migrate", err)
	}
	return &SQLiteInvoiceBackend{db: db}, nil
}

func (b *SQLiteInvoiceBackend) Close() error { return b.db.Close() }

func (b *SQLiteInvoiceBackend) List(ctx context.Context, principal string) ([]Invoice, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT id, vendor_name, vendor_nif, invoice_number, invoice_date,
		       total, subtotal, total_iva, category, note, confidence, created_at
		FROM invoices WHERE principal = ? ORDER BY created_at, id`, principal)
	if err != nil {
		return nil, domain.WrapOp("invoices.list", err)
	}
	defer rows.Close()

	var out []Invoice
	for rows.Next() {
		var inv Invoice
		if err := rows.Scan(&inv.ID, &inv.VendorName, &inv.VendorNIF, &inv.InvoiceNumber,
			&inv.InvoiceDate, &inv.Total, &inv.Subtotal, &inv.TotalIVA,
			&inv.Category, &inv.Note, &inv.Confidence, &inv.CreatedAt); err != nil {
			return nil, domain.WrapOp("invoices.list", err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (b *SQLiteInvoiceBackend) Add(ctx context.Context, principal string, inv Invoice) (string, error) {
	id := ulid.Make().String()
	if inv.Confidence == "" {
		inv.Confidence = "low"
	}
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO invoices (id, principal, vendor_name, vendor_nif, invoice_number,
		                      invoice_date, total, subtotal, total_iva, category, note,
		                      confidence, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, principal, inv.VendorName, inv.VendorNIF, inv.InvoiceNumber,
		inv.InvoiceDate, inv.Total, inv.Subtotal, inv.TotalIVA, inv.Category,
		inv.Note, inv.Confidence, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return "", domain.WrapOp("invoices.add", err)
	}
	return id, nil
}

// invoiceColumns maps tool-facing field names to table columns.
var invoiceColumns = map[string]string{
	"category":       "category",
	"note":           "note",
	"vendor_name":    "vendor_name",
	"vendor_nif":     "vendor_nif",
	"invoice_number": "invoice_number",
	"invoice_date":   "invoice_date",
	"total":          "total",
	"subtotal":       "subtotal",
	"total_iva":      "total_iva",
	"confidence":     "confidence",
}

var invoiceNumericColumns = map[string]bool{
	"total":     true,
	"subtotal":  true,
	"total_iva": true,
}

func (b *SQLiteInvoiceBackend) UpdateFields(ctx context.Context, principal, id string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	var sets []string
	var args []any
	for name, value := range fields {
		col, ok := invoiceColumns[name]
		if !ok {
			return domain.NewDomainError("invoices.update", domain.ErrInvalidInput, fmt.Sprintf("unknown field %q", name))
		}
		if invoiceNumericColumns[name] {
			f, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return domain.NewDomainError("invoices.update", domain.ErrInvalidInput, fmt.Sprintf("%s %q is not a number", name, value))
			}
			sets = append(sets, col+" = ?")
			args = append(args, f)
			continue
		}
		sets = append(sets, col+" = ?")
		args = append(args, value)
	}
	args = append(args, id, principal)

	res, err := b.db.ExecContext(ctx,
		"UPDATE invoices SET "+strings.Join(sets, ", ")+" WHERE id = ? AND principal = ?", args...)
	if err != nil {
		return domain.WrapOp("invoices.update", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (b *SQLiteInvoiceBackend) Delete(ctx context.Context, principal, id string) error {
	res, err := b.db.ExecContext(ctx,
		`DELETE FROM invoices WHERE id = ? AND principal = ?`, id, principal)
	if err != nil {
		return domain.WrapOp("invoices.delete", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (b *SQLiteInvoiceBackend) Count(ctx context.Context, principal string) (int, error) {
	var n int
	err := b.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM invoices WHERE principal = ?`, principal).Scan(&n)
	if err != nil {
		return 0, domain.WrapOp("invoices.count", err)
	}
	return n, nil
}

func (b *SQLiteInvoiceBackend) Clear(ctx context.Context, principal string) error {
	if _, err := b.db.ExecContext(ctx,
		`DELETE FROM invoices WHERE principal = ?`, principal); err != nil {
		return domain.WrapOp("invoices.clear", err)
	}
	return nil
}
