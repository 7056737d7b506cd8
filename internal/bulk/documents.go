package bulk

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fjod/go_fashionary/internal/domain"
)

// Artifact is a file produced by a bulk action, handed back to the browser
// for download or printing.
type Artifact struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"-"`
}

var csvHeader = []string{
	"order_id", "customer_name", "customer_phone", "shipping_address",
	"status", "items", "total_amount", "currency", "created_at",
}

func renderCSV(orders []*domain.Order, at time.Time) (*Artifact, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, o := range orders {
		row := []string{
			o.ID,
			o.CustomerName,
			o.CustomerPhone,
			o.ShippingAddress,
			string(o.Status),
			itemsSummary(o.Items),
			strconv.FormatFloat(o.TotalAmount, 'f', 2, 64),
			o.Currency,
			o.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return &Artifact{
		Name:        fmt.Sprintf("orders-%s.csv", at.UTC().Format("20060102-150405")),
		ContentType: "text/csv",
		Data:        buf.Bytes(),
	}, nil
}

func itemsSummary(items []domain.OrderItem) string {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		p := fmt.Sprintf("%dx %s", it.Quantity, it.ProductName)
		if it.Size != "" {
			p += " (" + it.Size + ")"
		}
		parts = append(parts, p)
	}
	return strings.Join(parts, "; ")
}

func renderInvoices(orders []*domain.Order, at time.Time) *Artifact {
	var b strings.Builder
	for i, o := range orders {
		if i > 0 {
			b.WriteString("\f\n")
		}
		fmt.Fprintf(&b, "FASHIONARY  INVOICE %s\n", o.ID)
		fmt.Fprintf(&b, "Date: %s\n", o.CreatedAt.Format("02 Jan 2006"))
		fmt.Fprintf(&b, "Bill to: %s, %s\n", o.CustomerName, o.CustomerPhone)
		fmt.Fprintf(&b, "Ship to: %s\n\n", o.ShippingAddress)
		for _, it := range o.Items {
			name := it.ProductName
			if it.Size != "" {
				name += " / " + it.Size
			}
			fmt.Fprintf(&b, "  %-12s %-32s %3d x %10.2f\n", it.SKU, name, it.Quantity, it.Price)
		}
		fmt.Fprintf(&b, "\n  Total: %.2f %s\n", o.TotalAmount, o.Currency)
	}
	return &Artifact{
		Name:        fmt.Sprintf("invoices-%s.txt", at.UTC().Format("20060102-150405")),
		ContentType: "text/plain; charset=utf-8",
		Data:        []byte(b.String()),
	}
}

func renderStickers(orders []*domain.Order, at time.Time) *Artifact {
	var b strings.Builder
	for _, o := range orders {
		b.WriteString("+--------------------------------------+\n")
		fmt.Fprintf(&b, "| %-36s |\n", o.ID)
		fmt.Fprintf(&b, "| %-36s |\n", truncate(o.CustomerName, 36))
		fmt.Fprintf(&b, "| %-36s |\n", o.CustomerPhone)
		fmt.Fprintf(&b, "| %-36s |\n", truncate(o.ShippingAddress, 36))
		fmt.Fprintf(&b, "| COD: %-31s |\n", fmt.Sprintf("%.2f %s", o.TotalAmount, o.Currency))
		b.WriteString("+--------------------------------------+\n\n")
	}
	return &Artifact{
		Name:        fmt.Sprintf("stickers-%s.txt", at.UTC().Format("20060102-150405")),
		ContentType: "text/plain; charset=utf-8",
		Data:        []byte(b.String()),
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "~"
}
