package memory

import (
	"context"
	"errors"
	"testing"

	"counterbook/backend/internal/domain"
	"counterbook/backend/internal/store"
)

func seedProduct(t *testing.T, s *Store, name, category string, priceCents int64, stock int) domain.Product {
	t.Helper()
	product, err := s.CreateProduct(context.Background(), domain.ProductCreateRequest{
		Name:       name,
		Category:   category,
		PriceCents: priceCents,
		Stock:      stock,
	})
	if err != nil {
		t.Fatalf("create product %s: %v", name, err)
	}
	return product
}

func TestListProductsSearchAndPagination(t *testing.T) {
	s := New()
	seedProduct(t, s, "Masala Chai 250g", "Beverages", 10000, 10)
	seedProduct(t, s, "Filter Coffee 200g", "Beverages", 18000, 5)
	seedProduct(t, s, "Notebook A5", "Stationery", 5500, 20)

	page, err := s.ListProducts(context.Background(), "beverages", 1, 1)
	if err != nil {
		t.Fatalf("list products: %v", err)
	}
	if page.Total != 2 || page.TotalPages != 2 || len(page.Products) != 1 {
		t.Fatalf("unexpected page shape: total=%d pages=%d items=%d", page.Total, page.TotalPages, len(page.Products))
	}

	page, err = s.ListProducts(context.Background(), "chai", 1, 10)
	if err != nil {
		t.Fatalf("list products: %v", err)
	}
	if page.Total != 1 || page.Products[0].Name != "Masala Chai 250g" {
		t.Fatalf("name search failed: %+v", page)
	}
}

func TestCreateInvoicePersistsItemsAndMirrorsSales(t *testing.T) {
	s := New()
	chai := seedProduct(t, s, "Masala Chai 250g", "Beverages", 10000, 10)
	oil := seedProduct(t, s, "Sunflower Oil 1L", "Grocery", 14000, 6)

	invoice, err := s.CreateInvoice(context.Background(), "Asha", "Cash", "cashier", []domain.InvoiceLine{
		{ProductID: chai.ID, Quantity: 2},
		{ProductID: oil.ID, Quantity: 1},
	})
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	if len(invoice.Items) != 2 {
		t.Fatalf("expected 2 invoice items, got %d", len(invoice.Items))
	}
	if invoice.TotalCents != domain.ApplyTaxCents(34000) {
		t.Fatalf("unexpected invoice total %d", invoice.TotalCents)
	}
	for _, item := range invoice.Items {
		if item.LineTotalCents != item.PriceAtSaleCents*int64(item.Quantity) {
			t.Fatalf("line total mismatch for product %d", item.ProductID)
		}
	}

	sales, err := s.AllSales(context.Background())
	if err != nil {
		t.Fatalf("all sales: %v", err)
	}
	if len(sales) != 2 {
		t.Fatalf("expected one mirrored sale per line, got %d", len(sales))
	}

	stored, err := s.GetInvoice(context.Background(), invoice.ID)
	if err != nil {
		t.Fatalf("get invoice: %v", err)
	}
	if stored.CashierUsername != "cashier" {
		t.Fatalf("cashier not recorded: %q", stored.CashierUsername)
	}
}

func TestCreateInvoiceRejectsWholeCartOnOneBadLine(t *testing.T) {
	s := New()
	chai := seedProduct(t, s, "Masala Chai 250g", "Beverages", 10000, 10)
	scarce := seedProduct(t, s, "Notebook A5", "Stationery", 5500, 1)

	_, err := s.CreateInvoice(context.Background(), "Asha", "Cash", "cashier", []domain.InvoiceLine{
		{ProductID: chai.ID, Quantity: 2},
		{ProductID: scarce.ID, Quantity: 5},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	p, _ := s.GetProduct(context.Background(), chai.ID)
	if p.Stock != 10 {
		t.Fatalf("first line must not be applied when a later line fails, stock=%d", p.Stock)
	}
	sales, _ := s.AllSales(context.Background())
	if len(sales) != 0 {
		t.Fatalf("no sale rows may survive a failed invoice, got %d", len(sales))
	}
}

func TestDeleteProductBlockedByHistory(t *testing.T) {
	s := New()
	chai := seedProduct(t, s, "Masala Chai 250g", "Beverages", 10000, 10)

	if _, err := s.CreateInvoice(context.Background(), "Asha", "Cash", "cashier", []domain.InvoiceLine{
		{ProductID: chai.ID, Quantity: 1},
	}); err != nil {
		t.Fatalf("create invoice: %v", err)
	}

	if err := s.DeleteProduct(context.Background(), chai.ID); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error deleting referenced product, got %v", err)
	}

	fresh := seedProduct(t, s, "Unused Item", "Misc", 100, 1)
	if err := s.DeleteProduct(context.Background(), fresh.ID); err != nil {
		t.Fatalf("deleting an unreferenced product must succeed: %v", err)
	}
	if err := s.DeleteProduct(context.Background(), fresh.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestGetInvoiceNotFound(t *testing.T) {
	s := New()
	if _, err := s.GetInvoice(context.Background(), 42); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
