package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"counterbook/backend/internal/cache"
	"counterbook/backend/internal/domain"
	"counterbook/backend/internal/store"
	"counterbook/backend/internal/store/memory"
)

func newTestService() *Service {
	return New(memory.New(), cache.NoopDashboardCache{}, 5*time.Second)
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: "admin"})
}

func cashierCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "cashier", Role: "cashier"})
}

func mustCreateProduct(t *testing.T, svc *Service, name string, priceCents int64, stock int) domain.Product {
	t.Helper()
	product, err := svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{
		Name:       name,
		Category:   "Grocery",
		PriceCents: priceCents,
		Stock:      stock,
	})
	if err != nil {
		t.Fatalf("create product %s: %v", name, err)
	}
	return product
}

func cartFor(items ...domain.Product) string {
	parts := make([]string, 0, len(items))
	for _, p := range items {
		parts = append(parts, fmt.Sprintf("%q:{\"quantity\":1,\"name\":%q}", fmt.Sprint(p.ID), p.Name))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func TestCheckoutComputesTaxedTotal(t *testing.T) {
	svc := newTestService()
	product := mustCreateProduct(t, svc, "Masala Chai 250g", 10000, 10)

	resp, err := svc.Checkout(cashierCtx(), domain.CheckoutRequest{
		CustomerName: "Asha",
		PaymentMode:  "UPI",
		CartData:     fmt.Sprintf(`{"%d":{"quantity":2,"name":"Masala Chai 250g"}}`, product.ID),
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	if resp.SubtotalCents != 20000 {
		t.Fatalf("expected subtotal 20000, got %d", resp.SubtotalCents)
	}
	if resp.TotalCents != 23600 {
		t.Fatalf("expected total 23600 (18%% GST on 20000), got %d", resp.TotalCents)
	}
	if resp.TaxCents != 3600 {
		t.Fatalf("expected tax 3600, got %d", resp.TaxCents)
	}
	if resp.ItemCount != 2 {
		t.Fatalf("expected item count 2, got %d", resp.ItemCount)
	}

	updated, err := svc.GetProduct(cashierCtx(), product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if updated.Stock != 8 {
		t.Fatalf("expected stock 8 after checkout, got %d", updated.Stock)
	}

	sales, err := svc.AllSales(cashierCtx())
	if err != nil {
		t.Fatalf("all sales: %v", err)
	}
	if len(sales) != 1 {
		t.Fatalf("expected one mirrored sale row, got %d", len(sales))
	}
	if sales[0].TotalCents != 20000 || sales[0].Quantity != 2 {
		t.Fatalf("mirrored sale mismatch: total=%d qty=%d", sales[0].TotalCents, sales[0].Quantity)
	}
}

func TestCheckoutRoundsTaxToNearestPaisa(t *testing.T) {
	svc := newTestService()
	// 105 * 1.18 = 123.9, which must round to 124.
	product := mustCreateProduct(t, svc, "Toffee", 105, 5)

	resp, err := svc.Checkout(cashierCtx(), domain.CheckoutRequest{
		CustomerName: "Ravi",
		CartData:     fmt.Sprintf(`{"%d":{"quantity":1,"name":"Toffee"}}`, product.ID),
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	if resp.TotalCents != 124 {
		t.Fatalf("expected rounded total 124, got %d", resp.TotalCents)
	}
}

func TestCheckoutRejectsBlankCustomerName(t *testing.T) {
	svc := newTestService()
	product := mustCreateProduct(t, svc, "Dish Soap", 9900, 4)

	_, err := svc.Checkout(cashierCtx(), domain.CheckoutRequest{
		CustomerName: "   ",
		CartData:     cartFor(product),
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	updated, _ := svc.GetProduct(cashierCtx(), product.ID)
	if updated.Stock != 4 {
		t.Fatalf("stock must be untouched on rejected checkout, got %d", updated.Stock)
	}
}

func TestCheckoutMalformedCartDistinctFromEmptyCart(t *testing.T) {
	svc := newTestService()

	_, err := svc.Checkout(cashierCtx(), domain.CheckoutRequest{
		CustomerName: "Meena",
		CartData:     `{"broken`,
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for malformed cart, got %v", err)
	}
	if !strings.Contains(err.Error(), "invalid cart data") {
		t.Fatalf("malformed cart must report invalid cart data, got %q", err.Error())
	}

	_, err = svc.Checkout(cashierCtx(), domain.CheckoutRequest{
		CustomerName: "Meena",
		CartData:     `{}`,
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for empty cart, got %v", err)
	}
	if !strings.Contains(err.Error(), "cart is empty") {
		t.Fatalf("empty cart must report cart is empty, got %q", err.Error())
	}
}

func TestCheckoutRejectsNonNumericCartKey(t *testing.T) {
	svc := newTestService()

	_, err := svc.Checkout(cashierCtx(), domain.CheckoutRequest{
		CustomerName: "Meena",
		CartData:     `{"abc":{"quantity":1,"name":"ghost"}}`,
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for non-numeric key, got %v", err)
	}
}

func TestCheckoutInsufficientStockNamesProduct(t *testing.T) {
	svc := newTestService()
	product := mustCreateProduct(t, svc, "Filter Coffee 200g", 18000, 1)

	_, err := svc.Checkout(cashierCtx(), domain.CheckoutRequest{
		CustomerName: "Vikram",
		CartData:     fmt.Sprintf(`{"%d":{"quantity":2,"name":"Filter Coffee 200g"}}`, product.ID),
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	var stockErr *store.StockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected *store.StockError, got %T", err)
	}
	if stockErr.ProductName != "Filter Coffee 200g" || stockErr.Available != 1 || stockErr.Requested != 2 {
		t.Fatalf("stock error details wrong: %+v", stockErr)
	}
}

func TestCheckoutUnknownProductFailsAsOutOfStock(t *testing.T) {
	svc := newTestService()

	_, err := svc.Checkout(cashierCtx(), domain.CheckoutRequest{
		CustomerName: "Vikram",
		CartData:     `{"9999":{"quantity":1,"name":"Phantom Item"}}`,
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock for unknown product, got %v", err)
	}

	var stockErr *store.StockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected *store.StockError, got %T", err)
	}
	if stockErr.ProductName != "Phantom Item" || stockErr.Available != 0 {
		t.Fatalf("stock error details wrong: %+v", stockErr)
	}
}

func TestCheckoutFailureLeavesNoPartialWrites(t *testing.T) {
	svc := newTestService()
	plenty := mustCreateProduct(t, svc, "Basmati Rice 5kg", 45000, 50)
	scarce := mustCreateProduct(t, svc, "Notebook A5", 5500, 1)

	_, err := svc.Checkout(cashierCtx(), domain.CheckoutRequest{
		CustomerName: "Divya",
		CartData: fmt.Sprintf(`{"%d":{"quantity":3,"name":"Basmati Rice 5kg"},"%d":{"quantity":2,"name":"Notebook A5"}}`,
			plenty.ID, scarce.ID),
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	p1, _ := svc.GetProduct(cashierCtx(), plenty.ID)
	p2, _ := svc.GetProduct(cashierCtx(), scarce.ID)
	if p1.Stock != 50 || p2.Stock != 1 {
		t.Fatalf("stocks must survive failed checkout untouched, got %d and %d", p1.Stock, p2.Stock)
	}

	sales, _ := svc.AllSales(cashierCtx())
	if len(sales) != 0 {
		t.Fatalf("no sale rows may exist after failed checkout, got %d", len(sales))
	}
}

func TestCheckoutQuantityEqualToStockSucceeds(t *testing.T) {
	svc := newTestService()
	product := mustCreateProduct(t, svc, "Detergent Bar", 3500, 3)

	_, err := svc.Checkout(cashierCtx(), domain.CheckoutRequest{
		CustomerName: "Sunita",
		CartData:     fmt.Sprintf(`{"%d":{"quantity":3,"name":"Detergent Bar"}}`, product.ID),
	})
	if err != nil {
		t.Fatalf("quantity equal to stock must succeed: %v", err)
	}

	updated, _ := svc.GetProduct(cashierCtx(), product.ID)
	if updated.Stock != 0 {
		t.Fatalf("expected zero stock, got %d", updated.Stock)
	}

	_, err = svc.Checkout(cashierCtx(), domain.CheckoutRequest{
		CustomerName: "Sunita",
		CartData:     fmt.Sprintf(`{"%d":{"quantity":1,"name":"Detergent Bar"}}`, product.ID),
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock once depleted, got %v", err)
	}
}

func TestCheckoutRequiresAuthenticatedActor(t *testing.T) {
	svc := newTestService()
	product := mustCreateProduct(t, svc, "Banana Chips 200g", 6000, 10)

	_, err := svc.Checkout(context.Background(), domain.CheckoutRequest{
		CustomerName: "Anand",
		CartData:     cartFor(product),
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error without actor, got %v", err)
	}
}

func TestReceiptPriceSnapshotSurvivesCatalogEdits(t *testing.T) {
	svc := newTestService()
	product := mustCreateProduct(t, svc, "Sunflower Oil 1L", 14000, 10)

	resp, err := svc.Checkout(cashierCtx(), domain.CheckoutRequest{
		CustomerName: "Lakshmi",
		CartData:     fmt.Sprintf(`{"%d":{"quantity":1,"name":"Sunflower Oil 1L"}}`, product.ID),
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	newPrice := int64(19900)
	if _, err := svc.UpdateProduct(adminCtx(), product.ID, domain.ProductUpdateRequest{PriceCents: &newPrice}); err != nil {
		t.Fatalf("update product: %v", err)
	}

	receipt, err := svc.Receipt(cashierCtx(), resp.InvoiceID)
	if err != nil {
		t.Fatalf("receipt failed: %v", err)
	}
	if len(receipt.Items) != 1 {
		t.Fatalf("expected one receipt item, got %d", len(receipt.Items))
	}
	if receipt.Items[0].PriceAtSaleCents != 14000 {
		t.Fatalf("price snapshot must hold the sale-time price, got %d", receipt.Items[0].PriceAtSaleCents)
	}
	if receipt.Invoice.TotalCents != resp.TotalCents {
		t.Fatalf("invoice total drifted after catalog edit: %d vs %d", receipt.Invoice.TotalCents, resp.TotalCents)
	}
	if receipt.CGSTCents+receipt.SGSTCents != receipt.Invoice.TotalCents-receipt.SubtotalCents {
		t.Fatalf("GST halves must sum to the tax amount")
	}
}

func TestLegacySaleEditDoesNotReconcileStock(t *testing.T) {
	svc := newTestService()
	product := mustCreateProduct(t, svc, "Parle-G Biscuits", 1000, 20)

	sale, err := svc.CreateSale(cashierCtx(), domain.SaleCreateRequest{
		ProductID:    product.ID,
		Quantity:     5,
		CustomerName: "Walk-in",
		PaymentMode:  "Cash",
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	afterCreate, _ := svc.GetProduct(cashierCtx(), product.ID)
	if afterCreate.Stock != 15 {
		t.Fatalf("legacy create must decrement stock, got %d", afterCreate.Stock)
	}

	if _, err := svc.UpdateSale(cashierCtx(), sale.ID, domain.SaleUpdateRequest{
		ProductID: product.ID,
		Quantity:  1,
	}); err == nil {
		t.Fatalf("cashier must not edit the ledger")
	}

	updated, err := svc.UpdateSale(adminCtx(), sale.ID, domain.SaleUpdateRequest{
		ProductID:    product.ID,
		Quantity:     1,
		CustomerName: "Walk-in",
		PaymentMode:  "Cash",
	})
	if err != nil {
		t.Fatalf("update sale: %v", err)
	}
	if updated.Quantity != 1 || updated.TotalCents != 1000 {
		t.Fatalf("updated sale mismatch: qty=%d total=%d", updated.Quantity, updated.TotalCents)
	}

	afterEdit, _ := svc.GetProduct(cashierCtx(), product.ID)
	if afterEdit.Stock != 15 {
		t.Fatalf("editing a sale must leave stock alone, got %d", afterEdit.Stock)
	}
}

func TestDashboardReflectsCheckout(t *testing.T) {
	svc := newTestService()
	product := mustCreateProduct(t, svc, "Masala Chai 250g", 10000, 10)

	_, err := svc.Checkout(cashierCtx(), domain.CheckoutRequest{
		CustomerName: "Asha",
		CartData:     fmt.Sprintf(`{"%d":{"quantity":2,"name":"Masala Chai 250g"}}`, product.ID),
	})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	stats, err := svc.DashboardStats(cashierCtx())
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if stats.InvoicesToday != 1 || stats.ItemsSoldToday != 2 {
		t.Fatalf("dashboard counters wrong: invoices=%d items=%d", stats.InvoicesToday, stats.ItemsSoldToday)
	}
	if stats.RevenueTodayCents != 23600 {
		t.Fatalf("expected today revenue 23600, got %d", stats.RevenueTodayCents)
	}
	if len(stats.DailyTotals) != 7 {
		t.Fatalf("expected a 7-day series, got %d points", len(stats.DailyTotals))
	}
	if stats.TopProductToday != "Masala Chai 250g" {
		t.Fatalf("expected top product, got %q", stats.TopProductToday)
	}
}

func TestSalesReportFiltersAndTotals(t *testing.T) {
	svc := newTestService()
	product := mustCreateProduct(t, svc, "Dish Soap 500ml", 9900, 30)

	for _, name := range []string{"Asha", "Ravi", "Asha"} {
		_, err := svc.Checkout(cashierCtx(), domain.CheckoutRequest{
			CustomerName: name,
			CartData:     fmt.Sprintf(`{"%d":{"quantity":1,"name":"Dish Soap 500ml"}}`, product.ID),
		})
		if err != nil {
			t.Fatalf("checkout for %s: %v", name, err)
		}
	}

	report, err := svc.SalesReport(adminCtx(), domain.SalesReportFilter{Search: "asha"})
	if err != nil {
		t.Fatalf("sales report: %v", err)
	}
	if report.TotalInvoices != 2 {
		t.Fatalf("expected 2 invoices for asha, got %d", report.TotalInvoices)
	}
	if report.TotalItemsSold != 2 {
		t.Fatalf("expected 2 items sold for asha, got %d", report.TotalItemsSold)
	}

	if _, err := svc.SalesReport(cashierCtx(), domain.SalesReportFilter{}); err == nil {
		t.Fatalf("cashier must not access the sales report")
	}
}

func TestAdminCannotDeleteOwnAccount(t *testing.T) {
	svc := newTestService()

	users, err := svc.ListUsers(adminCtx())
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	var adminID int64
	for _, user := range users {
		if user.Username == "admin" {
			adminID = user.ID
		}
	}
	if adminID == 0 {
		t.Fatalf("seed admin not found")
	}

	err = svc.DeleteUser(adminCtx(), adminID)
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected self-delete rejection, got %v", err)
	}
}

func TestProductMutationsRequireAdmin(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateProduct(cashierCtx(), domain.ProductCreateRequest{
		Name:       "Notebook A5",
		Category:   "Stationery",
		PriceCents: 5500,
		Stock:      10,
	})
	if err == nil {
		t.Fatalf("cashier must not create products")
	}
}
