package store

import (
	"context"
	"errors"
	"fmt"

	"counterbook/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("resource not found")
	ErrValidation        = errors.New("validation failed")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrDuplicate         = errors.New("duplicate resource")
)

// StockError reports which product could not cover the requested quantity.
// It matches ErrInsufficientStock under errors.Is.
type StockError struct {
	ProductID   int64
	ProductName string
	Requested   int
	Available   int
}

func (e *StockError) Error() string {
	name := e.ProductName
	if name == "" {
		name = fmt.Sprintf("product %d", e.ProductID)
	}
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", name, e.Requested, e.Available)
}

func (e *StockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// Repository is the persistence boundary. The postgres implementation backs
// production, the memory implementation backs tests.
type Repository interface {
	// Products.
	CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error)
	GetProduct(ctx context.Context, id int64) (domain.Product, error)
	ListProducts(ctx context.Context, search string, page, perPage int) (domain.ProductPage, error)
	UpdateProduct(ctx context.Context, id int64, req domain.ProductUpdateRequest) (domain.Product, error)
	DeleteProduct(ctx context.Context, id int64) error

	// CreateInvoice persists the invoice header, its items with price
	// snapshots, the stock decrements and the mirrored legacy sale rows in
	// one transaction. Prices and stock are re-read authoritatively inside
	// that transaction; client-supplied names and prices are ignored.
	CreateInvoice(ctx context.Context, customerName, paymentMode, cashier string, lines []domain.InvoiceLine) (domain.Invoice, error)
	GetInvoice(ctx context.Context, id int64) (domain.Invoice, error)

	// Legacy single-item ledger. Create decrements stock without row
	// locking; Update rewrites the row without reconciling stock.
	CreateSale(ctx context.Context, req domain.SaleCreateRequest) (domain.Sale, error)
	ListSales(ctx context.Context, search string, page, perPage int) (domain.SalesPage, error)
	UpdateSale(ctx context.Context, id int64, req domain.SaleUpdateRequest) (domain.Sale, error)
	DeleteSale(ctx context.Context, id int64) error
	AllSales(ctx context.Context) ([]domain.Sale, error)

	// Reporting.
	SalesReport(ctx context.Context, f domain.SalesReportFilter) (domain.SalesReport, error)
	DashboardStats(ctx context.Context) (domain.DashboardStats, error)

	// Users.
	GetUserByUsername(ctx context.Context, username string) (domain.UserAccount, error)
	CreateUser(ctx context.Context, username, passwordHash, role string) (domain.UserView, error)
	ListUsers(ctx context.Context) ([]domain.UserView, error)
	DeleteUser(ctx context.Context, id int64) (string, error)
}
