package domain

import "time"

// Monetary values are int64 paise (two implied decimals).

type Product struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Category   string    `json:"category"`
	PriceCents int64     `json:"price_cents"`
	Stock      int       `json:"stock"`
	CreatedOn  time.Time `json:"created_on"`
}

type ProductCreateRequest struct {
	Name       string `json:"name"`
	Category   string `json:"category"`
	PriceCents int64  `json:"price_cents"`
	Stock      int    `json:"stock"`
}

type ProductUpdateRequest struct {
	Name       *string `json:"name,omitempty"`
	Category   *string `json:"category,omitempty"`
	PriceCents *int64  `json:"price_cents,omitempty"`
	Stock      *int    `json:"stock,omitempty"`
}

type ProductPage struct {
	Products   []Product `json:"products"`
	Page       int       `json:"page"`
	TotalPages int       `json:"total_pages"`
	Total      int       `json:"total"`
}

// CartItem is one entry of the client-submitted cart. Carts arrive on the
// wire as a single opaque JSON field mapping product-id string to this shape.
type CartItem struct {
	Quantity int    `json:"quantity"`
	Name     string `json:"name"`
}

type CheckoutRequest struct {
	CustomerName string `json:"customer_name"`
	PaymentMode  string `json:"payment_mode"`
	CartData     string `json:"cart_data"`
}

type CheckoutResponse struct {
	InvoiceID     int64  `json:"invoice_id"`
	SubtotalCents int64  `json:"subtotal_cents"`
	TaxCents      int64  `json:"tax_cents"`
	TotalCents    int64  `json:"total_cents"`
	ItemCount     int    `json:"item_count"`
	CreatedAt     string `json:"created_at"`
}

type Invoice struct {
	ID              int64         `json:"id"`
	CustomerName    string        `json:"customer_name"`
	PaymentMode     string        `json:"payment_mode"`
	TotalCents      int64         `json:"total_cents"`
	CashierUsername string        `json:"cashier_username"`
	CreatedOn       time.Time     `json:"created_on"`
	Items           []InvoiceItem `json:"items,omitempty"`
}

type InvoiceItem struct {
	ID               int64  `json:"id"`
	InvoiceID        int64  `json:"invoice_id"`
	ProductID        int64  `json:"product_id"`
	ProductName      string `json:"product_name,omitempty"`
	Quantity         int    `json:"quantity"`
	PriceAtSaleCents int64  `json:"price_at_sale_cents"`
	LineTotalCents   int64  `json:"line_total_cents"`
}

// InvoiceLine is one validated cart line handed to the store for persistence.
type InvoiceLine struct {
	ProductID int64
	Quantity  int
	Name      string
}

// Receipt is the printable view of a committed invoice. The 18% tax baked
// into the total is split back out as CGST 9% + SGST 9%.
type Receipt struct {
	Invoice       Invoice       `json:"invoice"`
	Items         []InvoiceItem `json:"items"`
	SubtotalCents int64         `json:"subtotal_cents"`
	CGSTCents     int64         `json:"cgst_cents"`
	SGSTCents     int64         `json:"sgst_cents"`
	InvoiceDate   string        `json:"invoice_date"`
	InvoiceTime   string        `json:"invoice_time"`
}

// Sale is one row of the legacy single-item ledger. Checkout mirrors each
// invoice line into this ledger for backward-compatible reporting.
type Sale struct {
	ID           int64     `json:"id"`
	ProductID    int64     `json:"product_id"`
	ProductName  string    `json:"product_name,omitempty"`
	Quantity     int       `json:"quantity"`
	TotalCents   int64     `json:"total_cents"`
	CustomerName string    `json:"customer_name"`
	PaymentMode  string    `json:"payment_mode"`
	CreatedOn    time.Time `json:"created_on"`
}

type SaleCreateRequest struct {
	ProductID    int64  `json:"product_id"`
	Quantity     int    `json:"quantity"`
	CustomerName string `json:"customer_name"`
	PaymentMode  string `json:"payment_mode"`
}

type SaleUpdateRequest struct {
	ProductID    int64  `json:"product_id"`
	Quantity     int    `json:"quantity"`
	CustomerName string `json:"customer_name"`
	PaymentMode  string `json:"payment_mode"`
}

type SalesPage struct {
	Sales          []Sale `json:"sales"`
	Page           int    `json:"page"`
	TotalPages     int    `json:"total_pages"`
	TotalSales     int    `json:"total_sales"`
	TotalRevenue   int64  `json:"total_revenue_cents"`
	TopProductName string `json:"top_product"`
}

type SalesReportFilter struct {
	StartDate string
	EndDate   string
	Search    string
	Page      int
	PerPage   int
}

type SalesReportRow struct {
	InvoiceID       int64  `json:"invoice_id"`
	CustomerName    string `json:"customer_name"`
	PaymentMode     string `json:"payment_mode"`
	TotalCents      int64  `json:"total_cents"`
	CashierUsername string `json:"cashier_username"`
	CreatedOn       string `json:"created_on"`
	ItemCount       int    `json:"item_count"`
}

type SalesReport struct {
	Invoices       []SalesReportRow `json:"invoices"`
	Page           int              `json:"page"`
	TotalPages     int              `json:"total_pages"`
	TotalInvoices  int              `json:"total_invoices"`
	RevenueCents   int64            `json:"total_revenue_cents"`
	TotalItemsSold int              `json:"total_items_sold"`
}

type DailyTotal struct {
	Date       string `json:"date"`
	TotalCents int64  `json:"total_cents"`
}

type NamedTotal struct {
	Name       string `json:"name"`
	TotalCents int64  `json:"total_cents"`
}

type LowStockItem struct {
	Name  string `json:"name"`
	Stock int    `json:"stock"`
}

type RecentInvoice struct {
	CustomerName string `json:"customer_name"`
	TotalCents   int64  `json:"total_cents"`
}

type DashboardStats struct {
	RevenueTodayCents int64           `json:"revenue_today_cents"`
	InvoicesToday     int             `json:"invoices_today"`
	ItemsSoldToday    int             `json:"items_sold_today"`
	TopProductToday   string          `json:"top_product_today"`
	DailyTotals       []DailyTotal    `json:"daily_totals"`
	TopProducts       []NamedTotal    `json:"top_products"`
	CategoryRevenue   []NamedTotal    `json:"category_revenue"`
	LowStock          []LowStockItem  `json:"low_stock"`
	RecentInvoices    []RecentInvoice `json:"recent_invoices"`
	TopCustomers      []NamedTotal    `json:"top_customers"`
	GeneratedAt       string          `json:"generated_at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

// Actor is the authenticated principal carried through request context.
type Actor struct {
	Username string
	Role     string
}

type UserCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type UserView struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// UserAccount is the internal persistence model for auth credentials.
type UserAccount struct {
	ID       int64
	Username string
	Password string
	Role     string
}

const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
)
