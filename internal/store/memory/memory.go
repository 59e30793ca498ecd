package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"counterbook/backend/internal/domain"
	"counterbook/backend/internal/store"
)

type Store struct {
	mu       sync.RWMutex
	nextID   int64
	products map[int64]domain.Product
	invoices map[int64]domain.Invoice
	sales    map[int64]domain.Sale
	users    map[string]domain.UserAccount
	userIDs  map[int64]string
}

// seedUsers builds the initial in-memory accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD; when
// unset, hardcoded dev defaults are used with a warning. The memory store is
// never used in production (DATABASE_URL selects PostgreSQL).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	users := map[string]domain.UserAccount{}
	id := int64(1)
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"cashier", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			ID:       id,
			Username: u.username,
			Password: string(hash),
			Role:     u.role,
		}
		id++
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	now := time.Now().UTC()
	products := []domain.Product{
		{Name: "Basmati Rice 5kg", Category: "Grocery", PriceCents: 45000, Stock: 40, CreatedOn: now},
		{Name: "Toor Dal 1kg", Category: "Grocery", PriceCents: 16500, Stock: 60, CreatedOn: now},
		{Name: "Sunflower Oil 1L", Category: "Grocery", PriceCents: 14000, Stock: 35, CreatedOn: now},
		{Name: "Masala Chai 250g", Category: "Beverages", PriceCents: 12000, Stock: 50, CreatedOn: now},
		{Name: "Filter Coffee 200g", Category: "Beverages", PriceCents: 18000, Stock: 25, CreatedOn: now},
		{Name: "Parle-G Biscuits", Category: "Snacks", PriceCents: 1000, Stock: 200, CreatedOn: now},
		{Name: "Banana Chips 200g", Category: "Snacks", PriceCents: 6000, Stock: 45, CreatedOn: now},
		{Name: "Detergent Bar", Category: "Household", PriceCents: 3500, Stock: 80, CreatedOn: now},
		{Name: "Dish Soap 500ml", Category: "Household", PriceCents: 9900, Stock: 30, CreatedOn: now},
		{Name: "Notebook A5", Category: "Stationery", PriceCents: 5500, Stock: 3, CreatedOn: now},
	}

	s := &Store{
		nextID:   1,
		products: make(map[int64]domain.Product, len(products)),
		invoices: make(map[int64]domain.Invoice),
		sales:    make(map[int64]domain.Sale),
		users:    seedUsers(),
		userIDs:  make(map[int64]string),
	}
	for _, p := range products {
		p.ID = s.nextID
		s.nextID++
		s.products[p.ID] = p
	}
	for _, u := range s.users {
		s.userIDs[u.ID] = u.Username
	}
	// User ids and product ids share one sequence here; only uniqueness
	// matters for the fake.
	if s.nextID < 100 {
		s.nextID = 100
	}
	return s
}

// New returns an empty store with only the seed accounts.
func New() *Store {
	return &Store{
		nextID:   100,
		products: make(map[int64]domain.Product),
		invoices: make(map[int64]domain.Invoice),
		sales:    make(map[int64]domain.Sale),
		users:    seedUsers(),
		userIDs:  make(map[int64]string),
	}
}

func (s *Store) allocID() int64 {
	id := s.nextID
	s.nextID++
	return id
}

func (s *Store) CreateProduct(_ context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var p domain.Product
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	if req.Name == "" || req.Category == "" || req.PriceCents < 1 || req.Stock < 0 {
		return p, store.ErrValidation
	}

	p = domain.Product{
		ID:         s.allocID(),
		Name:       req.Name,
		Category:   req.Category,
		PriceCents: req.PriceCents,
		Stock:      req.Stock,
		CreatedOn:  time.Now().UTC(),
	}
	s.products[p.ID] = p
	return p, nil
}

func (s *Store) GetProduct(_ context.Context, id int64) (domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.products[id]
	if !exists {
		return domain.Product{}, store.ErrNotFound
	}
	return p, nil
}

func (s *Store) ListProducts(_ context.Context, search string, page, perPage int) (domain.ProductPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	needle := strings.ToLower(strings.TrimSpace(search))

	matched := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if needle != "" &&
			!strings.Contains(strings.ToLower(p.Name), needle) &&
			!strings.Contains(strings.ToLower(p.Category), needle) {
			continue
		}
		matched = append(matched, p)
	}
	slices.SortFunc(matched, func(a, b domain.Product) int {
		return int(b.ID - a.ID)
	})

	result := domain.ProductPage{
		Products:   []domain.Product{},
		Page:       page,
		Total:      len(matched),
		TotalPages: (len(matched) + perPage - 1) / perPage,
	}
	start := (page - 1) * perPage
	if start < len(matched) {
		end := start + perPage
		if end > len(matched) {
			end = len(matched)
		}
		result.Products = matched[start:end]
	}
	return result, nil
}

func (s *Store) UpdateProduct(_ context.Context, id int64, req domain.ProductUpdateRequest) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.products[id]
	if !exists {
		return domain.Product{}, store.ErrNotFound
	}
	if req.Name != nil {
		p.Name = strings.TrimSpace(*req.Name)
	}
	if req.Category != nil {
		p.Category = strings.TrimSpace(*req.Category)
	}
	if req.PriceCents != nil {
		p.PriceCents = *req.PriceCents
	}
	if req.Stock != nil {
		p.Stock = *req.Stock
	}
	if p.Name == "" || p.Category == "" || p.PriceCents < 1 || p.Stock < 0 {
		return domain.Product{}, store.ErrValidation
	}

	s.products[id] = p
	return p, nil
}

func (s *Store) DeleteProduct(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[id]; !exists {
		return store.ErrNotFound
	}
	for _, invoice := range s.invoices {
		for _, item := range invoice.Items {
			if item.ProductID == id {
				return store.ErrValidation
			}
		}
	}
	for _, sale := range s.sales {
		if sale.ProductID == id {
			return store.ErrValidation
		}
	}
	delete(s.products, id)
	return nil
}

func (s *Store) CreateInvoice(_ context.Context, customerName, paymentMode, cashier string, lines []domain.InvoiceLine) (domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var invoice domain.Invoice
	if len(lines) == 0 {
		return invoice, store.ErrValidation
	}

	// Validate everything against current state before mutating anything so
	// a late failure leaves no partial writes.
	subtotalCents := int64(0)
	items := make([]domain.InvoiceItem, 0, len(lines))
	for _, line := range lines {
		if line.Quantity < 1 {
			return invoice, store.ErrValidation
		}
		product, exists := s.products[line.ProductID]
		if !exists {
			return invoice, &store.StockError{
				ProductID:   line.ProductID,
				ProductName: line.Name,
				Requested:   line.Quantity,
				Available:   0,
			}
		}
		if product.Stock < line.Quantity {
			return invoice, &store.StockError{
				ProductID:   line.ProductID,
				ProductName: product.Name,
				Requested:   line.Quantity,
				Available:   product.Stock,
			}
		}
		items = append(items, domain.InvoiceItem{
			ProductID:        line.ProductID,
			ProductName:      product.Name,
			Quantity:         line.Quantity,
			PriceAtSaleCents: product.PriceCents,
			LineTotalCents:   product.PriceCents * int64(line.Quantity),
		})
		subtotalCents += product.PriceCents * int64(line.Quantity)
	}

	createdOn := time.Now().UTC()
	invoice = domain.Invoice{
		ID:              s.allocID(),
		CustomerName:    customerName,
		PaymentMode:     paymentMode,
		TotalCents:      domain.ApplyTaxCents(subtotalCents),
		CashierUsername: cashier,
		CreatedOn:       createdOn,
	}
	for i := range items {
		item := &items[i]
		item.ID = s.allocID()
		item.InvoiceID = invoice.ID

		product := s.products[item.ProductID]
		product.Stock -= item.Quantity
		s.products[item.ProductID] = product

		saleID := s.allocID()
		s.sales[saleID] = domain.Sale{
			ID:           saleID,
			ProductID:    item.ProductID,
			ProductName:  item.ProductName,
			Quantity:     item.Quantity,
			TotalCents:   item.LineTotalCents,
			CustomerName: customerName,
			PaymentMode:  paymentMode,
			CreatedOn:    createdOn,
		}
	}
	invoice.Items = items
	s.invoices[invoice.ID] = invoice
	return invoice, nil
}

func (s *Store) GetInvoice(_ context.Context, id int64) (domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	invoice, exists := s.invoices[id]
	if !exists {
		return domain.Invoice{}, store.ErrNotFound
	}
	items := make([]domain.InvoiceItem, len(invoice.Items))
	copy(items, invoice.Items)
	invoice.Items = items
	return invoice, nil
}

func (s *Store) CreateSale(_ context.Context, req domain.SaleCreateRequest) (domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sale domain.Sale
	if req.Quantity < 1 {
		return sale, store.ErrValidation
	}
	product, exists := s.products[req.ProductID]
	if !exists {
		return sale, store.ErrNotFound
	}
	if product.Stock < req.Quantity {
		return sale, &store.StockError{
			ProductID:   product.ID,
			ProductName: product.Name,
			Requested:   req.Quantity,
			Available:   product.Stock,
		}
	}

	product.Stock -= req.Quantity
	s.products[product.ID] = product

	sale = domain.Sale{
		ID:           s.allocID(),
		ProductID:    product.ID,
		ProductName:  product.Name,
		Quantity:     req.Quantity,
		TotalCents:   product.PriceCents * int64(req.Quantity),
		CustomerName: req.CustomerName,
		PaymentMode:  req.PaymentMode,
		CreatedOn:    time.Now().UTC(),
	}
	s.sales[sale.ID] = sale
	return sale, nil
}

func (s *Store) ListSales(_ context.Context, search string, page, perPage int) (domain.SalesPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	needle := strings.ToLower(strings.TrimSpace(search))

	matched := make([]domain.Sale, 0, len(s.sales))
	qtyByProduct := make(map[string]int)
	for _, sale := range s.sales {
		qtyByProduct[sale.ProductName] += sale.Quantity
		if needle != "" &&
			!strings.Contains(strings.ToLower(sale.ProductName), needle) &&
			!strings.Contains(strings.ToLower(sale.CustomerName), needle) {
			continue
		}
		matched = append(matched, sale)
	}
	slices.SortFunc(matched, func(a, b domain.Sale) int {
		return int(b.ID - a.ID)
	})

	result := domain.SalesPage{
		Sales:      []domain.Sale{},
		Page:       page,
		TotalSales: len(matched),
		TotalPages: (len(matched) + perPage - 1) / perPage,
	}
	for _, sale := range matched {
		result.TotalRevenue += sale.TotalCents
	}
	bestQty := 0
	for name, qty := range qtyByProduct {
		if qty > bestQty || (qty == bestQty && name < result.TopProductName) {
			bestQty = qty
			result.TopProductName = name
		}
	}
	start := (page - 1) * perPage
	if start < len(matched) {
		end := start + perPage
		if end > len(matched) {
			end = len(matched)
		}
		result.Sales = matched[start:end]
	}
	return result, nil
}

func (s *Store) UpdateSale(_ context.Context, id int64, req domain.SaleUpdateRequest) (domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var updated domain.Sale
	if req.Quantity < 1 {
		return updated, store.ErrValidation
	}
	sale, exists := s.sales[id]
	if !exists {
		return updated, store.ErrNotFound
	}
	product, exists := s.products[req.ProductID]
	if !exists {
		return updated, store.ErrNotFound
	}

	// No stock reconciliation on edit, matching the original ledger behavior.
	sale.ProductID = product.ID
	sale.ProductName = product.Name
	sale.Quantity = req.Quantity
	sale.TotalCents = product.PriceCents * int64(req.Quantity)
	sale.CustomerName = req.CustomerName
	sale.PaymentMode = req.PaymentMode
	s.sales[id] = sale
	return sale, nil
}

func (s *Store) DeleteSale(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sales[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.sales, id)
	return nil
}

func (s *Store) AllSales(_ context.Context) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		sales = append(sales, sale)
	}
	slices.SortFunc(sales, func(a, b domain.Sale) int {
		return int(a.ID - b.ID)
	})
	return sales, nil
}

func (s *Store) SalesReport(_ context.Context, f domain.SalesReportFilter) (domain.SalesReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report := domain.SalesReport{Invoices: []domain.SalesReportRow{}, Page: f.Page}
	if report.Page < 1 {
		report.Page = 1
	}
	perPage := f.PerPage
	if perPage < 1 {
		perPage = 10
	}
	needle := strings.ToLower(strings.TrimSpace(f.Search))

	matched := make([]domain.Invoice, 0, len(s.invoices))
	for _, invoice := range s.invoices {
		day := invoice.CreatedOn.Format("2006-01-02")
		if f.StartDate != "" && day < f.StartDate {
			continue
		}
		if f.EndDate != "" && day > f.EndDate {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(invoice.CustomerName), needle) {
			continue
		}
		matched = append(matched, invoice)
	}
	slices.SortFunc(matched, func(a, b domain.Invoice) int {
		return int(b.ID - a.ID)
	})

	report.TotalInvoices = len(matched)
	report.TotalPages = (len(matched) + perPage - 1) / perPage
	for _, invoice := range matched {
		report.RevenueCents += invoice.TotalCents
		for _, item := range invoice.Items {
			report.TotalItemsSold += item.Quantity
		}
	}

	start := (report.Page - 1) * perPage
	if start < len(matched) {
		end := start + perPage
		if end > len(matched) {
			end = len(matched)
		}
		for _, invoice := range matched[start:end] {
			itemCount := 0
			for _, item := range invoice.Items {
				itemCount += item.Quantity
			}
			report.Invoices = append(report.Invoices, domain.SalesReportRow{
				InvoiceID:       invoice.ID,
				CustomerName:    invoice.CustomerName,
				PaymentMode:     invoice.PaymentMode,
				TotalCents:      invoice.TotalCents,
				CashierUsername: invoice.CashierUsername,
				CreatedOn:       invoice.CreatedOn.Format("2006-01-02 15:04:05"),
				ItemCount:       itemCount,
			})
		}
	}
	return report, nil
}

func (s *Store) DashboardStats(_ context.Context) (domain.DashboardStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := domain.DashboardStats{
		DailyTotals:     []domain.DailyTotal{},
		TopProducts:     []domain.NamedTotal{},
		CategoryRevenue: []domain.NamedTotal{},
		LowStock:        []domain.LowStockItem{},
		RecentInvoices:  []domain.RecentInvoice{},
		TopCustomers:    []domain.NamedTotal{},
	}

	now := time.Now().UTC()
	today := now.Format("2006-01-02")

	dailyMap := make(map[string]int64, 7)
	topTodayQty := make(map[string]int)
	productRevenue := make(map[string]int64)
	categoryRevenue := make(map[string]int64)
	customerRevenue := make(map[string]int64)

	invoices := make([]domain.Invoice, 0, len(s.invoices))
	for _, invoice := range s.invoices {
		invoices = append(invoices, invoice)
	}
	slices.SortFunc(invoices, func(a, b domain.Invoice) int {
		return int(b.ID - a.ID)
	})

	for _, invoice := range invoices {
		day := invoice.CreatedOn.Format("2006-01-02")
		dailyMap[day] += invoice.TotalCents
		customerRevenue[invoice.CustomerName] += invoice.TotalCents
		if day == today {
			stats.RevenueTodayCents += invoice.TotalCents
			stats.InvoicesToday++
		}
		for _, item := range invoice.Items {
			product, exists := s.products[item.ProductID]
			category := ""
			if exists {
				category = product.Category
			}
			productRevenue[item.ProductName] += item.LineTotalCents
			categoryRevenue[category] += item.LineTotalCents
			if day == today {
				stats.ItemsSoldToday += item.Quantity
				topTodayQty[item.ProductName] += item.Quantity
			}
		}
		if len(stats.RecentInvoices) < 5 {
			stats.RecentInvoices = append(stats.RecentInvoices, domain.RecentInvoice{
				CustomerName: invoice.CustomerName,
				TotalCents:   invoice.TotalCents,
			})
		}
	}

	bestQty := 0
	for name, qty := range topTodayQty {
		if qty > bestQty || (qty == bestQty && name < stats.TopProductToday) {
			bestQty = qty
			stats.TopProductToday = name
		}
	}

	for offset := 6; offset >= 0; offset-- {
		day := now.AddDate(0, 0, -offset).Format("2006-01-02")
		stats.DailyTotals = append(stats.DailyTotals, domain.DailyTotal{Date: day, TotalCents: dailyMap[day]})
	}

	stats.TopProducts = topNamedTotals(productRevenue, 5)
	stats.CategoryRevenue = topNamedTotals(categoryRevenue, len(categoryRevenue))
	stats.TopCustomers = topNamedTotals(customerRevenue, 5)

	for _, p := range s.products {
		if p.Stock < 5 {
			stats.LowStock = append(stats.LowStock, domain.LowStockItem{Name: p.Name, Stock: p.Stock})
		}
	}
	slices.SortFunc(stats.LowStock, func(a, b domain.LowStockItem) int {
		if a.Stock == b.Stock {
			return cmpString(a.Name, b.Name)
		}
		return a.Stock - b.Stock
	})

	stats.GeneratedAt = now.Format(time.RFC3339)
	return stats, nil
}

func topNamedTotals(totals map[string]int64, limit int) []domain.NamedTotal {
	out := make([]domain.NamedTotal, 0, len(totals))
	for name, total := range totals {
		out = append(out, domain.NamedTotal{Name: name, TotalCents: total})
	}
	slices.SortFunc(out, func(a, b domain.NamedTotal) int {
		if a.TotalCents == b.TotalCents {
			return cmpString(a.Name, b.Name)
		}
		if b.TotalCents > a.TotalCents {
			return 1
		}
		return -1
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.users[username]
	if !exists {
		return domain.UserAccount{}, store.ErrNotFound
	}
	return user, nil
}

func (s *Store) CreateUser(_ context.Context, username, passwordHash, role string) (domain.UserView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var view domain.UserView
	if _, exists := s.users[username]; exists {
		return view, store.ErrDuplicate
	}
	user := domain.UserAccount{
		ID:       s.allocID(),
		Username: username,
		Password: passwordHash,
		Role:     role,
	}
	s.users[username] = user
	s.userIDs[user.ID] = username
	return domain.UserView{ID: user.ID, Username: user.Username, Role: user.Role}, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserView, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, domain.UserView{ID: user.ID, Username: user.Username, Role: user.Role})
	}
	slices.SortFunc(users, func(a, b domain.UserView) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) DeleteUser(_ context.Context, id int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	username, exists := s.userIDs[id]
	if !exists {
		return "", store.ErrNotFound
	}
	delete(s.users, username)
	delete(s.userIDs, id)
	return username, nil
}

func cmpString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
