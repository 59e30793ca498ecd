package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"counterbook/backend/internal/domain"
	"counterbook/backend/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	var p domain.Product
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	if req.Name == "" || req.Category == "" || req.PriceCents < 1 || req.Stock < 0 {
		return p, store.ErrValidation
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO products (name, category, price, stock, created_on)
		VALUES ($1,$2,$3,$4,now())
		RETURNING id, name, category, price, stock, created_on
	`, req.Name, req.Category, req.PriceCents, req.Stock).Scan(
		&p.ID, &p.Name, &p.Category, &p.PriceCents, &p.Stock, &p.CreatedOn,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return p, store.ErrDuplicate
		}
		return p, err
	}
	p.CreatedOn = p.CreatedOn.UTC()
	return p, nil
}

func (s *Store) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, category, price, stock, created_on
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Category, &p.PriceCents, &p.Stock, &p.CreatedOn)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p, store.ErrNotFound
		}
		return p, err
	}
	p.CreatedOn = p.CreatedOn.UTC()
	return p, nil
}

func (s *Store) ListProducts(ctx context.Context, search string, page, perPage int) (domain.ProductPage, error) {
	result := domain.ProductPage{Products: []domain.Product{}, Page: page}
	if page < 1 {
		result.Page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	pattern := "%" + strings.TrimSpace(search) + "%"

	var total int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM products
		WHERE name ILIKE $1 OR category ILIKE $1
	`, pattern).Scan(&total)
	if err != nil {
		return result, err
	}
	result.Total = total
	result.TotalPages = (total + perPage - 1) / perPage

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, price, stock, created_on
		FROM products
		WHERE name ILIKE $1 OR category ILIKE $1
		ORDER BY id DESC
		LIMIT $2 OFFSET $3
	`, pattern, perPage, (result.Page-1)*perPage)
	if err != nil {
		return result, err
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.PriceCents, &p.Stock, &p.CreatedOn); err != nil {
			return result, err
		}
		p.CreatedOn = p.CreatedOn.UTC()
		result.Products = append(result.Products, p)
	}
	if err := rows.Err(); err != nil {
		return result, err
	}
	return result, nil
}

func (s *Store) UpdateProduct(ctx context.Context, id int64, req domain.ProductUpdateRequest) (domain.Product, error) {
	var p domain.Product

	current, err := s.GetProduct(ctx, id)
	if err != nil {
		return p, err
	}
	if req.Name != nil {
		current.Name = strings.TrimSpace(*req.Name)
	}
	if req.Category != nil {
		current.Category = strings.TrimSpace(*req.Category)
	}
	if req.PriceCents != nil {
		current.PriceCents = *req.PriceCents
	}
	if req.Stock != nil {
		current.Stock = *req.Stock
	}
	if current.Name == "" || current.Category == "" || current.PriceCents < 1 || current.Stock < 0 {
		return p, store.ErrValidation
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, category = $3, price = $4, stock = $5
		WHERE id = $1
	`, id, current.Name, current.Category, current.PriceCents, current.Stock)
	if err != nil {
		return p, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return p, err
	}
	if affected == 0 {
		return p, store.ErrNotFound
	}
	return current, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return store.ErrValidation
		}
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// CreateInvoice runs the whole checkout write set in one serializable
// transaction: the stock rows are locked first, prices are re-read from the
// locked rows, and the invoice, its items, the decrements and the mirrored
// legacy sale rows either all land or none do.
func (s *Store) CreateInvoice(ctx context.Context, customerName, paymentMode, cashier string, lines []domain.InvoiceLine) (domain.Invoice, error) {
	var invoice domain.Invoice
	if len(lines) == 0 {
		return invoice, store.ErrValidation
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return invoice, err
	}
	defer func() { _ = pgTx.Rollback() }()

	ids := uniqueProductIDs(lines)
	if len(ids) == 0 {
		return invoice, store.ErrValidation
	}

	type productState struct {
		name       string
		priceCents int64
		stock      int
	}
	productRows, err := pgTx.QueryContext(ctx, `
		SELECT id, name, price, stock
		FROM products
		WHERE id = ANY($1)
		FOR UPDATE
	`, ids)
	if err != nil {
		return invoice, err
	}
	productMap := make(map[int64]productState, len(ids))
	for productRows.Next() {
		var id int64
		var ps productState
		if err := productRows.Scan(&id, &ps.name, &ps.priceCents, &ps.stock); err != nil {
			_ = productRows.Close()
			return invoice, err
		}
		productMap[id] = ps
	}
	if err := productRows.Err(); err != nil {
		_ = productRows.Close()
		return invoice, err
	}
	_ = productRows.Close()

	subtotalCents := int64(0)
	items := make([]domain.InvoiceItem, 0, len(lines))
	for _, line := range lines {
		if line.Quantity < 1 {
			return invoice, store.ErrValidation
		}
		product, exists := productMap[line.ProductID]
		if !exists {
			return invoice, &store.StockError{
				ProductID:   line.ProductID,
				ProductName: line.Name,
				Requested:   line.Quantity,
				Available:   0,
			}
		}
		if product.stock < line.Quantity {
			return invoice, &store.StockError{
				ProductID:   line.ProductID,
				ProductName: product.name,
				Requested:   line.Quantity,
				Available:   product.stock,
			}
		}

		items = append(items, domain.InvoiceItem{
			ProductID:        line.ProductID,
			ProductName:      product.name,
			Quantity:         line.Quantity,
			PriceAtSaleCents: product.priceCents,
			LineTotalCents:   product.priceCents * int64(line.Quantity),
		})
		subtotalCents += product.priceCents * int64(line.Quantity)
	}

	totalCents := domain.ApplyTaxCents(subtotalCents)
	createdOn := time.Now().UTC()

	err = pgTx.QueryRowContext(ctx, `
		INSERT INTO invoices (customer_name, payment_mode, total_amount, cashier_username, created_on)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id
	`, customerName, paymentMode, totalCents, cashier, createdOn).Scan(&invoice.ID)
	if err != nil {
		return invoice, err
	}

	for i := range items {
		item := &items[i]
		item.InvoiceID = invoice.ID
		err = pgTx.QueryRowContext(ctx, `
			INSERT INTO invoice_items (invoice_id, product_id, quantity, price_at_sale, line_total)
			VALUES ($1,$2,$3,$4,$5)
			RETURNING id
		`, invoice.ID, item.ProductID, item.Quantity, item.PriceAtSaleCents, item.LineTotalCents).Scan(&item.ID)
		if err != nil {
			return invoice, err
		}

		_, err = pgTx.ExecContext(ctx, `
			UPDATE products
			SET stock = stock - $1
			WHERE id = $2
		`, item.Quantity, item.ProductID)
		if err != nil {
			return invoice, err
		}

		_, err = pgTx.ExecContext(ctx, `
			INSERT INTO sales (product_id, quantity, total_price, customer_name, payment_mode, created_on)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, item.ProductID, item.Quantity, item.LineTotalCents, customerName, paymentMode, createdOn)
		if err != nil {
			return invoice, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return invoice, err
	}

	invoice.CustomerName = customerName
	invoice.PaymentMode = paymentMode
	invoice.TotalCents = totalCents
	invoice.CashierUsername = cashier
	invoice.CreatedOn = createdOn
	invoice.Items = items
	return invoice, nil
}

func (s *Store) GetInvoice(ctx context.Context, id int64) (domain.Invoice, error) {
	var invoice domain.Invoice
	err := s.db.QueryRowContext(ctx, `
		SELECT id, customer_name, payment_mode, total_amount, COALESCE(cashier_username,''), created_on
		FROM invoices
		WHERE id = $1
	`, id).Scan(&invoice.ID, &invoice.CustomerName, &invoice.PaymentMode, &invoice.TotalCents, &invoice.CashierUsername, &invoice.CreatedOn)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return invoice, store.ErrNotFound
		}
		return invoice, err
	}
	invoice.CreatedOn = invoice.CreatedOn.UTC()

	rows, err := s.db.QueryContext(ctx, `
		SELECT ii.id, ii.product_id, COALESCE(p.name,''), ii.quantity, ii.price_at_sale, ii.line_total
		FROM invoice_items ii
		LEFT JOIN products p ON p.id = ii.product_id
		WHERE ii.invoice_id = $1
		ORDER BY ii.id ASC
	`, id)
	if err != nil {
		return invoice, err
	}
	defer rows.Close()

	items := make([]domain.InvoiceItem, 0, 8)
	for rows.Next() {
		var item domain.InvoiceItem
		if err := rows.Scan(&item.ID, &item.ProductID, &item.ProductName, &item.Quantity, &item.PriceAtSaleCents, &item.LineTotalCents); err != nil {
			return invoice, err
		}
		item.InvoiceID = id
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return invoice, err
	}
	invoice.Items = items
	return invoice, nil
}

// CreateSale is the legacy single-item path. It reads stock without locking
// and decrements unconditionally once the read passes, which can oversell
// under concurrency. The behavior is kept as the older clients expect it.
func (s *Store) CreateSale(ctx context.Context, req domain.SaleCreateRequest) (domain.Sale, error) {
	var sale domain.Sale
	if req.Quantity < 1 {
		return sale, store.ErrValidation
	}

	product, err := s.GetProduct(ctx, req.ProductID)
	if err != nil {
		return sale, err
	}
	if product.Stock < req.Quantity {
		return sale, &store.StockError{
			ProductID:   product.ID,
			ProductName: product.Name,
			Requested:   req.Quantity,
			Available:   product.Stock,
		}
	}

	totalCents := product.PriceCents * int64(req.Quantity)
	createdOn := time.Now().UTC()

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return sale, err
	}
	defer func() { _ = pgTx.Rollback() }()

	err = pgTx.QueryRowContext(ctx, `
		INSERT INTO sales (product_id, quantity, total_price, customer_name, payment_mode, created_on)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id
	`, req.ProductID, req.Quantity, totalCents, req.CustomerName, req.PaymentMode, createdOn).Scan(&sale.ID)
	if err != nil {
		return sale, err
	}

	_, err = pgTx.ExecContext(ctx, `
		UPDATE products
		SET stock = stock - $1
		WHERE id = $2
	`, req.Quantity, req.ProductID)
	if err != nil {
		return sale, err
	}

	if err := pgTx.Commit(); err != nil {
		return sale, err
	}

	sale.ProductID = req.ProductID
	sale.ProductName = product.Name
	sale.Quantity = req.Quantity
	sale.TotalCents = totalCents
	sale.CustomerName = req.CustomerName
	sale.PaymentMode = req.PaymentMode
	sale.CreatedOn = createdOn
	return sale, nil
}

func (s *Store) ListSales(ctx context.Context, search string, page, perPage int) (domain.SalesPage, error) {
	result := domain.SalesPage{Sales: []domain.Sale{}, Page: page}
	if page < 1 {
		result.Page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	pattern := "%" + strings.TrimSpace(search) + "%"

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(s.total_price),0)::bigint
		FROM sales s
		JOIN products p ON p.id = s.product_id
		WHERE p.name ILIKE $1 OR s.customer_name ILIKE $1
	`, pattern).Scan(&result.TotalSales, &result.TotalRevenue)
	if err != nil {
		return result, err
	}
	result.TotalPages = (result.TotalSales + perPage - 1) / perPage

	var topProduct sql.NullString
	err = s.db.QueryRowContext(ctx, `
		SELECT p.name
		FROM sales s
		JOIN products p ON p.id = s.product_id
		GROUP BY p.name
		ORDER BY SUM(s.quantity) DESC
		LIMIT 1
	`).Scan(&topProduct)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return result, err
	}
	if topProduct.Valid {
		result.TopProductName = topProduct.String
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.product_id, p.name, s.quantity, s.total_price, s.customer_name, s.payment_mode, s.created_on
		FROM sales s
		JOIN products p ON p.id = s.product_id
		WHERE p.name ILIKE $1 OR s.customer_name ILIKE $1
		ORDER BY s.id DESC
		LIMIT $2 OFFSET $3
	`, pattern, perPage, (result.Page-1)*perPage)
	if err != nil {
		return result, err
	}
	defer rows.Close()

	for rows.Next() {
		var sale domain.Sale
		if err := rows.Scan(&sale.ID, &sale.ProductID, &sale.ProductName, &sale.Quantity, &sale.TotalCents, &sale.CustomerName, &sale.PaymentMode, &sale.CreatedOn); err != nil {
			return result, err
		}
		sale.CreatedOn = sale.CreatedOn.UTC()
		result.Sales = append(result.Sales, sale)
	}
	if err := rows.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// UpdateSale rewrites the ledger row from the product's current price. Stock
// is deliberately not reconciled against the old quantity; the legacy clients
// depend on the row being editable without inventory side effects.
func (s *Store) UpdateSale(ctx context.Context, id int64, req domain.SaleUpdateRequest) (domain.Sale, error) {
	var sale domain.Sale
	if req.Quantity < 1 {
		return sale, store.ErrValidation
	}

	product, err := s.GetProduct(ctx, req.ProductID)
	if err != nil {
		return sale, err
	}
	totalCents := product.PriceCents * int64(req.Quantity)

	err = s.db.QueryRowContext(ctx, `
		UPDATE sales
		SET product_id = $2, quantity = $3, total_price = $4, customer_name = $5, payment_mode = $6
		WHERE id = $1
		RETURNING id, product_id, quantity, total_price, customer_name, payment_mode, created_on
	`, id, req.ProductID, req.Quantity, totalCents, req.CustomerName, req.PaymentMode).Scan(
		&sale.ID, &sale.ProductID, &sale.Quantity, &sale.TotalCents, &sale.CustomerName, &sale.PaymentMode, &sale.CreatedOn,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sale, store.ErrNotFound
		}
		return sale, err
	}
	sale.ProductName = product.Name
	sale.CreatedOn = sale.CreatedOn.UTC()
	return sale, nil
}

func (s *Store) DeleteSale(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) AllSales(ctx context.Context) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.product_id, p.name, s.quantity, s.total_price, s.customer_name, s.payment_mode, s.created_on
		FROM sales s
		JOIN products p ON p.id = s.product_id
		ORDER BY s.id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 256)
	for rows.Next() {
		var sale domain.Sale
		if err := rows.Scan(&sale.ID, &sale.ProductID, &sale.ProductName, &sale.Quantity, &sale.TotalCents, &sale.CustomerName, &sale.PaymentMode, &sale.CreatedOn); err != nil {
			return nil, err
		}
		sale.CreatedOn = sale.CreatedOn.UTC()
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) SalesReport(ctx context.Context, f domain.SalesReportFilter) (domain.SalesReport, error) {
	report := domain.SalesReport{Invoices: []domain.SalesReportRow{}, Page: f.Page}
	if report.Page < 1 {
		report.Page = 1
	}
	perPage := f.PerPage
	if perPage < 1 {
		perPage = 10
	}

	where := `WHERE ($1 = '' OR i.created_on >= $1::date)
		AND ($2 = '' OR i.created_on < $2::date + INTERVAL '1 day')
		AND ($3 = '' OR i.customer_name ILIKE '%' || $3 || '%')`

	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT COUNT(*), COALESCE(SUM(i.total_amount),0)::bigint
		FROM invoices i
		%s
	`, where), f.StartDate, f.EndDate, strings.TrimSpace(f.Search)).Scan(&report.TotalInvoices, &report.RevenueCents)
	if err != nil {
		return report, err
	}
	report.TotalPages = (report.TotalInvoices + perPage - 1) / perPage

	err = s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT COALESCE(SUM(ii.quantity),0)::int
		FROM invoice_items ii
		JOIN invoices i ON i.id = ii.invoice_id
		%s
	`, where), f.StartDate, f.EndDate, strings.TrimSpace(f.Search)).Scan(&report.TotalItemsSold)
	if err != nil {
		return report, err
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT i.id, i.customer_name, i.payment_mode, i.total_amount, COALESCE(i.cashier_username,''), i.created_on,
			(SELECT COALESCE(SUM(ii.quantity),0)::int FROM invoice_items ii WHERE ii.invoice_id = i.id)
		FROM invoices i
		%s
		ORDER BY i.id DESC
		LIMIT $4 OFFSET $5
	`, where), f.StartDate, f.EndDate, strings.TrimSpace(f.Search), perPage, (report.Page-1)*perPage)
	if err != nil {
		return report, err
	}
	defer rows.Close()

	for rows.Next() {
		var row domain.SalesReportRow
		var createdOn time.Time
		if err := rows.Scan(&row.InvoiceID, &row.CustomerName, &row.PaymentMode, &row.TotalCents, &row.CashierUsername, &createdOn, &row.ItemCount); err != nil {
			return report, err
		}
		row.CreatedOn = createdOn.UTC().Format("2006-01-02 15:04:05")
		report.Invoices = append(report.Invoices, row)
	}
	if err := rows.Err(); err != nil {
		return report, err
	}
	return report, nil
}

func (s *Store) DashboardStats(ctx context.Context) (domain.DashboardStats, error) {
	stats := domain.DashboardStats{
		DailyTotals:     []domain.DailyTotal{},
		TopProducts:     []domain.NamedTotal{},
		CategoryRevenue: []domain.NamedTotal{},
		LowStock:        []domain.LowStockItem{},
		RecentInvoices:  []domain.RecentInvoice{},
		TopCustomers:    []domain.NamedTotal{},
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total_amount),0)::bigint, COUNT(*)::int
		FROM invoices
		WHERE created_on::date = CURRENT_DATE
	`).Scan(&stats.RevenueTodayCents, &stats.InvoicesToday)
	if err != nil {
		return stats, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(ii.quantity),0)::int
		FROM invoice_items ii
		JOIN invoices i ON i.id = ii.invoice_id
		WHERE i.created_on::date = CURRENT_DATE
	`).Scan(&stats.ItemsSoldToday)
	if err != nil {
		return stats, err
	}

	var topToday sql.NullString
	err = s.db.QueryRowContext(ctx, `
		SELECT p.name
		FROM invoice_items ii
		JOIN invoices i ON i.id = ii.invoice_id
		JOIN products p ON p.id = ii.product_id
		WHERE i.created_on::date = CURRENT_DATE
		GROUP BY p.name
		ORDER BY SUM(ii.quantity) DESC
		LIMIT 1
	`).Scan(&topToday)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return stats, err
	}
	if topToday.Valid {
		stats.TopProductToday = topToday.String
	}

	dailyRows, err := s.db.QueryContext(ctx, `
		SELECT created_on::date AS day, COALESCE(SUM(total_amount),0)::bigint
		FROM invoices
		WHERE created_on >= CURRENT_DATE - INTERVAL '6 days'
		GROUP BY day
		ORDER BY day ASC
	`)
	if err != nil {
		return stats, err
	}
	dailyMap := make(map[string]int64, 7)
	for dailyRows.Next() {
		var day time.Time
		var total int64
		if err := dailyRows.Scan(&day, &total); err != nil {
			_ = dailyRows.Close()
			return stats, err
		}
		dailyMap[day.Format("2006-01-02")] = total
	}
	if err := dailyRows.Err(); err != nil {
		_ = dailyRows.Close()
		return stats, err
	}
	_ = dailyRows.Close()

	// Zero-fill the missing days so charts get a full 7-point series.
	today := time.Now().UTC()
	for offset := 6; offset >= 0; offset-- {
		day := today.AddDate(0, 0, -offset).Format("2006-01-02")
		stats.DailyTotals = append(stats.DailyTotals, domain.DailyTotal{Date: day, TotalCents: dailyMap[day]})
	}

	stats.TopProducts, err = s.namedTotals(ctx, `
		SELECT p.name, COALESCE(SUM(ii.line_total),0)::bigint
		FROM invoice_items ii
		JOIN products p ON p.id = ii.product_id
		GROUP BY p.name
		ORDER BY 2 DESC
		LIMIT 5
	`)
	if err != nil {
		return stats, err
	}

	stats.CategoryRevenue, err = s.namedTotals(ctx, `
		SELECT p.category, COALESCE(SUM(ii.line_total),0)::bigint
		FROM invoice_items ii
		JOIN products p ON p.id = ii.product_id
		GROUP BY p.category
		ORDER BY 2 DESC
	`)
	if err != nil {
		return stats, err
	}

	lowRows, err := s.db.QueryContext(ctx, `
		SELECT name, stock
		FROM products
		WHERE stock < 5
		ORDER BY stock ASC, name ASC
	`)
	if err != nil {
		return stats, err
	}
	for lowRows.Next() {
		var item domain.LowStockItem
		if err := lowRows.Scan(&item.Name, &item.Stock); err != nil {
			_ = lowRows.Close()
			return stats, err
		}
		stats.LowStock = append(stats.LowStock, item)
	}
	if err := lowRows.Err(); err != nil {
		_ = lowRows.Close()
		return stats, err
	}
	_ = lowRows.Close()

	recentRows, err := s.db.QueryContext(ctx, `
		SELECT customer_name, total_amount
		FROM invoices
		ORDER BY id DESC
		LIMIT 5
	`)
	if err != nil {
		return stats, err
	}
	for recentRows.Next() {
		var item domain.RecentInvoice
		if err := recentRows.Scan(&item.CustomerName, &item.TotalCents); err != nil {
			_ = recentRows.Close()
			return stats, err
		}
		stats.RecentInvoices = append(stats.RecentInvoices, item)
	}
	if err := recentRows.Err(); err != nil {
		_ = recentRows.Close()
		return stats, err
	}
	_ = recentRows.Close()

	stats.TopCustomers, err = s.namedTotals(ctx, `
		SELECT customer_name, COALESCE(SUM(total_amount),0)::bigint
		FROM invoices
		GROUP BY customer_name
		ORDER BY 2 DESC
		LIMIT 5
	`)
	if err != nil {
		return stats, err
	}

	stats.GeneratedAt = time.Now().UTC().Format(time.RFC3339)
	return stats, nil
}

func (s *Store) namedTotals(ctx context.Context, query string) ([]domain.NamedTotal, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := make([]domain.NamedTotal, 0, 5)
	for rows.Next() {
		var item domain.NamedTotal
		if err := rows.Scan(&item.Name, &item.TotalCents); err != nil {
			return nil, err
		}
		totals = append(totals, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return totals, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (domain.UserAccount, error) {
	var user domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, password, role
		FROM users
		WHERE username = $1
	`, username).Scan(&user.ID, &user.Username, &user.Password, &user.Role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return user, store.ErrNotFound
		}
		return user, err
	}
	return user, nil
}

func (s *Store) CreateUser(ctx context.Context, username, passwordHash, role string) (domain.UserView, error) {
	var view domain.UserView
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (username, password, role)
		VALUES ($1,$2,$3)
		RETURNING id, username, role
	`, username, passwordHash, role).Scan(&view.ID, &view.Username, &view.Role)
	if err != nil {
		if isUniqueViolation(err) {
			return view, store.ErrDuplicate
		}
		return view, err
	}
	return view, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserView, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, role
		FROM users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserView, 0, 16)
	for rows.Next() {
		var user domain.UserView
		if err := rows.Scan(&user.ID, &user.Username, &user.Role); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) DeleteUser(ctx context.Context, id int64) (string, error) {
	var username string
	err := s.db.QueryRowContext(ctx, `
		DELETE FROM users
		WHERE id = $1
		RETURNING username
	`, id).Scan(&username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", store.ErrNotFound
		}
		return "", err
	}
	return username, nil
}

func uniqueProductIDs(lines []domain.InvoiceLine) []int64 {
	if len(lines) == 0 {
		return nil
	}

	set := make(map[int64]struct{}, len(lines))
	for _, line := range lines {
		if line.ProductID < 1 {
			continue
		}
		set[line.ProductID] = struct{}{}
	}

	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
