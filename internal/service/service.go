package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"counterbook/backend/internal/cache"
	"counterbook/backend/internal/domain"
	"counterbook/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

const dashboardCacheKey = "dashboard:stats"

type Service struct {
	repo         store.Repository
	dashCache    cache.DashboardCache
	dashCacheTTL time.Duration
}

func New(repo store.Repository, dashCache cache.DashboardCache, dashCacheTTL time.Duration) *Service {
	if dashCache == nil {
		dashCache = cache.NoopDashboardCache{}
	}
	if dashCacheTTL <= 0 {
		dashCacheTTL = 30 * time.Second
	}

	return &Service{
		repo:         repo,
		dashCache:    dashCache,
		dashCacheTTL: dashCacheTTL,
	}
}

func (s *Service) ListProducts(ctx context.Context, search string, page, perPage int) (domain.ProductPage, error) {
	return s.repo.ListProducts(ctx, search, page, perPage)
}

func (s *Service) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	return s.repo.GetProduct(ctx, id)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.Product{}, err
	}
	return s.repo.CreateProduct(ctx, req)
}

func (s *Service) UpdateProduct(ctx context.Context, id int64, req domain.ProductUpdateRequest) (domain.Product, error) {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.Product{}, err
	}
	return s.repo.UpdateProduct(ctx, id, req)
}

func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return err
	}
	return s.repo.DeleteProduct(ctx, id)
}

// Checkout validates the multi-item cart and hands the validated lines to the
// store, which re-reads authoritative prices and stock inside one
// transaction. Client-supplied prices never reach persistence.
func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (domain.CheckoutResponse, error) {
	var resp domain.CheckoutResponse

	actor, ok := ActorFromContext(ctx)
	if !ok {
		return resp, fmt.Errorf("%w: missing authenticated cashier", store.ErrValidation)
	}

	customerName := strings.TrimSpace(req.CustomerName)
	if customerName == "" {
		return resp, fmt.Errorf("%w: customer name is required", store.ErrValidation)
	}

	paymentMode := strings.TrimSpace(req.PaymentMode)
	if paymentMode == "" {
		paymentMode = "Cash"
	}

	lines, err := parseCart(req.CartData)
	if err != nil {
		return resp, err
	}

	invoice, err := s.repo.CreateInvoice(ctx, customerName, paymentMode, actor.Username, lines)
	if err != nil {
		return resp, err
	}

	if cacheErr := s.dashCache.Delete(ctx, dashboardCacheKey); cacheErr != nil {
		zap.S().Warnw("dashboard cache invalidation failed", "error", cacheErr)
	}

	subtotal := int64(0)
	itemCount := 0
	for _, item := range invoice.Items {
		subtotal += item.LineTotalCents
		itemCount += item.Quantity
	}

	return domain.CheckoutResponse{
		InvoiceID:     invoice.ID,
		SubtotalCents: subtotal,
		TaxCents:      invoice.TotalCents - subtotal,
		TotalCents:    invoice.TotalCents,
		ItemCount:     itemCount,
		CreatedAt:     invoice.CreatedOn.Format(time.RFC3339),
	}, nil
}

// parseCart decodes the opaque cart payload. A payload that does not decode
// as an object keyed by numeric product ids is malformed; an object with no
// entries is an empty cart. The two cases get distinct messages.
func parseCart(cartData string) ([]domain.InvoiceLine, error) {
	raw := map[string]domain.CartItem{}
	if err := json.Unmarshal([]byte(cartData), &raw); err != nil {
		return nil, fmt.Errorf("%w: invalid cart data", store.ErrValidation)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: cart is empty", store.ErrValidation)
	}

	lines := make([]domain.InvoiceLine, 0, len(raw))
	for key, item := range raw {
		productID, err := strconv.ParseInt(key, 10, 64)
		if err != nil || productID < 1 {
			return nil, fmt.Errorf("%w: invalid cart data", store.ErrValidation)
		}
		if item.Quantity < 1 {
			return nil, fmt.Errorf("%w: quantity must be positive for %s", store.ErrValidation, displayName(item.Name, productID))
		}
		lines = append(lines, domain.InvoiceLine{
			ProductID: productID,
			Quantity:  item.Quantity,
			Name:      strings.TrimSpace(item.Name),
		})
	}

	// Deterministic order keeps row locking free of lock inversions between
	// concurrent checkouts.
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })
	return lines, nil
}

func displayName(name string, productID int64) string {
	name = strings.TrimSpace(name)
	if name != "" {
		return name
	}
	return fmt.Sprintf("product %d", productID)
}

func (s *Service) Receipt(ctx context.Context, invoiceID int64) (domain.Receipt, error) {
	var receipt domain.Receipt

	invoice, err := s.repo.GetInvoice(ctx, invoiceID)
	if err != nil {
		return receipt, err
	}

	subtotal := int64(0)
	for _, item := range invoice.Items {
		subtotal += item.LineTotalCents
	}
	cgst, sgst := domain.SplitGSTCents(subtotal, invoice.TotalCents)

	receipt = domain.Receipt{
		Invoice:       invoice,
		Items:         invoice.Items,
		SubtotalCents: subtotal,
		CGSTCents:     cgst,
		SGSTCents:     sgst,
		InvoiceDate:   invoice.CreatedOn.Format("02-01-2006"),
		InvoiceTime:   invoice.CreatedOn.Format("03:04 PM"),
	}
	return receipt, nil
}

func (s *Service) CreateSale(ctx context.Context, req domain.SaleCreateRequest) (domain.Sale, error) {
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	if req.CustomerName == "" {
		return domain.Sale{}, fmt.Errorf("%w: customer name is required", store.ErrValidation)
	}
	if req.PaymentMode == "" {
		req.PaymentMode = "Cash"
	}
	sale, err := s.repo.CreateSale(ctx, req)
	if err != nil {
		return domain.Sale{}, err
	}
	if cacheErr := s.dashCache.Delete(ctx, dashboardCacheKey); cacheErr != nil {
		zap.S().Warnw("dashboard cache invalidation failed", "error", cacheErr)
	}
	return sale, nil
}

func (s *Service) ListSales(ctx context.Context, search string, page, perPage int) (domain.SalesPage, error) {
	return s.repo.ListSales(ctx, search, page, perPage)
}

func (s *Service) UpdateSale(ctx context.Context, id int64, req domain.SaleUpdateRequest) (domain.Sale, error) {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.Sale{}, err
	}
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	if req.CustomerName == "" {
		return domain.Sale{}, fmt.Errorf("%w: customer name is required", store.ErrValidation)
	}
	if req.PaymentMode == "" {
		req.PaymentMode = "Cash"
	}
	return s.repo.UpdateSale(ctx, id, req)
}

func (s *Service) DeleteSale(ctx context.Context, id int64) error {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return err
	}
	return s.repo.DeleteSale(ctx, id)
}

func (s *Service) AllSales(ctx context.Context) ([]domain.Sale, error) {
	return s.repo.AllSales(ctx)
}

func (s *Service) SalesReport(ctx context.Context, f domain.SalesReportFilter) (domain.SalesReport, error) {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.SalesReport{}, err
	}
	return s.repo.SalesReport(ctx, f)
}

func (s *Service) DashboardStats(ctx context.Context) (domain.DashboardStats, error) {
	if cached, hit, err := s.dashCache.Get(ctx, dashboardCacheKey); err != nil {
		zap.S().Warnw("dashboard cache read failed", "error", err)
	} else if hit {
		return *cached, nil
	}

	stats, err := s.repo.DashboardStats(ctx)
	if err != nil {
		return stats, err
	}

	if err := s.dashCache.Set(ctx, dashboardCacheKey, &stats, s.dashCacheTTL); err != nil {
		zap.S().Warnw("dashboard cache write failed", "error", err)
	}
	return stats, nil
}

func (s *Service) CreateUser(ctx context.Context, username, passwordHash, role string) (domain.UserView, error) {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.UserView{}, err
	}
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || passwordHash == "" {
		return domain.UserView{}, fmt.Errorf("%w: username and password are required", store.ErrValidation)
	}
	if role != domain.RoleAdmin && role != domain.RoleCashier {
		return domain.UserView{}, fmt.Errorf("%w: unknown role %q", store.ErrValidation, role)
	}
	return s.repo.CreateUser(ctx, username, passwordHash, role)
}

func (s *Service) ListUsers(ctx context.Context) ([]domain.UserView, error) {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return nil, err
	}
	return s.repo.ListUsers(ctx)
}

// DeleteUser refuses to let an admin remove their own account.
func (s *Service) DeleteUser(ctx context.Context, id int64) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return fmt.Errorf("admin role required")
	}

	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return err
	}
	for _, user := range users {
		if user.ID == id && user.Username == actor.Username {
			return fmt.Errorf("%w: you cannot delete your own account", store.ErrValidation)
		}
	}

	username, err := s.repo.DeleteUser(ctx, id)
	if err != nil {
		return err
	}
	zap.S().Infow("user deleted", "username", username, "by", actor.Username)
	return nil
}

func requireRole(ctx context.Context, role string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != role {
		return fmt.Errorf("%s role required", role)
	}
	return nil
}
