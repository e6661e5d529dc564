// Where: cli/internal/services/orders.go
// What: Orders, order items and order statistics.
// Why: Drive the order lifecycle from placement to payment and cancellation.
package services

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/poruru/restaurant-baas/cli/internal/store"
)

// Order and payment states written by the service.
const (
	StatusPending   = "pending"
	StatusCancelled = "cancelled"
)

// Order types accepted by CreateOrder.
const (
	OrderDineIn   = "dine-in"
	OrderTakeaway = "takeaway"
	OrderDelivery = "delivery"
)

const (
	defaultUserOrdersLimit = 25
	defaultOrdersLimit     = 50
	defaultSearchLimit     = 25
	statsPageSize          = 100
)

// OrderInput describes a new order. Total is computed from the parts when zero.
type OrderInput struct {
	CustomerID    string
	CustomerName  string
	CustomerPhone string
	CustomerEmail string
	TableNumber   int
	OrderType     string
	Subtotal      float64
	Tax           float64
	Tip           float64
	Total         float64
	PaymentMethod string
	Notes         string
	EstimatedTime int
}

// OrderItemInput is one line of an order.
type OrderItemInput struct {
	MenuItemID          string
	MenuItemName        string
	Quantity            int
	UnitPrice           float64
	SpecialInstructions string
}

// OrderWithItems is an order and its lines.
type OrderWithItems struct {
	Order store.Document
	Items []store.Document
}

// Stats aggregates orders over a period.
type Stats struct {
	TotalOrders       int            `json:"totalOrders"`
	TotalRevenue      float64        `json:"totalRevenue"`
	AverageOrderValue float64        `json:"averageOrderValue"`
	ByStatus          map[string]int `json:"ordersByStatus"`
	ByType            map[string]int `json:"ordersByType"`
}

type OrderService struct {
	Docs   store.DocumentStore
	Target Target
	Clock
}

func (s *OrderService) orders() (string, string) {
	return s.Target.DatabaseID, s.Target.Collections.Orders
}

// CreateOrder places an order with status and payment status pending.
func (s *OrderService) CreateOrder(ctx context.Context, in OrderInput) (store.Document, error) {
	switch in.OrderType {
	case OrderDineIn, OrderTakeaway, OrderDelivery:
	default:
		return store.Document{}, fmt.Errorf("failed to create order: unsupported order type %q", in.OrderType)
	}
	if strings.TrimSpace(in.CustomerID) == "" || strings.TrimSpace(in.CustomerName) == "" {
		return store.Document{}, fmt.Errorf("failed to create order: customer id and name are required")
	}
	total := in.Total
	if total == 0 {
		total = roundCents(in.Subtotal + in.Tax + in.Tip)
	}
	now := s.now()
	data := map[string]any{
		"orderNumber":   s.orderNumber(now),
		"customerId":    in.CustomerID,
		"customerName":  in.CustomerName,
		"orderType":     in.OrderType,
		"status":        StatusPending,
		"subtotal":      in.Subtotal,
		"tax":           in.Tax,
		"tip":           in.Tip,
		"total":         total,
		"paymentStatus": StatusPending,
		"createdAt":     stamp(now),
		"updatedAt":     stamp(now),
	}
	optional := map[string]string{
		"customerPhone": in.CustomerPhone,
		"customerEmail": in.CustomerEmail,
		"paymentMethod": in.PaymentMethod,
		"notes":         in.Notes,
	}
	for key, value := range optional {
		if value != "" {
			data[key] = value
		}
	}
	if in.TableNumber > 0 {
		data["tableNumber"] = in.TableNumber
	}
	if in.EstimatedTime > 0 {
		data["estimatedTime"] = in.EstimatedTime
	}
	dbID, collID := s.orders()
	doc, err := s.Docs.CreateDocument(ctx, dbID, collID, s.newID(), data)
	if err != nil {
		return store.Document{}, fmt.Errorf("failed to create order: %w", err)
	}
	return doc, nil
}

// orderNumber is ORD-YYYYMMDD-XXXXXX, within the 20 character attribute.
func (s *OrderService) orderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(s.newID(), "-", ""))
	if len(suffix) > 6 {
		suffix = suffix[:6]
	}
	return "ORD-" + now.Format("20060102") + "-" + suffix
}

// AddItems creates the order lines; each line total is quantity × unit price.
// Lines created before a failure are returned with the error.
func (s *OrderService) AddItems(ctx context.Context, orderID string, items []OrderItemInput) ([]store.Document, error) {
	out := make([]store.Document, 0, len(items))
	for _, item := range items {
		if item.Quantity <= 0 {
			return out, fmt.Errorf("failed to add order items: %s has quantity %d", item.MenuItemID, item.Quantity)
		}
		data := map[string]any{
			"orderId":      orderID,
			"menuItemId":   item.MenuItemID,
			"menuItemName": item.MenuItemName,
			"quantity":     item.Quantity,
			"unitPrice":    item.UnitPrice,
			"totalPrice":   roundCents(float64(item.Quantity) * item.UnitPrice),
			"status":       StatusPending,
			"createdAt":    stamp(s.now()),
		}
		if item.SpecialInstructions != "" {
			data["specialInstructions"] = item.SpecialInstructions
		}
		doc, err := s.Docs.CreateDocument(ctx, s.Target.DatabaseID, s.Target.Collections.OrderItems, s.newID(), data)
		if err != nil {
			return out, fmt.Errorf("failed to add order items: %w", err)
		}
		out = append(out, doc)
	}
	return out, nil
}

// Order returns an order with its items.
func (s *OrderService) Order(ctx context.Context, id string) (OrderWithItems, error) {
	dbID, collID := s.orders()
	order, err := s.Docs.GetDocument(ctx, dbID, collID, id)
	if err != nil {
		return OrderWithItems{}, fmt.Errorf("failed to fetch order: %w", err)
	}
	items, err := s.Docs.ListDocuments(ctx, dbID, s.Target.Collections.OrderItems, store.Equal("orderId", id))
	if err != nil {
		return OrderWithItems{}, fmt.Errorf("failed to fetch order items: %w", err)
	}
	return OrderWithItems{Order: order, Items: items.Documents}, nil
}

// UserOrders lists a customer's orders, newest first.
func (s *OrderService) UserOrders(ctx context.Context, userID string, limit, offset int) (store.DocumentList, error) {
	if limit <= 0 {
		limit = defaultUserOrdersLimit
	}
	dbID, collID := s.orders()
	list, err := s.Docs.ListDocuments(ctx, dbID, collID,
		store.Equal("customerId", userID),
		store.OrderDesc(store.FieldCreatedAt),
		store.Limit(limit),
		store.Offset(offset),
	)
	if err != nil {
		return store.DocumentList{}, fmt.Errorf("failed to fetch user orders: %w", err)
	}
	return list, nil
}

// Orders lists all orders newest first, optionally with one status.
func (s *OrderService) Orders(ctx context.Context, status string, limit, offset int) (store.DocumentList, error) {
	if limit <= 0 {
		limit = defaultOrdersLimit
	}
	queries := []store.Query{
		store.OrderDesc(store.FieldCreatedAt),
		store.Limit(limit),
		store.Offset(offset),
	}
	if status != "" {
		queries = append(queries, store.Equal("status", status))
	}
	dbID, collID := s.orders()
	list, err := s.Docs.ListDocuments(ctx, dbID, collID, queries...)
	if err != nil {
		return store.DocumentList{}, fmt.Errorf("failed to fetch orders: %w", err)
	}
	return list, nil
}

// UpdateStatus sets the order status and, when positive, the estimated time.
func (s *OrderService) UpdateStatus(ctx context.Context, id, status string, estimatedTime int) (store.Document, error) {
	if strings.TrimSpace(status) == "" {
		return store.Document{}, fmt.Errorf("failed to update order status: status is required")
	}
	data := map[string]any{"status": status, "updatedAt": stamp(s.now())}
	if estimatedTime > 0 {
		data["estimatedTime"] = estimatedTime
	}
	return s.update(ctx, id, data, "failed to update order status")
}

// UpdatePaymentStatus sets the payment status and, when given, the method.
func (s *OrderService) UpdatePaymentStatus(ctx context.Context, id, paymentStatus, method string) (store.Document, error) {
	if strings.TrimSpace(paymentStatus) == "" {
		return store.Document{}, fmt.Errorf("failed to update payment status: status is required")
	}
	data := map[string]any{"paymentStatus": paymentStatus, "updatedAt": stamp(s.now())}
	if method != "" {
		data["paymentMethod"] = method
	}
	return s.update(ctx, id, data, "failed to update payment status")
}

// Cancel marks the order cancelled; the reason is kept in notes.
func (s *OrderService) Cancel(ctx context.Context, id, reason string) (store.Document, error) {
	data := map[string]any{"status": StatusCancelled, "updatedAt": stamp(s.now())}
	if reason != "" {
		data["notes"] = reason
	}
	return s.update(ctx, id, data, "failed to cancel order")
}

func (s *OrderService) update(ctx context.Context, id string, data map[string]any, failure string) (store.Document, error) {
	dbID, collID := s.orders()
	doc, err := s.Docs.UpdateDocument(ctx, dbID, collID, id, data)
	if err != nil {
		return store.Document{}, fmt.Errorf("%s: %w", failure, err)
	}
	return doc, nil
}

// Search matches orders by customer name, newest first.
func (s *OrderService) Search(ctx context.Context, term string, limit int) (store.DocumentList, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	dbID, collID := s.orders()
	list, err := s.Docs.ListDocuments(ctx, dbID, collID,
		store.Search("customerName", term),
		store.OrderDesc(store.FieldCreatedAt),
		store.Limit(limit),
	)
	if err != nil {
		return store.DocumentList{}, fmt.Errorf("failed to search orders: %w", err)
	}
	return list, nil
}

// Today lists orders created on now's calendar day (in now's location).
func (s *OrderService) Today(ctx context.Context, now time.Time) (store.DocumentList, error) {
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	end := start.AddDate(0, 0, 1).Add(-time.Millisecond)
	dbID, collID := s.orders()
	list, err := s.Docs.ListDocuments(ctx, dbID, collID,
		store.GreaterThanEqual(store.FieldCreatedAt, store.FormatTime(start)),
		store.LessThanEqual(store.FieldCreatedAt, store.FormatTime(end)),
		store.OrderDesc(store.FieldCreatedAt),
	)
	if err != nil {
		return store.DocumentList{}, fmt.Errorf("failed to fetch today's orders: %w", err)
	}
	return list, nil
}

// Stats aggregates every order created within [from, to); zero times leave
// that side open. Results are paged so remote page limits do not truncate them.
func (s *OrderService) Stats(ctx context.Context, from, to time.Time) (Stats, error) {
	base := []store.Query{store.OrderDesc(store.FieldCreatedAt)}
	if !from.IsZero() {
		base = append(base, store.GreaterThanEqual(store.FieldCreatedAt, store.FormatTime(from)))
	}
	if !to.IsZero() {
		base = append(base, store.LessThanEqual(store.FieldCreatedAt, store.FormatTime(to.Add(-time.Millisecond))))
	}
	stats := Stats{ByStatus: map[string]int{}, ByType: map[string]int{}}
	dbID, collID := s.orders()
	for offset := 0; ; offset += statsPageSize {
		queries := append(append([]store.Query(nil), base...), store.Limit(statsPageSize), store.Offset(offset))
		page, err := s.Docs.ListDocuments(ctx, dbID, collID, queries...)
		if err != nil {
			return Stats{}, fmt.Errorf("failed to compute order statistics: %w", err)
		}
		orders, err := DecodeAll[Order](page.Documents)
		if err != nil {
			return Stats{}, fmt.Errorf("failed to compute order statistics: %w", err)
		}
		for _, order := range orders {
			stats.TotalOrders++
			stats.TotalRevenue += order.Total
			stats.ByStatus[order.Status]++
			stats.ByType[order.OrderType]++
		}
		if len(page.Documents) < statsPageSize || offset+len(page.Documents) >= page.Total {
			break
		}
	}
	stats.TotalRevenue = roundCents(stats.TotalRevenue)
	if stats.TotalOrders > 0 {
		stats.AverageOrderValue = roundCents(stats.TotalRevenue / float64(stats.TotalOrders))
	}
	return stats, nil
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
