package handlers

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"strconv"

	"jewelshop-api/cache"
	"jewelshop-api/middleware"
	"jewelshop-api/models"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const orderColumns = "id, user_id, order_date, status, total_amount, shipping_address, shipping_city, shipping_state, shipping_zip, shipping_country, payment_method, payment_status"

// OrderEventPublisher publishes order lifecycle events to the message broker.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event models.OrderEvent) error
}

type OrderHandler struct {
	db          *sql.DB
	redisClient *redis.Client
	publisher   OrderEventPublisher
	logger      *zap.Logger
}

func NewOrderHandler(db *sql.DB, redisClient *redis.Client, publisher OrderEventPublisher, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		db:          db,
		redisClient: redisClient,
		publisher:   publisher,
		logger:      logger,
	}
}

// CreateOrder converts the caller's cart into an order inside a single
// transaction: validate stock for every item, then decrement stock, snapshot
// prices into order items, insert the order and clear the cart. Any failure
// rolls the whole thing back.
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	ctx, span := otel.Tracer("jewelshop-api").Start(c.Request.Context(), "CreateOrder")
	defer span.End()

	userID := middleware.GetUserID(c)
	span.SetAttributes(attribute.Int("user.id", userID))

	var req models.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to begin transaction", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	defer tx.Rollback()

	var cartID int
	err = tx.QueryRowContext(ctx, "SELECT id FROM carts WHERE user_id = $1", userID).Scan(&cartID)
	if err != nil {
		if err == sql.ErrNoRows {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Cart is empty"})
			return
		}
		span.RecordError(err)
		h.logger.Error("Failed to fetch cart", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	type cartLine struct {
		productID int
		quantity  int
	}
	var lines []cartLine

	rows, err := tx.QueryContext(ctx,
		"SELECT product_id, quantity FROM cart_items WHERE cart_id = $1 ORDER BY id", cartID)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to fetch cart items", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	for rows.Next() {
		var line cartLine
		if err := rows.Scan(&line.productID, &line.quantity); err != nil {
			rows.Close()
			span.RecordError(err)
			h.logger.Error("Failed to scan cart item", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
		lines = append(lines, line)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to read cart items", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	if len(lines) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cart is empty"})
		return
	}

	// Validation pass: every item must be satisfiable before anything is
	// written. Check-then-act without row locks, so concurrent checkouts can
	// both pass against stale stock; consistency here relies on the
	// transaction boundary and the stock >= 0 constraint.
	for _, line := range lines {
		var productName string
		var stock int
		err := tx.QueryRowContext(ctx,
			"SELECT name, stock FROM products WHERE id = $1", line.productID).Scan(&productName, &stock)
		if err != nil {
			if err == sql.ErrNoRows {
				c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("Product not found with id: %d", line.productID)})
				return
			}
			span.RecordError(err)
			h.logger.Error("Failed to fetch product", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
		if stock < line.quantity {
			span.SetAttributes(attribute.Int("insufficient.product_id", line.productID))
			c.JSON(http.StatusBadRequest, gin.H{
				"error": fmt.Sprintf("Insufficient stock for product '%s'. Available: %d, Requested: %d",
					productName, stock, line.quantity),
				"available": stock,
				"requested": line.quantity,
			})
			return
		}
	}

	// Commit pass: re-fetch each product fresh, decrement stock and snapshot
	// the current price into the order item.
	var totalAmount float64
	var items []models.OrderItem
	for _, line := range lines {
		var productName string
		var price float64
		var imageURL sql.NullString
		err := tx.QueryRowContext(ctx,
			"SELECT name, price, image_url FROM products WHERE id = $1", line.productID).
			Scan(&productName, &price, &imageURL)
		if err != nil {
			span.RecordError(err)
			h.logger.Error("Failed to fetch product", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}

		if _, err := tx.ExecContext(ctx,
			"UPDATE products SET stock = stock - $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2",
			line.quantity, line.productID); err != nil {
			span.RecordError(err)
			h.logger.Error("Failed to decrement stock", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}

		items = append(items, models.OrderItem{
			ProductID:   line.productID,
			ProductName: productName,
			Price:       price,
			Quantity:    line.quantity,
			ImageURL:    imageURL.String,
		})
		totalAmount += price * float64(line.quantity)
	}

	order := models.Order{
		UserID:          userID,
		Status:          models.OrderStatusPending,
		TotalAmount:     totalAmount,
		ShippingAddress: req.ShippingAddress,
		ShippingCity:    req.ShippingCity,
		ShippingState:   req.ShippingState,
		ShippingZip:     req.ShippingZip,
		ShippingCountry: req.ShippingCountry,
		PaymentMethod:   req.PaymentMethod,
		PaymentStatus:   models.PaymentStatusPending,
	}

	err = tx.QueryRowContext(ctx,
		`INSERT INTO orders (user_id, status, total_amount, shipping_address, shipping_city, shipping_state, shipping_zip, shipping_country, payment_method, payment_status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id, order_date`,
		order.UserID, order.Status, order.TotalAmount,
		order.ShippingAddress, order.ShippingCity, order.ShippingState,
		order.ShippingZip, order.ShippingCountry,
		order.PaymentMethod, order.PaymentStatus,
	).Scan(&order.ID, &order.OrderDate)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to create order", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	for i := range items {
		err := tx.QueryRowContext(ctx,
			"INSERT INTO order_items (order_id, product_id, quantity, price) VALUES ($1, $2, $3, $4) RETURNING id",
			order.ID, items[i].ProductID, items[i].Quantity, items[i].Price,
		).Scan(&items[i].ID)
		if err != nil {
			span.RecordError(err)
			h.logger.Error("Failed to create order item", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
	}
	order.Items = items

	if _, err := tx.ExecContext(ctx, "DELETE FROM cart_items WHERE cart_id = $1", cartID); err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to clear cart", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	if err := tx.Commit(); err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to commit order transaction", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	span.SetAttributes(
		attribute.Int("order.id", order.ID),
		attribute.Float64("order.total", order.TotalAmount),
	)
	middleware.RecordOrderCreated()

	// Ordered products changed stock; drop them from the cache
	for _, item := range items {
		cache.DeleteProduct(ctx, h.redisClient, strconv.Itoa(item.ProductID))
	}

	event := models.OrderEvent{
		OrderID:       order.ID,
		UserID:        order.UserID,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		TotalAmount:   order.TotalAmount,
		EventType:     "order_created",
	}
	if err := h.publisher.PublishOrderEvent(ctx, event); err != nil {
		// The order is committed; a lost event must not fail the request
		h.logger.Error("Failed to publish order_created event", zap.Error(err))
	}

	h.logger.Info("Order created",
		zap.Int("order_id", order.ID),
		zap.Int("user_id", userID),
		zap.Float64("total_amount", order.TotalAmount),
	)
	c.JSON(http.StatusCreated, order)
}

func scanOrder(row interface{ Scan(...interface{}) error }) (models.Order, error) {
	var o models.Order
	err := row.Scan(&o.ID, &o.UserID, &o.OrderDate, &o.Status, &o.TotalAmount,
		&o.ShippingAddress, &o.ShippingCity, &o.ShippingState, &o.ShippingZip,
		&o.ShippingCountry, &o.PaymentMethod, &o.PaymentStatus)
	return o, err
}

func (h *OrderHandler) loadOrderItems(ctx context.Context, order *models.Order) error {
	order.Items = []models.OrderItem{}
	rows, err := h.db.QueryContext(ctx,
		`SELECT oi.id, oi.product_id, p.name, oi.price, oi.quantity, p.image_url
		 FROM order_items oi
		 JOIN products p ON p.id = oi.product_id
		 WHERE oi.order_id = $1
		 ORDER BY oi.id`, order.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var item models.OrderItem
		var imageURL sql.NullString
		if err := rows.Scan(&item.ID, &item.ProductID, &item.ProductName, &item.Price, &item.Quantity, &imageURL); err != nil {
			return err
		}
		item.ImageURL = imageURL.String
		order.Items = append(order.Items, item)
	}
	return rows.Err()
}

// GetUserOrders returns the caller's orders, newest first.
func (h *OrderHandler) GetUserOrders(c *gin.Context) {
	ctx, span := otel.Tracer("jewelshop-api").Start(c.Request.Context(), "GetUserOrders")
	defer span.End()

	userID := middleware.GetUserID(c)

	rows, err := h.db.QueryContext(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE user_id = $1 ORDER BY order_date DESC", userID)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to fetch orders", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			span.RecordError(err)
			h.logger.Error("Failed to scan order", zap.Error(err))
			continue
		}
		orders = append(orders, order)
	}

	for i := range orders {
		if err := h.loadOrderItems(ctx, &orders[i]); err != nil {
			span.RecordError(err)
			h.logger.Error("Failed to load order items", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
	}

	span.SetAttributes(attribute.Int("orders.count", len(orders)))
	c.JSON(http.StatusOK, orders)
}

// GetOrder returns one of the caller's orders; other users' orders are 404.
func (h *OrderHandler) GetOrder(c *gin.Context) {
	ctx, span := otel.Tracer("jewelshop-api").Start(c.Request.Context(), "GetOrder")
	defer span.End()

	userID := middleware.GetUserID(c)
	orderID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return
	}

	span.SetAttributes(attribute.Int("order.id", orderID))

	order, err := scanOrder(h.db.QueryRowContext(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE id = $1 AND user_id = $2", orderID, userID))
	if err != nil {
		if err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
			return
		}
		span.RecordError(err)
		h.logger.Error("Failed to fetch order", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	if err := h.loadOrderItems(ctx, &order); err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to load order items", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, order)
}

// GetAllOrders returns every order in the system (admin only).
func (h *OrderHandler) GetAllOrders(c *gin.Context) {
	ctx, span := otel.Tracer("jewelshop-api").Start(c.Request.Context(), "GetAllOrders")
	defer span.End()

	rows, err := h.db.QueryContext(ctx, "SELECT "+orderColumns+" FROM orders ORDER BY order_date DESC")
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to fetch orders", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			span.RecordError(err)
			h.logger.Error("Failed to scan order", zap.Error(err))
			continue
		}
		orders = append(orders, order)
	}

	for i := range orders {
		if err := h.loadOrderItems(ctx, &orders[i]); err != nil {
			span.RecordError(err)
			h.logger.Error("Failed to load order items", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
	}

	span.SetAttributes(attribute.Int("orders.count", len(orders)))
	c.JSON(http.StatusOK, orders)
}

// UpdateOrderStatus sets an order's status to one of the fixed enumeration
// values (admin only).
func (h *OrderHandler) UpdateOrderStatus(c *gin.Context) {
	ctx, span := otel.Tracer("jewelshop-api").Start(c.Request.Context(), "UpdateOrderStatus")
	defer span.End()

	orderID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return
	}

	status, err := models.ParseOrderStatus(c.Query("status"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	span.SetAttributes(
		attribute.Int("order.id", orderID),
		attribute.String("order.status", string(status)),
	)

	order, err := scanOrder(h.db.QueryRowContext(ctx,
		"UPDATE orders SET status = $1 WHERE id = $2 RETURNING "+orderColumns, status, orderID))
	if err != nil {
		if err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
			return
		}
		span.RecordError(err)
		h.logger.Error("Failed to update order status", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	if err := h.loadOrderItems(ctx, &order); err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to load order items", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	event := models.OrderEvent{
		OrderID:       order.ID,
		UserID:        order.UserID,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		TotalAmount:   order.TotalAmount,
		EventType:     "order_status_updated",
	}
	if err := h.publisher.PublishOrderEvent(ctx, event); err != nil {
		h.logger.Error("Failed to publish order_status_updated event", zap.Error(err))
	}

	h.logger.Info("Order status updated",
		zap.Int("order_id", order.ID),
		zap.String("status", string(order.Status)),
	)
	c.JSON(http.StatusOK, order)
}
