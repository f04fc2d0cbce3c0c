package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"strconv"

	"jewelshop-api/middleware"
	"jewelshop-api/models"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type CartHandler struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewCartHandler(db *sql.DB, logger *zap.Logger) *CartHandler {
	return &CartHandler{
		db:     db,
		logger: logger,
	}
}

// getOrCreateCartID returns the user's cart id, creating an empty cart on
// first access.
func (h *CartHandler) getOrCreateCartID(ctx context.Context, userID int) (int, error) {
	var cartID int
	err := h.db.QueryRowContext(ctx, "SELECT id FROM carts WHERE user_id = $1", userID).Scan(&cartID)
	if err == sql.ErrNoRows {
		err = h.db.QueryRowContext(ctx,
			"INSERT INTO carts (user_id) VALUES ($1) RETURNING id", userID).Scan(&cartID)
	}
	return cartID, err
}

// findCartID is the strict variant: an absent cart is NotFound, not created.
func (h *CartHandler) findCartID(ctx context.Context, userID int) (int, error) {
	var cartID int
	err := h.db.QueryRowContext(ctx, "SELECT id FROM carts WHERE user_id = $1", userID).Scan(&cartID)
	return cartID, err
}

// buildCartResponse loads the cart's items joined with current product data.
// The total is live: current price times quantity, not a snapshot.
func (h *CartHandler) buildCartResponse(ctx context.Context, cartID int) (models.CartResponse, error) {
	response := models.CartResponse{ID: cartID, Items: []models.CartItem{}}

	rows, err := h.db.QueryContext(ctx,
		`SELECT ci.id, ci.product_id, p.name, p.price, p.image_url, ci.quantity
		 FROM cart_items ci
		 JOIN products p ON p.id = ci.product_id
		 WHERE ci.cart_id = $1
		 ORDER BY ci.id`, cartID)
	if err != nil {
		return response, err
	}
	defer rows.Close()

	for rows.Next() {
		var item models.CartItem
		var imageURL sql.NullString
		if err := rows.Scan(&item.ID, &item.ProductID, &item.ProductName, &item.ProductPrice, &imageURL, &item.Quantity); err != nil {
			return response, err
		}
		item.ImageURL = imageURL.String
		response.Items = append(response.Items, item)
		response.TotalAmount += item.ProductPrice * float64(item.Quantity)
	}
	return response, rows.Err()
}

func (h *CartHandler) respondWithCart(c *gin.Context, ctx context.Context, cartID int) {
	response, err := h.buildCartResponse(ctx, cartID)
	if err != nil {
		h.logger.Error("Failed to load cart", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, response)
}

func (h *CartHandler) GetCart(c *gin.Context) {
	ctx, span := otel.Tracer("jewelshop-api").Start(c.Request.Context(), "GetCart")
	defer span.End()

	userID := middleware.GetUserID(c)
	cartID, err := h.getOrCreateCartID(ctx, userID)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to get or create cart", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	span.SetAttributes(attribute.Int("cart.id", cartID))
	h.respondWithCart(c, ctx, cartID)
}

func (h *CartHandler) AddToCart(c *gin.Context) {
	ctx, span := otel.Tracer("jewelshop-api").Start(c.Request.Context(), "AddToCart")
	defer span.End()

	userID := middleware.GetUserID(c)
	productID, err := strconv.Atoi(c.Param("productId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product ID"})
		return
	}

	quantity, err := strconv.Atoi(c.DefaultQuery("quantity", "1"))
	if err != nil || quantity <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Quantity must be a positive integer"})
		return
	}

	span.SetAttributes(
		attribute.Int("product.id", productID),
		attribute.Int("quantity", quantity),
	)

	// Product must exist; stock is not checked here, only at checkout.
	var exists int
	err = h.db.QueryRowContext(ctx, "SELECT id FROM products WHERE id = $1", productID).Scan(&exists)
	if err != nil {
		if err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		span.RecordError(err)
		h.logger.Error("Failed to fetch product", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	cartID, err := h.getOrCreateCartID(ctx, userID)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to get or create cart", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	// Increment quantity if the product is already in the cart, append otherwise
	var itemID, existingQuantity int
	err = h.db.QueryRowContext(ctx,
		"SELECT id, quantity FROM cart_items WHERE cart_id = $1 AND product_id = $2",
		cartID, productID).Scan(&itemID, &existingQuantity)
	switch err {
	case nil:
		_, err = h.db.ExecContext(ctx,
			"UPDATE cart_items SET quantity = $1 WHERE id = $2",
			existingQuantity+quantity, itemID)
	case sql.ErrNoRows:
		_, err = h.db.ExecContext(ctx,
			"INSERT INTO cart_items (cart_id, product_id, quantity) VALUES ($1, $2, $3)",
			cartID, productID, quantity)
	}
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to add cart item", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	h.logger.Info("Item added to cart",
		zap.Int("user_id", userID),
		zap.Int("product_id", productID),
		zap.Int("quantity", quantity),
	)
	h.respondWithCart(c, ctx, cartID)
}

func (h *CartHandler) UpdateCartItem(c *gin.Context) {
	ctx, span := otel.Tracer("jewelshop-api").Start(c.Request.Context(), "UpdateCartItem")
	defer span.End()

	userID := middleware.GetUserID(c)
	itemID, err := strconv.Atoi(c.Param("itemId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid cart item ID"})
		return
	}

	quantityParam := c.Query("quantity")
	if quantityParam == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Quantity is required"})
		return
	}
	quantity, err := strconv.Atoi(quantityParam)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Quantity must be an integer"})
		return
	}

	cartID, err := h.findCartID(ctx, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": "Cart not found"})
			return
		}
		span.RecordError(err)
		h.logger.Error("Failed to fetch cart", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	// A quantity of zero or less removes the item
	var result sql.Result
	if quantity <= 0 {
		result, err = h.db.ExecContext(ctx,
			"DELETE FROM cart_items WHERE id = $1 AND cart_id = $2", itemID, cartID)
	} else {
		result, err = h.db.ExecContext(ctx,
			"UPDATE cart_items SET quantity = $1 WHERE id = $2 AND cart_id = $3",
			quantity, itemID, cartID)
	}
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to update cart item", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Cart item not found"})
		return
	}

	h.respondWithCart(c, ctx, cartID)
}

func (h *CartHandler) RemoveFromCart(c *gin.Context) {
	ctx, span := otel.Tracer("jewelshop-api").Start(c.Request.Context(), "RemoveFromCart")
	defer span.End()

	userID := middleware.GetUserID(c)
	itemID, err := strconv.Atoi(c.Param("itemId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid cart item ID"})
		return
	}

	cartID, err := h.findCartID(ctx, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": "Cart not found"})
			return
		}
		span.RecordError(err)
		h.logger.Error("Failed to fetch cart", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	result, err := h.db.ExecContext(ctx,
		"DELETE FROM cart_items WHERE id = $1 AND cart_id = $2", itemID, cartID)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to remove cart item", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Cart item not found"})
		return
	}

	h.respondWithCart(c, ctx, cartID)
}

func (h *CartHandler) ClearCart(c *gin.Context) {
	ctx, span := otel.Tracer("jewelshop-api").Start(c.Request.Context(), "ClearCart")
	defer span.End()

	userID := middleware.GetUserID(c)
	cartID, err := h.findCartID(ctx, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": "Cart not found"})
			return
		}
		span.RecordError(err)
		h.logger.Error("Failed to fetch cart", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	if _, err := h.db.ExecContext(ctx, "DELETE FROM cart_items WHERE cart_id = $1", cartID); err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to clear cart", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	h.logger.Info("Cart cleared", zap.Int("user_id", userID))
	c.JSON(http.StatusOK, gin.H{"message": "Cart cleared"})
}
