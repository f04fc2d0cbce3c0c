package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"jewelshop-api/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func setupCartTest(t *testing.T) (*CartHandler, sqlmock.Sqlmock, *gin.Engine) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}

	logger := zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))
	handler := NewCartHandler(db, logger)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	// Inject the authenticated user the way AuthMiddleware would
	router.Use(func(c *gin.Context) {
		c.Set("user_id", 1)
		c.Set("role", models.RoleUser)
	})
	router.GET("/cart", handler.GetCart)
	router.POST("/cart/add/:productId", handler.AddToCart)
	router.PUT("/cart/update/:itemId", handler.UpdateCartItem)
	router.DELETE("/cart/remove/:itemId", handler.RemoveFromCart)
	router.DELETE("/cart/clear", handler.ClearCart)

	return handler, mock, router
}

func cartItemRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "product_id", "name", "price", "image_url", "quantity"})
}

func TestCartHandler_GetCart_CreatesCartOnFirstAccess(t *testing.T) {
	handler, mock, router := setupCartTest(t)
	defer handler.db.Close()

	mock.ExpectQuery("SELECT id FROM carts WHERE user_id = \\$1").
		WithArgs(1).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("INSERT INTO carts \\(user_id\\) VALUES \\(\\$1\\) RETURNING id").
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectQuery("SELECT (.+) FROM cart_items ci").
		WithArgs(7).
		WillReturnRows(cartItemRows())

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	var cart models.CartResponse
	if err := json.Unmarshal(w.Body.Bytes(), &cart); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if cart.ID != 7 || len(cart.Items) != 0 || cart.TotalAmount != 0 {
		t.Errorf("Expected empty cart 7, got %+v", cart)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestCartHandler_GetCart_LiveTotal(t *testing.T) {
	handler, mock, router := setupCartTest(t)
	defer handler.db.Close()

	mock.ExpectQuery("SELECT id FROM carts WHERE user_id = \\$1").
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectQuery("SELECT (.+) FROM cart_items ci").
		WithArgs(7).
		WillReturnRows(cartItemRows().
			AddRow(1, 3, "Silver Ring", 50.0, nil, 2).
			AddRow(2, 4, "Gold Chain", 120.0, "chain.jpg", 1))

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	var cart models.CartResponse
	if err := json.Unmarshal(w.Body.Bytes(), &cart); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if cart.TotalAmount != 220.0 {
		t.Errorf("Expected total 220.00, got %.2f", cart.TotalAmount)
	}
	if len(cart.Items) != 2 {
		t.Errorf("Expected 2 items, got %d", len(cart.Items))
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestCartHandler_AddToCart_NewItem(t *testing.T) {
	handler, mock, router := setupCartTest(t)
	defer handler.db.Close()

	mock.ExpectQuery("SELECT id FROM products WHERE id = \\$1").
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
	mock.ExpectQuery("SELECT id FROM carts WHERE user_id = \\$1").
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectQuery("SELECT id, quantity FROM cart_items WHERE cart_id = \\$1 AND product_id = \\$2").
		WithArgs(7, 3).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO cart_items \\(cart_id, product_id, quantity\\)").
		WithArgs(7, 3, 2).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("SELECT (.+) FROM cart_items ci").
		WithArgs(7).
		WillReturnRows(cartItemRows().AddRow(1, 3, "Silver Ring", 50.0, nil, 2))

	req := httptest.NewRequest(http.MethodPost, "/cart/add/3?quantity=2", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestCartHandler_AddToCart_IncrementsExistingItem(t *testing.T) {
	handler, mock, router := setupCartTest(t)
	defer handler.db.Close()

	mock.ExpectQuery("SELECT id FROM products WHERE id = \\$1").
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
	mock.ExpectQuery("SELECT id FROM carts WHERE user_id = \\$1").
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectQuery("SELECT id, quantity FROM cart_items WHERE cart_id = \\$1 AND product_id = \\$2").
		WithArgs(7, 3).
		WillReturnRows(sqlmock.NewRows([]string{"id", "quantity"}).AddRow(1, 2))
	mock.ExpectExec("UPDATE cart_items SET quantity = \\$1 WHERE id = \\$2").
		WithArgs(5, 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT (.+) FROM cart_items ci").
		WithArgs(7).
		WillReturnRows(cartItemRows().AddRow(1, 3, "Silver Ring", 50.0, nil, 5))

	req := httptest.NewRequest(http.MethodPost, "/cart/add/3?quantity=3", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestCartHandler_AddToCart_ProductNotFound(t *testing.T) {
	handler, mock, router := setupCartTest(t)
	defer handler.db.Close()

	mock.ExpectQuery("SELECT id FROM products WHERE id = \\$1").
		WithArgs(999).
		WillReturnError(sql.ErrNoRows)

	req := httptest.NewRequest(http.MethodPost, "/cart/add/999", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestCartHandler_AddToCart_InvalidQuantity(t *testing.T) {
	handler, mock, router := setupCartTest(t)
	defer handler.db.Close()

	req := httptest.NewRequest(http.MethodPost, "/cart/add/3?quantity=0", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestCartHandler_UpdateCartItem_Success(t *testing.T) {
	handler, mock, router := setupCartTest(t)
	defer handler.db.Close()

	mock.ExpectQuery("SELECT id FROM carts WHERE user_id = \\$1").
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectExec("UPDATE cart_items SET quantity = \\$1 WHERE id = \\$2 AND cart_id = \\$3").
		WithArgs(4, 1, 7).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT (.+) FROM cart_items ci").
		WithArgs(7).
		WillReturnRows(cartItemRows().AddRow(1, 3, "Silver Ring", 50.0, nil, 4))

	req := httptest.NewRequest(http.MethodPut, "/cart/update/1?quantity=4", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestCartHandler_UpdateCartItem_ZeroQuantityRemoves(t *testing.T) {
	handler, mock, router := setupCartTest(t)
	defer handler.db.Close()

	mock.ExpectQuery("SELECT id FROM carts WHERE user_id = \\$1").
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectExec("DELETE FROM cart_items WHERE id = \\$1 AND cart_id = \\$2").
		WithArgs(1, 7).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT (.+) FROM cart_items ci").
		WithArgs(7).
		WillReturnRows(cartItemRows())

	req := httptest.NewRequest(http.MethodPut, "/cart/update/1?quantity=0", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestCartHandler_UpdateCartItem_NegativeQuantityRemoves(t *testing.T) {
	handler, mock, router := setupCartTest(t)
	defer handler.db.Close()

	mock.ExpectQuery("SELECT id FROM carts WHERE user_id = \\$1").
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectExec("DELETE FROM cart_items WHERE id = \\$1 AND cart_id = \\$2").
		WithArgs(1, 7).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT (.+) FROM cart_items ci").
		WithArgs(7).
		WillReturnRows(cartItemRows())

	req := httptest.NewRequest(http.MethodPut, "/cart/update/1?quantity=-1", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestCartHandler_UpdateCartItem_NotFound(t *testing.T) {
	handler, mock, router := setupCartTest(t)
	defer handler.db.Close()

	mock.ExpectQuery("SELECT id FROM carts WHERE user_id = \\$1").
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectExec("UPDATE cart_items SET quantity = \\$1 WHERE id = \\$2 AND cart_id = \\$3").
		WithArgs(4, 999, 7).
		WillReturnResult(sqlmock.NewResult(0, 0))

	req := httptest.NewRequest(http.MethodPut, "/cart/update/999?quantity=4", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestCartHandler_RemoveFromCart_Success(t *testing.T) {
	handler, mock, router := setupCartTest(t)
	defer handler.db.Close()

	mock.ExpectQuery("SELECT id FROM carts WHERE user_id = \\$1").
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectExec("DELETE FROM cart_items WHERE id = \\$1 AND cart_id = \\$2").
		WithArgs(1, 7).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT (.+) FROM cart_items ci").
		WithArgs(7).
		WillReturnRows(cartItemRows())

	req := httptest.NewRequest(http.MethodDelete, "/cart/remove/1", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestCartHandler_ClearCart_Success(t *testing.T) {
	handler, mock, router := setupCartTest(t)
	defer handler.db.Close()

	mock.ExpectQuery("SELECT id FROM carts WHERE user_id = \\$1").
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectExec("DELETE FROM cart_items WHERE cart_id = \\$1").
		WithArgs(7).
		WillReturnResult(sqlmock.NewResult(0, 3))

	req := httptest.NewRequest(http.MethodDelete, "/cart/clear", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestCartHandler_ClearCart_NoCart(t *testing.T) {
	handler, mock, router := setupCartTest(t)
	defer handler.db.Close()

	mock.ExpectQuery("SELECT id FROM carts WHERE user_id = \\$1").
		WithArgs(1).
		WillReturnError(sql.ErrNoRows)

	req := httptest.NewRequest(http.MethodDelete, "/cart/clear", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}
