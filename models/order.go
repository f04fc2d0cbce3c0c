package models

import (
	"fmt"
	"strings"
	"time"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

const (
	PaymentStatusPending = "PENDING"
	PaymentStatusPaid    = "PAID"
	PaymentStatusFailed  = "FAILED"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// ParseOrderStatus validates a status string against the fixed enumeration,
// case-insensitively. The error message lists the valid set.
func ParseOrderStatus(s string) (OrderStatus, error) {
	status := OrderStatus(strings.ToUpper(s))
	for _, valid := range validOrderStatuses {
		if status == valid {
			return status, nil
		}
	}
	names := make([]string, len(validOrderStatuses))
	for i, valid := range validOrderStatuses {
		names[i] = string(valid)
	}
	return "", fmt.Errorf("invalid order status: %s. Valid statuses are: %s", s, strings.Join(names, ", "))
}

type Order struct {
	ID              int         `json:"id"`
	UserID          int         `json:"user_id"`
	OrderDate       time.Time   `json:"order_date"`
	Status          OrderStatus `json:"status"`
	TotalAmount     float64     `json:"total_amount"`
	ShippingAddress string      `json:"shipping_address"`
	ShippingCity    string      `json:"shipping_city"`
	ShippingState   string      `json:"shipping_state"`
	ShippingZip     string      `json:"shipping_zip"`
	ShippingCountry string      `json:"shipping_country"`
	PaymentMethod   string      `json:"payment_method"`
	PaymentStatus   string      `json:"payment_status"`
	Items           []OrderItem `json:"items"`
}

// OrderItem records the product price at order time; later catalog price
// changes do not affect it.
type OrderItem struct {
	ID          int     `json:"id"`
	ProductID   int     `json:"product_id"`
	ProductName string  `json:"product_name"`
	Price       float64 `json:"price"`
	Quantity    int     `json:"quantity"`
	ImageURL    string  `json:"image_url,omitempty"`
}

type CheckoutRequest struct {
	ShippingAddress string `json:"shipping_address" binding:"required"`
	ShippingCity    string `json:"shipping_city" binding:"required"`
	ShippingState   string `json:"shipping_state"`
	ShippingZip     string `json:"shipping_zip" binding:"required"`
	ShippingCountry string `json:"shipping_country" binding:"required"`
	PaymentMethod   string `json:"payment_method" binding:"required"`
}

type OrderEvent struct {
	OrderID       int         `json:"order_id"`
	UserID        int         `json:"user_id"`
	Status        OrderStatus `json:"status"`
	PaymentStatus string      `json:"payment_status"`
	TotalAmount   float64     `json:"total_amount"`
	EventType     string      `json:"event_type"` // order_created, order_status_updated, payment_success, payment_failed
}
