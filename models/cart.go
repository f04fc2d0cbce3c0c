package models

type CartItem struct {
	ID           int     `json:"id"`
	ProductID    int     `json:"product_id"`
	ProductName  string  `json:"product_name"`
	ProductPrice float64 `json:"product_price"`
	ImageURL     string  `json:"image_url,omitempty"`
	Quantity     int     `json:"quantity"`
}

// CartResponse carries live product data: the total is computed from current
// product prices at read time, unlike order totals which are frozen snapshots.
type CartResponse struct {
	ID          int        `json:"id"`
	Items       []CartItem `json:"items"`
	TotalAmount float64    `json:"total_amount"`
}
