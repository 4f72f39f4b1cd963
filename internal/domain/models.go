package domain

import "time"

const (
	PaymentCash   = "cash"
	PaymentCard   = "card"
	PaymentMobile = "mobile"
)

const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
)

// LowStockThreshold marks products that should be highlighted for restock.
const LowStockThreshold = 5

var Categories = []string{"Beverages", "Food", "Pastries", "Merchandise", "Other"}

type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       float64   `json:"price"`
	Category    string    `json:"category"`
	Stock       int       `json:"stock"`
	Image       string    `json:"image,omitempty"`
	Barcode     string    `json:"barcode,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (p Product) LowStock() bool {
	return p.Stock <= LowStockThreshold
}

type ProductCreateRequest struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Category    string  `json:"category"`
	Stock       int     `json:"stock"`
	Image       string  `json:"image,omitempty"`
	Barcode     string  `json:"barcode,omitempty"`
}

type ProductUpdateRequest struct {
	Name        *string  `json:"name,omitempty"`
	Description *string  `json:"description,omitempty"`
	Price       *float64 `json:"price,omitempty"`
	Category    *string  `json:"category,omitempty"`
	Stock       *int     `json:"stock,omitempty"`
	Image       *string  `json:"image,omitempty"`
	Barcode     *string  `json:"barcode,omitempty"`
}

// Apply copies every set field of the patch onto p.
func (r ProductUpdateRequest) Apply(p Product) Product {
	if r.Name != nil {
		p.Name = *r.Name
	}
	if r.Description != nil {
		p.Description = *r.Description
	}
	if r.Price != nil {
		p.Price = *r.Price
	}
	if r.Category != nil {
		p.Category = *r.Category
	}
	if r.Stock != nil {
		p.Stock = *r.Stock
	}
	if r.Image != nil {
		p.Image = *r.Image
	}
	if r.Barcode != nil {
		p.Barcode = *r.Barcode
	}
	return p
}

// CartItem is a product snapshot plus the quantity being bought.
type CartItem struct {
	Product
	Quantity int `json:"quantity"`
}

type StockAdjustment struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type StockDecrementRequest struct {
	Items []StockAdjustment `json:"items"`
}

type Receipt struct {
	ID             string     `json:"id"`
	IdempotencyKey string     `json:"idempotency_key,omitempty"`
	Items          []CartItem `json:"items"`
	Subtotal       float64    `json:"subtotal"`
	Tax            float64    `json:"tax"`
	Total          float64    `json:"total"`
	PaymentMethod  string     `json:"payment_method"`
	AmountPaid     float64    `json:"amount_paid"`
	Change         float64    `json:"change"`
	CustomerName   string     `json:"customer_name,omitempty"`
	CustomerEmail  string     `json:"customer_email,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func (r Receipt) StockAdjustments() []StockAdjustment {
	adjustments := make([]StockAdjustment, 0, len(r.Items))
	for _, item := range r.Items {
		adjustments = append(adjustments, StockAdjustment{ProductID: item.ID, Quantity: item.Quantity})
	}
	return adjustments
}

type TopProduct struct {
	Name  string `json:"name"`
	Sales int    `json:"sales"`
}

type SalesData struct {
	Daily       float64      `json:"daily"`
	Weekly      float64      `json:"weekly"`
	Monthly     float64      `json:"monthly"`
	TopProducts []TopProduct `json:"top_products"`
}

type DashboardResponse struct {
	SalesData
	LowStock    []Product `json:"low_stock"`
	GeneratedAt time.Time `json:"generated_at"`
}

type CheckoutLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type CheckoutRequest struct {
	IdempotencyKey string         `json:"idempotency_key"`
	Items          []CheckoutLine `json:"items"`
	PaymentMethod  string         `json:"payment_method"`
	AmountPaid     float64        `json:"amount_paid"`
	CustomerName   string         `json:"customer_name,omitempty"`
	CustomerEmail  string         `json:"customer_email,omitempty"`
}

type PaymentRequest struct {
	IdempotencyKey string  `json:"idempotency_key"`
	PaymentMethod  string  `json:"payment_method"`
	AmountPaid     float64 `json:"amount_paid"`
	CustomerName   string  `json:"customer_name,omitempty"`
	CustomerEmail  string  `json:"customer_email,omitempty"`
}

type CheckoutResponse struct {
	Receipt  Receipt  `json:"receipt"`
	Warnings []string `json:"warnings,omitempty"`
}

// CartSession is a checkout in progress, kept in the session cache until it is
// committed or discarded.
type CartSession struct {
	ID        string     `json:"id"`
	Items     []CartItem `json:"items"`
	CreatedBy string     `json:"created_by,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type CartItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type CartView struct {
	ID        string     `json:"id"`
	Items     []CartItem `json:"items"`
	Subtotal  float64    `json:"subtotal"`
	Tax       float64    `json:"tax"`
	Total     float64    `json:"total"`
	Warnings  []string   `json:"warnings,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type ReceiptQuery struct {
	From   *time.Time
	To     *time.Time
	Search string
	Sort   string
}

type SeedResult struct {
	Inserted int  `json:"inserted"`
	Skipped  bool `json:"skipped"`
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

type Actor struct {
	Username string
	Role     string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}
