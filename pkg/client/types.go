package client

import (
	"time"

	"github.com/shopspring/decimal"
)

// Meta — пагинация списков.
type Meta struct {
	Total      int  `json:"total"`
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	TotalPages int  `json:"totalPages"`
	HasNext    bool `json:"hasNext"`
	HasPrev    bool `json:"hasPrev"`
}

type User struct {
	ID     string `json:"id"`
	Name   string `json:"nombre"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Phone  string `json:"telefono,omitempty"`
	Active bool   `json:"activo"`
}

// Session — ответ register/login.
type Session struct {
	User         User   `json:"user"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type RegisterInput struct {
	Name     string `json:"nombre"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"telefono,omitempty"`
}

type Image struct {
	URL     string `json:"url"`
	Alt     string `json:"alt,omitempty"`
	Primary bool   `json:"esPrincipal"`
}

type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"nombre"`
	Slug        string          `json:"slug"`
	Description string          `json:"descripcion"`
	Brand       string          `json:"marca"`
	Category    string          `json:"categoria"`
	SKU         string          `json:"sku"`
	Price       decimal.Decimal `json:"precio"`
	Stock       int             `json:"stock"`
	Sold        int             `json:"vendidos"`
	Views       int64           `json:"vistas"`
	Active      bool            `json:"activo"`
	Featured    bool            `json:"destacado"`
	Images      []Image         `json:"imagenes"`
}

// ProductInput — тело создания товара (только для администратора).
type ProductInput struct {
	Name        string          `json:"nombre"`
	Description string          `json:"descripcion"`
	Brand       string          `json:"marca"`
	Category    string          `json:"categoria"`
	SKU         string          `json:"sku"`
	Price       decimal.Decimal `json:"precio"`
	Stock       int             `json:"stock"`
	Featured    bool            `json:"destacado,omitempty"`
	Images      []Image         `json:"imagenes,omitempty"`
}

// ProductPatch — частичное обновление товара; nil-поля не меняются.
type ProductPatch struct {
	Price  *decimal.Decimal `json:"precio,omitempty"`
	Stock  *int             `json:"stock,omitempty"`
	Active *bool            `json:"activo,omitempty"`
}

// ProductQuery — фильтры каталога; пустые поля не передаются.
type ProductQuery struct {
	Search   string
	Category string
	Brand    string
	Sort     string
	Page     int
	Limit    int
}

type OrderItem struct {
	ProductID string `json:"productoId"`
	Quantity  int    `json:"cantidad"`
}

type Address struct {
	FullName   string `json:"nombreCompleto"`
	Phone      string `json:"telefono"`
	Street     string `json:"calle"`
	Number     string `json:"numero,omitempty"`
	City       string `json:"ciudad"`
	State      string `json:"estado"`
	PostalCode string `json:"codigoPostal"`
	Country    string `json:"pais,omitempty"`
}

type PaymentMethod struct {
	Type       string `json:"tipo"`
	LastDigits string `json:"ultimosDigitos,omitempty"`
}

type PlaceOrderInput struct {
	Items           []OrderItem   `json:"items"`
	ShippingAddress Address       `json:"direccionEnvio"`
	PaymentMethod   PaymentMethod `json:"metodoPago"`
	Coupon          string        `json:"cupon,omitempty"`
}

type LineItem struct {
	ProductID string          `json:"productoId"`
	Name      string          `json:"nombre"`
	UnitPrice decimal.Decimal `json:"precio"`
	Quantity  int             `json:"cantidad"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type StatusEntry struct {
	Status string    `json:"estado"`
	At     time.Time `json:"fecha"`
	Note   string    `json:"nota,omitempty"`
}

type Order struct {
	ID            string          `json:"id"`
	Number        string          `json:"numeroPedido"`
	UserID        string          `json:"userId"`
	Items         []LineItem      `json:"items"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	ShippingCost  decimal.Decimal `json:"costoEnvio"`
	Tax           decimal.Decimal `json:"impuestos"`
	Total         decimal.Decimal `json:"total"`
	Status        string          `json:"estado"`
	PaymentStatus string          `json:"estadoPago"`
	TransactionID string          `json:"transaccionId,omitempty"`
	History       []StatusEntry   `json:"historialEstados"`
	Owner         *User           `json:"usuario,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}
