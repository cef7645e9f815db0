package httpapi

import (
	"github.com/shopspring/decimal"

	"github.com/techstore/storefront/internal/domain"
	"github.com/techstore/storefront/internal/service/catalog"
	"github.com/techstore/storefront/internal/service/checkout"
	"github.com/techstore/storefront/internal/service/users"
)

type registerRequest struct {
	Name     string `json:"nombre" binding:"required,min=2,max=120"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8,strongpassword"`
	Phone    string `json:"telefono"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type imageRequest struct {
	URL     string `json:"url" binding:"required,url"`
	Alt     string `json:"alt"`
	Primary bool   `json:"esPrincipal"`
}

type productRequest struct {
	Name        string          `json:"nombre" binding:"required,min=2,max=200"`
	Description string          `json:"descripcion" binding:"required,min=10"`
	Price       decimal.Decimal `json:"precio" binding:"required,gt=0"`
	Category    string          `json:"categoria" binding:"required,oneof=smartphones laptops tablets audio wearables camaras accesorios hogar gaming"`
	Brand       string          `json:"marca" binding:"required"`
	SKU         string          `json:"sku" binding:"required"`
	Stock       *int            `json:"stock" binding:"required,min=0"`
	Images      []imageRequest  `json:"imagenes" binding:"omitempty,dive"`
	Featured    bool            `json:"destacado"`
}

func (r productRequest) input() catalog.ProductInput {
	return catalog.ProductInput{
		Name:        r.Name,
		Description: r.Description,
		Brand:       r.Brand,
		Category:    domain.Category(r.Category),
		SKU:         r.SKU,
		Price:       r.Price,
		Stock:       *r.Stock,
		Featured:    r.Featured,
		Images:      toImages(r.Images),
	}
}

type productUpdateRequest struct {
	Name        *string          `json:"nombre" binding:"omitempty,min=2,max=200"`
	Description *string          `json:"descripcion" binding:"omitempty,min=10"`
	Price       *decimal.Decimal `json:"precio" binding:"omitempty,gt=0"`
	Category    *string          `json:"categoria" binding:"omitempty,oneof=smartphones laptops tablets audio wearables camaras accesorios hogar gaming"`
	Brand       *string          `json:"marca" binding:"omitempty,min=1"`
	SKU         *string          `json:"sku" binding:"omitempty,min=1"`
	Stock       *int             `json:"stock" binding:"omitempty,min=0"`
	Images      *[]imageRequest  `json:"imagenes" binding:"omitempty,dive"`
	Featured    *bool            `json:"destacado"`
	Active      *bool            `json:"activo"`
}

func (r productUpdateRequest) patch() catalog.ProductPatch {
	patch := catalog.ProductPatch{
		Name:        r.Name,
		Description: r.Description,
		Brand:       r.Brand,
		SKU:         r.SKU,
		Price:       r.Price,
		Stock:       r.Stock,
		Featured:    r.Featured,
		Active:      r.Active,
	}
	if r.Category != nil {
		category := domain.Category(*r.Category)
		patch.Category = &category
	}
	if r.Images != nil {
		images := toImages(*r.Images)
		patch.Images = &images
	}
	return patch
}

func toImages(in []imageRequest) []domain.ProductImage {
	images := make([]domain.ProductImage, 0, len(in))
	for _, img := range in {
		images = append(images, domain.ProductImage{URL: img.URL, Alt: img.Alt, Primary: img.Primary})
	}
	return images
}

type orderItemRequest struct {
	ProductID string `json:"productoId" binding:"required,uuid"`
	Quantity  int    `json:"cantidad" binding:"required,min=1,max=1000"`
}

type addressRequest struct {
	FullName     string `json:"nombreCompleto" binding:"required"`
	Phone        string `json:"telefono" binding:"required"`
	Street       string `json:"calle" binding:"required"`
	Number       string `json:"numero"`
	Neighborhood string `json:"colonia"`
	City         string `json:"ciudad" binding:"required"`
	State        string `json:"estado" binding:"required"`
	PostalCode   string `json:"codigoPostal" binding:"required"`
	Country      string `json:"pais"`
	References   string `json:"referencias"`
}

type paymentMethodRequest struct {
	Type       string `json:"tipo" binding:"required,oneof=tarjeta paypal oxxo transferencia"`
	LastDigits string `json:"ultimosDigitos"`
	Brand      string `json:"marca"`
}

type placeOrderRequest struct {
	Items           []orderItemRequest   `json:"items" binding:"required,min=1,dive"`
	ShippingAddress addressRequest       `json:"direccionEnvio"`
	PaymentMethod   paymentMethodRequest `json:"metodoPago"`
	Coupon          string               `json:"cupon"`
}

func (r placeOrderRequest) input(userID string) checkout.PlaceOrderInput {
	items := make([]checkout.ItemRequest, 0, len(r.Items))
	for _, item := range r.Items {
		items = append(items, checkout.ItemRequest{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	return checkout.PlaceOrderInput{
		UserID: userID,
		Items:  items,
		ShippingAddress: domain.ShippingAddress{
			FullName:     r.ShippingAddress.FullName,
			Phone:        r.ShippingAddress.Phone,
			Street:       r.ShippingAddress.Street,
			Number:       r.ShippingAddress.Number,
			Neighborhood: r.ShippingAddress.Neighborhood,
			City:         r.ShippingAddress.City,
			State:        r.ShippingAddress.State,
			PostalCode:   r.ShippingAddress.PostalCode,
			Country:      r.ShippingAddress.Country,
			References:   r.ShippingAddress.References,
		},
		PaymentMethod: domain.PaymentMethod{
			Type:       domain.PaymentMethodType(r.PaymentMethod.Type),
			LastDigits: r.PaymentMethod.LastDigits,
			Brand:      r.PaymentMethod.Brand,
		},
		Coupon: r.Coupon,
	}
}

type trackingRequest struct {
	Number  string `json:"numeroGuia"`
	Carrier string `json:"paqueteria"`
	URL     string `json:"url" binding:"omitempty,url"`
}

type statusRequest struct {
	Status   string           `json:"estado" binding:"required"`
	Note     string           `json:"nota"`
	Tracking *trackingRequest `json:"rastreo"`
}

type payRequest struct {
	TransactionID string `json:"transaccionId"`
}

type profileRequest struct {
	Name   *string `json:"nombre" binding:"omitempty,min=2,max=120"`
	Phone  *string `json:"telefono"`
	Avatar *string `json:"avatar" binding:"omitempty,url"`
}

func (r profileRequest) patch() users.ProfilePatch {
	return users.ProfilePatch{Name: r.Name, Phone: r.Phone, Avatar: r.Avatar}
}

type passwordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required,min=8,strongpassword"`
}
