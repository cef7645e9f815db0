package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama/mocks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"github.com/techstore/storefront/internal/domain"
	"github.com/techstore/storefront/internal/messaging/kafka"
	"github.com/techstore/storefront/internal/metrics"
	"github.com/techstore/storefront/internal/service/auth"
	"github.com/techstore/storefront/internal/service/catalog"
	"github.com/techstore/storefront/internal/service/checkout"
	"github.com/techstore/storefront/internal/service/lifecycle"
	"github.com/techstore/storefront/internal/service/outbox"
	"github.com/techstore/storefront/internal/service/users"
	"github.com/techstore/storefront/internal/storage/memory"
	"github.com/techstore/storefront/internal/transport/httpapi"
	"github.com/techstore/storefront/pkg/client"
)

const (
	adminEmail    = "admin@techstore.mx"
	adminPassword = "Admin1234"
)

// StorefrontLifecycleSuite прогоняет покупку через HTTP API, хранилище
// в памяти, outbox-воркер и Kafka-паблишер поверх mock-producer.
type StorefrontLifecycleSuite struct {
	suite.Suite

	ctx      context.Context
	server   *httptest.Server
	baseURL  string
	store    *memory.Store
	admin    *client.Client
	producer *mocks.SyncProducer
	worker   *outbox.Worker

	mu     sync.Mutex
	events []kafka.Envelope
}

func TestStorefrontLifecycleSuite(t *testing.T) {
	suite.Run(t, new(StorefrontLifecycleSuite))
}

func (s *StorefrontLifecycleSuite) SetupTest() {
	baseLogger := log.New()
	baseLogger.SetLevel(log.WarnLevel)
	logger := baseLogger.WithField("component", "integration-test")

	s.ctx = context.Background()
	s.events = nil
	s.store = memory.NewStore()
	userRepo := memory.NewUserRepository()
	hasher := auth.NewHasher(bcrypt.MinCost)
	tokens := auth.NewTokenIssuer("access-secret", "refresh-secret", time.Hour, 24*time.Hour, nil)
	registry := prometheus.NewRegistry()
	m := metrics.NewStorefrontMetricsWithRegisterer(registry)

	authService := auth.NewService(userRepo, tokens, hasher, auth.WithLogger(logger))
	s.Require().NoError(authService.EnsureAdmin(s.ctx, adminEmail, adminPassword))

	api := httpapi.NewServer(httpapi.Services{
		Auth:      authService,
		Users:     users.NewService(userRepo, hasher, nil, logger),
		Catalog:   catalog.NewService(s.store.Products(), catalog.WithLogger(logger), catalog.WithMetrics(m)),
		Checkout:  checkout.NewAssembler(s.store, checkout.WithLogger(logger), checkout.WithMetrics(m)),
		Lifecycle: lifecycle.NewService(s.store.Orders(), lifecycle.WithLogger(logger), lifecycle.WithMetrics(m)),
	},
		httpapi.WithLogger(logger),
		httpapi.WithMetrics(m),
		httpapi.WithIdempotency(memory.NewIdempotencyRepository(nil), time.Hour),
	)
	s.server = httptest.NewServer(api.Router())
	s.baseURL = s.server.URL + "/api/v1"

	s.producer = mocks.NewSyncProducer(s.T(), nil)
	publisher := kafka.NewOutboxPublisher(kafka.NewProducerFromSync(s.producer), kafka.TopicOrderEvents, nil)
	s.worker = outbox.NewWorker(s.store.Outbox(), publisher,
		outbox.WithLogger(logger),
		outbox.WithMetrics(metrics.NewOutboxMetricsWithRegisterer(registry)),
		outbox.WithMaxAttempts(1),
	)

	s.admin = client.New(s.baseURL)
	_, err := s.admin.Login(s.ctx, adminEmail, adminPassword)
	s.Require().NoError(err)
}

func (s *StorefrontLifecycleSuite) TearDownTest() {
	s.server.Close()
	s.Require().NoError(s.producer.Close())
}

// expectEvents настраивает mock-producer на n сообщений и запоминает их конверты.
func (s *StorefrontLifecycleSuite) expectEvents(n int) {
	for i := 0; i < n; i++ {
		s.producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(value []byte) error {
			var envelope kafka.Envelope
			if err := json.Unmarshal(value, &envelope); err != nil {
				return err
			}
			s.mu.Lock()
			s.events = append(s.events, envelope)
			s.mu.Unlock()
			return nil
		})
	}
}

func (s *StorefrontLifecycleSuite) createProduct(sku string, price string, stock int) client.Product {
	product, err := s.admin.CreateProduct(s.ctx, client.ProductInput{
		Name:        "Producto " + sku,
		Description: "Producto de prueba de integración",
		Brand:       "TechStore",
		Category:    "laptops",
		SKU:         sku,
		Price:       decimal.RequireFromString(price),
		Stock:       stock,
	})
	s.Require().NoError(err)
	return product
}

func (s *StorefrontLifecycleSuite) newBuyer(name string) *client.Client {
	buyer := client.New(s.baseURL)
	_, err := buyer.Register(s.ctx, client.RegisterInput{
		Name:     name,
		Email:    fmt.Sprintf("%s-%d@example.mx", name, time.Now().UnixNano()),
		Password: "Comprador1",
	})
	s.Require().NoError(err)
	return buyer
}

func order(productID string, quantity int) client.PlaceOrderInput {
	return client.PlaceOrderInput{
		Items: []client.OrderItem{{ProductID: productID, Quantity: quantity}},
		ShippingAddress: client.Address{
			FullName:   "Ana López",
			Phone:      "5512345678",
			Street:     "Insurgentes Sur",
			City:       "Ciudad de México",
			State:      "CDMX",
			PostalCode: "03100",
		},
		PaymentMethod: client.PaymentMethod{Type: "tarjeta", LastDigits: "4242"},
	}
}

func (s *StorefrontLifecycleSuite) TestPurchaseLifecycle() {
	laptop := s.createProduct("LAP-001", "1200.00", 3)
	buyer := s.newBuyer("ana")

	placed, replayed, err := buyer.PlaceOrder(s.ctx, order(laptop.ID, 2), "")
	s.Require().NoError(err)
	s.False(replayed)
	s.Equal("pending", placed.Status)
	s.Equal("pending", placed.PaymentStatus)
	s.Require().Len(placed.Items, 1)
	s.True(placed.Items[0].UnitPrice.Equal(decimal.NewFromInt(1200)))
	s.True(placed.Subtotal.Equal(decimal.NewFromInt(2400)))
	s.True(placed.ShippingCost.IsZero())
	s.True(placed.Total.Equal(decimal.NewFromInt(2400)))
	s.Regexp(`^ORD-\d{8}-\d{4}$`, placed.Number)

	// Снимок цены не меняется после правки каталога.
	newPrice := decimal.NewFromInt(1500)
	_, err = s.admin.UpdateProduct(s.ctx, laptop.ID, client.ProductPatch{Price: &newPrice})
	s.Require().NoError(err)

	paid, err := buyer.PayOrder(s.ctx, placed.ID, "txn-001")
	s.Require().NoError(err)
	s.Equal("processing", paid.Status)
	s.Equal("paid", paid.PaymentStatus)
	s.Equal("txn-001", paid.TransactionID)

	_, err = buyer.PayOrder(s.ctx, placed.ID, "txn-002")
	s.Equal(http.StatusConflict, client.StatusCode(err))

	_, err = s.admin.UpdateOrderStatus(s.ctx, placed.ID, "enviado", "Salió del almacén")
	s.Require().NoError(err)
	delivered, err := s.admin.UpdateOrderStatus(s.ctx, placed.ID, "delivered", "")
	s.Require().NoError(err)

	s.Equal("delivered", delivered.Status)
	s.Require().Len(delivered.History, 4)
	statuses := make([]string, 0, len(delivered.History))
	for _, entry := range delivered.History {
		statuses = append(statuses, entry.Status)
	}
	s.Equal([]string{"pending", "processing", "shipped", "delivered"}, statuses)
	s.Equal("Salió del almacén", delivered.History[2].Note)

	adminView, err := s.admin.GetOrder(s.ctx, placed.ID)
	s.Require().NoError(err)
	s.Require().NotNil(adminView.Owner)
	s.Equal(placed.UserID, adminView.Owner.ID)
	s.Equal("ana", adminView.Owner.Name)

	fetched, err := buyer.GetOrder(s.ctx, placed.ID)
	s.Require().NoError(err)
	s.True(fetched.Items[0].UnitPrice.Equal(decimal.NewFromInt(1200)))

	product, err := buyer.GetProduct(s.ctx, laptop.ID)
	s.Require().NoError(err)
	s.Equal(1, product.Stock)
	s.Equal(2, product.Sold)

	s.expectEvents(4)
	s.Equal(4, s.worker.ProcessOnce(s.ctx))

	types := make([]string, 0, len(s.events))
	for _, event := range s.events {
		s.Equal(placed.ID, event.AggregateID)
		s.Equal(domain.AggregateOrder, event.AggregateType)
		types = append(types, event.EventType)
	}
	s.Equal([]string{
		domain.EventOrderCreated,
		domain.EventOrderPaid,
		domain.EventOrderStatusChanged,
		domain.EventOrderStatusChanged,
	}, types)
	s.Zero(s.worker.ProcessOnce(s.ctx))
}

func (s *StorefrontLifecycleSuite) TestInsufficientStockLeavesNoTrace() {
	mouse := s.createProduct("MOU-001", "300.00", 1)
	buyer := s.newBuyer("luis")

	_, _, err := buyer.PlaceOrder(s.ctx, order(mouse.ID, 2), "")
	s.Equal(http.StatusBadRequest, client.StatusCode(err))

	orders, meta, err := buyer.MyOrders(s.ctx, 1, 10)
	s.Require().NoError(err)
	s.Empty(orders)
	s.Zero(meta.Total)

	product, err := buyer.GetProduct(s.ctx, mouse.ID)
	s.Require().NoError(err)
	s.Equal(1, product.Stock)
	s.Zero(product.Sold)

	s.Zero(s.worker.ProcessOnce(s.ctx))
}

func (s *StorefrontLifecycleSuite) TestSmallOrderPaysShipping() {
	cable := s.createProduct("CAB-001", "300.00", 10)
	buyer := s.newBuyer("sofia")

	placed, _, err := buyer.PlaceOrder(s.ctx, order(cable.ID, 1), "")
	s.Require().NoError(err)
	s.True(placed.ShippingCost.Equal(decimal.NewFromInt(50)))
	s.True(placed.Total.Equal(decimal.NewFromInt(350)))

	s.expectEvents(1)
	s.Equal(1, s.worker.ProcessOnce(s.ctx))
}

func (s *StorefrontLifecycleSuite) TestIdempotentRetryReplaysOrder() {
	tablet := s.createProduct("TAB-001", "800.00", 5)
	buyer := s.newBuyer("marta")

	first, replayed, err := buyer.PlaceOrder(s.ctx, order(tablet.ID, 1), "checkout-1")
	s.Require().NoError(err)
	s.False(replayed)

	second, replayed, err := buyer.PlaceOrder(s.ctx, order(tablet.ID, 1), "checkout-1")
	s.Require().NoError(err)
	s.True(replayed)
	s.Equal(first.ID, second.ID)

	_, _, err = buyer.PlaceOrder(s.ctx, order(tablet.ID, 2), "checkout-1")
	s.Equal(http.StatusConflict, client.StatusCode(err))

	product, err := buyer.GetProduct(s.ctx, tablet.ID)
	s.Require().NoError(err)
	s.Equal(4, product.Stock)

	s.expectEvents(1)
	s.Equal(1, s.worker.ProcessOnce(s.ctx))
}

func (s *StorefrontLifecycleSuite) TestConcurrentBuyersNeverOversell() {
	phone := s.createProduct("PHN-001", "9999.00", 4)

	const buyers = 12
	clients := make([]*client.Client, buyers)
	for i := range clients {
		clients[i] = s.newBuyer(fmt.Sprintf("buyer%d", i))
	}

	var (
		wg       sync.WaitGroup
		accepted int
		rejected int
		mu       sync.Mutex
	)
	for _, buyer := range clients {
		wg.Add(1)
		go func(buyer *client.Client) {
			defer wg.Done()
			_, _, err := buyer.PlaceOrder(s.ctx, order(phone.ID, 1), "")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				accepted++
			} else if client.StatusCode(err) == http.StatusBadRequest {
				rejected++
			}
		}(buyer)
	}
	wg.Wait()

	s.Equal(4, accepted)
	s.Equal(buyers-4, rejected)

	product, err := s.admin.GetProduct(s.ctx, phone.ID)
	s.Require().NoError(err)
	s.Zero(product.Stock)
	s.Equal(4, product.Sold)

	s.expectEvents(4)
	s.Equal(4, s.worker.ProcessOnce(s.ctx))
}
