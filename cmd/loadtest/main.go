package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/techstore/storefront/pkg/client"
)

const (
	userPassword = "Loadtest123"
	codeError    = "error"
)

type loadMode string

const (
	// modeBuy оформляет заказы на товар с запасом, достаточным для всех сценариев.
	modeBuy loadMode = "buy"
	// modeBuyPay после оформления регистрирует оплату.
	modeBuyPay loadMode = "buy-pay"
	// modeRace конкурирует за ограниченный запас и проверяет отсутствие перепродажи.
	modeRace loadMode = "race"
)

type config struct {
	baseURL       string
	total         int
	totalSet      bool
	duration      time.Duration
	concurrency   int
	timeout       time.Duration
	mode          loadMode
	adminEmail    string
	adminPassword string
	productID     string
	stock         int
	price         decimal.Decimal
	quantity      int
	userTag       string
	outputPath    string
}

func parseConfig(args []string) (config, error) {
	var (
		cfg           config
		modeValue     string
		priceValue    string
		timeoutValue  string
		durationValue string
	)

	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.baseURL, "base-url", "http://localhost:8080/api/v1", "storefront API base URL")
	fs.IntVar(&cfg.total, "total", 400, "total scenarios to execute in count mode; in duration mode only used when explicitly set")
	fs.StringVar(&durationValue, "duration", "0s", "optional time-based run duration (e.g. 10m)")
	fs.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent buyers")
	fs.StringVar(&timeoutValue, "timeout", "5s", "per-request timeout")
	fs.StringVar(&modeValue, "mode", string(modeBuy), "load mode: buy | buy-pay | race")
	fs.StringVar(&cfg.adminEmail, "admin-email", "admin@techstore.mx", "admin account used to create the product")
	fs.StringVar(&cfg.adminPassword, "admin-password", "", "admin password (fallback: STOREFRONT_SEED_ADMIN_PASSWORD)")
	fs.StringVar(&cfg.productID, "product", "", "existing product id; empty creates a new product")
	fs.IntVar(&cfg.stock, "stock", 0, "stock of the created product (0 = enough for every scenario, race default 50)")
	fs.StringVar(&priceValue, "price", "499.00", "price of the created product")
	fs.IntVar(&cfg.quantity, "quantity", 1, "units per order")
	fs.StringVar(&cfg.userTag, "user-tag", "load", "buyer email prefix")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	timeout, err := time.ParseDuration(strings.TrimSpace(timeoutValue))
	if err != nil {
		return cfg, fmt.Errorf("parse timeout: %w", err)
	}
	cfg.timeout = timeout

	duration, err := time.ParseDuration(strings.TrimSpace(durationValue))
	if err != nil {
		return cfg, fmt.Errorf("parse duration: %w", err)
	}
	cfg.duration = duration

	if cfg.price, err = decimal.NewFromString(strings.TrimSpace(priceValue)); err != nil {
		return cfg, fmt.Errorf("parse price: %w", err)
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	if cfg.mode, err = parseMode(modeValue); err != nil {
		return cfg, err
	}
	if cfg.adminPassword == "" {
		cfg.adminPassword = os.Getenv("STOREFRONT_SEED_ADMIN_PASSWORD")
	}
	if cfg.mode == modeRace && cfg.stock == 0 {
		cfg.stock = 50
	}

	return cfg, cfg.validate()
}

func (cfg config) validate() error {
	switch {
	case strings.TrimSpace(cfg.baseURL) == "":
		return errors.New("base-url is required")
	case cfg.duration < 0:
		return errors.New("duration must be >= 0")
	case cfg.duration == 0 && cfg.total <= 0:
		return errors.New("total must be > 0 when duration is not set")
	case cfg.duration > 0 && cfg.totalSet && cfg.total <= 0:
		return errors.New("total must be > 0 when explicitly set with duration")
	case cfg.concurrency <= 0:
		return errors.New("concurrency must be > 0")
	case cfg.timeout <= 0:
		return errors.New("timeout must be > 0")
	case cfg.quantity <= 0:
		return errors.New("quantity must be > 0")
	case cfg.stock < 0:
		return errors.New("stock must be >= 0")
	case !cfg.price.IsPositive():
		return errors.New("price must be > 0")
	case strings.TrimSpace(cfg.userTag) == "":
		return errors.New("user-tag is required")
	case cfg.productID == "" && cfg.adminPassword == "":
		return errors.New("admin-password is required to create the product")
	}
	return nil
}

func parseMode(value string) (loadMode, error) {
	switch mode := loadMode(strings.TrimSpace(value)); mode {
	case modeBuy, modeBuyPay, modeRace:
		return mode, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func main() {
	logger := log.WithField("component", "loadtest")

	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		logger.WithError(err).Fatal("invalid config")
	}

	result, err := run(context.Background(), cfg)
	if err != nil {
		logger.WithError(err).Fatal("load test aborted")
	}

	printReport(os.Stdout, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			logger.WithError(err).Fatal("failed to write report")
		}
	}

	if result.FailedScenarios > 0 || (result.Stock != nil && result.Stock.Oversold) {
		os.Exit(1)
	}
}

// run готовит товар, запускает покупателей и сверяет остаток.
func run(ctx context.Context, cfg config) (report, error) {
	httpClient := &http.Client{Timeout: cfg.timeout}
	runID := fmt.Sprintf("%d-%d", time.Now().UnixNano(), os.Getpid())

	product, err := prepareProduct(ctx, cfg, httpClient, runID)
	if err != nil {
		return report{}, err
	}

	startedAt := time.Now()
	col := newCollector()
	jobs := make(chan int, cfg.concurrency*2)

	var wg sync.WaitGroup
	for worker := 0; worker < cfg.concurrency; worker++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			buyer := client.New(cfg.baseURL, client.WithHTTPClient(httpClient))
			if err := registerBuyer(ctx, buyer, cfg, runID, worker, col); err != nil {
				// Сценарии этого покупателя засчитываются как проваленные.
				for range jobs {
					col.record("scenario", 0, "register")
				}
				return
			}
			for id := range jobs {
				runScenario(ctx, buyer, cfg, product.ID, runID, id, col)
			}
		}(worker)
	}

	dispatchJobs(jobs, cfg)
	wg.Wait()

	result := col.buildReport(startedAt, time.Since(startedAt))

	final, err := client.New(cfg.baseURL, client.WithHTTPClient(httpClient)).GetProduct(ctx, product.ID)
	if err != nil {
		return result, fmt.Errorf("read final stock: %w", err)
	}
	result.Stock = stockSummary(product, final, cfg.quantity, col)
	return result, nil
}

func prepareProduct(ctx context.Context, cfg config, httpClient *http.Client, runID string) (client.Product, error) {
	if cfg.productID != "" {
		product, err := client.New(cfg.baseURL, client.WithHTTPClient(httpClient)).GetProduct(ctx, cfg.productID)
		if err != nil {
			return client.Product{}, fmt.Errorf("load product %s: %w", cfg.productID, err)
		}
		return product, nil
	}

	admin := client.New(cfg.baseURL, client.WithHTTPClient(httpClient))
	if _, err := admin.Login(ctx, cfg.adminEmail, cfg.adminPassword); err != nil {
		return client.Product{}, fmt.Errorf("admin login: %w", err)
	}

	stock := cfg.stock
	if stock == 0 {
		stock = cfg.total * cfg.quantity
		if cfg.duration > 0 && !cfg.totalSet {
			stock = 1_000_000
		}
	}

	product, err := admin.CreateProduct(ctx, client.ProductInput{
		Name:        "Producto de carga " + runID,
		Description: "Producto creado por la prueba de carga",
		Brand:       "TechStore",
		Category:    "accesorios",
		SKU:         "LT-" + runID,
		Price:       cfg.price,
		Stock:       stock,
	})
	if err != nil {
		return client.Product{}, fmt.Errorf("create product: %w", err)
	}
	return product, nil
}

func registerBuyer(ctx context.Context, buyer *client.Client, cfg config, runID string, worker int, col *collector) error {
	start := time.Now()
	_, err := buyer.Register(ctx, client.RegisterInput{
		Name:     fmt.Sprintf("Comprador %d", worker),
		Email:    fmt.Sprintf("%s-%s-%d@loadtest.techstore.mx", cfg.userTag, runID, worker),
		Password: userPassword,
	})
	col.record("Register", time.Since(start), codeOf(err))
	return err
}

func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := 0; i < cfg.total; i++ {
			jobs <- i
		}
		return
	}

	timer := time.NewTimer(cfg.duration)
	defer timer.Stop()

	for i := 0; ; i++ {
		if cfg.totalSet && i >= cfg.total {
			return
		}
		select {
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}

// runScenario оформляет один заказ; в режиме race отказ 400 из-за
// нехватки запаса считается ожидаемым исходом.
func runScenario(ctx context.Context, buyer *client.Client, cfg config, productID, runID string, index int, col *collector) {
	scenarioStart := time.Now()
	scenarioCode := codeOK
	defer func() {
		col.record("scenario", time.Since(scenarioStart), scenarioCode)
	}()

	callCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	start := time.Now()
	order, _, err := buyer.PlaceOrder(callCtx, orderInput(productID, cfg.quantity), fmt.Sprintf("lt-%s-%d", runID, index))
	col.record("PlaceOrder", time.Since(start), codeOf(err))
	if err != nil {
		if cfg.mode == modeRace && client.StatusCode(err) == http.StatusBadRequest {
			return
		}
		scenarioCode = codeOf(err)
		return
	}

	if cfg.mode != modeBuyPay {
		return
	}

	start = time.Now()
	_, err = buyer.PayOrder(callCtx, order.ID, "lt-txn-"+order.ID)
	col.record("PayOrder", time.Since(start), codeOf(err))
	if err != nil {
		scenarioCode = codeOf(err)
	}
}

func orderInput(productID string, quantity int) client.PlaceOrderInput {
	return client.PlaceOrderInput{
		Items: []client.OrderItem{{ProductID: productID, Quantity: quantity}},
		ShippingAddress: client.Address{
			FullName:   "Prueba de Carga",
			Phone:      "5512345678",
			Street:     "Av. Reforma",
			Number:     "222",
			City:       "Ciudad de México",
			State:      "CDMX",
			PostalCode: "06600",
		},
		PaymentMethod: client.PaymentMethod{Type: "tarjeta", LastDigits: "4242"},
	}
}

// stockSummary сверяет списанный запас с числом принятых заказов.
func stockSummary(initial, final client.Product, quantity int, col *collector) *stockReport {
	accepted := col.count("PlaceOrder", codeOK)
	summary := &stockReport{
		ProductID:    initial.ID,
		InitialStock: initial.Stock,
		FinalStock:   final.Stock,
		Accepted:     accepted,
		Rejected:     col.count("PlaceOrder", strconv.Itoa(http.StatusBadRequest)),
	}
	reserved := int64(initial.Stock - final.Stock)
	summary.Oversold = final.Stock < 0 || reserved != accepted*int64(quantity)
	return summary
}

func codeOf(err error) string {
	if err == nil {
		return codeOK
	}
	if status := client.StatusCode(err); status != 0 {
		return strconv.Itoa(status)
	}
	return codeError
}
