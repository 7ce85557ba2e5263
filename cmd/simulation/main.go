package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ksred/otc-settlement/internal/access"
	"github.com/ksred/otc-settlement/internal/auth"
	"github.com/ksred/otc-settlement/internal/database"
	"github.com/ksred/otc-settlement/internal/escrow"
	"github.com/ksred/otc-settlement/internal/events"
	"github.com/ksred/otc-settlement/internal/ledger"
	"github.com/ksred/otc-settlement/internal/oracle"
	"github.com/ksred/otc-settlement/internal/orders"
	"github.com/ksred/otc-settlement/internal/settings"
	"github.com/ksred/otc-settlement/pkg/middleware"
)

const (
	minTrades     = 15
	maxTrades     = 60
	numWorkers    = 3
	numSellers    = 3
	numBuyers     = 3
	serverAddress = "http://localhost:8091"
	jwtSecret     = "otc-simulation-secret"

	ownerAddress  = "owner-0001"
	treasuryAddr  = "treasury-main"
	escrowAddr    = "escrow-custody"
	quoteSymbol   = "USDQ"
	quoteDecimals = 6

	feeBps    = 30
	spreadBps = 20
)

// asset is a sellable commodity with its oracle feed and a fixed simulated
// price in 8-decimal feed units.
type asset struct {
	symbol  string
	feedRef string
	price   int64
}

var assets = []asset{
	{symbol: "XAU", feedRef: "xau-usd", price: 2400_00000000},
	{symbol: "XAG", feedRef: "xag-usd", price: 29_00000000},
	{symbol: "WTI", feedRef: "wti-usd", price: 78_00000000},
}

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	// Configure pretty logging
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

func sellerAddr(i int) string { return fmt.Sprintf("seller-%03d", i) }
func buyerAddr(i int) string  { return fmt.Sprintf("buyer-%03d", i) }

func apiKeyFor(address string) string    { return "key-" + address }
func apiSecretFor(address string) string { return "secret-" + address }

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	name       string
	mu         sync.Mutex
	durations  []time.Duration
	totalCalls int
	failures   int
}

// addDuration records a new duration measurement for the route
func (rs *routeStats) addDuration(d time.Duration) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
}

func (rs *routeStats) addFailure() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.failures++
}

// calculate computes performance statistics from recorded durations
// Returns min, max, mean, median, 95th percentile, and 99th percentile durations
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	// Sort durations for percentile calculations
	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	// Calculate mean
	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))

	// Calculate median
	median = rs.durations[len(rs.durations)/2]

	// Calculate percentiles
	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(rs.durations))*0.99)) - 1
	p95 = rs.durations[p95idx]
	p99 = rs.durations[p99idx]

	return
}

// simulationClient handles HTTP communication with the settlement API on
// behalf of every simulated participant. Tokens are keyed by account address.
type simulationClient struct {
	baseURL string
	client  *http.Client
	stats   map[string]*routeStats

	mu     sync.RWMutex
	tokens map[string]string
}

// newSimulationClient creates the client and authenticates every participant
func newSimulationClient(addresses []string) (*simulationClient, error) {
	sc := &simulationClient{
		baseURL: serverAddress,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		stats: map[string]*routeStats{
			"auth":     {name: "Authentication"},
			"deposit":  {name: "Deposit"},
			"create":   {name: "Create Order"},
			"take":     {name: "Take Order"},
			"delivery": {name: "Submit Delivery"},
			"confirm":  {name: "Confirm Receipt"},
			"reject":   {name: "Reject Receipt"},
			"resolve":  {name: "Admin Resolve"},
			"balance":  {name: "Get Balance"},
		},
		tokens: make(map[string]string),
	}

	for _, address := range addresses {
		token, err := sc.authenticate(address)
		if err != nil {
			return nil, fmt.Errorf("failed to authenticate %s: %w", address, err)
		}
		sc.mu.Lock()
		sc.tokens[address] = token
		sc.mu.Unlock()
	}

	return sc, nil
}

// authenticate performs API authentication for one address and returns a JWT
func (sc *simulationClient) authenticate(address string) (string, error) {
	start := time.Now()
	defer func() {
		sc.stats["auth"].addDuration(time.Since(start))
	}()

	credentials := map[string]string{
		"api_key":    apiKeyFor(address),
		"api_secret": apiSecretFor(address),
	}

	body, err := json.Marshal(credentials)
	if err != nil {
		return "", err
	}

	resp, err := sc.client.Post(
		fmt.Sprintf("%s/api/v1/auth/token", sc.baseURL),
		"application/json",
		bytes.NewBuffer(body),
	)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("authentication failed with status: %d", resp.StatusCode)
	}

	var result struct {
		Token string `json:"jwt_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}

	return result.Token, nil
}

func (sc *simulationClient) token(address string) string {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.tokens[address]
}

// do sends an authenticated request and returns the envelope's data payload.
// Every caller records its own route timing.
func (sc *simulationClient) do(method, path, address string, payload interface{}) (json.RawMessage, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewBuffer(raw)
	}

	req, err := http.NewRequest(method, sc.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", sc.token(address)))
	req.Header.Set("Content-Type", "application/json")

	resp, err := sc.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	log.Debug().Str("path", path).Str("response", string(respBody)).Msg("API response")

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("%s %s failed with status %d: %s", method, path, resp.StatusCode, string(respBody))
	}

	var result struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}

	return result.Data, nil
}

func (sc *simulationClient) timed(route string, fn func() error) error {
	start := time.Now()
	err := fn()
	sc.stats[route].addDuration(time.Since(start))
	if err != nil {
		sc.stats[route].addFailure()
	}
	return err
}

// deposit credits the address's own balance
func (sc *simulationClient) deposit(address, currency string, amount decimal.Decimal) error {
	return sc.timed("deposit", func() error {
		_, err := sc.do("POST", "/api/v1/ledger/deposits", address, map[string]interface{}{
			"currency": currency,
			"amount":   amount,
		})
		return err
	})
}

// createOrder posts a sell order and returns it with the locked quote amount
func (sc *simulationClient) createOrder(seller, sellAsset string, sellAmount decimal.Decimal, quoteToken string) (*orders.Order, error) {
	var order orders.Order
	err := sc.timed("create", func() error {
		data, err := sc.do("POST", "/api/v1/orders", seller, map[string]interface{}{
			"sell_asset":  sellAsset,
			"sell_amount": sellAmount,
			"quote_token": quoteToken,
		})
		if err != nil {
			return err
		}
		return json.Unmarshal(data, &order)
	})
	if err != nil {
		return nil, err
	}
	if order.ID == 0 {
		return nil, fmt.Errorf("no order ID in response")
	}
	return &order, nil
}

// takeOrder accepts an order as the buyer and returns the opened trade
func (sc *simulationClient) takeOrder(buyer string, orderID uint64) (*escrow.Trade, error) {
	var trade escrow.Trade
	err := sc.timed("take", func() error {
		data, err := sc.do("POST", fmt.Sprintf("/api/v1/orders/%d/take", orderID), buyer, nil)
		if err != nil {
			return err
		}
		return json.Unmarshal(data, &trade)
	})
	if err != nil {
		return nil, err
	}
	if trade.ID == 0 {
		return nil, fmt.Errorf("no trade ID in response")
	}
	return &trade, nil
}

// submitDelivery attests delivery as the seller
func (sc *simulationClient) submitDelivery(seller string, tradeID uint64, reference string) error {
	return sc.timed("delivery", func() error {
		_, err := sc.do("POST", fmt.Sprintf("/api/v1/trades/%d/delivery", tradeID), seller, map[string]string{
			"reference": reference,
		})
		return err
	})
}

// confirmReceipt settles the trade as the buyer
func (sc *simulationClient) confirmReceipt(buyer string, tradeID uint64) error {
	return sc.timed("confirm", func() error {
		_, err := sc.do("POST", fmt.Sprintf("/api/v1/trades/%d/confirm", tradeID), buyer, nil)
		return err
	})
}

// rejectReceipt disputes the delivery as the buyer
func (sc *simulationClient) rejectReceipt(buyer string, tradeID uint64) error {
	return sc.timed("reject", func() error {
		_, err := sc.do("POST", fmt.Sprintf("/api/v1/trades/%d/reject", tradeID), buyer, nil)
		return err
	})
}

// resolveDispute settles a disputed trade as the administrator
func (sc *simulationClient) resolveDispute(admin string, tradeID uint64, release bool) error {
	action := "refund"
	if release {
		action = "release"
	}
	return sc.timed("resolve", func() error {
		_, err := sc.do("POST", fmt.Sprintf("/api/v1/admin/trades/%d/%s", tradeID, action), admin, nil)
		return err
	})
}

// getBalance reads the address's own balance in a currency
func (sc *simulationClient) getBalance(address, currency string) (decimal.Decimal, error) {
	var result struct {
		Amount decimal.Decimal `json:"amount"`
	}
	err := sc.timed("balance", func() error {
		data, err := sc.do("GET", fmt.Sprintf("/api/v1/ledger/balances/%s", currency), address, nil)
		if err != nil {
			return err
		}
		return json.Unmarshal(data, &result)
	})
	if err != nil {
		return decimal.Zero, err
	}
	return result.Amount, nil
}

// configurePlatform runs the owner's one-time setup: oracle feeds and rounds,
// the quote allow-list, asset bindings, rates and the custody accounts.
func configurePlatform(sc *simulationClient) error {
	now := time.Now().Unix()

	for _, a := range assets {
		if _, err := sc.do("POST", "/api/v1/oracle/feeds", ownerAddress, map[string]interface{}{
			"ref":      a.feedRef,
			"decimals": 8,
		}); err != nil {
			return fmt.Errorf("create feed %s: %w", a.feedRef, err)
		}
		if _, err := sc.do("POST", fmt.Sprintf("/api/v1/oracle/feeds/%s/rounds", a.feedRef), ownerAddress, map[string]interface{}{
			"answer":     decimal.NewFromInt(a.price),
			"updated_at": now,
		}); err != nil {
			return fmt.Errorf("post round %s: %w", a.feedRef, err)
		}
		enabled := true
		if _, err := sc.do("POST", "/api/v1/config/assets", ownerAddress, map[string]interface{}{
			"symbol":   a.symbol,
			"feed_ref": a.feedRef,
			"decimals": 18,
			"enabled":  &enabled,
		}); err != nil {
			return fmt.Errorf("bind asset %s: %w", a.symbol, err)
		}
	}

	allowed := true
	if _, err := sc.do("POST", "/api/v1/config/quote-tokens", ownerAddress, map[string]interface{}{
		"symbol":   quoteSymbol,
		"decimals": quoteDecimals,
		"allowed":  &allowed,
	}); err != nil {
		return fmt.Errorf("allow quote token: %w", err)
	}

	if _, err := sc.do("POST", "/api/v1/config/fee", ownerAddress, map[string]int64{"fee_bps": feeBps}); err != nil {
		return fmt.Errorf("set fee: %w", err)
	}
	if _, err := sc.do("POST", "/api/v1/config/spread", ownerAddress, map[string]int64{"spread_bps": spreadBps}); err != nil {
		return fmt.Errorf("set spread: %w", err)
	}
	if _, err := sc.do("POST", "/api/v1/config/treasury", ownerAddress, map[string]string{"treasury": treasuryAddr}); err != nil {
		return fmt.Errorf("set treasury: %w", err)
	}
	if _, err := sc.do("POST", "/api/v1/config/escrow-account", ownerAddress, map[string]string{"escrow_account": escrowAddr}); err != nil {
		return fmt.Errorf("set escrow account: %w", err)
	}

	return nil
}

// simulationStats aggregates lifecycle outcomes across workers
type simulationStats struct {
	mu          sync.Mutex
	Created     int
	Taken       int
	Delivered   int
	Confirmed   int
	Disputed    int
	ForceFreed  int
	Refunded    int
	Failed      int
	QuoteVolume decimal.Decimal
	Assets      map[string]int
	StartTime   time.Time
}

// runTradeLifecycle drives a single order from creation to a terminal state
func runTradeLifecycle(workerID int, sc *simulationClient, stats *simulationStats) {
	seller := sellerAddr(rand.Intn(numSellers))
	buyer := buyerAddr(rand.Intn(numBuyers))
	a := assets[rand.Intn(len(assets))]

	// 1 to 5 whole units in 18-decimal base units
	sellAmount := decimal.New(int64(rand.Intn(5)+1), 18)

	order, err := sc.createOrder(seller, a.symbol, sellAmount, quoteSymbol)
	if err != nil {
		log.Error().Err(err).Int("worker_id", workerID).Str("asset", a.symbol).Msg("Failed to create order")
		stats.mu.Lock()
		stats.Failed++
		stats.mu.Unlock()
		return
	}

	stats.mu.Lock()
	stats.Created++
	stats.Assets[a.symbol]++
	stats.mu.Unlock()

	log.Info().
		Int("worker_id", workerID).
		Uint64("order_id", order.ID).
		Str("asset", a.symbol).
		Str("sell_amount", sellAmount.String()).
		Str("quote_amount", order.QuoteAmount.String()).
		Msg("Order created")

	trade, err := sc.takeOrder(buyer, order.ID)
	if err != nil {
		log.Error().Err(err).Uint64("order_id", order.ID).Msg("Failed to take order")
		stats.mu.Lock()
		stats.Failed++
		stats.mu.Unlock()
		return
	}

	stats.mu.Lock()
	stats.Taken++
	stats.QuoteVolume = stats.QuoteVolume.Add(trade.QuoteAmount)
	stats.mu.Unlock()

	if err := sc.submitDelivery(seller, trade.ID, uuid.New().String()); err != nil {
		log.Error().Err(err).Uint64("trade_id", trade.ID).Msg("Failed to submit delivery")
		stats.mu.Lock()
		stats.Failed++
		stats.mu.Unlock()
		return
	}

	stats.mu.Lock()
	stats.Delivered++
	stats.mu.Unlock()

	// Most buyers confirm; the rest dispute and an administrator resolves.
	if rand.Float64() < 0.85 {
		if err := sc.confirmReceipt(buyer, trade.ID); err != nil {
			log.Error().Err(err).Uint64("trade_id", trade.ID).Msg("Failed to confirm receipt")
			stats.mu.Lock()
			stats.Failed++
			stats.mu.Unlock()
			return
		}
		stats.mu.Lock()
		stats.Confirmed++
		stats.mu.Unlock()
		log.Info().Uint64("trade_id", trade.ID).Msg("Trade settled: released to seller")
		return
	}

	if err := sc.rejectReceipt(buyer, trade.ID); err != nil {
		log.Error().Err(err).Uint64("trade_id", trade.ID).Msg("Failed to reject receipt")
		stats.mu.Lock()
		stats.Failed++
		stats.mu.Unlock()
		return
	}

	stats.mu.Lock()
	stats.Disputed++
	stats.mu.Unlock()

	release := rand.Float64() < 0.5
	if err := sc.resolveDispute(ownerAddress, trade.ID, release); err != nil {
		log.Error().Err(err).Uint64("trade_id", trade.ID).Msg("Failed to resolve dispute")
		stats.mu.Lock()
		stats.Failed++
		stats.mu.Unlock()
		return
	}

	stats.mu.Lock()
	if release {
		stats.ForceFreed++
	} else {
		stats.Refunded++
	}
	stats.mu.Unlock()

	log.Info().
		Uint64("trade_id", trade.ID).
		Bool("released", release).
		Msg("Dispute resolved")
}

// printPerformanceStats outputs formatted performance statistics for all API endpoints
func (sc *simulationClient) printPerformanceStats() {
	fmt.Println("\n📊 API Performance Statistics")
	fmt.Println(strings.Repeat("-", 100))
	fmt.Printf("%-20s %10s %10s %10s %10s %10s %10s %10s %10s\n",
		"Endpoint", "Calls", "Errors", "Min", "Max", "Mean", "Median", "P95", "P99")
	fmt.Println(strings.Repeat("-", 100))

	for _, stats := range sc.stats {
		min, max, mean, median, p95, p99 := stats.calculate()
		fmt.Printf("%-20s %10d %10d %10s %10s %10s %10s %10s %10s\n",
			stats.name,
			stats.totalCalls,
			stats.failures,
			min.Round(time.Millisecond),
			max.Round(time.Millisecond),
			mean.Round(time.Millisecond),
			median.Round(time.Millisecond),
			p95.Round(time.Millisecond),
			p99.Round(time.Millisecond))
	}
	fmt.Println(strings.Repeat("-", 100))
}

// main runs the settlement simulation
// It starts a local API server, funds the buyers and drives concurrent trade
// lifecycles through the full escrow state machine
func main() {
	// Start the server in a goroutine
	go func() {
		if err := startServer(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for server to start
	time.Sleep(2 * time.Second)

	// Every participant that needs a token
	addresses := []string{ownerAddress, treasuryAddr, escrowAddr}
	for i := 0; i < numSellers; i++ {
		addresses = append(addresses, sellerAddr(i))
	}
	for i := 0; i < numBuyers; i++ {
		addresses = append(addresses, buyerAddr(i))
	}

	simClient, err := newSimulationClient(addresses)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize simulation client")
	}

	if err := configurePlatform(simClient); err != nil {
		log.Fatal().Err(err).Msg("Failed to configure platform")
	}
	log.Info().Msg("Platform configured")

	// Fund buyers with enough quote tokens for any run
	buyerFunding := decimal.New(100_000_000, int32(quoteDecimals)) // 100M USDQ each
	for i := 0; i < numBuyers; i++ {
		if err := simClient.deposit(buyerAddr(i), quoteSymbol, buyerFunding); err != nil {
			log.Fatal().Err(err).Str("buyer", buyerAddr(i)).Msg("Failed to fund buyer")
		}
	}
	log.Info().Int("buyers", numBuyers).Str("funding", buyerFunding.String()).Msg("Buyers funded")

	targetTrades := rand.Intn(maxTrades-minTrades) + minTrades
	log.Info().Int("target_trades", targetTrades).Msg("Starting simulation")

	stats := &simulationStats{
		QuoteVolume: decimal.Zero,
		Assets:      make(map[string]int),
		StartTime:   time.Now(),
	}

	var wg sync.WaitGroup
	tradesPerWorker := targetTrades / numWorkers
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for j := 0; j < tradesPerWorker; j++ {
				runTradeLifecycle(workerID, simClient, stats)
				// Random sleep between lifecycles
				time.Sleep(time.Duration(rand.Intn(300)) * time.Millisecond)
			}
		}(i)
	}
	wg.Wait()

	// Custody conservation check: the escrow account should hold nothing once
	// every trade reached a terminal state, and the treasury holds the fees.
	escrowBalance, err := simClient.getBalance(escrowAddr, quoteSymbol)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read escrow balance")
	}
	treasuryBalance, err := simClient.getBalance(treasuryAddr, quoteSymbol)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read treasury balance")
	}

	// Print summary
	duration := time.Since(stats.StartTime)
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("🚀 SETTLEMENT SIMULATION SUMMARY")
	fmt.Println(strings.Repeat("=", 80))

	fmt.Printf(`
📊 Trade Statistics
------------------
Orders Created:   %d
Orders Taken:     %d
Delivered:        %d
Confirmed:        %d
Disputed:         %d
Force Released:   %d
Refunded:         %d
Failed:           %d
Quote Volume:     %s %s
Escrow Balance:   %s %s
Treasury Fees:    %s %s
Duration:         %v

📈 Asset Distribution
--------------------
`, stats.Created, stats.Taken, stats.Delivered, stats.Confirmed,
		stats.Disputed, stats.ForceFreed, stats.Refunded, stats.Failed,
		stats.QuoteVolume, quoteSymbol,
		escrowBalance, quoteSymbol,
		treasuryBalance, quoteSymbol,
		duration.Round(time.Millisecond))

	// Print asset distribution with simple ASCII bar chart
	maxAssetCount := 0
	for _, count := range stats.Assets {
		if count > maxAssetCount {
			maxAssetCount = count
		}
	}

	for symbol, count := range stats.Assets {
		barLength := int(float64(count) / float64(maxAssetCount) * 20)
		bar := strings.Repeat("█", barLength)
		fmt.Printf("%-6s: %s (%d)\n", symbol, bar, count)
	}

	fmt.Println("\n" + strings.Repeat("=", 80))

	settled := stats.Confirmed + stats.ForceFreed + stats.Refunded
	successRate := 0.0
	if stats.Created > 0 {
		successRate = float64(settled) / float64(stats.Created) * 100
	}
	log.Info().
		Float64("success_rate", successRate).
		Int("orders_created", stats.Created).
		Int("trades_settled", settled).
		Str("quote_volume", stats.QuoteVolume.String()).
		Dur("duration", duration).
		Msg("Simulation completed")

	simClient.printPerformanceStats()
}

// startServer initializes and starts the settlement API server
// Sets up all required services, handlers and routes on a fresh database
func startServer() error {
	// Fresh database every run
	_ = os.Remove("simulation.db")

	db, err := database.NewDatabase("simulation.db")
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	// Initialize services
	authService := auth.NewService(jwtSecret)

	accessService := access.NewService(db)
	if err := accessService.Bootstrap(ownerAddress); err != nil {
		return fmt.Errorf("failed to bootstrap owner: %w", err)
	}

	oracleService := oracle.NewService(db, accessService)
	settingsService := settings.NewService(db, accessService, oracleService)
	ledgerService := ledger.NewService(db)
	recorder := events.NewRecorder(db)
	escrowService := escrow.NewService(db, settingsService, accessService, ledgerService, recorder, nil)
	quoter := orders.NewSymbolQuoter(settingsService)
	ordersService := orders.NewService(
		db,
		accessService,
		settingsService,
		ledgerService,
		escrowService,
		escrowService.OpenerCapability(),
		recorder,
		quoter,
	)

	// Register credentials for every simulated participant
	registerParticipant := func(address string) {
		authService.RegisterAPICredentials(apiKeyFor(address), apiSecretFor(address), address)
	}
	registerParticipant(ownerAddress)
	registerParticipant(treasuryAddr)
	registerParticipant(escrowAddr)
	for i := 0; i < numSellers; i++ {
		registerParticipant(sellerAddr(i))
	}
	for i := 0; i < numBuyers; i++ {
		registerParticipant(buyerAddr(i))
	}

	// Initialize router
	gin.SetMode(gin.ReleaseMode)
	router := gin.Default()

	authHandlers := auth.NewGinHandlers(authService)
	accessHandlers := access.NewGinHandlers(accessService)
	oracleHandlers := oracle.NewGinHandlers(oracleService)
	settingsHandlers := settings.NewGinHandlers(settingsService)
	ledgerHandlers := ledger.NewGinHandlers(ledgerService)
	ordersHandlers := orders.NewGinHandlers(ordersService)
	escrowHandlers := escrow.NewGinHandlers(escrowService)

	// Setup routes
	setupRoutes(router, authHandlers, accessHandlers, oracleHandlers,
		settingsHandlers, ledgerHandlers, ordersHandlers, escrowHandlers)

	// Start the server
	return router.Run(":8091")
}

// setupRoutes configures all API endpoints and their handlers
// Groups routes by functionality and applies JWT authentication
func setupRoutes(
	router *gin.Engine,
	authHandlers *auth.GinHandlers,
	accessHandlers *access.GinHandlers,
	oracleHandlers *oracle.GinHandlers,
	settingsHandlers *settings.GinHandlers,
	ledgerHandlers *ledger.GinHandlers,
	ordersHandlers *orders.GinHandlers,
	escrowHandlers *escrow.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		protected := v1.Group("")
		protected.Use(middleware.JWTAuth(jwtSecret))
		{
			ordersGroup := protected.Group("/orders")
			{
				ordersGroup.POST("", ordersHandlers.CreateOrderHandler())
				ordersGroup.GET("/:order_id", ordersHandlers.GetOrderHandler())
				ordersGroup.POST("/:order_id/cancel", ordersHandlers.CancelOrderHandler())
				ordersGroup.POST("/:order_id/take", ordersHandlers.TakeOrderHandler())
			}

			tradesGroup := protected.Group("/trades")
			{
				tradesGroup.GET("/:trade_id", escrowHandlers.GetTradeHandler())
				tradesGroup.POST("/:trade_id/delivery", escrowHandlers.SubmitDeliveryHandler())
				tradesGroup.POST("/:trade_id/confirm", escrowHandlers.ConfirmReceiptHandler())
				tradesGroup.POST("/:trade_id/reject", escrowHandlers.RejectReceiptHandler())
			}

			ledgerGroup := protected.Group("/ledger")
			{
				ledgerGroup.POST("/deposits", ledgerHandlers.DepositHandler())
				ledgerGroup.GET("/balances/:currency", ledgerHandlers.GetBalanceHandler())
			}

			adminGroup := protected.Group("/admin")
			{
				adminGroup.POST("/trades/:trade_id/release", escrowHandlers.ForceReleaseHandler())
				adminGroup.POST("/trades/:trade_id/refund", escrowHandlers.ForceRefundHandler())
				adminGroup.POST("/accounts/:address/flags", accessHandlers.SetFlagsHandler())
				adminGroup.POST("/admins/:address", accessHandlers.SetAdminHandler())
				adminGroup.POST("/ownership", accessHandlers.TransferOwnershipHandler())
			}

			configGroup := protected.Group("/config")
			{
				configGroup.POST("/fee", settingsHandlers.SetFeeHandler())
				configGroup.POST("/spread", settingsHandlers.SetSpreadHandler())
				configGroup.POST("/treasury", settingsHandlers.SetTreasuryHandler())
				configGroup.POST("/escrow-account", settingsHandlers.SetEscrowAccountHandler())
				configGroup.POST("/quote-tokens", settingsHandlers.SetQuoteTokenHandler())
				configGroup.POST("/assets", settingsHandlers.SetAssetHandler())
			}

			oracleGroup := protected.Group("/oracle")
			{
				oracleGroup.POST("/feeds", oracleHandlers.CreateFeedHandler())
				oracleGroup.POST("/feeds/:ref/rounds", oracleHandlers.PostRoundHandler())
			}
		}
	}
}
