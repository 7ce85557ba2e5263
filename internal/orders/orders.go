package orders

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ksred/otc-settlement/internal/access"
	"github.com/ksred/otc-settlement/internal/escrow"
	"github.com/ksred/otc-settlement/internal/events"
	"github.com/ksred/otc-settlement/internal/ledger"
	"github.com/ksred/otc-settlement/internal/metrics"
	"github.com/ksred/otc-settlement/internal/settings"
	"github.com/ksred/otc-settlement/pkg/response"
)

var (
	ErrInvalidAmount     = errors.New("sell amount must be positive")
	ErrInvalidToken      = errors.New("quote token is not allowed")
	ErrOrderNotOpen      = errors.New("order is not open")
	ErrNotSeller         = errors.New("caller is not the order seller")
	ErrSelfTrade         = errors.New("seller may not take their own order")
	ErrOrderAlreadyTaken = errors.New("order is already linked to a trade")
	ErrOrderNotFound     = errors.New("order not found")
)

func init() {
	response.RegisterStatus(ErrInvalidAmount, http.StatusBadRequest)
	response.RegisterStatus(ErrInvalidToken, http.StatusBadRequest)
	response.RegisterStatus(ErrOrderNotOpen, http.StatusConflict)
	response.RegisterStatus(ErrNotSeller, http.StatusForbidden)
	response.RegisterStatus(ErrSelfTrade, http.StatusConflict)
	response.RegisterStatus(ErrOrderAlreadyTaken, http.StatusConflict)
	response.RegisterStatus(ErrOrderNotFound, http.StatusNotFound)
}

// Service owns the order book: create, cancel and take. Taking an order is the
// only way a trade is opened; the service holds the escrow capability token for
// that.
type Service struct {
	gormDB   *gorm.DB
	db       *Database
	access   *access.Service
	settings *settings.Service
	ledger   *ledger.Service
	escrow   *escrow.Service
	openCap  *escrow.OpenCapability
	recorder *events.Recorder
	quoter   Quoter
}

func NewService(
	gormDB *gorm.DB,
	accessService *access.Service,
	settingsService *settings.Service,
	ledgerService *ledger.Service,
	escrowService *escrow.Service,
	openCap *escrow.OpenCapability,
	recorder *events.Recorder,
	quoter Quoter,
) *Service {
	return &Service{
		gormDB:   gormDB,
		db:       NewDatabase(gormDB),
		access:   accessService,
		settings: settingsService,
		ledger:   ledgerService,
		escrow:   escrowService,
		openCap:  openCap,
		recorder: recorder,
		quoter:   quoter,
	}
}

// CreateOrder prices and stores a new sell intent. The quote amount returned
// by the pricing strategy is locked into the order.
func (s *Service) CreateOrder(seller, sellAsset string, sellAmount decimal.Decimal, quoteToken string) (*Order, error) {
	logger := log.With().
		Str("seller", seller).
		Str("sell_asset", sellAsset).
		Str("quote_token", quoteToken).
		Str("service", "orders").
		Logger()

	if err := s.access.AssertActiveUser(seller); err != nil {
		return nil, err
	}
	if sellAmount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	token, err := s.settings.QuoteToken(quoteToken)
	if err != nil {
		return nil, err
	}
	if token == nil || !token.Allowed {
		return nil, ErrInvalidToken
	}

	quoteAmount, err := s.quoter.Quote(sellAsset, sellAmount, quoteToken)
	if err != nil {
		logger.Error().Err(err).Msg("pricing failed")
		return nil, err
	}

	order := &Order{
		Seller:      seller,
		SellAsset:   sellAsset,
		SellAmount:  sellAmount,
		QuoteToken:  quoteToken,
		QuoteAmount: quoteAmount,
		Status:      StatusOpen,
	}

	err = s.gormDB.Transaction(func(tx *gorm.DB) error {
		if err := s.db.createOrder(tx, order); err != nil {
			return err
		}
		return s.recorder.RecordTx(tx, events.TypeOrderCreated, "order", order.ID, order)
	})
	if err != nil {
		return nil, err
	}

	metrics.OrdersCreated.Inc()

	logger.Info().
		Uint64("order_id", order.ID).
		Str("sell_amount", sellAmount.String()).
		Str("quote_amount", quoteAmount.String()).
		Msg("order created")

	return order, nil
}

// GetOrder retrieves an order by id.
func (s *Service) GetOrder(orderID uint64) (*Order, error) {
	return s.db.GetOrder(orderID)
}

// GetOrdersBySeller lists a seller's orders.
func (s *Service) GetOrdersBySeller(seller string) ([]Order, error) {
	return s.db.GetOrdersBySeller(seller)
}

// CancelOrder withdraws an open order. Seller only.
func (s *Service) CancelOrder(caller string, orderID uint64) (*Order, error) {
	order, err := s.db.GetOrder(orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if order.Status != StatusOpen {
		return nil, ErrOrderNotOpen
	}
	if order.Seller != caller {
		return nil, ErrNotSeller
	}

	order.Status = StatusCancelled

	err = s.gormDB.Transaction(func(tx *gorm.DB) error {
		if err := s.db.saveOrder(tx, order); err != nil {
			return err
		}
		return s.recorder.RecordTx(tx, events.TypeOrderCancelled, "order", order.ID, order)
	})
	if err != nil {
		return nil, err
	}

	metrics.OrdersCancelled.Inc()

	log.Info().
		Uint64("order_id", order.ID).
		Str("seller", caller).
		Msg("order cancelled")

	return order, nil
}

// TakeOrder accepts an open order: the taker's quote funds (principal plus
// fee) move into escrow custody and a trade opens, all in one transaction. The
// transfer is written before the trade row so a trade never exists without
// backing funds.
func (s *Service) TakeOrder(caller string, orderID uint64) (*escrow.Trade, error) {
	logger := log.With().
		Uint64("order_id", orderID).
		Str("buyer", caller).
		Str("service", "orders").
		Logger()

	if err := s.access.AssertActiveUser(caller); err != nil {
		return nil, err
	}

	order, err := s.db.GetOrder(orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if order.Status != StatusOpen {
		return nil, ErrOrderNotOpen
	}
	if order.Seller == caller {
		return nil, ErrSelfTrade
	}
	if order.TradeID != 0 {
		return nil, ErrOrderAlreadyTaken
	}

	escrowAccount, err := s.settings.EscrowAccount()
	if err != nil {
		return nil, err
	}

	platform, err := s.settings.Platform()
	if err != nil {
		return nil, err
	}

	fee := divTrunc(order.QuoteAmount.Mul(decimal.NewFromInt(platform.FeeBps)), bpsDenominator)
	total := order.QuoteAmount.Add(fee)

	var trade *escrow.Trade
	err = s.gormDB.Transaction(func(tx *gorm.DB) error {
		if err := s.ledger.Transfer(tx, caller, escrowAccount, order.QuoteToken, total); err != nil {
			return err
		}

		var err error
		trade, err = s.escrow.OpenTradeFromOrder(s.openCap, tx, escrow.OpenTradeParams{
			OrderID:     order.ID,
			Buyer:       caller,
			Seller:      order.Seller,
			QuoteToken:  order.QuoteToken,
			QuoteAmount: order.QuoteAmount,
			FeeAmount:   fee,
			SellAsset:   order.SellAsset,
			SellAmount:  order.SellAmount,
		})
		if err != nil {
			return err
		}

		order.Status = StatusTaken
		order.TradeID = trade.ID
		if err := s.db.saveOrder(tx, order); err != nil {
			return err
		}
		return s.recorder.RecordTx(tx, events.TypeOrderTaken, "order", order.ID, order)
	})
	if err != nil {
		logger.Error().Err(err).Msg("take order failed")
		return nil, err
	}

	logger.Info().
		Uint64("trade_id", trade.ID).
		Str("quote_amount", order.QuoteAmount.String()).
		Str("fee_amount", fee.String()).
		Str("deposited", total.String()).
		Msg("order taken, trade opened")

	return trade, nil
}

// GinHandlers contains HTTP handlers for order endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

func orderIDParam(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("order_id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "invalid order id")
		return 0, false
	}
	return id, true
}

// CreateOrderHandler handles POST requests to create sell orders.
func (h *GinHandlers) CreateOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := c.GetString("clientID")

		var request struct {
			SellAsset  string          `json:"sell_asset" binding:"required"`
			SellAmount decimal.Decimal `json:"sell_amount"`
			QuoteToken string          `json:"quote_token" binding:"required"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		order, err := h.service.CreateOrder(caller, request.SellAsset, request.SellAmount, request.QuoteToken)
		response.HandleDomain(c, order, err)
	}
}

// GetOrderHandler handles GET requests for an order.
// URL parameter: order_id
func (h *GinHandlers) GetOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID, ok := orderIDParam(c)
		if !ok {
			return
		}

		order, err := h.service.GetOrder(orderID)
		if err != nil || order == nil {
			response.NotFound(c, "Order not found")
			return
		}
		response.Success(c, order)
	}
}

// CancelOrderHandler handles POST requests cancelling an open order.
// Seller only. URL parameter: order_id
func (h *GinHandlers) CancelOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := c.GetString("clientID")
		orderID, ok := orderIDParam(c)
		if !ok {
			return
		}

		order, err := h.service.CancelOrder(caller, orderID)
		response.HandleDomain(c, order, err)
	}
}

// TakeOrderHandler handles POST requests accepting an open order.
// URL parameter: order_id
func (h *GinHandlers) TakeOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := c.GetString("clientID")
		orderID, ok := orderIDParam(c)
		if !ok {
			return
		}

		trade, err := h.service.TakeOrder(caller, orderID)
		response.HandleDomain(c, trade, err)
	}
}
