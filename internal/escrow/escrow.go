package escrow

import (
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/ksred/otc-settlement/internal/access"
	"github.com/ksred/otc-settlement/internal/events"
	"github.com/ksred/otc-settlement/internal/ledger"
	"github.com/ksred/otc-settlement/internal/metrics"
	"github.com/ksred/otc-settlement/internal/settings"
	"github.com/ksred/otc-settlement/pkg/response"
)

var (
	ErrUnauthorizedOpener = errors.New("caller may not open trades")
	ErrInvalidToken       = errors.New("quote token is required")
	ErrInvalidAmount      = errors.New("quote amount must be positive")
	ErrInvalidState       = errors.New("trade is not in the required state")
	ErrNotSeller          = errors.New("caller is not the trade seller")
	ErrNotBuyer           = errors.New("caller is not the trade buyer")
	ErrTradeNotFound      = errors.New("trade not found")
)

func init() {
	response.RegisterStatus(ErrUnauthorizedOpener, http.StatusForbidden)
	response.RegisterStatus(ErrInvalidToken, http.StatusBadRequest)
	response.RegisterStatus(ErrInvalidAmount, http.StatusBadRequest)
	response.RegisterStatus(ErrInvalidState, http.StatusConflict)
	response.RegisterStatus(ErrNotSeller, http.StatusForbidden)
	response.RegisterStatus(ErrNotBuyer, http.StatusForbidden)
	response.RegisterStatus(ErrTradeNotFound, http.StatusNotFound)
}

// DeliveryVerifier judges a seller's delivery attestation before the trade
// moves to DELIVERED_PENDING_CONFIRM. The default implementation accepts
// everything; real logistics verification can be injected without touching the
// state machine.
type DeliveryVerifier interface {
	VerifyDelivery(trade *Trade, reference string) error
}

// AcceptAllVerifier accepts every attestation.
type AcceptAllVerifier struct{}

func (AcceptAllVerifier) VerifyDelivery(*Trade, string) error { return nil }

// OpenCapability is the token that authorizes opening trades. Exactly one is
// minted per Service, in the constructor, and handed to the Orders component;
// OpenTradeFromOrder rejects anything else by identity.
type OpenCapability struct {
	svc *Service
}

// Service owns the trade table and the custody settlement state machine.
type Service struct {
	gormDB   *gorm.DB
	db       *Database
	settings *settings.Service
	access   *access.Service
	ledger   *ledger.Service
	recorder *events.Recorder
	verifier DeliveryVerifier
	openCap  *OpenCapability

	// mu serializes the fund-moving entry points so a transfer can never
	// re-enter the custody pool before its state transition is committed.
	mu sync.Mutex
}

func NewService(
	gormDB *gorm.DB,
	settingsService *settings.Service,
	accessService *access.Service,
	ledgerService *ledger.Service,
	recorder *events.Recorder,
	verifier DeliveryVerifier,
) *Service {
	if verifier == nil {
		verifier = AcceptAllVerifier{}
	}
	s := &Service{
		gormDB:   gormDB,
		db:       NewDatabase(gormDB),
		settings: settingsService,
		access:   accessService,
		ledger:   ledgerService,
		recorder: recorder,
		verifier: verifier,
	}
	s.openCap = &OpenCapability{svc: s}
	return s
}

// OpenerCapability returns the single token that authorizes OpenTradeFromOrder.
func (s *Service) OpenerCapability() *OpenCapability {
	return s.openCap
}

// OpenTradeFromOrder creates a trade for a taken order, on the caller's
// transaction so the row only exists if the custody deposit committed with it.
// Only the holder of this service's capability token may call it.
func (s *Service) OpenTradeFromOrder(cap *OpenCapability, tx *gorm.DB, p OpenTradeParams) (*Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cap == nil || cap != s.openCap {
		return nil, ErrUnauthorizedOpener
	}
	if p.QuoteToken == "" {
		return nil, ErrInvalidToken
	}
	if p.QuoteAmount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	trade := &Trade{
		OrderID:     p.OrderID,
		Buyer:       p.Buyer,
		Seller:      p.Seller,
		QuoteToken:  p.QuoteToken,
		QuoteAmount: p.QuoteAmount,
		FeeAmount:   p.FeeAmount,
		SellAsset:   p.SellAsset,
		SellAmount:  p.SellAmount,
		Status:      StatusAwaitingDelivery,
	}
	if err := s.db.createTrade(tx, trade); err != nil {
		return nil, err
	}

	if err := s.recorder.RecordTx(tx, events.TypeTradeOpened, "trade", trade.ID, trade); err != nil {
		return nil, err
	}

	metrics.TradesOpened.Inc()

	log.Info().
		Uint64("trade_id", trade.ID).
		Uint64("order_id", trade.OrderID).
		Str("buyer", trade.Buyer).
		Str("seller", trade.Seller).
		Str("quote_amount", trade.QuoteAmount.String()).
		Str("fee_amount", trade.FeeAmount.String()).
		Msg("trade opened")

	return trade, nil
}

// SubmitDelivery records the seller's delivery attestation and moves the trade
// to DELIVERED_PENDING_CONFIRM. No funds move.
func (s *Service) SubmitDelivery(caller string, tradeID uint64, reference string) (*Trade, error) {
	trade, err := s.db.GetTrade(tradeID)
	if err != nil {
		return nil, err
	}
	if trade == nil {
		return nil, ErrTradeNotFound
	}
	if trade.Status != StatusAwaitingDelivery {
		return nil, ErrInvalidState
	}
	if trade.Seller != caller {
		return nil, ErrNotSeller
	}

	if err := s.verifier.VerifyDelivery(trade, reference); err != nil {
		return nil, err
	}

	trade.DeliveryRef = reference
	trade.DeliveredAt = time.Now().Unix()
	trade.Status = StatusDeliveredPendingConfirm

	err = s.gormDB.Transaction(func(tx *gorm.DB) error {
		if err := s.db.saveTrade(tx, trade); err != nil {
			return err
		}
		return s.recorder.RecordTx(tx, events.TypeDeliverySubmitted, "trade", trade.ID, trade)
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Uint64("trade_id", trade.ID).
		Str("seller", caller).
		Str("delivery_ref", reference).
		Msg("delivery attested")

	return trade, nil
}

// ConfirmReceipt settles the trade in the seller's favor: principal to the
// seller, fee to the treasury read at call time. Both payouts and the RELEASED
// transition commit together or not at all.
func (s *Service) ConfirmReceipt(caller string, tradeID uint64) (*Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	trade, err := s.db.GetTrade(tradeID)
	if err != nil {
		return nil, err
	}
	if trade == nil {
		return nil, ErrTradeNotFound
	}
	if trade.Status != StatusDeliveredPendingConfirm {
		return nil, ErrInvalidState
	}
	if trade.Buyer != caller {
		return nil, ErrNotBuyer
	}

	if err := s.release(trade, events.TypeReceiptConfirmed); err != nil {
		return nil, err
	}

	log.Info().
		Uint64("trade_id", trade.ID).
		Str("buyer", caller).
		Msg("receipt confirmed, trade released")

	return trade, nil
}

// RejectReceipt moves the trade into dispute. No funds move; resolution needs
// an administrator.
func (s *Service) RejectReceipt(caller string, tradeID uint64) (*Trade, error) {
	trade, err := s.db.GetTrade(tradeID)
	if err != nil {
		return nil, err
	}
	if trade == nil {
		return nil, ErrTradeNotFound
	}
	if trade.Status != StatusDeliveredPendingConfirm {
		return nil, ErrInvalidState
	}
	if trade.Buyer != caller {
		return nil, ErrNotBuyer
	}

	trade.Status = StatusDisputePending

	err = s.gormDB.Transaction(func(tx *gorm.DB) error {
		if err := s.db.saveTrade(tx, trade); err != nil {
			return err
		}
		return s.recorder.RecordTx(tx, events.TypeReceiptRejected, "trade", trade.ID, trade)
	})
	if err != nil {
		return nil, err
	}

	metrics.TradesDisputed.Inc()

	log.Warn().
		Uint64("trade_id", trade.ID).
		Str("buyer", caller).
		Msg("receipt rejected, trade disputed")

	return trade, nil
}

// AdminForceRelease resolves a dispute in the seller's favor with the same
// payout as ConfirmReceipt.
func (s *Service) AdminForceRelease(caller string, tradeID uint64) (*Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	trade, err := s.adminDisputedTrade(caller, tradeID)
	if err != nil {
		return nil, err
	}

	if err := s.release(trade, events.TypeAdminResolved); err != nil {
		return nil, err
	}

	log.Info().
		Uint64("trade_id", trade.ID).
		Str("admin", caller).
		Msg("dispute resolved: released to seller")

	return trade, nil
}

// AdminForceRefund resolves a dispute in the buyer's favor. The full custody
// amount goes back to the buyer; the platform collects no fee on a refund.
func (s *Service) AdminForceRefund(caller string, tradeID uint64) (*Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	trade, err := s.adminDisputedTrade(caller, tradeID)
	if err != nil {
		return nil, err
	}

	escrowAccount, err := s.settings.EscrowAccount()
	if err != nil {
		return nil, err
	}

	total := trade.QuoteAmount.Add(trade.FeeAmount)
	trade.Status = StatusRefunded

	err = s.gormDB.Transaction(func(tx *gorm.DB) error {
		if err := s.ledger.Transfer(tx, escrowAccount, trade.Buyer, trade.QuoteToken, total); err != nil {
			return err
		}
		if err := s.db.saveTrade(tx, trade); err != nil {
			return err
		}
		return s.recorder.RecordTx(tx, events.TypeAdminResolved, "trade", trade.ID, trade)
	})
	if err != nil {
		trade.Status = StatusDisputePending
		return nil, err
	}

	metrics.TradesRefunded.Inc()

	log.Info().
		Uint64("trade_id", trade.ID).
		Str("admin", caller).
		Str("refunded", total.String()).
		Msg("dispute resolved: refunded to buyer")

	return trade, nil
}

func (s *Service) adminDisputedTrade(caller string, tradeID uint64) (*Trade, error) {
	if err := s.access.RequireAdmin(caller); err != nil {
		return nil, err
	}

	trade, err := s.db.GetTrade(tradeID)
	if err != nil {
		return nil, err
	}
	if trade == nil {
		return nil, ErrTradeNotFound
	}
	if trade.Status != StatusDisputePending {
		return nil, ErrInvalidState
	}
	return trade, nil
}

// release pays the seller and treasury and commits the RELEASED transition.
// Any transfer failure rolls everything back and leaves the prior status.
func (s *Service) release(trade *Trade, eventType string) error {
	escrowAccount, err := s.settings.EscrowAccount()
	if err != nil {
		return err
	}

	// Treasury is read at payout time, never cached at trade open.
	treasury, err := s.settings.Treasury()
	if err != nil {
		return err
	}
	if trade.FeeAmount.Sign() > 0 && treasury == "" {
		return settings.ErrTreasuryRequired
	}

	previous := trade.Status
	trade.Status = StatusReleased

	err = s.gormDB.Transaction(func(tx *gorm.DB) error {
		if err := s.ledger.Transfer(tx, escrowAccount, trade.Seller, trade.QuoteToken, trade.QuoteAmount); err != nil {
			return err
		}
		if trade.FeeAmount.Sign() > 0 {
			if err := s.ledger.Transfer(tx, escrowAccount, treasury, trade.QuoteToken, trade.FeeAmount); err != nil {
				return err
			}
		}
		if err := s.db.saveTrade(tx, trade); err != nil {
			return err
		}
		return s.recorder.RecordTx(tx, eventType, "trade", trade.ID, trade)
	})
	if err != nil {
		trade.Status = previous
		return err
	}

	metrics.TradesReleased.Inc()
	return nil
}

// GetTrade returns the trade record. Unknown ids yield a NONE-status zero
// record, which callers must treat as not found.
func (s *Service) GetTrade(tradeID uint64) (*Trade, error) {
	trade, err := s.db.GetTrade(tradeID)
	if err != nil {
		return nil, err
	}
	if trade == nil {
		return &Trade{Status: StatusNone}, nil
	}
	return trade, nil
}

// GinHandlers contains HTTP handlers for trade settlement endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

func tradeIDParam(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("trade_id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "invalid trade id")
		return 0, false
	}
	return id, true
}

// GetTradeHandler handles GET requests for a trade record.
// URL parameter: trade_id
func (h *GinHandlers) GetTradeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tradeID, ok := tradeIDParam(c)
		if !ok {
			return
		}

		trade, err := h.service.GetTrade(tradeID)
		if err == nil && trade.Status == StatusNone {
			response.NotFound(c, "Trade not found")
			return
		}
		response.HandleDomain(c, trade, err)
	}
}

// SubmitDeliveryHandler handles POST requests attesting delivery.
// Seller only. URL parameter: trade_id
func (h *GinHandlers) SubmitDeliveryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := c.GetString("clientID")
		tradeID, ok := tradeIDParam(c)
		if !ok {
			return
		}

		var request struct {
			Reference string `json:"reference" binding:"required"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		trade, err := h.service.SubmitDelivery(caller, tradeID, request.Reference)
		response.HandleDomain(c, trade, err)
	}
}

// ConfirmReceiptHandler handles POST requests confirming delivery receipt.
// Buyer only. URL parameter: trade_id
func (h *GinHandlers) ConfirmReceiptHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := c.GetString("clientID")
		tradeID, ok := tradeIDParam(c)
		if !ok {
			return
		}

		trade, err := h.service.ConfirmReceipt(caller, tradeID)
		response.HandleDomain(c, trade, err)
	}
}

// RejectReceiptHandler handles POST requests disputing a delivery.
// Buyer only. URL parameter: trade_id
func (h *GinHandlers) RejectReceiptHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := c.GetString("clientID")
		tradeID, ok := tradeIDParam(c)
		if !ok {
			return
		}

		trade, err := h.service.RejectReceipt(caller, tradeID)
		response.HandleDomain(c, trade, err)
	}
}

// ForceReleaseHandler handles POST requests resolving a dispute for the seller.
// Admin only. URL parameter: trade_id
func (h *GinHandlers) ForceReleaseHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := c.GetString("clientID")
		tradeID, ok := tradeIDParam(c)
		if !ok {
			return
		}

		trade, err := h.service.AdminForceRelease(caller, tradeID)
		response.HandleDomain(c, trade, err)
	}
}

// ForceRefundHandler handles POST requests resolving a dispute for the buyer.
// Admin only. URL parameter: trade_id
func (h *GinHandlers) ForceRefundHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := c.GetString("clientID")
		tradeID, ok := tradeIDParam(c)
		if !ok {
			return
		}

		trade, err := h.service.AdminForceRefund(caller, tradeID)
		response.HandleDomain(c, trade, err)
	}
}
