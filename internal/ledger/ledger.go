package ledger

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ksred/otc-settlement/pkg/response"
)

var (
	// ErrTransferFailed is the single failure the rest of the system sees from
	// the custody medium, matching the boolean-success transfer contract.
	ErrTransferFailed    = errors.New("transfer failed")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("amount must be positive")
)

func init() {
	response.RegisterStatus(ErrTransferFailed, http.StatusUnprocessableEntity)
	response.RegisterStatus(ErrInvalidAmount, http.StatusBadRequest)
}

// Service is the fungible balance ledger that escrow custody moves through.
type Service struct {
	gormDB *gorm.DB
	db     *Database
}

func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		gormDB: gormDB,
		db:     NewDatabase(gormDB),
	}
}

// Deposit credits an account. This is the funding entry point for the API and
// the simulation; real deployments would feed it from an external rail.
func (s *Service) Deposit(account, currency string, amount decimal.Decimal) (*Balance, error) {
	if amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	var balance *Balance
	err := s.gormDB.Transaction(func(tx *gorm.DB) error {
		var err error
		balance, err = s.db.getBalance(tx, account, currency)
		if err != nil {
			return err
		}
		balance.Amount = balance.Amount.Add(amount)
		return s.db.saveBalance(tx, balance)
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("account", account).
		Str("currency", currency).
		Str("amount", amount.String()).
		Msg("deposit credited")

	return balance, nil
}

// Transfer moves funds between two accounts inside the caller's transaction.
// Any shortfall or write failure surfaces as ErrTransferFailed so callers can
// treat the custody medium as a fallible transfer primitive.
func (s *Service) Transfer(tx *gorm.DB, from, to, currency string, amount decimal.Decimal) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("%w: %v", ErrTransferFailed, ErrInvalidAmount)
	}
	if amount.Sign() == 0 {
		return nil
	}

	source, err := s.db.getBalance(tx, from, currency)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if source.Amount.LessThan(amount) {
		return fmt.Errorf("%w: %v", ErrTransferFailed, ErrInsufficientFunds)
	}

	destination, err := s.db.getBalance(tx, to, currency)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	source.Amount = source.Amount.Sub(amount)
	destination.Amount = destination.Amount.Add(amount)

	if err := s.db.saveBalance(tx, source); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if err := s.db.saveBalance(tx, destination); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	log.Debug().
		Str("from", from).
		Str("to", to).
		Str("currency", currency).
		Str("amount", amount.String()).
		Msg("ledger transfer")

	return nil
}

// BalanceOf returns an account's balance in a currency, zero when unknown.
func (s *Service) BalanceOf(account, currency string) (decimal.Decimal, error) {
	balance, err := s.db.getBalance(s.gormDB, account, currency)
	if err != nil {
		return decimal.Zero, err
	}
	return balance.Amount, nil
}

// GinHandlers contains HTTP handlers for ledger endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// DepositHandler handles POST requests crediting the caller's account.
func (h *GinHandlers) DepositHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := c.GetString("clientID")

		var request struct {
			Currency string          `json:"currency" binding:"required"`
			Amount   decimal.Decimal `json:"amount"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		balance, err := h.service.Deposit(caller, request.Currency, request.Amount)
		response.HandleDomain(c, balance, err)
	}
}

// GetBalanceHandler handles GET requests for the caller's balance.
// URL parameter: currency
func (h *GinHandlers) GetBalanceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := c.GetString("clientID")
		currency := c.Param("currency")

		amount, err := h.service.BalanceOf(caller, currency)
		response.HandleDomain(c, gin.H{
			"account":  caller,
			"currency": currency,
			"amount":   amount,
		}, err)
	}
}
