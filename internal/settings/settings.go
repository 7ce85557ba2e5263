package settings

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ksred/otc-settlement/internal/access"
	"github.com/ksred/otc-settlement/internal/oracle"
	"github.com/ksred/otc-settlement/pkg/response"
)

const (
	// MaxFeeBps caps the platform fee at 5%.
	MaxFeeBps = 500
	// MaxSpreadBps caps the pricing spread at 20%.
	MaxSpreadBps = 2000
)

var (
	ErrFeeTooHigh          = errors.New("fee exceeds maximum basis points")
	ErrSpreadTooHigh       = errors.New("spread exceeds maximum basis points")
	ErrTreasuryRequired    = errors.New("treasury address is required")
	ErrEscrowRequired      = errors.New("escrow account is required")
	ErrFeedRequired        = errors.New("price feed reference is required")
	ErrUnsupportedAsset    = errors.New("asset is not enabled for trading")
	ErrInvalidPrice        = errors.New("oracle price is stale or invalid")
	ErrEscrowNotConfigured = errors.New("escrow account is not configured")
)

func init() {
	response.RegisterStatus(ErrFeeTooHigh, http.StatusBadRequest)
	response.RegisterStatus(ErrSpreadTooHigh, http.StatusBadRequest)
	response.RegisterStatus(ErrTreasuryRequired, http.StatusBadRequest)
	response.RegisterStatus(ErrEscrowRequired, http.StatusBadRequest)
	response.RegisterStatus(ErrFeedRequired, http.StatusBadRequest)
	response.RegisterStatus(ErrUnsupportedAsset, http.StatusBadRequest)
	response.RegisterStatus(ErrInvalidPrice, http.StatusUnprocessableEntity)
	response.RegisterStatus(ErrEscrowNotConfigured, http.StatusInternalServerError)
}

// Service holds the settlement configuration: rates, payout addresses, the
// quote-token allow-list and per-asset price-feed bindings. All setters are
// owner-only.
type Service struct {
	db     *Database
	access *access.Service
	oracle *oracle.Service
}

func NewService(gormDB *gorm.DB, accessService *access.Service, oracleService *oracle.Service) *Service {
	return &Service{
		db:     NewDatabase(gormDB),
		access: accessService,
		oracle: oracleService,
	}
}

// Platform returns the current configuration row.
func (s *Service) Platform() (*Platform, error) {
	return s.db.GetPlatform()
}

// SetFeeBps sets the platform fee rate, capped at MaxFeeBps.
func (s *Service) SetFeeBps(caller string, bps int64) error {
	if err := s.access.RequireOwner(caller); err != nil {
		return err
	}
	if bps < 0 || bps > MaxFeeBps {
		return ErrFeeTooHigh
	}

	platform, err := s.db.GetPlatform()
	if err != nil {
		return err
	}
	platform.FeeBps = bps

	log.Info().Int64("fee_bps", bps).Msg("fee rate updated")
	return s.db.SavePlatform(platform)
}

// SetSpreadBps sets the pricing spread, capped at MaxSpreadBps.
func (s *Service) SetSpreadBps(caller string, bps int64) error {
	if err := s.access.RequireOwner(caller); err != nil {
		return err
	}
	if bps < 0 || bps > MaxSpreadBps {
		return ErrSpreadTooHigh
	}

	platform, err := s.db.GetPlatform()
	if err != nil {
		return err
	}
	platform.SpreadBps = bps

	log.Info().Int64("spread_bps", bps).Msg("spread rate updated")
	return s.db.SavePlatform(platform)
}

// SetTreasury sets the fee payout address. Looked up at payout time, so a
// change affects in-flight trades.
func (s *Service) SetTreasury(caller, address string) error {
	if err := s.access.RequireOwner(caller); err != nil {
		return err
	}
	if address == "" {
		return ErrTreasuryRequired
	}

	platform, err := s.db.GetPlatform()
	if err != nil {
		return err
	}
	platform.Treasury = address
	return s.db.SavePlatform(platform)
}

// SetEscrowAccount sets the custody account trades deposit into.
func (s *Service) SetEscrowAccount(caller, address string) error {
	if err := s.access.RequireOwner(caller); err != nil {
		return err
	}
	if address == "" {
		return ErrEscrowRequired
	}

	platform, err := s.db.GetPlatform()
	if err != nil {
		return err
	}
	platform.EscrowAccount = address
	return s.db.SavePlatform(platform)
}

// Treasury returns the current treasury address.
func (s *Service) Treasury() (string, error) {
	platform, err := s.db.GetPlatform()
	if err != nil {
		return "", err
	}
	return platform.Treasury, nil
}

// EscrowAccount returns the custody account, or ErrEscrowNotConfigured when
// unset.
func (s *Service) EscrowAccount() (string, error) {
	platform, err := s.db.GetPlatform()
	if err != nil {
		return "", err
	}
	if platform.EscrowAccount == "" {
		return "", ErrEscrowNotConfigured
	}
	return platform.EscrowAccount, nil
}

// SetQuoteToken allows or disallows a settlement currency.
func (s *Service) SetQuoteToken(caller, symbol string, decimals int32, allowed bool) error {
	if err := s.access.RequireOwner(caller); err != nil {
		return err
	}

	token := &QuoteToken{Symbol: symbol, Decimals: decimals, Allowed: allowed}

	log.Info().
		Str("symbol", symbol).
		Int32("decimals", decimals).
		Bool("allowed", allowed).
		Msg("quote token updated")

	return s.db.SaveQuoteToken(token)
}

// QuoteToken returns the registration for a quote currency, or nil.
func (s *Service) QuoteToken(symbol string) (*QuoteToken, error) {
	return s.db.GetQuoteToken(symbol)
}

// SetAsset binds an instrument to a price feed, caching the feed's decimal
// scale at bind time. Re-binding updates the record in place; bindings are
// disabled, never deleted.
func (s *Service) SetAsset(caller, symbol, feedRef string, decimals int32, enabled bool) error {
	if err := s.access.RequireOwner(caller); err != nil {
		return err
	}
	if feedRef == "" {
		return ErrFeedRequired
	}

	feedDecimals, err := s.oracle.Decimals(feedRef)
	if err != nil {
		return err
	}

	asset := &Asset{
		Symbol:       symbol,
		FeedRef:      feedRef,
		FeedDecimals: feedDecimals,
		Decimals:     decimals,
		Enabled:      enabled,
	}

	log.Info().
		Str("symbol", symbol).
		Str("feed_ref", feedRef).
		Int32("feed_decimals", feedDecimals).
		Bool("enabled", enabled).
		Msg("asset binding updated")

	return s.db.SaveAsset(asset)
}

// Asset returns the binding for an instrument, or nil.
func (s *Service) Asset(symbol string) (*Asset, error) {
	return s.db.GetAsset(symbol)
}

// GetOraclePrice returns the raw latest price and its decimal scale for an
// enabled asset. No normalization happens here. A non-positive answer or an
// unset round timestamp is rejected as stale.
func (s *Service) GetOraclePrice(symbol string) (decimal.Decimal, int32, error) {
	asset, err := s.db.GetAsset(symbol)
	if err != nil {
		return decimal.Zero, 0, err
	}
	if asset == nil || !asset.Enabled {
		return decimal.Zero, 0, ErrUnsupportedAsset
	}

	answer, updatedAt, err := s.oracle.LatestRound(asset.FeedRef)
	if err != nil {
		return decimal.Zero, 0, err
	}
	if answer.Sign() <= 0 || updatedAt == 0 {
		return decimal.Zero, 0, ErrInvalidPrice
	}

	return answer, asset.FeedDecimals, nil
}

// GinHandlers contains HTTP handlers for settlement configuration endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// SetFeeHandler handles POST requests updating the fee rate. Owner only.
func (h *GinHandlers) SetFeeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := c.GetString("clientID")

		var request struct {
			FeeBps int64 `json:"fee_bps"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		if err := h.service.SetFeeBps(caller, request.FeeBps); err != nil {
			response.HandleDomain(c, nil, err)
			return
		}
		response.Success(c, gin.H{"fee_bps": request.FeeBps})
	}
}

// SetSpreadHandler handles POST requests updating the spread rate. Owner only.
func (h *GinHandlers) SetSpreadHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := c.GetString("clientID")

		var request struct {
			SpreadBps int64 `json:"spread_bps"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		if err := h.service.SetSpreadBps(caller, request.SpreadBps); err != nil {
			response.HandleDomain(c, nil, err)
			return
		}
		response.Success(c, gin.H{"spread_bps": request.SpreadBps})
	}
}

// SetTreasuryHandler handles POST requests updating the treasury address.
func (h *GinHandlers) SetTreasuryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := c.GetString("clientID")

		var request struct {
			Treasury string `json:"treasury" binding:"required"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		if err := h.service.SetTreasury(caller, request.Treasury); err != nil {
			response.HandleDomain(c, nil, err)
			return
		}
		response.Success(c, gin.H{"treasury": request.Treasury})
	}
}

// SetEscrowAccountHandler handles POST requests updating the custody account.
func (h *GinHandlers) SetEscrowAccountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := c.GetString("clientID")

		var request struct {
			EscrowAccount string `json:"escrow_account" binding:"required"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		if err := h.service.SetEscrowAccount(caller, request.EscrowAccount); err != nil {
			response.HandleDomain(c, nil, err)
			return
		}
		response.Success(c, gin.H{"escrow_account": request.EscrowAccount})
	}
}

// SetQuoteTokenHandler handles POST requests updating the quote allow-list.
func (h *GinHandlers) SetQuoteTokenHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := c.GetString("clientID")

		var request struct {
			Symbol   string `json:"symbol" binding:"required"`
			Decimals int32  `json:"decimals"`
			Allowed  *bool  `json:"allowed" binding:"required"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		if err := h.service.SetQuoteToken(caller, request.Symbol, request.Decimals, *request.Allowed); err != nil {
			response.HandleDomain(c, nil, err)
			return
		}
		token, err := h.service.QuoteToken(request.Symbol)
		response.HandleDomain(c, token, err)
	}
}

// SetAssetHandler handles POST requests binding an asset to a price feed.
func (h *GinHandlers) SetAssetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := c.GetString("clientID")

		var request struct {
			Symbol   string `json:"symbol" binding:"required"`
			FeedRef  string `json:"feed_ref"`
			Decimals int32  `json:"decimals"`
			Enabled  *bool  `json:"enabled" binding:"required"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		if request.Decimals == 0 {
			request.Decimals = 18
		}

		if err := h.service.SetAsset(caller, request.Symbol, request.FeedRef, request.Decimals, *request.Enabled); err != nil {
			response.HandleDomain(c, nil, err)
			return
		}
		asset, err := h.service.Asset(request.Symbol)
		response.HandleDomain(c, asset, err)
	}
}
