package oracle

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ksred/otc-settlement/internal/access"
	"github.com/ksred/otc-settlement/pkg/response"
)

var (
	ErrFeedNotFound = errors.New("price feed not found")
	ErrFeedExists   = errors.New("price feed already registered")
)

func init() {
	response.RegisterStatus(ErrFeedNotFound, http.StatusNotFound)
	response.RegisterStatus(ErrFeedExists, http.StatusConflict)
}

// Service is the mirror of the external price oracle: feeds are registered
// once with their decimal scale, and the owner posts rounds as the upstream
// source reports them. How prices are produced is out of scope; consumers only
// see (answer, updatedAt) per feed reference.
type Service struct {
	db     *Database
	access *access.Service
}

func NewService(gormDB *gorm.DB, accessService *access.Service) *Service {
	return &Service{
		db:     NewDatabase(gormDB),
		access: accessService,
	}
}

// CreateFeed registers a feed reference with its decimal scale. Owner only.
func (s *Service) CreateFeed(caller, ref string, decimals int32) (*Feed, error) {
	if err := s.access.RequireOwner(caller); err != nil {
		return nil, err
	}

	existing, err := s.db.GetFeed(ref)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrFeedExists
	}

	feed := &Feed{Ref: ref, Decimals: decimals}
	if err := s.db.CreateFeed(feed); err != nil {
		return nil, err
	}

	log.Info().Str("feed_ref", ref).Int32("decimals", decimals).Msg("price feed registered")
	return feed, nil
}

// Decimals returns the decimal scale a feed reports its answers in.
func (s *Service) Decimals(ref string) (int32, error) {
	feed, err := s.db.GetFeed(ref)
	if err != nil {
		return 0, err
	}
	if feed == nil {
		return 0, ErrFeedNotFound
	}
	return feed.Decimals, nil
}

// PostRound appends a price observation to a feed. Owner only. Validity of
// the answer is judged by consumers at read time, matching the external feed
// contract.
func (s *Service) PostRound(caller, ref string, answer decimal.Decimal, updatedAt int64) (*Round, error) {
	if err := s.access.RequireOwner(caller); err != nil {
		return nil, err
	}

	feed, err := s.db.GetFeed(ref)
	if err != nil {
		return nil, err
	}
	if feed == nil {
		return nil, ErrFeedNotFound
	}

	round := &Round{
		FeedRef:   ref,
		Answer:    answer,
		UpdatedAt: updatedAt,
	}
	if err := s.db.CreateRound(round); err != nil {
		return nil, err
	}

	log.Debug().
		Str("feed_ref", ref).
		Str("answer", answer.String()).
		Int64("updated_at", updatedAt).
		Msg("price round posted")

	return round, nil
}

// LatestRound returns the newest round for a feed. A feed with no rounds yet
// yields a zero answer and zero updatedAt, which consumers reject.
func (s *Service) LatestRound(ref string) (decimal.Decimal, int64, error) {
	feed, err := s.db.GetFeed(ref)
	if err != nil {
		return decimal.Zero, 0, err
	}
	if feed == nil {
		return decimal.Zero, 0, ErrFeedNotFound
	}

	round, err := s.db.GetLatestRound(ref)
	if err != nil {
		return decimal.Zero, 0, err
	}
	if round == nil {
		return decimal.Zero, 0, nil
	}
	return round.Answer, round.UpdatedAt, nil
}

// GinHandlers contains HTTP handlers for oracle endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// CreateFeedHandler handles POST requests registering price feeds. Owner only.
func (h *GinHandlers) CreateFeedHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := c.GetString("clientID")

		var request struct {
			Ref      string `json:"ref" binding:"required"`
			Decimals int32  `json:"decimals"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		feed, err := h.service.CreateFeed(caller, request.Ref, request.Decimals)
		response.HandleDomain(c, feed, err)
	}
}

// PostRoundHandler handles POST requests appending a price round to a feed.
// Owner only. URL parameter: ref
func (h *GinHandlers) PostRoundHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := c.GetString("clientID")
		ref := c.Param("ref")

		var request struct {
			Answer    decimal.Decimal `json:"answer"`
			UpdatedAt int64           `json:"updated_at"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		round, err := h.service.PostRound(caller, ref, request.Answer, request.UpdatedAt)
		response.HandleDomain(c, round, err)
	}
}
