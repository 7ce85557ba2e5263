package access

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/ksred/otc-settlement/pkg/response"
)

var (
	ErrNotOwner     = errors.New("caller is not the owner")
	ErrNotAdmin     = errors.New("caller is not an administrator")
	ErrUserInactive = errors.New("user is banned or frozen")
)

func init() {
	response.RegisterStatus(ErrNotOwner, http.StatusForbidden)
	response.RegisterStatus(ErrNotAdmin, http.StatusForbidden)
	response.RegisterStatus(ErrUserInactive, http.StatusForbidden)
}

// Service tracks the owner, administrators and per-user control flags. It is a
// leaf component: Orders and Escrow consult it before every gated mutation.
type Service struct {
	db *Database
}

func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db: NewDatabase(gormDB),
	}
}

// Bootstrap seeds the owner on first start. An existing owner is never
// overwritten; ownership moves only through TransferOwnership.
func (s *Service) Bootstrap(owner string) error {
	current, err := s.db.GetOwner()
	if err != nil {
		return err
	}
	if current != "" {
		return nil
	}

	account, err := s.db.GetAccount(owner)
	if err != nil {
		return err
	}
	account.Admin = true
	if err := s.db.SaveAccount(account); err != nil {
		return err
	}

	log.Info().Str("owner", owner).Msg("bootstrapped platform owner")
	return s.db.SetOwner(owner)
}

// AssertActiveUser fails when the user is banned or frozen. No side effects.
func (s *Service) AssertActiveUser(address string) error {
	account, err := s.db.GetAccount(address)
	if err != nil {
		return err
	}
	if account.Banned || account.Frozen {
		return ErrUserInactive
	}
	return nil
}

func (s *Service) IsOwner(address string) (bool, error) {
	owner, err := s.db.GetOwner()
	if err != nil {
		return false, err
	}
	return owner != "" && owner == address, nil
}

func (s *Service) IsAdmin(address string) (bool, error) {
	account, err := s.db.GetAccount(address)
	if err != nil {
		return false, err
	}
	return account.Admin, nil
}

// RequireOwner returns ErrNotOwner unless the caller is the owner.
func (s *Service) RequireOwner(caller string) error {
	ok, err := s.IsOwner(caller)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotOwner
	}
	return nil
}

// RequireAdmin returns ErrNotAdmin unless the caller is the owner or an
// administrator.
func (s *Service) RequireAdmin(caller string) error {
	if owner, err := s.IsOwner(caller); err != nil {
		return err
	} else if owner {
		return nil
	}
	admin, err := s.IsAdmin(caller)
	if err != nil {
		return err
	}
	if !admin {
		return ErrNotAdmin
	}
	return nil
}

// SetAdmin grants or revokes the administrator flag. Owner only.
func (s *Service) SetAdmin(caller, address string, enabled bool) error {
	if err := s.RequireOwner(caller); err != nil {
		return err
	}

	account, err := s.db.GetAccount(address)
	if err != nil {
		return err
	}
	account.Admin = enabled

	log.Info().
		Str("caller", caller).
		Str("address", address).
		Bool("enabled", enabled).
		Msg("admin flag updated")

	return s.db.SaveAccount(account)
}

// TransferOwnership moves ownership and grants the new owner the admin flag.
// The old owner keeps any admin flag it already had.
func (s *Service) TransferOwnership(caller, newOwner string) error {
	if err := s.RequireOwner(caller); err != nil {
		return err
	}

	account, err := s.db.GetAccount(newOwner)
	if err != nil {
		return err
	}
	account.Admin = true
	if err := s.db.SaveAccount(account); err != nil {
		return err
	}

	log.Info().
		Str("previous_owner", caller).
		Str("new_owner", newOwner).
		Msg("ownership transferred")

	return s.db.SetOwner(newOwner)
}

// SetBanned flips the banned flag. Owner or admin.
func (s *Service) SetBanned(caller, address string, banned bool) error {
	return s.setFlag(caller, address, func(a *Account) { a.Banned = banned })
}

// SetFrozen flips the frozen flag. Owner or admin.
func (s *Service) SetFrozen(caller, address string, frozen bool) error {
	return s.setFlag(caller, address, func(a *Account) { a.Frozen = frozen })
}

// SetTier2Approved flips the tier-2 approval flag. Owner or admin.
func (s *Service) SetTier2Approved(caller, address string, approved bool) error {
	return s.setFlag(caller, address, func(a *Account) { a.Tier2Approved = approved })
}

func (s *Service) setFlag(caller, address string, apply func(*Account)) error {
	if err := s.RequireAdmin(caller); err != nil {
		return err
	}

	account, err := s.db.GetAccount(address)
	if err != nil {
		return err
	}
	apply(account)
	return s.db.SaveAccount(account)
}

// GetAccount returns the flags for an address.
func (s *Service) GetAccount(address string) (*Account, error) {
	return s.db.GetAccount(address)
}

// GinHandlers contains HTTP handlers for access-control endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// SetFlagsHandler handles POST requests updating an account's control flags.
// Owner or admin only. URL parameter: address
func (h *GinHandlers) SetFlagsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := c.GetString("clientID")
		address := c.Param("address")

		var request struct {
			Banned        *bool `json:"banned"`
			Frozen        *bool `json:"frozen"`
			Tier2Approved *bool `json:"tier2_approved"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		if request.Banned != nil {
			if err := h.service.SetBanned(caller, address, *request.Banned); err != nil {
				response.HandleDomain(c, nil, err)
				return
			}
		}
		if request.Frozen != nil {
			if err := h.service.SetFrozen(caller, address, *request.Frozen); err != nil {
				response.HandleDomain(c, nil, err)
				return
			}
		}
		if request.Tier2Approved != nil {
			if err := h.service.SetTier2Approved(caller, address, *request.Tier2Approved); err != nil {
				response.HandleDomain(c, nil, err)
				return
			}
		}

		account, err := h.service.GetAccount(address)
		response.HandleDomain(c, account, err)
	}
}

// SetAdminHandler handles POST requests granting or revoking admin status.
// Owner only. URL parameter: address
func (h *GinHandlers) SetAdminHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := c.GetString("clientID")
		address := c.Param("address")

		var request struct {
			Enabled *bool `json:"enabled" binding:"required"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		if err := h.service.SetAdmin(caller, address, *request.Enabled); err != nil {
			response.HandleDomain(c, nil, err)
			return
		}

		account, err := h.service.GetAccount(address)
		response.HandleDomain(c, account, err)
	}
}

// TransferOwnershipHandler handles POST requests moving platform ownership.
// Owner only.
func (h *GinHandlers) TransferOwnershipHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := c.GetString("clientID")

		var request struct {
			NewOwner string `json:"new_owner" binding:"required"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		if err := h.service.TransferOwnership(caller, request.NewOwner); err != nil {
			response.HandleDomain(c, nil, err)
			return
		}

		response.Success(c, gin.H{"owner": request.NewOwner})
	}
}
