package access

import "gorm.io/gorm"

// Account holds the per-address control flags consulted before any
// user-initiated mutation.
type Account struct {
	gorm.Model    `json:"-"`
	Address       string `gorm:"uniqueIndex" json:"address"`
	Banned        bool   `json:"banned"`
	Frozen        bool   `json:"frozen"`
	Tier2Approved bool   `json:"tier2_approved"`
	Admin         bool   `json:"admin"`
}

// Ownership is a single-row table recording the platform owner.
type Ownership struct {
	gorm.Model `json:"-"`
	Owner      string `json:"owner"`
}
