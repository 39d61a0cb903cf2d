package model

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// RelationStatus is the state of the single relationship row between two accounts.
type RelationStatus string

const (
	RelationPending  RelationStatus = "PENDING"
	RelationAccepted RelationStatus = "ACCEPTED"
	RelationBlocked  RelationStatus = "BLOCKED"
)

// ErrSelfRelation is returned when both ends of a relationship are the same account.
var ErrSelfRelation = errors.New("model: relationship requires two distinct accounts")

// Relationship is the one row that may exist for an unordered pair of accounts.
// UserLow/UserHigh hold the pair in canonical order and carry the unique index,
// so (A,B) and (B,A) collide at the storage layer. Requester/Addressee keep the
// direction: who sent a pending request, or who placed a block.
type Relationship struct {
	ID          int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	RequesterID int64          `gorm:"index:idx_relationship_requester;not null" json:"requesterId"`
	AddresseeID int64          `gorm:"index:idx_relationship_addressee;not null" json:"addresseeId"`
	UserLow     int64          `gorm:"uniqueIndex:idx_relationship_pair;not null" json:"-"`
	UserHigh    int64          `gorm:"uniqueIndex:idx_relationship_pair;not null" json:"-"`
	Status      RelationStatus `gorm:"size:16;index;not null" json:"status"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
}

// OrderedPair returns a and b with the smaller id first.
func OrderedPair(a, b int64) (low, high int64) {
	if a > b {
		return b, a
	}
	return a, b
}

// SetParties records the direction of the row and refreshes the canonical pair.
func (r *Relationship) SetParties(requesterID, addresseeID int64) {
	r.RequesterID = requesterID
	r.AddresseeID = addresseeID
	r.UserLow, r.UserHigh = OrderedPair(requesterID, addresseeID)
}

// Other returns the id at the opposite end from accountID.
func (r *Relationship) Other(accountID int64) int64 {
	if r.RequesterID == accountID {
		return r.AddresseeID
	}
	return r.RequesterID
}

// BeforeSave keeps the canonical pair in sync with the direction columns.
func (r *Relationship) BeforeSave(_ *gorm.DB) error {
	if r.RequesterID == r.AddresseeID {
		return ErrSelfRelation
	}
	r.UserLow, r.UserHigh = OrderedPair(r.RequesterID, r.AddresseeID)
	return nil
}
