package social

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/hearthchat/server/account"
	dbadapter "github.com/hearthchat/server/db"
	"github.com/hearthchat/server/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrSelfRelation     = errors.New("cannot target yourself")
	ErrUserNotFound     = errors.New("user not found")
	ErrAlreadyRelated   = errors.New("relationship already exists")
	ErrRequestNotFound  = errors.New("friend request not found")
	ErrRelationNotFound = errors.New("relationship not found")
	ErrForbidden        = errors.New("not allowed")
)

// Status describes the relationship between the viewing account and another.
type Status string

const (
	StatusNone            Status = "none"
	StatusPendingSent     Status = "pending_sent"
	StatusPendingReceived Status = "pending_received"
	StatusFriends         Status = "friends"
	StatusBlocked         Status = "blocked"
	StatusBlockedBy       Status = "blocked_by"
)

// Request types as seen by the viewing account.
const (
	RequestSent     = "sent"
	RequestReceived = "received"
)

// Directory resolves account ids to users.
type Directory interface {
	Exists(ctx context.Context, id int64) (bool, error)
	GetMany(ctx context.Context, ids []int64) (map[int64]account.User, error)
}

// Friend is an accepted relationship seen from one side.
type Friend struct {
	account.User
	Since time.Time `json:"since"`
}

// Request is a pending relationship seen from one side.
type Request struct {
	ID        int64        `json:"id"`
	Type      string       `json:"type"`
	User      account.User `json:"user"`
	CreatedAt time.Time    `json:"createdAt"`
}

// Blocked is an account the viewer has blocked.
type Blocked struct {
	account.User
	BlockedAt time.Time `json:"blockedAt"`
}

// Service is the friend relationship engine. Every command validates and
// mutates the pair's single row inside one transaction.
type Service struct {
	db       *gorm.DB
	users    Directory
	notifier Notifier
	logger   *zap.Logger
}

// NewService creates a Service. A nil notifier disables notifications.
func NewService(db *gorm.DB, users Directory, notifier Notifier, logger *zap.Logger) *Service {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Service{db: db, users: users, notifier: notifier, logger: logger}
}

func (s *Service) checkParties(ctx context.Context, actor, target int64) error {
	if actor == target {
		return ErrSelfRelation
	}
	ok, err := s.users.Exists(ctx, target)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUserNotFound
	}
	return nil
}

// findPair loads the row for {a, b}, locking it for the rest of the
// transaction where the driver supports row locks. It returns nil, nil when
// no row exists.
func findPair(tx *gorm.DB, a, b int64) (*model.Relationship, error) {
	low, high := model.OrderedPair(a, b)
	var rel model.Relationship
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_low = ? AND user_high = ?", low, high).
		First(&rel).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rel, nil
}

// SendRequest creates a pending request from actor to target.
func (s *Service) SendRequest(ctx context.Context, actor, target int64) error {
	if err := s.checkParties(ctx, actor, target); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := findPair(tx, actor, target)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrAlreadyRelated
		}
		rel := &model.Relationship{Status: model.RelationPending}
		rel.SetParties(actor, target)
		return tx.Create(rel).Error
	})
	if err != nil {
		// A concurrent request for the same pair won the unique index.
		if dbadapter.IsUniqueViolation(err) {
			return ErrAlreadyRelated
		}
		return err
	}

	s.logger.Info("friend request sent", zap.Int64("from", actor), zap.Int64("to", target))
	s.notify(ctx, target, EventFriendRequest, actor)
	return nil
}

// pendingFrom loads the request target sent to actor. A missing row is
// ErrRequestNotFound; any other row state is ErrForbidden.
func pendingFrom(tx *gorm.DB, actor, target int64) (*model.Relationship, error) {
	rel, err := findPair(tx, actor, target)
	if err != nil {
		return nil, err
	}
	if rel == nil {
		return nil, ErrRequestNotFound
	}
	if rel.Status != model.RelationPending || rel.RequesterID != target || rel.AddresseeID != actor {
		return nil, ErrForbidden
	}
	return rel, nil
}

// AcceptRequest accepts the pending request target sent to actor.
func (s *Service) AcceptRequest(ctx context.Context, actor, target int64) error {
	if err := s.checkParties(ctx, actor, target); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rel, err := pendingFrom(tx, actor, target)
		if err != nil {
			return err
		}
		rel.Status = model.RelationAccepted
		return tx.Save(rel).Error
	})
	if err != nil {
		return err
	}

	s.logger.Info("friend request accepted", zap.Int64("by", actor), zap.Int64("from", target))
	s.notify(ctx, target, EventFriendAccepted, actor)
	return nil
}

// RefuseRequest deletes the pending request target sent to actor.
func (s *Service) RefuseRequest(ctx context.Context, actor, target int64) error {
	if err := s.checkParties(ctx, actor, target); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rel, err := pendingFrom(tx, actor, target)
		if err != nil {
			return err
		}
		return tx.Delete(rel).Error
	})
	if err != nil {
		return err
	}

	s.logger.Info("friend request refused", zap.Int64("by", actor), zap.Int64("from", target))
	s.notify(ctx, target, EventFriendRefused, actor)
	return nil
}

// BlockUser makes actor the blocker of the pair. Any pending or accepted
// relationship is replaced. Blocking an already blocked pair is a no-op and
// leaves the original blocker in place.
func (s *Service) BlockUser(ctx context.Context, actor, target int64) error {
	if err := s.checkParties(ctx, actor, target); err != nil {
		return err
	}

	block := func(tx *gorm.DB) error {
		rel, err := findPair(tx, actor, target)
		if err != nil {
			return err
		}
		if rel == nil {
			rel = &model.Relationship{Status: model.RelationBlocked}
			rel.SetParties(actor, target)
			return tx.Create(rel).Error
		}
		if rel.Status == model.RelationBlocked {
			return nil
		}
		rel.SetParties(actor, target)
		rel.Status = model.RelationBlocked
		return tx.Save(rel).Error
	}

	err := s.db.WithContext(ctx).Transaction(block)
	if err != nil && dbadapter.IsUniqueViolation(err) {
		// Lost an insert race; the row now exists, so apply the block to it.
		err = s.db.WithContext(ctx).Transaction(block)
	}
	if err != nil {
		return err
	}

	s.logger.Info("user blocked", zap.Int64("by", actor), zap.Int64("target", target))
	return nil
}

// RemoveRelationship deletes the row for the pair: unfriend, cancel a sent
// request, or lift a block actor placed.
func (s *Service) RemoveRelationship(ctx context.Context, actor, target int64) error {
	if err := s.checkParties(ctx, actor, target); err != nil {
		return err
	}

	var removed model.Relationship
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rel, err := findPair(tx, actor, target)
		if err != nil {
			return err
		}
		if rel == nil {
			return ErrRelationNotFound
		}
		if rel.Status == model.RelationBlocked && rel.RequesterID != actor {
			return ErrForbidden
		}
		removed = *rel
		return tx.Delete(rel).Error
	})
	if err != nil {
		return err
	}

	s.logger.Info("relationship removed",
		zap.Int64("by", actor), zap.Int64("target", target), zap.String("status", string(removed.Status)))
	if removed.Status != model.RelationBlocked {
		s.notify(ctx, target, EventFriendRemoved, actor)
	}
	return nil
}

func (s *Service) rowsFor(ctx context.Context, actor int64, where string, args ...interface{}) ([]model.Relationship, error) {
	var rels []model.Relationship
	err := s.db.WithContext(ctx).
		Where("(user_low = ? OR user_high = ?)", actor, actor).
		Where(where, args...).
		Order("id ASC").
		Find(&rels).Error
	return rels, err
}

func (s *Service) usersFor(ctx context.Context, actor int64, rels []model.Relationship) (map[int64]account.User, error) {
	ids := make([]int64, len(rels))
	for i := range rels {
		ids[i] = rels[i].Other(actor)
	}
	return s.users.GetMany(ctx, ids)
}

// ListFriends returns the accounts with an accepted relationship to actor,
// ordered by username.
func (s *Service) ListFriends(ctx context.Context, actor int64) ([]Friend, error) {
	rels, err := s.rowsFor(ctx, actor, "status = ?", model.RelationAccepted)
	if err != nil {
		return nil, err
	}
	users, err := s.usersFor(ctx, actor, rels)
	if err != nil {
		return nil, err
	}

	friends := make([]Friend, 0, len(rels))
	for i := range rels {
		u, ok := users[rels[i].Other(actor)]
		if !ok {
			continue
		}
		friends = append(friends, Friend{User: u, Since: rels[i].UpdatedAt})
	}
	sort.Slice(friends, func(i, j int) bool { return friends[i].Username < friends[j].Username })
	return friends, nil
}

// ListRequests returns the pending requests actor sent or received, oldest
// first.
func (s *Service) ListRequests(ctx context.Context, actor int64) ([]Request, error) {
	rels, err := s.rowsFor(ctx, actor, "status = ?", model.RelationPending)
	if err != nil {
		return nil, err
	}
	users, err := s.usersFor(ctx, actor, rels)
	if err != nil {
		return nil, err
	}

	requests := make([]Request, 0, len(rels))
	for i := range rels {
		u, ok := users[rels[i].Other(actor)]
		if !ok {
			continue
		}
		typ := RequestReceived
		if rels[i].RequesterID == actor {
			typ = RequestSent
		}
		requests = append(requests, Request{
			ID:        rels[i].ID,
			Type:      typ,
			User:      u,
			CreatedAt: rels[i].CreatedAt,
		})
	}
	return requests, nil
}

// ListBlocked returns the accounts actor has blocked. Blocks placed on actor
// by others are not included.
func (s *Service) ListBlocked(ctx context.Context, actor int64) ([]Blocked, error) {
	rels, err := s.rowsFor(ctx, actor, "status = ? AND requester_id = ?", model.RelationBlocked, actor)
	if err != nil {
		return nil, err
	}
	users, err := s.usersFor(ctx, actor, rels)
	if err != nil {
		return nil, err
	}

	blocked := make([]Blocked, 0, len(rels))
	for i := range rels {
		u, ok := users[rels[i].Other(actor)]
		if !ok {
			continue
		}
		blocked = append(blocked, Blocked{User: u, BlockedAt: rels[i].UpdatedAt})
	}
	return blocked, nil
}

// Statuses returns actor's view of every relationship it takes part in,
// keyed by the other account's id. Accounts missing from the map have
// StatusNone.
func (s *Service) Statuses(ctx context.Context, actor int64) (map[int64]Status, error) {
	var rels []model.Relationship
	err := s.db.WithContext(ctx).
		Where("user_low = ? OR user_high = ?", actor, actor).
		Find(&rels).Error
	if err != nil {
		return nil, err
	}
	out := make(map[int64]Status, len(rels))
	for i := range rels {
		out[rels[i].Other(actor)] = statusOf(&rels[i], actor)
	}
	return out, nil
}

// Status returns actor's view of its relationship with target.
func (s *Service) Status(ctx context.Context, actor, target int64) (Status, error) {
	if actor == target {
		return StatusNone, ErrSelfRelation
	}
	var rel *model.Relationship
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		rel, err = findPair(tx, actor, target)
		return err
	})
	if err != nil || rel == nil {
		return StatusNone, err
	}
	return statusOf(rel, actor), nil
}

func statusOf(rel *model.Relationship, actor int64) Status {
	switch rel.Status {
	case model.RelationAccepted:
		return StatusFriends
	case model.RelationPending:
		if rel.RequesterID == actor {
			return StatusPendingSent
		}
		return StatusPendingReceived
	case model.RelationBlocked:
		if rel.RequesterID == actor {
			return StatusBlocked
		}
		return StatusBlockedBy
	}
	return StatusNone
}

// Count returns the number of relationship rows in each state.
func (s *Service) Count(ctx context.Context) (map[model.RelationStatus]int64, error) {
	var rows []struct {
		Status model.RelationStatus
		N      int64
	}
	err := s.db.WithContext(ctx).Model(&model.Relationship{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := map[model.RelationStatus]int64{
		model.RelationPending:  0,
		model.RelationAccepted: 0,
		model.RelationBlocked:  0,
	}
	for _, r := range rows {
		out[r.Status] = r.N
	}
	return out, nil
}

func (s *Service) notify(ctx context.Context, to int64, typ string, from int64) {
	ev := Event{Type: typ, From: from, At: time.Now().UTC()}
	if err := s.notifier.Notify(ctx, to, ev); err != nil {
		s.logger.Warn("relationship notification failed",
			zap.String("type", typ), zap.Int64("to", to), zap.Error(err))
	}
}
