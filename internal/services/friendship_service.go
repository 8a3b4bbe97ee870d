// Package services – FriendshipService
//
// The friendship graph stores a single canonical row per unordered pair of
// users (see repo.CanonicalPair). Requests start pending and become
// accepted; rejecting deletes the row. Removing a friend also removes their
// direct conversation, its messages and the letters between them.
package services

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/worldfriends-backend/internal/domain"
	"github.com/tbourn/worldfriends-backend/internal/locale"
	"github.com/tbourn/worldfriends-backend/internal/pagination"
	"github.com/tbourn/worldfriends-backend/internal/realtime"
	"github.com/tbourn/worldfriends-backend/internal/repo"
)

// FriendshipView is one row of the caller's friends or requests list.
type FriendshipView struct {
	FriendshipID string      `json:"friendship_id"`
	User         UserSummary `json:"user"`
	Status       string      `json:"status"`
	SenderID     string      `json:"sender_id"`
	CreatedAt    time.Time   `json:"created_at"`
}

// FriendshipService manages friend requests and friendships.
type FriendshipService struct {
	Deps
	Privacy *PrivacyGate
}

// SendRequest creates a pending request from caller to receiver.
func (s *FriendshipService) SendRequest(ctx context.Context, caller, receiver string) (f *domain.Friendship, err error) {
	tr := otel.Tracer("services/FriendshipService")
	ctx, span := tr.Start(ctx, "SendRequest", trace.WithAttributes(
		attribute.String("user.id", caller),
		attribute.String("receiver.id", receiver),
	))
	defer func() { finish(span, "friendship.send", err) }()

	if err = requireCaller(caller); err != nil {
		return nil, err
	}
	if caller == receiver {
		return nil, ErrSelfTarget
	}

	fx := &effects{}
	err = s.tx(ctx, fx, func(tx *gorm.DB) error {
		existing, err := repo.GetFriendshipByPair(ctx, tx, caller, receiver)
		switch {
		case err == nil && existing.Status == domain.FriendshipAccepted:
			return ErrAlreadyFriends
		case err == nil:
			return ErrRequestPending
		case !errors.Is(err, repo.ErrNotFound):
			return err
		}
		if _, err := repo.GetUser(ctx, tx, receiver); err != nil {
			return mapNotFound(err, ErrUserNotFound)
		}
		if err := s.gate(ctx, tx, caller, receiver); err != nil {
			return err
		}

		f, err = repo.CreateFriendship(ctx, tx, caller, receiver)
		if errors.Is(err, repo.ErrDuplicate) {
			return ErrRequestPending
		} else if err != nil {
			return err
		}
		fx.emit(realtime.EventFriendship, "", f.ID, caller, receiver)
		return s.notify(ctx, tx, fx, receiver, caller, domain.NotifyFriendRequestSent)
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// AcceptRequest accepts a pending request addressed to caller.
func (s *FriendshipService) AcceptRequest(ctx context.Context, caller, friendshipID string) (err error) {
	tr := otel.Tracer("services/FriendshipService")
	ctx, span := tr.Start(ctx, "AcceptRequest", trace.WithAttributes(
		attribute.String("user.id", caller),
		attribute.String("friendship.id", friendshipID),
	))
	defer func() { finish(span, "friendship.accept", err) }()

	if err = requireCaller(caller); err != nil {
		return err
	}
	fx := &effects{}
	return s.tx(ctx, fx, func(tx *gorm.DB) error {
		f, err := s.answerable(ctx, tx, caller, friendshipID)
		if err != nil {
			return err
		}
		other := f.Other(caller)
		if err := s.gate(ctx, tx, caller, other); err != nil {
			return err
		}
		if err := repo.AcceptFriendship(ctx, tx, f.ID); err != nil {
			return mapNotFound(err, ErrNotPending)
		}
		fx.emit(realtime.EventFriendship, "", f.ID, caller, other)
		return s.notify(ctx, tx, fx, other, caller, domain.NotifyFriendRequestAccepted)
	})
}

// RejectRequest deletes a pending request addressed to caller.
func (s *FriendshipService) RejectRequest(ctx context.Context, caller, friendshipID string) (err error) {
	tr := otel.Tracer("services/FriendshipService")
	ctx, span := tr.Start(ctx, "RejectRequest", trace.WithAttributes(
		attribute.String("user.id", caller),
		attribute.String("friendship.id", friendshipID),
	))
	defer func() { finish(span, "friendship.reject", err) }()

	if err = requireCaller(caller); err != nil {
		return err
	}
	fx := &effects{}
	return s.tx(ctx, fx, func(tx *gorm.DB) error {
		f, err := s.answerable(ctx, tx, caller, friendshipID)
		if err != nil {
			return err
		}
		if err := repo.DeleteFriendship(ctx, tx, f.ID); err != nil {
			return mapNotFound(err, ErrFriendshipNotFound)
		}
		other := f.Other(caller)
		fx.emit(realtime.EventFriendship, "", f.ID, caller, other)
		return s.notify(ctx, tx, fx, other, caller, domain.NotifyFriendRequestRejected)
	})
}

// answerable loads a request caller may accept or reject.
func (s *FriendshipService) answerable(ctx context.Context, tx *gorm.DB, caller, id string) (*domain.Friendship, error) {
	f, err := repo.GetFriendship(ctx, tx, id)
	if err != nil {
		return nil, mapNotFound(err, ErrFriendshipNotFound)
	}
	if !f.Involves(caller) {
		return nil, ErrNotParty
	}
	if f.SenderID == caller {
		return nil, ErrOwnRequest
	}
	if f.Status != domain.FriendshipPending {
		return nil, ErrNotPending
	}
	return f, nil
}

// gate rejects pairs that are blocked or privacy-incompatible.
func (s *FriendshipService) gate(ctx context.Context, tx *gorm.DB, u1, u2 string) error {
	blocked, err := s.Privacy.Blocked(ctx, tx, u1, u2)
	if err != nil {
		return err
	}
	if blocked {
		return ErrUserBlocked
	}
	ok, err := s.Privacy.Compatible(ctx, tx, u1, u2)
	if err != nil {
		return err
	}
	if !ok {
		return ErrPrivacyRestricted
	}
	return nil
}

// RemoveFriend ends an accepted friendship and deletes the pair's direct
// conversation, its messages and their letters.
func (s *FriendshipService) RemoveFriend(ctx context.Context, caller, other string) (err error) {
	tr := otel.Tracer("services/FriendshipService")
	ctx, span := tr.Start(ctx, "RemoveFriend", trace.WithAttributes(
		attribute.String("user.id", caller),
		attribute.String("friend.id", other),
	))
	defer func() { finish(span, "friendship.remove", err) }()

	if err = requireCaller(caller); err != nil {
		return err
	}
	if caller == other {
		return ErrSelfTarget
	}
	fx := &effects{}
	return s.tx(ctx, fx, func(tx *gorm.DB) error {
		f, err := repo.GetFriendshipByPair(ctx, tx, caller, other)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrNotFriends
			}
			return err
		}
		if f.Status != domain.FriendshipAccepted {
			return ErrNotFriends
		}
		if err := repo.DeleteFriendship(ctx, tx, f.ID); err != nil {
			return mapNotFound(err, ErrNotFriends)
		}

		key := repo.ConversationKey(caller, other)
		if _, err := repo.DeleteThreadMessages(ctx, tx, domain.DirectThread(key)); err != nil {
			return err
		}
		if _, err := repo.DeleteConversationRows(ctx, tx, key); err != nil {
			return err
		}
		if _, err := repo.DeleteLettersBetween(ctx, tx, caller, other); err != nil {
			return err
		}
		fx.emit(realtime.EventFriendship, "", f.ID, caller, other)
		fx.emit(realtime.EventConversation, domain.DirectThread(key).Key(), key, caller, other)
		return s.notify(ctx, tx, fx, other, caller, domain.NotifyFriendRemoved)
	})
}

// ListFriends pages the caller's accepted friendships, newest first.
func (s *FriendshipService) ListFriends(ctx context.Context, caller, loc string, req pagination.PageRequest) (pagination.Page[FriendshipView], error) {
	tr := otel.Tracer("services/FriendshipService")
	ctx, span := tr.Start(ctx, "ListFriends", trace.WithAttributes(attribute.String("user.id", caller)))
	defer span.End()

	return s.list(ctx, caller, loc, repo.FriendshipScan{UserID: caller, Status: domain.FriendshipAccepted}, req)
}

// ListRequests pages the caller's pending requests, newest first. With
// receivedOnly set, requests the caller sent are left out.
func (s *FriendshipService) ListRequests(ctx context.Context, caller, loc string, receivedOnly bool, req pagination.PageRequest) (pagination.Page[FriendshipView], error) {
	tr := otel.Tracer("services/FriendshipService")
	ctx, span := tr.Start(ctx, "ListRequests", trace.WithAttributes(
		attribute.String("user.id", caller),
		attribute.Bool("received_only", receivedOnly),
	))
	defer span.End()

	return s.list(ctx, caller, loc, repo.FriendshipScan{UserID: caller, Status: domain.FriendshipPending, ReceivedOnly: receivedOnly}, req)
}

// list merges the two canonical-side scans into one page. Both scans
// continue from the same cursor key, so the merged head is globally
// ordered.
func (s *FriendshipService) list(ctx context.Context, caller, loc string, scan repo.FriendshipScan, req pagination.PageRequest) (pagination.Page[FriendshipView], error) {
	if requireCaller(caller) != nil {
		return pagination.Empty[FriendshipView](), nil
	}
	cursor, err := decodeCursor(req.Cursor)
	if err != nil {
		return pagination.Page[FriendshipView]{}, err
	}
	limit := req.Limit(pagination.DefaultNumItems, pagination.MaxNumItems)

	asA, err := repo.ListFriendshipsAsA(ctx, s.DB, scan, cursor, limit+1)
	if err != nil {
		return pagination.Page[FriendshipView]{}, err
	}
	asB, err := repo.ListFriendshipsAsB(ctx, s.DB, scan, cursor, limit+1)
	if err != nil {
		return pagination.Page[FriendshipView]{}, err
	}
	key := func(f domain.Friendship) pagination.Key {
		return pagination.Key{Time: f.CreatedAt, ID: f.ID}
	}
	rows, more := pagination.Merge([][]domain.Friendship{asA, asB}, func(a, b domain.Friendship) bool {
		return pagination.Newer(key(a), key(b))
	}, limit)

	page := pagination.Page[domain.Friendship]{Page: rows, IsDone: !more}
	if more && len(rows) > 0 {
		page.ContinueCursor = key(rows[len(rows)-1]).Encode()
	}

	others := make([]string, 0, len(rows))
	for i := range rows {
		others = append(others, rows[i].Other(caller))
	}
	users, err := s.users(ctx, s.DB, others, locale.For(loc))
	if err != nil {
		return pagination.Page[FriendshipView]{}, err
	}

	out := make([]FriendshipView, 0, len(rows))
	for i := range rows {
		u, ok := users[rows[i].Other(caller)]
		if !ok {
			continue
		}
		out = append(out, FriendshipView{
			FriendshipID: rows[i].ID,
			User:         u,
			Status:       rows[i].Status,
			SenderID:     rows[i].SenderID,
			CreatedAt:    rows[i].CreatedAt,
		})
	}
	return pagination.Page[FriendshipView]{Page: out, IsDone: page.IsDone, ContinueCursor: page.ContinueCursor}, nil
}

// AreFriends reports whether a and b are accepted friends.
func (s *FriendshipService) AreFriends(ctx context.Context, db *gorm.DB, a, b string) (bool, error) {
	return repo.AreFriends(ctx, db, a, b)
}

// FriendIDs returns the ids of userID's accepted friends.
func (s *FriendshipService) FriendIDs(ctx context.Context, db *gorm.DB, userID string) ([]string, error) {
	return repo.FriendIDs(ctx, db, userID)
}
