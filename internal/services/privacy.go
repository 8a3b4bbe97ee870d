// Package services – PrivacyGate
//
// PrivacyGate evaluates the pairwise visibility rules consulted by the
// friendship, profile and discovery flows: blocking in either direction and
// the mutual age-group/gender-preference compatibility check. It also owns
// the block/unblock mutations.
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
	"github.com/tbourn/worldfriends-backend/internal/realtime"
	"github.com/tbourn/worldfriends-backend/internal/repo"
)

// PrivacyGate answers "may these two users interact" questions.
type PrivacyGate struct {
	Deps
}

// Compatible reports whether u1 and u2 pass the mutual privacy check. It
// denies when either user or either privacy record is missing, when the
// age groups differ, or when either side restricts by gender and the
// genders differ. db may be a transaction handle.
func (g *PrivacyGate) Compatible(ctx context.Context, db *gorm.DB, u1, u2 string) (bool, error) {
	users, err := repo.GetUsers(ctx, db, []string{u1, u2})
	if err != nil {
		return false, err
	}
	a, okA := users[u1]
	b, okB := users[u2]
	if !okA || !okB {
		return false, nil
	}
	infoA, err := repo.GetUserInformation(ctx, db, u1)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	infoB, err := repo.GetUserInformation(ctx, db, u2)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return compatible(&a, infoA, &b, infoB), nil
}

func compatible(a *domain.User, infoA *domain.UserInformation, b *domain.User, infoB *domain.UserInformation) bool {
	if infoA.AgeGroup != infoB.AgeGroup {
		return false
	}
	if (infoA.GenderPreference || infoB.GenderPreference) && a.Gender != b.Gender {
		return false
	}
	return true
}

// Blocked reports whether a block exists between u1 and u2 in either
// direction.
func (g *PrivacyGate) Blocked(ctx context.Context, db *gorm.DB, u1, u2 string) (bool, error) {
	return repo.IsBlocked(ctx, db, u1, u2)
}

// BlockUser records that caller blocks target and notifies the target.
func (g *PrivacyGate) BlockUser(ctx context.Context, caller, target string) (err error) {
	tr := otel.Tracer("services/PrivacyGate")
	ctx, span := tr.Start(ctx, "BlockUser", trace.WithAttributes(
		attribute.String("user.id", caller),
		attribute.String("target.id", target),
	))
	defer func() { finish(span, "user.block", err) }()

	if err = requireCaller(caller); err != nil {
		return err
	}
	if caller == target {
		return ErrSelfTarget
	}
	fx := &effects{}
	return g.tx(ctx, fx, func(tx *gorm.DB) error {
		if _, err := repo.GetUser(ctx, tx, target); err != nil {
			return mapNotFound(err, ErrUserNotFound)
		}
		if _, err := repo.CreateBlock(ctx, tx, caller, target); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return ErrAlreadyBlocked
			}
			return err
		}
		fx.emit(realtime.EventFriendship, "", target, caller, target)
		return g.notify(ctx, tx, fx, target, caller, domain.NotifyUserBlocked)
	})
}

// UnblockUser lifts a block placed by caller.
func (g *PrivacyGate) UnblockUser(ctx context.Context, caller, target string) (err error) {
	tr := otel.Tracer("services/PrivacyGate")
	ctx, span := tr.Start(ctx, "UnblockUser", trace.WithAttributes(
		attribute.String("user.id", caller),
		attribute.String("target.id", target),
	))
	defer func() { finish(span, "user.unblock", err) }()

	if err = requireCaller(caller); err != nil {
		return err
	}
	if err = repo.DeleteBlock(ctx, g.DB, caller, target); err != nil {
		return mapNotFound(err, ErrNotBlocked)
	}
	return nil
}

// Age returns the age in whole years on now of someone born on birthDate
// (YYYY-MM-DD). Unparseable dates yield 0.
func Age(birthDate string, now time.Time) int {
	b, err := time.Parse(time.DateOnly, birthDate)
	if err != nil {
		return 0
	}
	age := now.Year() - b.Year()
	if now.Month() < b.Month() || (now.Month() == b.Month() && now.Day() < b.Day()) {
		age--
	}
	return age
}

// AgeGroupFor maps a birth date to the age group stored on UserInformation.
func AgeGroupFor(birthDate string, now time.Time) string {
	if Age(birthDate, now) < 18 {
		return domain.AgeGroupMinor
	}
	return domain.AgeGroupAdult
}
