package services

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/worldfriends-backend/internal/domain"
	"github.com/tbourn/worldfriends-backend/internal/locale"
	"github.com/tbourn/worldfriends-backend/internal/repo"
)

// Profile outcomes.
const (
	ProfileVisible           = "visible"
	ProfileOwn               = "own_profile"
	ProfilePrivacyRestricted = "privacy_restricted"
)

// ProfileView is a user's profile as seen by the caller. When Outcome is
// not ProfileVisible only Outcome and User are populated.
type ProfileView struct {
	Outcome           string      `json:"outcome"`
	User              UserSummary `json:"user"`
	Gender            string      `json:"gender,omitempty"`
	Age               int         `json:"age,omitempty"`
	AboutMe           string      `json:"about_me,omitempty"`
	SpokenLanguages   []string    `json:"spoken_languages,omitempty"`
	LearningLanguages []string    `json:"learning_languages,omitempty"`
	Hobbies           []string    `json:"hobbies,omitempty"`
	IsFriend          bool        `json:"is_friend"`
	HasPendingRequest bool        `json:"has_pending_request"`
}

// CurrentUserView is the caller's own account.
type CurrentUserView struct {
	User              domain.User `json:"user"`
	ProfilePictureURL string      `json:"profile_picture_url"`
	Age               int         `json:"age"`
	AgeGroup          string      `json:"age_group"`
	GenderPreference  bool        `json:"gender_preference"`
	AboutMe           string      `json:"about_me"`
	SpokenLanguages   []string    `json:"spoken_languages"`
	LearningLanguages []string    `json:"learning_languages"`
	Hobbies           []string    `json:"hobbies"`
}

// UserService serves profile reads.
type UserService struct {
	Deps
	Privacy *PrivacyGate
}

// Profile returns target's profile as visible to caller.
func (s *UserService) Profile(ctx context.Context, caller, target, loc string) (*ProfileView, error) {
	tr := otel.Tracer("services/UserService")
	ctx, span := tr.Start(ctx, "Profile", trace.WithAttributes(
		attribute.String("user.id", caller),
		attribute.String("target.id", target),
	))
	defer span.End()

	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	u, err := repo.GetUser(ctx, s.DB, target)
	if err != nil {
		return nil, mapNotFound(err, ErrUserNotFound)
	}
	f := locale.For(loc)
	view := &ProfileView{User: s.summary(*u, f)}
	if caller == target {
		view.Outcome = ProfileOwn
		return view, nil
	}

	blocked, err := s.Privacy.Blocked(ctx, s.DB, caller, target)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, ErrUserBlocked
	}
	ok, err := s.Privacy.Compatible(ctx, s.DB, caller, target)
	if err != nil {
		return nil, err
	}
	if !ok {
		view.Outcome = ProfilePrivacyRestricted
		return view, nil
	}

	view.Outcome = ProfileVisible
	view.Gender = u.Gender
	view.Age = Age(u.BirthDate, repo.Now())
	p, err := repo.GetProfile(ctx, s.DB, target)
	switch {
	case err == nil:
		view.AboutMe = p.AboutMe
		view.SpokenLanguages = f.LanguageNames(p.SpokenLanguages)
		view.LearningLanguages = f.LanguageNames(p.LearningLanguages)
		view.Hobbies = p.Hobbies
	case !errors.Is(err, repo.ErrNotFound):
		return nil, err
	}

	fr, err := repo.GetFriendshipByPair(ctx, s.DB, caller, target)
	switch {
	case err == nil:
		view.IsFriend = fr.Status == domain.FriendshipAccepted
		view.HasPendingRequest = fr.Status == domain.FriendshipPending
	case !errors.Is(err, repo.ErrNotFound):
		return nil, err
	}
	return view, nil
}

// CurrentProfile returns the caller's own account with derived age fields.
func (s *UserService) CurrentProfile(ctx context.Context, caller string) (*CurrentUserView, error) {
	tr := otel.Tracer("services/UserService")
	ctx, span := tr.Start(ctx, "CurrentProfile", trace.WithAttributes(attribute.String("user.id", caller)))
	defer span.End()

	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	u, err := repo.GetUser(ctx, s.DB, caller)
	if err != nil {
		return nil, mapNotFound(err, ErrUserNotFound)
	}
	now := repo.Now()
	// Fetching the own profile is the client's heartbeat; discovery orders
	// candidates by it.
	if err := repo.TouchLastActive(ctx, s.DB, caller, now); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("user_id", caller).Msg("last active not recorded")
	}
	view := &CurrentUserView{
		User:              *u,
		ProfilePictureURL: s.publicURL(u.ProfilePicture),
		Age:               Age(u.BirthDate, now),
		AgeGroup:          AgeGroupFor(u.BirthDate, now),
	}
	if info, err := repo.GetUserInformation(ctx, s.DB, caller); err == nil {
		view.AgeGroup = info.AgeGroup
		view.GenderPreference = info.GenderPreference
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	if p, err := repo.GetProfile(ctx, s.DB, caller); err == nil {
		view.AboutMe = p.AboutMe
		view.SpokenLanguages = p.SpokenLanguages
		view.LearningLanguages = p.LearningLanguages
		view.Hobbies = p.Hobbies
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	return view, nil
}
