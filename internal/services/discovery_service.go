package services

import (
	"context"
	"slices"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/worldfriends-backend/internal/domain"
	"github.com/tbourn/worldfriends-backend/internal/locale"
	"github.com/tbourn/worldfriends-backend/internal/pagination"
	"github.com/tbourn/worldfriends-backend/internal/repo"
	"github.com/tbourn/worldfriends-backend/internal/search"
)

// DiscoverInput holds the optional discovery filters.
type DiscoverInput struct {
	Country          string
	SpokenLanguage   string
	LearningLanguage string
	// Query re-ranks the page by similarity to the candidate's bio and
	// hobbies.
	Query string
}

// DiscoverCard is one discovery candidate.
type DiscoverCard struct {
	UserID            string   `json:"user_id"`
	ProfilePicture    string   `json:"profile_picture"`
	Name              string   `json:"name"`
	Gender            string   `json:"gender"`
	Age               int      `json:"age"`
	Country           string   `json:"country"`
	CountryName       string   `json:"country_name"`
	CountryFlag       string   `json:"country_flag"`
	SpokenLanguages   []string `json:"spoken_languages"`
	LearningLanguages []string `json:"learning_languages"`
	IsPremium         bool     `json:"is_premium"`
}

// DiscoveryService finds people the caller may befriend.
type DiscoveryService struct {
	Deps
}

// Discover returns a page of candidates sharing the caller's age group,
// most recently active first. Pages are cut on the raw candidate scan, so a
// page can hold fewer than NumItems cards after exclusions.
func (s *DiscoveryService) Discover(ctx context.Context, caller, loc string, in DiscoverInput, req pagination.PageRequest) (pagination.Page[DiscoverCard], error) {
	tr := otel.Tracer("services/DiscoveryService")
	ctx, span := tr.Start(ctx, "Discover", trace.WithAttributes(
		attribute.String("user.id", caller),
		attribute.String("filter.country", in.Country),
	))
	defer span.End()

	if requireCaller(caller) != nil {
		return pagination.Empty[DiscoverCard](), nil
	}
	cursor, err := decodeCursor(req.Cursor)
	if err != nil {
		return pagination.Page[DiscoverCard]{}, err
	}
	me, err := repo.GetUser(ctx, s.DB, caller)
	if err != nil {
		return pagination.Page[DiscoverCard]{}, mapNotFound(err, ErrUserNotFound)
	}
	myInfo, err := repo.GetUserInformation(ctx, s.DB, caller)
	if err != nil {
		return pagination.Page[DiscoverCard]{}, mapNotFound(err, ErrUserNotFound)
	}

	filter := repo.DiscoveryFilter{AgeGroup: myInfo.AgeGroup}
	if myInfo.GenderPreference {
		pref := true
		filter.GenderPreference = &pref
	}
	limit := req.Limit(pagination.DefaultNumItems, pagination.MaxNumItems)
	rows, err := repo.ListDiscoveryCandidates(ctx, s.DB, filter, cursor, limit+1)
	if err != nil {
		return pagination.Page[DiscoverCard]{}, err
	}
	raw := pagination.Build(rows, limit, func(i domain.UserInformation) pagination.Key {
		return pagination.Key{Time: i.LastActive, ID: i.ID}
	})

	ids := make([]string, 0, len(raw.Page))
	for _, i := range raw.Page {
		if i.UserID != caller {
			ids = append(ids, i.UserID)
		}
	}
	users, err := repo.GetUsers(ctx, s.DB, ids)
	if err != nil {
		return pagination.Page[DiscoverCard]{}, err
	}
	profiles, err := repo.GetProfiles(ctx, s.DB, ids)
	if err != nil {
		return pagination.Page[DiscoverCard]{}, err
	}
	blocked, err := repo.BlockedPeers(ctx, s.DB, caller)
	if err != nil {
		return pagination.Page[DiscoverCard]{}, err
	}
	friendIDs, err := repo.FriendIDs(ctx, s.DB, caller)
	if err != nil {
		return pagination.Page[DiscoverCard]{}, err
	}
	friends := make(map[string]struct{}, len(friendIDs))
	for _, id := range friendIDs {
		friends[id] = struct{}{}
	}

	f := locale.For(loc)
	now := repo.Now()
	cards := make([]DiscoverCard, 0, len(raw.Page))
	docs := make([]search.Doc, 0, len(raw.Page))
	for _, info := range raw.Page {
		u, ok := users[info.UserID]
		if !ok {
			continue
		}
		p, ok := profiles[info.UserID]
		if !ok {
			continue
		}
		if _, ok := blocked[u.ID]; ok {
			continue
		}
		if _, ok := friends[u.ID]; ok {
			continue
		}
		if (myInfo.GenderPreference || info.GenderPreference) && me.Gender != u.Gender {
			continue
		}
		if in.Country != "" && !strings.EqualFold(u.Country, in.Country) {
			continue
		}
		if in.SpokenLanguage != "" && !slices.Contains(p.SpokenLanguages, in.SpokenLanguage) {
			continue
		}
		if in.LearningLanguage != "" && !slices.Contains(p.LearningLanguages, in.LearningLanguage) {
			continue
		}
		cards = append(cards, DiscoverCard{
			UserID:            u.ID,
			ProfilePicture:    s.publicURL(u.ProfilePicture),
			Name:              u.Name,
			Gender:            u.Gender,
			Age:               Age(u.BirthDate, now),
			Country:           u.Country,
			CountryName:       f.CountryName(u.Country),
			CountryFlag:       locale.CountryFlag(u.Country),
			SpokenLanguages:   f.LanguageNames(p.SpokenLanguages),
			LearningLanguages: f.LanguageNames(p.LearningLanguages),
			IsPremium:         u.IsPremium,
		})
		docs = append(docs, search.Doc{ID: u.ID, Text: p.AboutMe + " " + strings.Join(p.Hobbies, " ")})
	}

	if q := strings.TrimSpace(in.Query); q != "" {
		cards = rerank(cards, search.Rank(q, docs, search.WithStopwords(search.DefaultStopwords), search.WithZeroScores()))
	}
	return pagination.Page[DiscoverCard]{
		Page:           cards,
		IsDone:         raw.IsDone,
		ContinueCursor: raw.ContinueCursor,
	}, nil
}

// rerank orders cards as in results. A query made only of stop words yields
// no results and leaves cards untouched.
func rerank(cards []DiscoverCard, results []search.Result) []DiscoverCard {
	if len(results) == 0 {
		return cards
	}
	byID := make(map[string]DiscoverCard, len(cards))
	for _, c := range cards {
		byID[c.UserID] = c
	}
	out := make([]DiscoverCard, 0, len(cards))
	for _, r := range results {
		if c, ok := byID[r.ID]; ok {
			out = append(out, c)
		}
	}
	return out
}
