package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/worldfriends-backend/internal/domain"
	"github.com/tbourn/worldfriends-backend/internal/locale"
	"github.com/tbourn/worldfriends-backend/internal/repo"
)

// UserSummary is the public card of a user embedded in list items.
type UserSummary struct {
	ID             string `json:"id"`
	UserName       string `json:"user_name"`
	Name           string `json:"name"`
	ProfilePicture string `json:"profile_picture"`
	Country        string `json:"country"`
	CountryName    string `json:"country_name"`
	CountryFlag    string `json:"country_flag"`
	IsPremium      bool   `json:"is_premium"`
}

// MessagePreview is the short form of a message used for reply parents and
// last-message snippets.
type MessagePreview struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Type       string    `json:"type"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}

// users loads summaries for ids, resolving picture URLs and localizing the
// country name. Unknown ids are absent from the result.
func (d *Deps) users(ctx context.Context, db *gorm.DB, ids []string, loc *locale.Formatter) (map[string]UserSummary, error) {
	rows, err := repo.GetUsers(ctx, db, unique(ids))
	if err != nil {
		return nil, err
	}
	out := make(map[string]UserSummary, len(rows))
	for id, u := range rows {
		out[id] = d.summary(u, loc)
	}
	return out, nil
}

func (d *Deps) summary(u domain.User, loc *locale.Formatter) UserSummary {
	if loc == nil {
		loc = locale.For("")
	}
	return UserSummary{
		ID:             u.ID,
		UserName:       u.UserName,
		Name:           u.Name,
		ProfilePicture: d.publicURL(u.ProfilePicture),
		Country:        u.Country,
		CountryName:    loc.CountryName(u.Country),
		CountryFlag:    locale.CountryFlag(u.Country),
		IsPremium:      u.IsPremium,
	}
}

// previews loads message previews (with sender names) for ids.
func previews(ctx context.Context, db *gorm.DB, ids []string) (map[string]MessagePreview, error) {
	msgs, err := repo.GetMessages(ctx, db, unique(ids))
	if err != nil {
		return nil, err
	}
	senders := make([]string, 0, len(msgs))
	for _, m := range msgs {
		senders = append(senders, m.SenderID)
	}
	names, err := repo.GetUsers(ctx, db, unique(senders))
	if err != nil {
		return nil, err
	}
	out := make(map[string]MessagePreview, len(msgs))
	for id, m := range msgs {
		out[id] = preview(m, names[m.SenderID].Name)
	}
	return out, nil
}

func preview(m domain.Message, senderName string) MessagePreview {
	if senderName == "" {
		senderName = "Unknown"
	}
	return MessagePreview{
		ID:         m.ID,
		SenderID:   m.SenderID,
		SenderName: senderName,
		Type:       m.Type,
		Content:    m.Content,
		CreatedAt:  m.CreatedAt,
	}
}

// unique returns ids without blanks or duplicates, preserving order.
func unique(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
