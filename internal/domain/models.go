// Package domain defines the persistence models for the social graph,
// messaging, and feed. These types are mapped with GORM and form the core
// data layer shared by the repository and service packages.
//
// All primary keys are UUID strings (char(36)). CreatedAt is always set by
// the repository in UTC and, together with ID as a tie-breaker, is the
// ordering key for every paginated scan.
package domain

import "time"

// Gender values accepted on User.Gender.
const (
	GenderMale   = "male"
	GenderFemale = "female"
	GenderOther  = "other"
)

// Age groups stored on UserInformation.AgeGroup.
const (
	AgeGroupMinor = "13-17"
	AgeGroupAdult = "18-100"
)

// User is the public identity of an account.
//
// Fields:
//   - UserName: unique handle.
//   - ProfilePicture: blob storage key, resolved to a URL on read.
//   - BirthDate: calendar date in YYYY-MM-DD form.
//   - Country: ISO-3166 alpha-2 code, or "OTHER".
type User struct {
	ID             string    `json:"id"              gorm:"type:char(36);primaryKey"`
	UserName       string    `json:"user_name"       gorm:"type:varchar(64);not null;uniqueIndex:ux_users_username"`
	Name           string    `json:"name"            gorm:"type:varchar(255);not null"`
	ProfilePicture string    `json:"profile_picture" gorm:"type:varchar(512)"`
	Gender         string    `json:"gender"          gorm:"type:varchar(16);not null;check:gender IN ('male','female','other')"`
	BirthDate      string    `json:"birth_date"      gorm:"type:varchar(10);not null"`
	Country        string    `json:"country"         gorm:"type:varchar(8);not null"`
	IsPremium      bool      `json:"is_premium"      gorm:"not null;default:false"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// UserInformation holds the privacy settings consulted by the privacy gate
// and by discovery.
type UserInformation struct {
	ID               string    `json:"id"                gorm:"type:char(36);primaryKey"`
	UserID           string    `json:"user_id"           gorm:"type:char(36);not null;uniqueIndex:ux_userinfo_user"`
	GenderPreference bool      `json:"gender_preference" gorm:"not null;default:false;index:idx_userinfo_discovery,priority:2"`
	AgeGroup         string    `json:"age_group"         gorm:"type:varchar(8);not null;index:idx_userinfo_discovery,priority:1"`
	LastActive       time.Time `json:"last_active"       gorm:"index:idx_userinfo_discovery,priority:3"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// TableName returns the database table name for UserInformation.
func (UserInformation) TableName() string { return "user_information" }

// Profile is the free-form, user-editable part of an account.
type Profile struct {
	ID                string    `json:"id"                 gorm:"type:char(36);primaryKey"`
	UserID            string    `json:"user_id"            gorm:"type:char(36);not null;uniqueIndex:ux_profiles_user"`
	AboutMe           string    `json:"about_me"           gorm:"type:text"`
	SpokenLanguages   []string  `json:"spoken_languages"   gorm:"type:text;serializer:json"`
	LearningLanguages []string  `json:"learning_languages" gorm:"type:text;serializer:json"`
	Hobbies           []string  `json:"hobbies"            gorm:"type:text;serializer:json"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// TableName returns the database table name for Profile.
func (Profile) TableName() string { return "profiles" }

// Block records that BlockerID does not want any contact with BlockedID.
type Block struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	BlockerID string    `json:"blocker_id" gorm:"type:char(36);not null;uniqueIndex:ux_blocks_pair,priority:1"`
	BlockedID string    `json:"blocked_id" gorm:"type:char(36);not null;uniqueIndex:ux_blocks_pair,priority:2;index"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for Block.
func (Block) TableName() string { return "blocks" }

// Friendship statuses.
const (
	FriendshipPending  = "pending"
	FriendshipAccepted = "accepted"
)

// Friendship is the single row describing the relationship between an
// unordered pair of users. UserAID is always the lexicographically smaller
// id, so the unique index on (user_a_id, user_b_id) allows at most one row
// per pair. SenderID is the user who sent the original request.
type Friendship struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	UserAID   string    `json:"user_a_id"  gorm:"type:char(36);not null;uniqueIndex:ux_friendships_pair,priority:1;index:idx_friendships_a,priority:1"`
	UserBID   string    `json:"user_b_id"  gorm:"type:char(36);not null;uniqueIndex:ux_friendships_pair,priority:2;index:idx_friendships_b,priority:1"`
	Status    string    `json:"status"     gorm:"type:varchar(16);not null;check:status IN ('pending','accepted');index:idx_friendships_a,priority:2;index:idx_friendships_b,priority:2"`
	SenderID  string    `json:"sender_id"  gorm:"type:char(36);not null"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_friendships_a,priority:3;index:idx_friendships_b,priority:3"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Friendship.
func (Friendship) TableName() string { return "friendships" }

// Other returns the participant of f that is not userID.
func (f *Friendship) Other(userID string) string {
	if f.UserAID == userID {
		return f.UserBID
	}
	return f.UserAID
}

// Involves reports whether userID is one of the two participants.
func (f *Friendship) Involves(userID string) bool {
	return f.UserAID == userID || f.UserBID == userID
}

// Conversation is one participant's view of a 1:1 thread. Every direct
// conversation is stored as two rows, one per participant, sharing the same
// ConversationID and LastMessageID but with independent unread flags.
type Conversation struct {
	ID                string    `json:"id"                  gorm:"type:char(36);primaryKey"`
	ConversationID    string    `json:"conversation_id"     gorm:"type:varchar(80);not null;index"`
	UserID            string    `json:"user_id"             gorm:"type:char(36);not null;uniqueIndex:ux_conversations_owner,priority:1;index:idx_conversations_inbox,priority:1"`
	OtherUserID       string    `json:"other_user_id"       gorm:"type:char(36);not null;uniqueIndex:ux_conversations_owner,priority:2"`
	LastMessageID     *string   `json:"last_message_id"     gorm:"type:char(36)"`
	LastMessageTime   time.Time `json:"last_message_time"   gorm:"index:idx_conversations_inbox,priority:2"`
	HasUnreadMessages bool      `json:"has_unread_messages" gorm:"not null;default:false"`
	CreatedAt         time.Time `json:"created_at"`
}

// TableName returns the database table name for Conversation.
func (Conversation) TableName() string { return "conversations" }

// Group is a multi-member chat. MembersCount mirrors the number of
// GroupMember rows and is maintained in the same transaction as them.
type Group struct {
	ID           string    `json:"id"            gorm:"type:char(36);primaryKey"`
	Title        string    `json:"title"         gorm:"type:varchar(255);not null"`
	Description  string    `json:"description"   gorm:"type:text"`
	Banner       string    `json:"banner"        gorm:"type:varchar(512)"`
	MembersCount int       `json:"members_count" gorm:"not null;default:0"`
	CreatorID    string    `json:"creator_id"    gorm:"type:char(36);not null;index"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the database table name for Group. "groups" is a
// reserved word in MySQL.
func (Group) TableName() string { return "chat_groups" }

// GroupMember links a user to a group. LastReadAt is nil until the member
// first opens the thread.
type GroupMember struct {
	ID         string     `json:"id"           gorm:"type:char(36);primaryKey"`
	GroupID    string     `json:"group_id"     gorm:"type:char(36);not null;uniqueIndex:ux_group_members,priority:1"`
	UserID     string     `json:"user_id"      gorm:"type:char(36);not null;uniqueIndex:ux_group_members,priority:2;index:idx_group_members_user,priority:1"`
	LastReadAt *time.Time `json:"last_read_at"`
	CreatedAt  time.Time  `json:"created_at"   gorm:"index:idx_group_members_user,priority:2"`
}

// TableName returns the database table name for GroupMember.
func (GroupMember) TableName() string { return "group_members" }

// Message types.
const (
	MessageText  = "text"
	MessageImage = "image"
	MessageGIF   = "gif"
)

// Message belongs to exactly one thread: either a direct conversation
// (ConversationID, the shared "a-b" key) or a group (GroupID). Build rows
// with SetThread and read them back with Thread so the two columns are never
// both set.
type Message struct {
	ID             string    `json:"id"                        gorm:"type:char(36);primaryKey"`
	ConversationID *string   `json:"conversation_id,omitempty" gorm:"type:varchar(80);index:idx_messages_conversation,priority:1"`
	GroupID        *string   `json:"group_id,omitempty"        gorm:"type:char(36);index:idx_messages_group,priority:1"`
	SenderID       string    `json:"sender_id"                 gorm:"type:char(36);not null;index"`
	Type           string    `json:"type"                      gorm:"type:varchar(8);not null;check:type IN ('text','image','gif')"`
	Content        string    `json:"content"                   gorm:"type:text"`
	Attachment     string    `json:"attachment,omitempty"      gorm:"type:varchar(512)"`
	ReplyParentID  *string   `json:"reply_parent_id,omitempty" gorm:"type:char(36)"`
	Correction     string    `json:"correction,omitempty"      gorm:"type:text"`
	CreatedAt      time.Time `json:"created_at"                gorm:"index:idx_messages_conversation,priority:2;index:idx_messages_group,priority:2"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// Attachment kinds on posts.
const (
	AttachmentImage = "image"
	AttachmentGIF   = "gif"
)

// Attachment is a media reference on a post. For images URL is a blob key;
// for gifs it is an external URL used verbatim.
type Attachment struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// Post is a feed entry. ReactionsCount and CommentsCount are denormalized
// and only ever adjusted alongside the child row they count.
type Post struct {
	ID             string       `json:"id"              gorm:"type:char(36);primaryKey"`
	UserID         string       `json:"user_id"         gorm:"type:char(36);not null;index:idx_posts_user,priority:1"`
	CollectionID   *string      `json:"collection_id"   gorm:"type:char(36);index"`
	Content        string       `json:"content"         gorm:"type:text;not null"`
	Attachments    []Attachment `json:"attachments"     gorm:"type:text;serializer:json"`
	ReactionsCount int          `json:"reactions_count" gorm:"not null;default:0"`
	CommentsCount  int          `json:"comments_count"  gorm:"not null;default:0"`
	IsPinned       bool         `json:"is_pinned"       gorm:"not null;default:false;index:idx_posts_user,priority:2"`
	CreatedAt      time.Time    `json:"created_at"      gorm:"index:idx_posts_user,priority:3;index"`
}

// TableName returns the database table name for Post.
func (Post) TableName() string { return "posts" }

// HasImage reports whether the post carries at least one image attachment.
func (p *Post) HasImage() bool {
	for _, a := range p.Attachments {
		if a.Type == AttachmentImage {
			return true
		}
	}
	return false
}

// Collection groups a user's posts. PostsCount is floored at zero.
type Collection struct {
	ID         string    `json:"id"          gorm:"type:char(36);primaryKey"`
	UserID     string    `json:"user_id"     gorm:"type:char(36);not null;index"`
	Title      string    `json:"title"       gorm:"type:varchar(255);not null"`
	PostsCount int       `json:"posts_count" gorm:"not null;default:0"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName returns the database table name for Collection.
func (Collection) TableName() string { return "collections" }

// Comment is a post comment or, when ReplyParentID is set, a reply to
// another comment on the same post.
type Comment struct {
	ID            string    `json:"id"              gorm:"type:char(36);primaryKey"`
	PostID        string    `json:"post_id"         gorm:"type:char(36);not null;index:idx_comments_post,priority:1"`
	UserID        string    `json:"user_id"         gorm:"type:char(36);not null"`
	Content       string    `json:"content"         gorm:"type:text"`
	ReplyParentID *string   `json:"reply_parent_id" gorm:"type:char(36);index:idx_comments_parent,priority:1"`
	RepliesCount  int       `json:"replies_count"   gorm:"not null;default:0"`
	Attachment    string    `json:"attachment"      gorm:"type:varchar(512)"`
	CreatedAt     time.Time `json:"created_at"      gorm:"index:idx_comments_post,priority:2;index:idx_comments_parent,priority:2"`
}

// TableName returns the database table name for Comment.
func (Comment) TableName() string { return "comments" }

// Reaction is a user's single emoji on a post.
type Reaction struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string    `json:"user_id"    gorm:"type:char(36);not null;uniqueIndex:ux_reactions_user_post,priority:1"`
	PostID    string    `json:"post_id"    gorm:"type:char(36);not null;uniqueIndex:ux_reactions_user_post,priority:2;index:idx_reactions_post,priority:1"`
	Emoji     string    `json:"emoji"      gorm:"type:varchar(32);not null"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_reactions_post,priority:2"`
}

// TableName returns the database table name for Reaction.
func (Reaction) TableName() string { return "reactions" }

// Letter is a long-form message between two friends. Letters in either
// direction are removed when the friendship ends.
type Letter struct {
	ID          string    `json:"id"           gorm:"type:char(36);primaryKey"`
	SenderID    string    `json:"sender_id"    gorm:"type:char(36);not null;index"`
	RecipientID string    `json:"recipient_id" gorm:"type:char(36);not null;index"`
	Content     string    `json:"content"      gorm:"type:text;not null"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName returns the database table name for Letter.
func (Letter) TableName() string { return "letters" }

// Notification types.
const (
	NotifyFriendRequestSent     = "friend_request_sent"
	NotifyFriendRequestAccepted = "friend_request_accepted"
	NotifyFriendRequestRejected = "friend_request_rejected"
	NotifyFriendRemoved         = "friend_removed"
	NotifyConversationDeleted   = "conversation_deleted"
	NotifyUserBlocked           = "user_blocked"
	NotifyPostReaction          = "post_reaction"
	NotifyPostCommented         = "post_commented"
	NotifyCommentReplied        = "comment_replied"
)

// Notification is an append-only activity record for RecipientID.
type Notification struct {
	ID          string    `json:"id"           gorm:"type:char(36);primaryKey"`
	RecipientID string    `json:"recipient_id" gorm:"type:char(36);not null;index:idx_notifications_recipient,priority:1"`
	SenderID    string    `json:"sender_id"    gorm:"type:char(36);not null"`
	Type        string    `json:"type"         gorm:"type:varchar(32);not null"`
	HasUnread   bool      `json:"has_unread"   gorm:"not null;default:true"`
	CreatedAt   time.Time `json:"created_at"   gorm:"index:idx_notifications_recipient,priority:2"`
}

// TableName returns the database table name for Notification.
func (Notification) TableName() string { return "notifications" }
