// Package services defines the business logic for the social graph,
// messaging, feed and notifications. This file centralizes the error kinds
// returned by service methods so that handlers can map them to HTTP status
// codes consistently.
//
// Every error returned for a business-rule failure wraps exactly one of the
// kind sentinels below, so callers test with errors.Is(err, ErrNotFound)
// while the message stays specific ("post not found").
package services

import "errors"

// Error kinds.
var (
	// ErrUnauthenticated means no caller identity could be resolved.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrNotAuthorized means the caller lacks permission for the target.
	ErrNotAuthorized = errors.New("not authorized")

	// ErrNotFound means a referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument means the request failed validation.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrConflictState means the operation is invalid in the current state.
	ErrConflictState = errors.New("conflict")
)

// Error is a business-rule failure of a specific kind.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

// Unwrap exposes the kind to errors.Is.
func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Specific errors.
var (
	errNoCaller = newError(ErrUnauthenticated, "not authenticated")

	ErrBadCursor = newError(ErrInvalidArgument, "invalid cursor")

	ErrSelfTarget        = newError(ErrInvalidArgument, "cannot target yourself")
	ErrUserNotFound      = newError(ErrNotFound, "user not found")
	ErrPrivacyRestricted = newError(ErrNotAuthorized, "privacy settings do not allow this interaction")
	ErrUserBlocked       = newError(ErrNotAuthorized, "user is blocked")
	ErrAlreadyBlocked    = newError(ErrConflictState, "user already blocked")
	ErrNotBlocked        = newError(ErrNotFound, "user is not blocked")

	ErrAlreadyFriends     = newError(ErrConflictState, "already friends")
	ErrRequestPending     = newError(ErrConflictState, "a friend request is already pending")
	ErrFriendshipNotFound = newError(ErrNotFound, "friend request not found")
	ErrNotParty           = newError(ErrNotAuthorized, "not a party to this friend request")
	ErrOwnRequest         = newError(ErrNotAuthorized, "cannot answer your own friend request")
	ErrNotPending         = newError(ErrConflictState, "friend request is no longer pending")
	ErrNotFriends         = newError(ErrNotAuthorized, "users are not friends")

	ErrConversationNotFound = newError(ErrNotFound, "conversation not found")
	ErrThreadTarget         = newError(ErrInvalidArgument, "exactly one of conversation_id or group_id is required")
	ErrNotParticipant       = newError(ErrNotAuthorized, "not a participant of this thread")
	ErrEmptyContent         = newError(ErrInvalidArgument, "content is required")
	ErrAttachmentRequired   = newError(ErrInvalidArgument, "attachment is required for this message type")
	ErrMessageType          = newError(ErrInvalidArgument, "message type must be text, image or gif")
	ErrMessageNotFound      = newError(ErrNotFound, "message not found")
	ErrReplyParentNotFound  = newError(ErrNotFound, "reply parent not found")
	ErrCrossThreadReply     = newError(ErrInvalidArgument, "reply parent belongs to another thread")
	ErrNotSender            = newError(ErrNotAuthorized, "only the sender can delete this message")
	ErrCorrectOwn           = newError(ErrInvalidArgument, "cannot correct your own message")
	ErrCorrectNonText       = newError(ErrInvalidArgument, "only text messages can be corrected")

	ErrGroupNotFound  = newError(ErrNotFound, "group not found")
	ErrTitleRequired  = newError(ErrInvalidArgument, "group title is required")
	ErrNotCreator     = newError(ErrNotAuthorized, "only the group creator can do this")
	ErrCreatorLeave   = newError(ErrConflictState, "the creator cannot leave the group; delete it instead")
	ErrNotGroupMember = newError(ErrNotAuthorized, "not a member of this group")

	ErrPostNotFound         = newError(ErrNotFound, "post not found")
	ErrPostTooLong          = newError(ErrInvalidArgument, "post content is too long")
	ErrTooManyAttachments   = newError(ErrInvalidArgument, "too many attachments")
	ErrBadAttachment        = newError(ErrInvalidArgument, "attachment must have type image or gif and a url")
	ErrCollectionNotFound   = newError(ErrNotFound, "collection not found")
	ErrNotOwner             = newError(ErrNotAuthorized, "only the owner can do this")
	ErrCannotInteract       = newError(ErrNotAuthorized, "only the owner and their friends can interact with this post")
	ErrEmojiRequired        = newError(ErrInvalidArgument, "emoji is required")
	ErrCommentNotFound      = newError(ErrNotFound, "comment not found")
	ErrCommentTooLong       = newError(ErrInvalidArgument, "comment is too long")
	ErrCommentEmpty         = newError(ErrInvalidArgument, "comment content or attachment is required")
	ErrCrossPostReply       = newError(ErrInvalidArgument, "reply parent belongs to another post")
	ErrPostsNotVisible      = newError(ErrNotAuthorized, "posts are only visible to friends")
	ErrCollectionTitleEmpty = newError(ErrInvalidArgument, "collection title is required")
)
