// Feed HTTP handlers: posts, the home feed, photos and collections.
//
//   - POST   /posts                    (create)
//   - GET    /posts/{id}               (details)
//   - PUT    /posts/{id}/attachments   (replace attachments)
//   - DELETE /posts/{id}               (delete with comments and reactions)
//   - POST   /posts/{id}/pin           (toggle pin)
//   - GET    /feed                     (caller and friends)
//   - GET    /users/{id}/posts         (profile posts, pinned first)
//   - GET    /users/{id}/photos        (image attachment urls)
//   - POST   /collections              (create)
//   - GET    /collections              (list, ?owner=)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/worldfriends-backend/internal/domain"
	"github.com/tbourn/worldfriends-backend/internal/http/middleware"
	"github.com/tbourn/worldfriends-backend/internal/services"
)

// AttachmentRequest is one post attachment. URL is a blob key for images
// and an external URL for GIFs.
type AttachmentRequest struct {
	Type string `json:"type" binding:"required,oneof=image gif" example:"image"`
	URL  string `json:"url"  binding:"required,max=1024"        example:"posts/9c1e/photo.jpg"`
}

// CreatePostRequest is the JSON payload for creating a post.
type CreatePostRequest struct {
	Content      string              `json:"content"       binding:"required" example:"First day in Lisbon!"`
	Attachments  []AttachmentRequest `json:"attachments"   binding:"max=3,dive"`
	CollectionID string              `json:"collection_id"`
}

// UpdateAttachmentsRequest replaces a post's attachments.
type UpdateAttachmentsRequest struct {
	Attachments []AttachmentRequest `json:"attachments" binding:"max=3,dive"`
}

// CreateCollectionRequest is the JSON payload for creating a collection.
type CreateCollectionRequest struct {
	Title string `json:"title" binding:"required,max=100" example:"Travel"`
}

// PinResponse reports the pin state after a toggle.
type PinResponse struct {
	Pinned bool `json:"pinned"`
}

func toAttachments(in []AttachmentRequest) []domain.Attachment {
	out := make([]domain.Attachment, 0, len(in))
	for _, a := range in {
		out = append(out, domain.Attachment{Type: a.Type, URL: a.URL})
	}
	return out
}

// CreatePost godoc
// @ID          createPost
// @Summary     Publish a post
// @Tags        Feed
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       Idempotency-Key  header  string  false  "Retry-safe key"
// @Param       body  body  handlers.CreatePostRequest  true  "Post"
// @Success     201  {object}  domain.Post
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown collection"
// @Router      /posts [post]
func (h *Handlers) CreatePost(c *gin.Context) {
	var req CreatePostRequest
	if !bindJSON(c, &req) {
		return
	}
	p, err := h.svc.Posts.CreatePost(c.Request.Context(), userID(c), services.CreatePostInput{
		Content:      req.Content,
		Attachments:  toAttachments(req.Attachments),
		CollectionID: req.CollectionID,
	})
	if err != nil {
		serviceError(c, err)
		return
	}
	middleware.RecordResource(c, p.ID)
	ok(c, http.StatusCreated, p)
}

// PostDetails godoc
// @ID          postDetails
// @Summary     A single post
// @Tags        Feed
// @Produce     json
// @Security    BearerAuth
// @Param       id      path   string  true   "Post ID"
// @Param       locale  query  string  false  "Display locale"
// @Success     200  {object}  services.PostView
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /posts/{id} [get]
func (h *Handlers) PostDetails(c *gin.Context) {
	p, err := h.svc.Posts.PostDetails(c.Request.Context(), userID(c), c.Param("id"), h.locale(c, c.Query("locale")))
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

// UpdatePostAttachments godoc
// @ID          updatePostAttachments
// @Summary     Replace a post's attachments
// @Tags        Feed
// @Accept      json
// @Security    BearerAuth
// @Param       id    path  string                                true  "Post ID"
// @Param       body  body  handlers.UpdateAttachmentsRequest  true  "Attachments"
// @Success     204
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     403  {object}  handlers.ErrorResponse
// @Router      /posts/{id}/attachments [put]
func (h *Handlers) UpdatePostAttachments(c *gin.Context) {
	var req UpdateAttachmentsRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.svc.Posts.UpdatePostAttachments(c.Request.Context(), userID(c), c.Param("id"), toAttachments(req.Attachments)); err != nil {
		serviceError(c, err)
		return
	}
	noContent(c)
}

// DeletePost godoc
// @ID          deletePost
// @Summary     Delete a post with its comments and reactions
// @Tags        Feed
// @Security    BearerAuth
// @Param       id  path  string  true  "Post ID"
// @Success     204
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /posts/{id} [delete]
func (h *Handlers) DeletePost(c *gin.Context) {
	if err := h.svc.Posts.DeletePost(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		serviceError(c, err)
		return
	}
	noContent(c)
}

// TogglePin godoc
// @ID          togglePin
// @Summary     Pin or unpin one of the caller's posts
// @Tags        Feed
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Post ID"
// @Success     200  {object}  handlers.PinResponse
// @Failure     403  {object}  handlers.ErrorResponse
// @Router      /posts/{id}/pin [post]
func (h *Handlers) TogglePin(c *gin.Context) {
	pinned, err := h.svc.Posts.TogglePin(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, PinResponse{Pinned: pinned})
}

// Feed godoc
// @ID          feed
// @Summary     Posts by the caller and their friends, newest first
// @Tags        Feed
// @Produce     json
// @Security    BearerAuth
// @Param       cursor     query  string  false  "Continue cursor"
// @Param       num_items  query  int     false  "Page size"  minimum(1) maximum(100) default(20)
// @Param       locale     query  string  false  "Display locale"
// @Success     200  {object}  pagination.Page[services.PostView]
// @Router      /feed [get]
func (h *Handlers) Feed(c *gin.Context) {
	req, loc, valid := h.pageQuery(c)
	if !valid {
		return
	}
	page, err := h.svc.Posts.FeedPosts(c.Request.Context(), userID(c), loc, req)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, page)
}

// UserPosts godoc
// @ID          userPosts
// @Summary     A user's posts, pinned first
// @Tags        Feed
// @Produce     json
// @Security    BearerAuth
// @Param       id         path   string  true   "User ID"
// @Param       cursor     query  string  false  "Continue cursor"
// @Param       num_items  query  int     false  "Page size"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  pagination.Page[services.PostView]
// @Failure     403  {object}  handlers.ErrorResponse
// @Router      /users/{id}/posts [get]
func (h *Handlers) UserPosts(c *gin.Context) {
	req, loc, valid := h.pageQuery(c)
	if !valid {
		return
	}
	page, err := h.svc.Posts.UserPosts(c.Request.Context(), userID(c), c.Param("id"), loc, req)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, page)
}

// UserPhotos godoc
// @ID          userPhotos
// @Summary     Image URLs from a user's posts
// @Tags        Feed
// @Produce     json
// @Security    BearerAuth
// @Param       id         path   string  true   "User ID"
// @Param       cursor     query  string  false  "Continue cursor"
// @Param       num_items  query  int     false  "Page size"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  pagination.Page[string]
// @Router      /users/{id}/photos [get]
func (h *Handlers) UserPhotos(c *gin.Context) {
	req, _, valid := h.pageQuery(c)
	if !valid {
		return
	}
	page, err := h.svc.Posts.UserPhotos(c.Request.Context(), userID(c), c.Param("id"), req)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, page)
}

// CreateCollection godoc
// @ID          createCollection
// @Summary     Create a post collection
// @Tags        Feed
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body  handlers.CreateCollectionRequest  true  "Collection"
// @Success     201  {object}  domain.Collection
// @Failure     400  {object}  handlers.ErrorResponse
// @Router      /collections [post]
func (h *Handlers) CreateCollection(c *gin.Context) {
	var req CreateCollectionRequest
	if !bindJSON(c, &req) {
		return
	}
	col, err := h.svc.Posts.CreateCollection(c.Request.Context(), userID(c), req.Title)
	if err != nil {
		serviceError(c, err)
		return
	}
	middleware.RecordResource(c, col.ID)
	ok(c, http.StatusCreated, col)
}

// ListCollections godoc
// @ID          listCollections
// @Summary     Collections of a user (the caller by default)
// @Tags        Feed
// @Produce     json
// @Security    BearerAuth
// @Param       owner      query  string  false  "Owner user ID"
// @Param       cursor     query  string  false  "Continue cursor"
// @Param       num_items  query  int     false  "Page size"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  pagination.Page[domain.Collection]
// @Router      /collections [get]
func (h *Handlers) ListCollections(c *gin.Context) {
	req, _, valid := h.pageQuery(c)
	if !valid {
		return
	}
	page, err := h.svc.Posts.ListCollections(c.Request.Context(), userID(c), c.Query("owner"), req)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, page)
}
