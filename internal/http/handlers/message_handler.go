// Message HTTP handlers.
//
// Messages live in a thread: a direct conversation or a group. Writes address
// the thread in the body; reads and read markers address it by path.
//
//   - POST   /messages                          (send)
//   - DELETE /messages/{id}                     (delete own message)
//   - POST   /messages/{id}/correction          (correct a friend's message)
//   - GET    /conversations/{id}/messages       (direct thread page)
//   - POST   /conversations/{id}/read           (mark direct thread read)
//   - GET    /groups/{id}/messages              (group thread page)
//   - POST   /groups/{id}/read                  (mark group thread read)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/worldfriends-backend/internal/domain"
	"github.com/tbourn/worldfriends-backend/internal/http/middleware"
	"github.com/tbourn/worldfriends-backend/internal/services"
)

// SendMessageRequest is the JSON payload for sending a message. Exactly one
// of ConversationID and GroupID must be set.
type SendMessageRequest struct {
	ConversationID string `json:"conversation_id" binding:"required_without=GroupID" example:"0d9b8c1e-31f2-4c55-9e59-6a3c2b1d4e7f"`
	GroupID        string `json:"group_id"`
	// Type is text, image or gif.
	Type          string `json:"type"            binding:"required,oneof=text image gif" example:"text"`
	Content       string `json:"content"         binding:"max=4000" example:"Γεια σου!"`
	Attachment    string `json:"attachment"      binding:"max=1024"`
	ReplyParentID string `json:"reply_parent_id"`
}

// CorrectMessageRequest is the JSON payload for correcting a message.
type CorrectMessageRequest struct {
	Correction string `json:"correction" binding:"required,max=4000" example:"Γεια σας!"`
}

// SendMessage godoc
// @ID          sendMessage
// @Summary     Send a message to a conversation or group
// @Tags        Messages
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       Idempotency-Key  header  string  false  "Retry-safe key"
// @Param       body  body  handlers.SendMessageRequest  true  "Message"
// @Success     201  {object}  domain.Message
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     403  {object}  handlers.ErrorResponse  "Not a participant"
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /messages [post]
func (h *Handlers) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if !bindJSON(c, &req) {
		return
	}
	thread, err := domain.NewThread(req.ConversationID, req.GroupID)
	if err != nil {
		serviceError(c, services.ErrThreadTarget)
		return
	}
	msg, err := h.svc.Messages.SendMessage(c.Request.Context(), userID(c), services.SendMessageInput{
		Thread:        thread,
		Type:          req.Type,
		Content:       req.Content,
		Attachment:    req.Attachment,
		ReplyParentID: req.ReplyParentID,
	})
	if err != nil {
		serviceError(c, err)
		return
	}
	middleware.RecordResource(c, msg.ID)
	ok(c, http.StatusCreated, msg)
}

// DeleteMessage godoc
// @ID          deleteMessage
// @Summary     Delete one of the caller's messages
// @Description Removes the message from its thread. For a direct conversation the
// @Description last-message preview of both participants is recomputed from what remains.
// @Tags        Messages
// @Security    BearerAuth
// @Param       id  path  string  true  "Message ID"
// @Success     204
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /messages/{id} [delete]
func (h *Handlers) DeleteMessage(c *gin.Context) {
	if err := h.svc.Messages.DeleteMessage(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		serviceError(c, err)
		return
	}
	noContent(c)
}

// CorrectMessage godoc
// @ID          correctMessage
// @Summary     Attach a correction to a friend's message
// @Tags        Messages
// @Accept      json
// @Security    BearerAuth
// @Param       id    path  string                              true  "Message ID"
// @Param       body  body  handlers.CorrectMessageRequest  true  "Correction"
// @Success     204
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     403  {object}  handlers.ErrorResponse
// @Router      /messages/{id}/correction [post]
func (h *Handlers) CorrectMessage(c *gin.Context) {
	var req CorrectMessageRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.svc.Messages.CorrectMessage(c.Request.Context(), userID(c), c.Param("id"), req.Correction); err != nil {
		serviceError(c, err)
		return
	}
	noContent(c)
}

// ConversationMessages godoc
// @ID          conversationMessages
// @Summary     Messages of a direct conversation, newest first
// @Tags        Messages
// @Produce     json
// @Security    BearerAuth
// @Param       id         path   string  true   "Conversation ID"
// @Param       cursor     query  string  false  "Continue cursor"
// @Param       num_items  query  int     false  "Page size"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  pagination.Page[services.MessageView]
// @Router      /conversations/{id}/messages [get]
func (h *Handlers) ConversationMessages(c *gin.Context) {
	h.threadMessages(c, domain.DirectThread(c.Param("id")))
}

// GroupMessages godoc
// @ID          groupMessages
// @Summary     Messages of a group, newest first
// @Tags        Messages
// @Produce     json
// @Security    BearerAuth
// @Param       id         path   string  true   "Group ID"
// @Param       cursor     query  string  false  "Continue cursor"
// @Param       num_items  query  int     false  "Page size"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  pagination.Page[services.MessageView]
// @Router      /groups/{id}/messages [get]
func (h *Handlers) GroupMessages(c *gin.Context) {
	h.threadMessages(c, domain.GroupThread(c.Param("id")))
}

func (h *Handlers) threadMessages(c *gin.Context, t domain.Thread) {
	req, _, valid := h.pageQuery(c)
	if !valid {
		return
	}
	page, err := h.svc.Messages.Messages(c.Request.Context(), userID(c), t, req)
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, page)
}

// MarkConversationRead godoc
// @ID          markConversationRead
// @Summary     Mark a direct conversation read
// @Tags        Messages
// @Security    BearerAuth
// @Param       id  path  string  true  "Conversation ID"
// @Success     204
// @Router      /conversations/{id}/read [post]
func (h *Handlers) MarkConversationRead(c *gin.Context) {
	h.markRead(c, domain.DirectThread(c.Param("id")))
}

// MarkGroupRead godoc
// @ID          markGroupRead
// @Summary     Mark a group read
// @Tags        Messages
// @Security    BearerAuth
// @Param       id  path  string  true  "Group ID"
// @Success     204
// @Router      /groups/{id}/read [post]
func (h *Handlers) MarkGroupRead(c *gin.Context) {
	h.markRead(c, domain.GroupThread(c.Param("id")))
}

func (h *Handlers) markRead(c *gin.Context, t domain.Thread) {
	if err := h.svc.Messages.MarkRead(c.Request.Context(), userID(c), t); err != nil {
		serviceError(c, err)
		return
	}
	noContent(c)
}
