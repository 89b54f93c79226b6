package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"wrapdesk/internal/audit"
	"wrapdesk/internal/contacts"
	"wrapdesk/internal/conversations"
	"wrapdesk/internal/messages"
	"wrapdesk/internal/phone"
)

// ListConversations serves the inbox. ?phone= focuses a thread so a deep
// link resolves even when it is archived or has no messages yet.
func (h Handlers) ListConversations(c *gin.Context) {
	convs, err := h.Conversations.List(c.Request.Context(), conversations.ListOptions{
		Focus:           c.Query("phone"),
		IncludeArchived: queryFlag(c, "archived"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

func (h Handlers) GetConversation(c *gin.Context) {
	conv, err := h.Conversations.Get(c.Request.Context(), c.Param("phone"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (h Handlers) MarkRead(c *gin.Context) {
	n, err := h.Messages.MarkRead(c.Request.Context(), c.Param("phone"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

func (h Handlers) Archive(c *gin.Context) {
	raw := c.Param("phone")
	n, err := h.Messages.Archive(c.Request.Context(), raw)
	if err != nil {
		writeError(c, err)
		return
	}
	h.Audit.Record(c.Request.Context(), audit.EventConversationArchived, phone.GroupKey(raw), "",
		"conversation archived", map[string]any{"messages": n})
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

type sendRequest struct {
	Body      string   `json:"body"`
	MediaURLs []string `json:"media_urls"`
}

// SendMessage texts the conversation's phone. A provider rejection is a 502
// and the failed message stays in the thread.
func (h Handlers) SendMessage(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	m, err := h.Messages.Send(c.Request.Context(), messages.SendInput{
		To:        c.Param("phone"),
		Body:      req.Body,
		MediaURLs: req.MediaURLs,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

// Suggestion returns who the phone resolves to now, plus a name and email
// guessed from the customer's own messages when it is unknown. The guess is
// never applied automatically.
func (h Handlers) Suggestion(c *gin.Context) {
	ctx := c.Request.Context()
	raw := c.Param("phone")

	id, known, err := h.Contacts.Lookup(ctx, raw)
	if err != nil {
		writeError(c, err)
		return
	}
	resp := gin.H{"known": known}
	if known {
		resp["identity"] = id
		c.JSON(http.StatusOK, resp)
		return
	}

	conv, err := h.Conversations.Get(ctx, raw)
	if err != nil {
		writeError(c, err)
		return
	}
	var bodies []string
	for _, m := range conv.Messages {
		if m.Direction == messages.DirectionInbound {
			bodies = append(bodies, m.Body)
		}
	}
	resp["suggestion"] = contacts.SuggestFromMessages(bodies)
	c.JSON(http.StatusOK, resp)
}

type linkRequest struct {
	CustomerID  string `json:"customer_id" binding:"required"`
	ContactName string `json:"contact_name"`
}

func (h Handlers) Link(c *gin.Context) {
	var req linkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "customer_id required"})
		return
	}
	l, err := h.Contacts.Link(c.Request.Context(), c.Param("phone"), req.CustomerID, req.ContactName)
	if err != nil {
		writeError(c, err)
		return
	}
	h.Audit.Record(c.Request.Context(), audit.EventPhoneLinked, l.Phone.String(), l.CustomerID,
		"phone linked to customer", map[string]any{"contact_name": l.ContactName})
	c.JSON(http.StatusOK, l)
}

type createCustomerRequest struct {
	contacts.NewCustomer
	ContactName string `json:"contact_name"`
}

func (h Handlers) CreateCustomer(c *gin.Context) {
	var req createCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	cust, l, err := h.Contacts.CreateAndLink(c.Request.Context(), c.Param("phone"), req.NewCustomer, req.ContactName)
	if err != nil {
		writeError(c, err)
		return
	}
	h.Audit.Record(c.Request.Context(), audit.EventCustomerCreated, l.Phone.String(), cust.ID,
		"customer created from conversation", map[string]any{"name": cust.Name, "contact_name": l.ContactName})
	c.JSON(http.StatusCreated, gin.H{"customer": cust, "link": l})
}
