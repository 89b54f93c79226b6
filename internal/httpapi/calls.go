package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"wrapdesk/internal/audit"
	"wrapdesk/internal/reporting"
	"wrapdesk/internal/team"
)

func (h Handlers) ListCalls(c *gin.Context) {
	list, err := h.Calls.List(c.Request.Context(), queryInt(c, "limit", 100))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": list})
}

func (h Handlers) GetCall(c *gin.Context) {
	call, err := h.Calls.Get(c.Request.Context(), c.Param("sid"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, call)
}

// CallsSummary takes RFC 3339 ?from= and ?to=, defaulting to the last 7 days.
func (h Handlers) CallsSummary(c *gin.Context) {
	now := time.Now().UTC()
	r := reporting.TimeRange{From: now.AddDate(0, 0, -7), To: now}
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be RFC 3339"})
			return
		}
		r.From = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be RFC 3339"})
			return
		}
		r.To = t
	}
	out, err := h.Reporting.CallsSummary(c.Request.Context(), r)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) ListTeamPhones(c *gin.Context) {
	phones, err := h.Team.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"team_phones": phones})
}

// SaveTeamPhone creates or updates a forwarding target. Owner only.
func (h Handlers) SaveTeamPhone(c *gin.Context) {
	var req team.SaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	p, err := h.Team.Save(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	h.Audit.Record(c.Request.Context(), audit.EventTeamPhoneSaved, p.Number, "",
		"team phone saved", map[string]any{"id": p.ID, "name": p.Name, "enabled": p.Enabled, "ring_order": p.RingOrder})
	c.JSON(http.StatusOK, p)
}

func (h Handlers) ListAudit(c *gin.Context) {
	evs, err := h.Audit.Recent(c.Request.Context(), queryInt(c, "limit", 100))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": evs})
}
