package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"nrrp.app/referrals/common/logger"
	"nrrp.app/referrals/internal/http/dto"
	"nrrp.app/referrals/internal/platform"
)

type EventIngestHandler struct {
	publisher   platform.EventPublisher
	traceHeader string
}

func NewEventIngestHandler(publisher platform.EventPublisher, traceHeader string) *EventIngestHandler {
	return &EventIngestHandler{
		publisher:   publisher,
		traceHeader: traceHeader,
	}
}

func (h *EventIngestHandler) Ingest(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.MemberEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid member event", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// A caller-supplied trace ID links the worker's span to the caller's trace.
	span := logger.StartSpanFromTraceID(ctx, c.GetHeader(h.traceHeader), "http.ingest_member_event")
	defer span.End()
	ctx = logger.WithLogFields(span.Context(), logger.LogFields{InviteeID: &req.InviteeID})

	event := platform.MemberEvent{
		Kind:        platform.EventKind(req.Kind),
		InviteeID:   req.InviteeID,
		InviterID:   req.InviterID,
		InviteCode:  req.InviteCode,
		InviterName: req.InviterName,
		InviteeName: req.InviteeName,
		At:          time.Now().UTC(),
	}
	if req.At != nil {
		event.At = req.At.UTC()
	}

	if err := h.publisher.Publish(ctx, event); err != nil {
		span.RecordError(err)
		respondError(c, err, "ingest event")
		return
	}

	c.JSON(http.StatusAccepted, dto.MemberEventResponse{Accepted: true})
}
