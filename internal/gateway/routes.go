package gateway

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aniket1251/opd-token-allocation-engine/internal/civildate"
	"github.com/aniket1251/opd-token-allocation-engine/internal/engine"
	"github.com/aniket1251/opd-token-allocation-engine/internal/priority"
	"github.com/aniket1251/opd-token-allocation-engine/internal/slot"
	"github.com/aniket1251/opd-token-allocation-engine/internal/storage"
	"github.com/aniket1251/opd-token-allocation-engine/internal/token"
	"github.com/aniket1251/opd-token-allocation-engine/internal/txn"
	"github.com/aniket1251/opd-token-allocation-engine/pkg/circuit"
)

// CreateTokenRequest is the wire shape for POST /api/v1/tokens (spec §6
// "already-validated Go values" is the engine's contract; parsing and
// enum/date validation happens here, at the transport boundary).
type CreateTokenRequest struct {
	DoctorID       string `json:"doctor_id" binding:"required"`
	Date           string `json:"date" binding:"required"`
	IdempotencyKey string `json:"idempotency_key" binding:"required"`
	PatientName    string `json:"patient_name" binding:"required"`
	Phone          string `json:"phone" binding:"required"`
	Age            int    `json:"age"`
	Notes          string `json:"notes"`
	Source         string `json:"source" binding:"required"`
	Priority       string `json:"priority" binding:"required"`
}

type CancelTokenRequest struct {
	Reason string `json:"reason"`
}

// tokenResponse is the wire shape for a token in any API response.
// internal/token.Token's Status field is an unexported tagged-variant
// interface (spec §9 — no nullable slotId field to serialize by
// accident), so responses are built through this view rather than
// marshaling the domain type directly.
type tokenResponse struct {
	ID          uuid.UUID `json:"id"`
	DisplayID   string    `json:"display_id"`
	DoctorID    uuid.UUID `json:"doctor_id"`
	Date        string    `json:"date"`
	PatientName string    `json:"patient_name"`
	Phone       string    `json:"phone"`
	Source      string    `json:"source"`
	Priority    string    `json:"priority"`
	Status      string    `json:"status"`
	SlotID      string    `json:"slot_id,omitempty"`
}

func viewToken(t *token.Token) tokenResponse {
	v := tokenResponse{
		ID:          t.ID,
		DisplayID:   t.DisplayID,
		DoctorID:    t.DoctorID,
		Date:        t.Date.String(),
		PatientName: t.PatientName,
		Phone:       t.Phone,
		Source:      string(t.Source),
		Priority:    t.Priority.String(),
		Status:      string(t.Status.Kind()),
	}
	if slotID, ok := t.SlotID(); ok {
		v.SlotID = slotID.String()
	}
	return v
}

func viewTokens(tokens []*token.Token) []tokenResponse {
	views := make([]tokenResponse, len(tokens))
	for i, t := range tokens {
		views[i] = viewToken(t)
	}
	return views
}

// slotResponse is the wire shape for a slot. capacity.Cap is an unexported
// Unlimited|Limit(n) sum type for the same reason token.Status is, so
// PaidCap/FollowUpCap go through Cap.Value rather than the struct itself.
type slotResponse struct {
	ID          uuid.UUID `json:"id"`
	DisplayID   string    `json:"display_id"`
	DoctorID    uuid.UUID `json:"doctor_id"`
	Date        string    `json:"date"`
	StartTime   string    `json:"start_time"`
	EndTime     string    `json:"end_time"`
	Capacity    int       `json:"capacity"`
	PaidCap     *int      `json:"paid_cap,omitempty"`
	FollowUpCap *int      `json:"follow_up_cap,omitempty"`
	IsActive    bool      `json:"is_active"`
}

func viewSlot(s *slot.Slot) *slotResponse {
	if s == nil {
		return nil
	}
	v := slotResponse{
		ID:        s.ID,
		DisplayID: s.DisplayID,
		DoctorID:  s.DoctorID,
		Date:      s.Date.String(),
		StartTime: s.StartTime.String(),
		EndTime:   s.EndTime.String(),
		Capacity:  s.Capacity,
		IsActive:  s.IsActive,
	}
	if n, limited := s.PaidCap.Value(); limited {
		v.PaidCap = &n
	}
	if n, limited := s.FollowUpCap.Value(); limited {
		v.FollowUpCap = &n
	}
	return &v
}

func (g *Gateway) createToken(c *gin.Context) {
	var req CreateTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	doctorID, err := uuid.Parse(req.DoctorID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid doctor_id"})
		return
	}
	date, err := civildate.ParseDate(req.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date, expected DD-MM-YYYY"})
		return
	}
	src, err := token.ParseSource(req.Source)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid source"})
		return
	}
	prio, err := priority.Parse(req.Priority)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid priority"})
		return
	}

	var result *engine.CreateResult
	err = g.breakers.Execute(c.Request.Context(), "engine", func() error {
		var execErr error
		result, execErr = g.engine.CreateToken(c.Request.Context(), engine.CreateInput{
			DoctorID:       doctorID,
			Date:           date,
			IdempotencyKey: req.IdempotencyKey,
			PatientName:    req.PatientName,
			Phone:          req.Phone,
			Age:            req.Age,
			Notes:          req.Notes,
			Source:         src,
			Priority:       prio,
		})
		return execErr
	})
	if err != nil {
		g.writeError(c, err)
		return
	}

	g.cache.Invalidate(c.Request.Context(), doctorID, date)
	g.refreshAndBroadcast(c, doctorID, date)

	c.JSON(http.StatusCreated, gin.H{
		"token":     viewToken(result.Token),
		"slot":      viewSlot(result.Slot),
		"displaced": viewTokens(result.Displaced),
		"message":   result.Message,
	})
}

func (g *Gateway) cancelToken(c *gin.Context) {
	tokenID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid token id"})
		return
	}

	var req CancelTokenRequest
	_ = c.ShouldBindJSON(&req)

	result, err := g.engine.CancelToken(c.Request.Context(), tokenID, req.Reason)
	if err != nil {
		g.writeError(c, err)
		return
	}

	g.cache.Invalidate(c.Request.Context(), result.Cancelled.DoctorID, result.Cancelled.Date)
	g.refreshAndBroadcast(c, result.Cancelled.DoctorID, result.Cancelled.Date)

	c.JSON(http.StatusOK, gin.H{
		"cancelled": viewToken(result.Cancelled),
		"promoted":  viewTokens(result.Promoted),
		"message":   result.Message,
	})
}

func (g *Gateway) markNoShow(c *gin.Context) {
	tokenID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid token id"})
		return
	}

	result, err := g.engine.MarkNoShow(c.Request.Context(), tokenID)
	if err != nil {
		g.writeError(c, err)
		return
	}

	g.cache.Invalidate(c.Request.Context(), result.NoShow.DoctorID, result.NoShow.Date)
	g.refreshAndBroadcast(c, result.NoShow.DoctorID, result.NoShow.Date)

	c.JSON(http.StatusOK, gin.H{
		"no_show":  viewToken(result.NoShow),
		"promoted": viewTokens(result.Promoted),
		"message":  result.Message,
	})
}

func (g *Gateway) completeToken(c *gin.Context) {
	tokenID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid token id"})
		return
	}

	if err := g.engine.CompleteToken(c.Request.Context(), tokenID); err != nil {
		g.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "completed"})
}

func (g *Gateway) expireWaiting(c *gin.Context) {
	doctorID, err := uuid.Parse(c.Param("doctorId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid doctor id"})
		return
	}
	date, err := civildate.ParseDate(c.Query("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date, expected DD-MM-YYYY"})
		return
	}

	count, err := g.engine.ExpireWaiting(c.Request.Context(), doctorID, date)
	if err != nil {
		g.writeError(c, err)
		return
	}

	g.cache.Invalidate(c.Request.Context(), doctorID, date)
	g.refreshAndBroadcast(c, doctorID, date)

	c.JSON(http.StatusOK, gin.H{"expired": count})
}

func (g *Gateway) getSnapshot(c *gin.Context) {
	doctorID, err := uuid.Parse(c.Param("doctorId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid doctor id"})
		return
	}
	date, err := civildate.ParseDate(c.Query("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date, expected DD-MM-YYYY"})
		return
	}

	snap, err := g.cache.Get(c.Request.Context(), doctorID, date, g.loader)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load snapshot"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// refreshAndBroadcast reloads the now-stale snapshot and pushes it to
// connected feed subscribers, best-effort — a broadcast failure never
// rolls back the write that already committed.
func (g *Gateway) refreshAndBroadcast(c *gin.Context, doctorID uuid.UUID, date civildate.Date) {
	snap, err := g.cache.Get(c.Request.Context(), doctorID, date, g.loader)
	if err != nil {
		return
	}
	_ = g.feed.Broadcast(snap)
}

func (g *Gateway) handleWebSocket(c *gin.Context) {
	doctorID, err := uuid.Parse(c.Query("doctorId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid doctorId"})
		return
	}
	date, err := civildate.ParseDate(c.Query("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date, expected DD-MM-YYYY"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	g.feed.Subscribe(doctorID, date, conn)
}

// writeError maps the engine's sentinel error taxonomy (spec §7) onto HTTP
// status codes, matching the teacher's circuit.ErrCircuitOpen special-case
// in internal/gateway/gateway.go's createOrder.
func (g *Gateway) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, circuit.ErrCircuitOpen):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service temporarily unavailable"})
	case errors.Is(err, engine.ErrDoctorNotFound), errors.Is(err, engine.ErrTokenNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrDoctorInactive),
		errors.Is(err, engine.ErrAlreadyCancelled),
		errors.Is(err, engine.ErrCannotCancelCompleted),
		errors.Is(err, engine.ErrInvalidStatusForAction),
		errors.Is(err, token.ErrInvalidStatus),
		errors.Is(err, slot.ErrCapacityBelowCurrent):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, storage.ErrConflict), errors.Is(err, txn.ErrLockUnavailable):
		c.JSON(http.StatusConflict, gin.H{"error": "storage conflict, retry"})
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
