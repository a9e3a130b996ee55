// README: Ride handlers: request, accept, status updates, cancel, lookups and chat.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"urbanride/internal/http/middleware"
	"urbanride/internal/modules/ride"
	"urbanride/internal/types"
)

type RideHandler struct {
	rides *ride.Service
}

func NewRideHandler(svc *ride.Service) *RideHandler {
	return &RideHandler{rides: svc}
}

type requestRideReq struct {
	Origin        string          `json:"origin" binding:"required,min=5"`
	Destination   string          `json:"destination" binding:"required,min=5"`
	Price         decimal.Decimal `json:"price"`
	DistanceKm    float64         `json:"distance_km" binding:"required,gt=0"`
	PaymentMethod string          `json:"payment_method" binding:"required,payment_method"`
}

type updateStatusReq struct {
	Status string `json:"status" binding:"required,ride_target"`
}

type cancelReq struct {
	Reason string `json:"reason" binding:"max=500"`
}

type messageReq struct {
	Content string `json:"content" binding:"required,max=2000"`
}

func (h *RideHandler) Request(c *gin.Context) {
	var req requestRideReq
	if !bindJSON(c, &req) {
		return
	}
	r, err := h.rides.RequestRide(c.Request.Context(), ride.RequestCommand{
		Caller:        middleware.Caller(c),
		Origin:        req.Origin,
		Destination:   req.Destination,
		Price:         req.Price,
		DistanceKm:    req.DistanceKm,
		PaymentMethod: ride.PaymentMethod(req.PaymentMethod),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{"ride": toRide(r)})
}

func (h *RideHandler) Active(c *gin.Context) {
	r, err := h.rides.GetActiveRideForUser(c.Request.Context(), types.ID(middleware.CallerUID(c)))
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"ride": toRide(r)})
}

func (h *RideHandler) Available(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	rs, err := h.rides.ListAvailableRides(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"rides": toRides(rs)})
}

func (h *RideHandler) Accept(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	r, err := h.rides.AcceptRide(c.Request.Context(), ride.AcceptCommand{
		RideID: types.ID(id),
		Caller: middleware.Caller(c),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"ride": toRide(r)})
}

func (h *RideHandler) UpdateStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req updateStatusReq
	if !bindJSON(c, &req) {
		return
	}
	r, err := h.rides.UpdateRideStatus(c.Request.Context(), ride.UpdateStatusCommand{
		RideID: types.ID(id),
		Caller: middleware.Caller(c),
		Target: ride.Status(req.Status),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"ride": toRide(r)})
}

func (h *RideHandler) Cancel(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req cancelReq
	// The body is optional.
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	r, err := h.rides.CancelRide(c.Request.Context(), ride.CancelCommand{
		RideID: types.ID(id),
		Caller: middleware.Caller(c),
		Reason: req.Reason,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"ride": toRide(r)})
}

func (h *RideHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	d, err := h.rides.GetRide(c.Request.Context(), types.ID(id), middleware.Caller(c))
	if err != nil {
		writeError(c, err)
		return
	}
	msgs := make([]messageResponse, 0, len(d.Messages))
	for i := range d.Messages {
		msgs = append(msgs, toMessage(&d.Messages[i]))
	}
	writeJSON(c, http.StatusOK, gin.H{"ride": toRide(d.Ride), "messages": msgs})
}

func (h *RideHandler) SendMessage(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req messageReq
	if !bindJSON(c, &req) {
		return
	}
	m, err := h.rides.SendMessage(c.Request.Context(), ride.MessageCommand{
		RideID:  types.ID(id),
		Caller:  middleware.Caller(c),
		Content: req.Content,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{"message": toMessage(m)})
}
