// README: User handlers: registration and profile for the authenticated caller.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"urbanride/internal/http/middleware"
	"urbanride/internal/modules/user"
	"urbanride/internal/types"
)

type UserHandler struct {
	users *user.Service
}

func NewUserHandler(svc *user.Service) *UserHandler {
	return &UserHandler{users: svc}
}

type registerReq struct {
	Name         string  `json:"name" binding:"required"`
	Email        string  `json:"email" binding:"required,email"`
	CarModel     *string `json:"car_model"`
	LicensePlate *string `json:"license_plate"`
}

type updateUserReq struct {
	Name         *string `json:"name"`
	CarModel     *string `json:"car_model"`
	LicensePlate *string `json:"license_plate"`
}

func (h *UserHandler) Register(c *gin.Context) {
	var req registerReq
	if !bindJSON(c, &req) {
		return
	}
	p, err := h.users.Register(c.Request.Context(), user.RegisterCommand{
		Caller:       middleware.Caller(c),
		Name:         req.Name,
		Email:        req.Email,
		CarModel:     req.CarModel,
		LicensePlate: req.LicensePlate,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{"user": toUser(p)})
}

func (h *UserHandler) Me(c *gin.Context) {
	p, err := h.users.Get(c.Request.Context(), types.ID(middleware.CallerUID(c)))
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"user": toUser(p)})
}

func (h *UserHandler) Update(c *gin.Context) {
	var req updateUserReq
	if !bindJSON(c, &req) {
		return
	}
	p, err := h.users.Update(c.Request.Context(), user.UpdateCommand{
		Caller:       middleware.Caller(c),
		Name:         req.Name,
		CarModel:     req.CarModel,
		LicensePlate: req.LicensePlate,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"user": toUser(p)})
}
