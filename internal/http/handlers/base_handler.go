// README: Base handler utilities (response envelope, error mapping, request binding).
package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"urbanride/internal/apperr"
	"urbanride/internal/modules/ride"
)

// RetryAfterSeconds is advertised on 503 responses for transient failures.
const RetryAfterSeconds = 1

type errorResponse struct {
	Success bool         `json:"success"`
	Reason  string       `json:"reason"`
	Message string       `json:"message"`
	Errors  []fieldError `json:"errors,omitempty"`
}

type fieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

var registerOnce sync.Once

// RegisterValidators adds the custom binding rules used by request DTOs to
// gin's validator engine. Safe to call more than once.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("payment_method", func(fl validator.FieldLevel) bool {
			return ride.PaymentMethod(fl.Field().String()).Valid()
		})
		_ = v.RegisterValidation("ride_target", func(fl validator.FieldLevel) bool {
			return ride.IsDriverTarget(ride.Status(fl.Field().String()))
		})
	})
}

// writeJSON writes a success envelope: {"success": true, ...body}.
func writeJSON(c *gin.Context, status int, body gin.H) {
	if body == nil {
		body = gin.H{}
	}
	body["success"] = true
	c.JSON(status, body)
}

func writeFailure(c *gin.Context, status int, reason, message string) {
	c.JSON(status, errorResponse{Reason: reason, Message: message})
}

// writeError maps an error from the service layer onto a status code.
func writeError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		writeValidation(c, verrs)
		return
	}
	e, ok := apperr.As(err)
	if !ok {
		e = apperr.Fatal(err)
	}
	_ = c.Error(err)
	status := statusFor(e.Kind)
	if status == http.StatusServiceUnavailable {
		c.Header("Retry-After", strconv.Itoa(RetryAfterSeconds))
	}
	message := e.Message
	if e.Kind == apperr.KindFatal {
		message = "internal error"
	}
	writeFailure(c, status, e.Reason, message)
}

func statusFor(k apperr.Kind) int {
	switch k {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindInsufficientFunds:
		return http.StatusPaymentRequired
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeValidation(c *gin.Context, verrs validator.ValidationErrors) {
	out := make([]fieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, fieldError{Field: fe.Field(), Rule: fe.Tag()})
	}
	c.JSON(http.StatusBadRequest, errorResponse{
		Reason:  "validation_failed",
		Message: "request validation failed",
		Errors:  out,
	})
}

// bindJSON decodes and validates the body, writing a 400 on failure.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			writeValidation(c, verrs)
			return false
		}
		writeFailure(c, http.StatusBadRequest, "invalid_json", "request body is not valid JSON")
		return false
	}
	return true
}

// pathID reads a UUID path parameter, writing a 400 when it is malformed.
func pathID(c *gin.Context, name string) (string, bool) {
	v := c.Param(name)
	if _, err := uuid.Parse(v); err != nil {
		writeFailure(c, http.StatusBadRequest, "invalid_id", name+" must be a UUID")
		return "", false
	}
	return v, true
}

// queryLimit parses ?limit=, returning 0 (service default) when absent.
func queryLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeFailure(c, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
		return 0, false
	}
	return n, true
}
