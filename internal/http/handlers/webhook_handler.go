// README: Payment webhook: confirms pending recharges by external reference.
package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"urbanride/internal/modules/ledger"
)

const (
	HeaderSignature = "X-Signature"
	maxWebhookBody  = 64 << 10
)

type WebhookHandler struct {
	ledger *ledger.Service
	secret []byte
}

func NewWebhookHandler(svc *ledger.Service, secret string) *WebhookHandler {
	return &WebhookHandler{ledger: svc, secret: []byte(secret)}
}

type pixNotification struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

// Sign returns the hex HMAC-SHA256 of body, the value expected in X-Signature.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (h *WebhookHandler) Pix(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		writeFailure(c, http.StatusBadRequest, "invalid_body", "could not read body")
		return
	}
	got, err := hex.DecodeString(c.GetHeader(HeaderSignature))
	want, _ := hex.DecodeString(Sign(h.secret, body))
	if err != nil || !hmac.Equal(got, want) {
		writeFailure(c, http.StatusUnauthorized, "invalid_signature", "invalid signature")
		return
	}

	var n pixNotification
	if err := json.Unmarshal(body, &n); err != nil || n.Data.ID == "" {
		writeFailure(c, http.StatusBadRequest, "invalid_payload", "data.id is required")
		return
	}
	t, applied, err := h.ledger.ConfirmRecharge(c.Request.Context(), n.Data.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"applied": applied, "recharge": toTransaction(t)})
}
