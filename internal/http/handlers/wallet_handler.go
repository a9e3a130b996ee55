// README: Wallet handlers: balance, history and recharge requests.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"urbanride/internal/http/middleware"
	"urbanride/internal/modules/ledger"
	"urbanride/internal/types"
)

type WalletHandler struct {
	ledger *ledger.Service
}

func NewWalletHandler(svc *ledger.Service) *WalletHandler {
	return &WalletHandler{ledger: svc}
}

type rechargeReq struct {
	Amount decimal.Decimal `json:"amount"`
}

func (h *WalletHandler) Balance(c *gin.Context) {
	acct, err := h.ledger.Balance(c.Request.Context(), types.ID(middleware.CallerUID(c)))
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"balance": balanceResponse{
		PrepaidCredits: money(acct.PrepaidCredits),
		PayableBalance: money(acct.PayableBalance),
		Currency:       types.Currency,
	}})
}

func (h *WalletHandler) History(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	txs, err := h.ledger.History(c.Request.Context(), types.ID(middleware.CallerUID(c)), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]transactionResponse, 0, len(txs))
	for i := range txs {
		out = append(out, toTransaction(&txs[i]))
	}
	writeJSON(c, http.StatusOK, gin.H{"transactions": out})
}

// Recharge records a pending credit; the payment provider confirms it later
// through the webhook using the returned external_ref.
func (h *WalletHandler) Recharge(c *gin.Context) {
	var req rechargeReq
	if !bindJSON(c, &req) {
		return
	}
	t, err := h.ledger.RequestRecharge(c.Request.Context(), ledger.RechargeCommand{
		UserID: types.ID(middleware.CallerUID(c)),
		Amount: req.Amount,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{"recharge": toTransaction(t)})
}
