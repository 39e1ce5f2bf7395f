package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/taskbazaar-backend/internal/service"
)

// SignatureHeader — заголовок подписи вебхука платёжного процессора.
const SignatureHeader = "X-Payment-Signature"

const maxWebhookBodyBytes = 64 * 1024

// WebhookHandler принимает вебхуки платёжного процессора.
type WebhookHandler struct {
	payments *service.PaymentService
}

// NewWebhookHandler создаёт новый хэндлер.
func NewWebhookHandler(payments *service.PaymentService) *WebhookHandler {
	return &WebhookHandler{payments: payments}
}

// HandlePayment обрабатывает POST /api/webhooks/payment. Тело читается сырым:
// подпись считается от байтов запроса, а не от перекодированного JSON.
func (h *WebhookHandler) HandlePayment(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "не удалось прочитать тело запроса"})
		return
	}

	if err := h.payments.VerifySignature(payload, c.GetHeader(SignatureHeader)); err != nil {
		_ = c.Error(err)
		return
	}

	if err := h.payments.HandleEvent(c.Request.Context(), payload); err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
