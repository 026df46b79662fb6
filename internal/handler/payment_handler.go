package handler

import (
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ayukmesoh/storekeeper/internal/domain"
	"github.com/ayukmesoh/storekeeper/internal/repository"
	"github.com/ayukmesoh/storekeeper/internal/service"
)

// WebhookVerifier checks the gateway's signature on payment notifications.
type WebhookVerifier interface {
	VerifyWebhookSignature(body []byte, signature string) bool
}

// PaymentHandler handles charge initiation and gateway webhooks. A charge is
// reconciled synchronously when the gateway approves it; the webhook is then
// an idempotent confirmation.
type PaymentHandler struct {
	subs       domain.SubscriptionRepository
	shops      domain.ShopRepository
	reconciler *service.PaymentReconciler
	provider   service.PaymentProvider
	receipts   *repository.ReceiptS3Repository
	verifier   WebhookVerifier
	cache      *repository.RedisCacheRepository
}

// NewPaymentHandler creates a new payment handler. verifier and receipts may
// be nil in development setups without gateway credentials or object storage.
func NewPaymentHandler(
	subs domain.SubscriptionRepository,
	shops domain.ShopRepository,
	reconciler *service.PaymentReconciler,
	provider service.PaymentProvider,
	receipts *repository.ReceiptS3Repository,
	verifier WebhookVerifier,
	cache *repository.RedisCacheRepository,
) *PaymentHandler {
	return &PaymentHandler{
		subs:       subs,
		shops:      shops,
		reconciler: reconciler,
		provider:   provider,
		receipts:   receipts,
		verifier:   verifier,
		cache:      cache,
	}
}

// PayRequest optionally overrides the payer phone stored on the shop.
type PayRequest struct {
	PayerPhone string `json:"payer_phone"`
}

// Pay charges the shop's mobile wallet for the current billing period and
// reconciles an approved charge immediately.
// POST /api/subscriptions/:id/pay
func (h *PaymentHandler) Pay(c *fiber.Ctx) error {
	var req PayRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}
	}

	sub, err := h.subs.FindByID(c.Context(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	if err := requireShopAccess(c, sub.ShopID); err != nil {
		return writeError(c, err)
	}
	if sub.Status.Terminal() {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": "Cannot pay for a " + string(sub.Status) + " subscription",
		})
	}

	shop, err := h.shops.GetByID(c.Context(), sub.ShopID)
	if err != nil {
		return writeError(c, err)
	}
	payerPhone := req.PayerPhone
	if payerPhone == "" {
		payerPhone = shop.Phone
	}
	if payerPhone == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No payer phone on file, provide payer_phone",
		})
	}

	amount := sub.EffectivePrice(time.Now().UTC())
	result, err := h.provider.Charge(c.Context(), service.ChargeRequest{
		Amount:     amount,
		Currency:   sub.Pricing.Currency,
		Reference:  sub.ID,
		PayerPhone: payerPhone,
	})
	if err != nil {
		if errors.Is(err, domain.ErrTransient) {
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"error": "Payment gateway unavailable, please try again",
			})
		}
		return writeError(c, err)
	}

	if !result.Success {
		if _, err := h.reconciler.RecordFailure(c.Context(), sub.ID, result.ResponseMessage); err != nil {
			log.Printf("[Payment] Failed to record declined charge for %s: %v", sub.ID, err)
		}
		h.invalidate(c, sub.ShopID)
		return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{
			"success": false,
			"message": result.ResponseMessage,
		})
	}

	applied, err := h.reconciler.RecordPayment(c.Context(), sub.ID, service.PaymentEvidence{
		TransactionID: result.TransactionID,
		Method:        "momo",
		Amount:        amount,
		Currency:      sub.Pricing.Currency,
	})
	if err != nil {
		return writeError(c, err)
	}

	h.invalidate(c, sub.ShopID)
	return c.JSON(fiber.Map{
		"success": true,
		"result":  applied,
	})
}

// MomoWebhookRequest is the gateway's payment notification payload.
type MomoWebhookRequest struct {
	TransactionID string `json:"transactionId"`
	ExternalID    string `json:"externalId"`
	Status        string `json:"status"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	PayerPhone    string `json:"payerPhone"`
	Reason        string `json:"reason"`
}

// Webhook statuses sent by the gateway.
const (
	webhookStatusSuccessful = "SUCCESSFUL"
	webhookStatusFailed     = "FAILED"
)

// MomoWebhook processes a payment notification from the gateway. Always
// answers 200 for notifications that carry no actionable work, so the
// gateway does not keep retrying them.
// POST /api/payments/webhook/momo
func (h *PaymentHandler) MomoWebhook(c *fiber.Ctx) error {
	raw := c.Body()

	if h.verifier != nil {
		signature := c.Get("X-Signature")
		if !h.verifier.VerifyWebhookSignature(raw, signature) {
			log.Printf("[Webhook] Invalid signature on momo notification")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"message": "Invalid signature",
			})
		}
	} else {
		log.Printf("[Webhook] No gateway credentials configured, accepting unsigned notification")
	}

	var req MomoWebhookRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}
	if req.ExternalID == "" || req.TransactionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "externalId and transactionId are required",
		})
	}

	log.Printf("[Webhook] Momo notification: tx=%s ref=%s status=%s", req.TransactionID, req.ExternalID, req.Status)

	sub, err := h.subs.FindByID(c.Context(), req.ExternalID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Scheduler-initiated charges use opaque references and are
			// reconciled from the charge response; their webhook echo is noise.
			log.Printf("[Webhook] No subscription for reference %s, ignoring", req.ExternalID)
			return c.JSON(fiber.Map{
				"success": true,
				"message": "No matching subscription, ignored",
			})
		}
		return writeError(c, err)
	}

	switch req.Status {
	case webhookStatusSuccessful:
		return h.applySuccess(c, sub, &req, raw)
	case webhookStatusFailed:
		return h.applyFailure(c, sub, &req)
	default:
		log.Printf("[Webhook] Ignoring notification with status %q for %s", req.Status, sub.ID)
		return c.JSON(fiber.Map{
			"success": true,
			"message": "Status not actionable, ignored",
		})
	}
}

func (h *PaymentHandler) applySuccess(c *fiber.Ctx, sub *domain.Subscription, req *MomoWebhookRequest, raw []byte) error {
	amount, err := strconv.ParseInt(req.Amount, 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid amount",
		})
	}

	receiptURL := ""
	if h.receipts != nil {
		url, err := h.receipts.Store(c.Context(), sub.ShopID, req.TransactionID, raw)
		if err != nil {
			log.Printf("[Webhook] Failed to archive receipt for tx %s: %v", req.TransactionID, err)
		} else {
			receiptURL = url
		}
	}

	result, err := h.reconciler.RecordPayment(c.Context(), sub.ID, service.PaymentEvidence{
		TransactionID: req.TransactionID,
		Method:        "momo",
		Amount:        amount,
		Currency:      req.Currency,
		ReceiptURL:    receiptURL,
	})
	if err != nil {
		return writeError(c, err)
	}

	h.invalidate(c, sub.ShopID)
	if result.AlreadyApplied {
		return c.JSON(fiber.Map{
			"success": true,
			"message": "Payment already processed",
		})
	}
	return c.JSON(fiber.Map{
		"success":      true,
		"message":      "Payment processed",
		"new_end_date": result.NewEndDate,
	})
}

func (h *PaymentHandler) applyFailure(c *fiber.Ctx, sub *domain.Subscription, req *MomoWebhookRequest) error {
	if _, err := h.reconciler.RecordFailure(c.Context(), sub.ID, req.Reason); err != nil {
		// A failure notice for a trial or terminal subscription carries no
		// actionable state change.
		if errors.Is(err, domain.ErrInvalidTransition) {
			log.Printf("[Webhook] Ignoring failure notice for %s subscription %s", sub.Status, sub.ID)
			return c.JSON(fiber.Map{
				"success": true,
				"message": "Failure notice not applicable, ignored",
			})
		}
		return writeError(c, err)
	}

	h.invalidate(c, sub.ShopID)
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Payment failure recorded",
	})
}

func (h *PaymentHandler) invalidate(c *fiber.Ctx, shopID string) {
	if err := h.cache.InvalidateShopBilling(c.Context(), shopID); err != nil {
		log.Printf("[Payment] Failed to invalidate cache for shop %s: %v", shopID, err)
	}
}
