package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"underwriting-service/internal/ledger"
	"underwriting-service/internal/models"
	"underwriting-service/internal/services"
	"underwriting-service/internal/utils"

	"github.com/gofiber/fiber/v3"
)

type UnderwritingHandler struct {
	underwritingService *services.UnderwritingService
}

func NewUnderwritingHandler(underwritingService *services.UnderwritingService) *UnderwritingHandler {
	return &UnderwritingHandler{
		underwritingService: underwritingService,
	}
}

func (h *UnderwritingHandler) Register(app *fiber.App) {
	protectedGr := app.Group("underwriting/protected/api/v1")
	protectedGr.Put("/tiers/:tier", h.SetBasePremiumTier)
	protectedGr.Put("/discounts/:farmer_id", h.SetPremiumDiscount)
	protectedGr.Post("/risk-scores", h.SubmitRiskScore)
	protectedGr.Post("/policy-submissions", h.MarkPolicySubmitted)
	protectedGr.Post("/admin/transfer", h.TransferAdmin)
	protectedGr.Post("/snapshots", h.ExportSnapshot)
	protectedGr.Get("/snapshots", h.ListSnapshots)

	publicGr := app.Group("underwriting/public/api/v1")
	publicGr.Get("/tiers", h.ListTiers)
	publicGr.Get("/discounts/:farmer_id", h.GetDiscount)
	publicGr.Get("/risk-scores/:farmer_id/:crop_type/:season", h.GetRiskScore)
	publicGr.Get("/base-premium", h.GetBasePremium)
	publicGr.Get("/premiums/:farmer_id/:crop_type/:season", h.CalculateFinalPremium)
	publicGr.Get("/policy-submissions/:farmer_id/:season", h.HasSubmittedPolicy)
	publicGr.Get("/admin", h.GetAdmin)
}

// ============================================================================
// ERROR MAPPING
// ============================================================================

func statusForLedgerError(kind ledger.ErrorKind) int {
	switch kind {
	case ledger.KindNotAdmin:
		return http.StatusForbidden
	case ledger.KindScoreNotFound:
		return http.StatusNotFound
	case ledger.KindScoreAlreadySubmitted:
		return http.StatusConflict
	case ledger.KindScoreOutOfRange:
		return http.StatusBadRequest
	case ledger.KindTierRateNotConfigured:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c fiber.Ctx, err error) error {
	var ledgerErr *ledger.Error
	if errors.As(err, &ledgerErr) {
		return c.Status(statusForLedgerError(ledgerErr.Kind)).JSON(
			utils.CreateErrorResponse(ledgerErr.Code(), ledgerErr.Message))
	}
	if errors.Is(err, services.ErrArchiveUnavailable) {
		return c.Status(http.StatusServiceUnavailable).JSON(
			utils.CreateErrorResponse("ARCHIVE_UNAVAILABLE", err.Error()))
	}

	slog.Error("underwriting request failed", "path", c.Path(), "error", err)
	return c.Status(http.StatusInternalServerError).JSON(
		utils.CreateErrorResponse("INTERNAL_ERROR", "Failed to process underwriting request"))
}

func callerFrom(c fiber.Ctx) (ledger.Principal, bool) {
	userID := strings.TrimSpace(c.Get("X-User-ID"))
	return ledger.Principal(userID), userID != ""
}

func unauthorized(c fiber.Ctx) error {
	return c.Status(http.StatusUnauthorized).JSON(
		utils.CreateErrorResponse("UNAUTHORIZED", "User ID is required"))
}

func badRequest(c fiber.Ctx, code, message string) error {
	return c.Status(http.StatusBadRequest).JSON(utils.CreateErrorResponse(code, message))
}

func scoreKeyFrom(c fiber.Ctx) ledger.ScoreKey {
	return ledger.ScoreKey{
		FarmerID: ledger.Principal(c.Params("farmer_id")),
		CropType: c.Params("crop_type"),
		Season:   c.Params("season"),
	}
}

// ============================================================================
// ADMIN HANDLERS
// ============================================================================

func (h *UnderwritingHandler) SetBasePremiumTier(c fiber.Ctx) error {
	caller, ok := callerFrom(c)
	if !ok {
		return unauthorized(c)
	}
	if !h.underwritingService.IsAdmin(caller) {
		return writeError(c, ledger.ErrNotAdmin)
	}

	tier, err := strconv.Atoi(c.Params("tier"))
	if err != nil {
		return badRequest(c, "INVALID_TIER", "Tier must be an integer")
	}

	var req models.SetTierRateRequest
	if err := c.Bind().Body(&req); err != nil {
		slog.Error("error parsing request", "error", err)
		return badRequest(c, "INVALID_REQUEST", "Invalid request body")
	}
	if err := req.Validate(); err != nil {
		return badRequest(c, "VALIDATION_FAILED", err.Error())
	}

	if err := h.underwritingService.SetBasePremiumTier(c.Context(), caller, tier, *req.RateBps); err != nil {
		return writeError(c, err)
	}

	return c.Status(http.StatusOK).JSON(utils.CreateVersionedResponse(
		ledger.TierRate{Tier: tier, RateBps: *req.RateBps},
		h.underwritingService.Ledger().Version()))
}

func (h *UnderwritingHandler) SetPremiumDiscount(c fiber.Ctx) error {
	caller, ok := callerFrom(c)
	if !ok {
		return unauthorized(c)
	}
	if !h.underwritingService.IsAdmin(caller) {
		return writeError(c, ledger.ErrNotAdmin)
	}

	farmerID := ledger.Principal(c.Params("farmer_id"))

	var req models.SetDiscountRequest
	if err := c.Bind().Body(&req); err != nil {
		slog.Error("error parsing request", "error", err)
		return badRequest(c, "INVALID_REQUEST", "Invalid request body")
	}
	if err := req.Validate(); err != nil {
		return badRequest(c, "VALIDATION_FAILED", err.Error())
	}

	if err := h.underwritingService.SetPremiumDiscount(c.Context(), caller, farmerID, *req.DiscountBps); err != nil {
		return writeError(c, err)
	}

	return c.Status(http.StatusOK).JSON(utils.CreateVersionedResponse(
		h.underwritingService.GetDiscount(farmerID),
		h.underwritingService.Ledger().Version()))
}

func (h *UnderwritingHandler) SubmitRiskScore(c fiber.Ctx) error {
	caller, ok := callerFrom(c)
	if !ok {
		return unauthorized(c)
	}
	if !h.underwritingService.IsAdmin(caller) {
		return writeError(c, ledger.ErrNotAdmin)
	}

	var req models.SubmitRiskScoreRequest
	if err := c.Bind().Body(&req); err != nil {
		slog.Error("error parsing request", "error", err)
		return badRequest(c, "INVALID_REQUEST", "Invalid request body")
	}
	if err := req.Validate(); err != nil {
		return badRequest(c, "VALIDATION_FAILED", err.Error())
	}

	key := ledger.ScoreKey{
		FarmerID: ledger.Principal(strings.TrimSpace(req.FarmerID)),
		CropType: strings.TrimSpace(req.CropType),
		Season:   strings.TrimSpace(req.Season),
	}
	score, err := req.ScoreValue()
	if err != nil {
		return badRequest(c, "VALIDATION_FAILED", err.Error())
	}
	if err := h.underwritingService.SubmitRiskScore(c.Context(), caller, key, score); err != nil {
		return writeError(c, err)
	}

	return c.Status(http.StatusCreated).JSON(utils.CreateVersionedResponse(
		models.RiskScoreResponse{
			FarmerID: string(key.FarmerID),
			CropType: key.CropType,
			Season:   key.Season,
			Score:    score,
		},
		h.underwritingService.Ledger().Version()))
}

func (h *UnderwritingHandler) MarkPolicySubmitted(c fiber.Ctx) error {
	caller, ok := callerFrom(c)
	if !ok {
		return unauthorized(c)
	}
	if !h.underwritingService.IsAdmin(caller) {
		return writeError(c, ledger.ErrNotAdmin)
	}

	var req models.MarkPolicySubmittedRequest
	if err := c.Bind().Body(&req); err != nil {
		slog.Error("error parsing request", "error", err)
		return badRequest(c, "INVALID_REQUEST", "Invalid request body")
	}
	if err := req.Validate(); err != nil {
		return badRequest(c, "VALIDATION_FAILED", err.Error())
	}

	key := ledger.SubmissionKey{
		FarmerID: ledger.Principal(strings.TrimSpace(req.FarmerID)),
		Season:   strings.TrimSpace(req.Season),
	}
	if err := h.underwritingService.MarkPolicySubmitted(c.Context(), caller, key); err != nil {
		return writeError(c, err)
	}

	return c.Status(http.StatusOK).JSON(utils.CreateVersionedResponse(
		h.underwritingService.HasSubmittedPolicy(key),
		h.underwritingService.Ledger().Version()))
}

func (h *UnderwritingHandler) TransferAdmin(c fiber.Ctx) error {
	caller, ok := callerFrom(c)
	if !ok {
		return unauthorized(c)
	}
	if !h.underwritingService.IsAdmin(caller) {
		return writeError(c, ledger.ErrNotAdmin)
	}

	var req models.TransferAdminRequest
	if err := c.Bind().Body(&req); err != nil {
		slog.Error("error parsing request", "error", err)
		return badRequest(c, "INVALID_REQUEST", "Invalid request body")
	}
	if err := req.Validate(); err != nil {
		return badRequest(c, "VALIDATION_FAILED", err.Error())
	}

	newAdmin := ledger.Principal(strings.TrimSpace(req.NewAdmin))
	if err := h.underwritingService.TransferAdmin(c.Context(), caller, newAdmin); err != nil {
		return writeError(c, err)
	}

	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(h.underwritingService.GetAdmin()))
}

func (h *UnderwritingHandler) ExportSnapshot(c fiber.Ctx) error {
	caller, ok := callerFrom(c)
	if !ok {
		return unauthorized(c)
	}
	if !h.underwritingService.IsAdmin(caller) {
		return writeError(c, ledger.ErrNotAdmin)
	}

	snapshot, err := h.underwritingService.ExportSnapshot(c.Context(), caller)
	if err != nil {
		return writeError(c, err)
	}

	return c.Status(http.StatusCreated).JSON(utils.CreateVersionedResponse(snapshot, snapshot.Version))
}

func (h *UnderwritingHandler) ListSnapshots(c fiber.Ctx) error {
	caller, ok := callerFrom(c)
	if !ok {
		return unauthorized(c)
	}
	if !h.underwritingService.IsAdmin(caller) {
		return writeError(c, ledger.ErrNotAdmin)
	}

	links, err := h.underwritingService.ListSnapshots(c.Context(), caller)
	if err != nil {
		return writeError(c, err)
	}

	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(map[string]any{
		"snapshots": links,
		"count":     len(links),
	}))
}

// ============================================================================
// READ-ONLY HANDLERS
// ============================================================================

func (h *UnderwritingHandler) ListTiers(c fiber.Ctx) error {
	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(map[string]any{
		"tiers": h.underwritingService.ListTiers(),
	}))
}

func (h *UnderwritingHandler) GetDiscount(c fiber.Ctx) error {
	farmerID := ledger.Principal(c.Params("farmer_id"))
	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(h.underwritingService.GetDiscount(farmerID)))
}

func (h *UnderwritingHandler) GetRiskScore(c fiber.Ctx) error {
	score, err := h.underwritingService.GetRiskScore(scoreKeyFrom(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(score))
}

func (h *UnderwritingHandler) GetBasePremium(c fiber.Ctx) error {
	score, err := models.ParseScore(c.Query("score"))
	if err != nil {
		return badRequest(c, "INVALID_SCORE", "score query parameter must be an integer")
	}

	premium, err := h.underwritingService.GetBasePremium(score)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(premium))
}

func (h *UnderwritingHandler) CalculateFinalPremium(c fiber.Ctx) error {
	quote, err := h.underwritingService.CalculateFinalPremium(c.Context(), scoreKeyFrom(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(http.StatusOK).JSON(utils.CreateVersionedResponse(quote, quote.Version))
}

func (h *UnderwritingHandler) HasSubmittedPolicy(c fiber.Ctx) error {
	key := ledger.SubmissionKey{
		FarmerID: ledger.Principal(c.Params("farmer_id")),
		Season:   c.Params("season"),
	}
	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(h.underwritingService.HasSubmittedPolicy(key)))
}

func (h *UnderwritingHandler) GetAdmin(c fiber.Ctx) error {
	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(h.underwritingService.GetAdmin()))
}
