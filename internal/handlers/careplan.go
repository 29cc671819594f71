package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/harborlight/careledger-backend/internal/logger"
	"github.com/harborlight/careledger-backend/internal/requestdata"
	"github.com/harborlight/careledger-backend/internal/services"
)

type CarePlanHandler struct {
	log             *logger.Logger
	carePlanService services.CarePlanService
}

func NewCarePlanHandler(log *logger.Logger, carePlanService services.CarePlanService) *CarePlanHandler {
	return &CarePlanHandler{
		log:             log.With("handler", "CarePlanHandler"),
		carePlanService: carePlanService,
	}
}

type carePlanBody struct {
	AssessmentDate *time.Time      `json:"assessment_date"`
	AssessedBy     string          `json:"assessed_by"`
	ApprovedBy     string          `json:"approved_by"`
	StartDate      *time.Time      `json:"start_date"`
	ReviewDate     *time.Time      `json:"review_date"`
	Payload        json.RawMessage `json:"payload"`
}

func (b carePlanBody) toInput() services.CarePlanInput {
	return services.CarePlanInput{
		AssessmentDate: b.AssessmentDate,
		AssessedBy:     b.AssessedBy,
		ApprovedBy:     b.ApprovedBy,
		StartDate:      b.StartDate,
		ReviewDate:     b.ReviewDate,
		Payload:        b.Payload,
	}
}

func requestActor(c *gin.Context) string {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil {
		return ""
	}
	return rd.Actor
}

func respondLifecycle(c *gin.Context, result *services.LifecycleResult) {
	body := gin.H{"care_plan": result.Plan}
	if result.AuditWarning != nil {
		body["warning"] = result.AuditWarning.Error()
	}
	RespondOK(c, body)
}

func (h *CarePlanHandler) Create(c *gin.Context) {
	clientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_client_id", err)
		return
	}
	var body carePlanBody
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}

	result, err := h.carePlanService.Create(c.Request.Context(), clientID, body.toInput(), requestActor(c))
	if err != nil {
		h.log.Error("Create care plan failed", "error", err, "client_id", clientID)
		RespondServiceError(c, err)
		return
	}
	respondLifecycle(c, result)
}

func (h *CarePlanHandler) Update(c *gin.Context) {
	versionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_version_id", err)
		return
	}
	var body carePlanBody
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}

	result, err := h.carePlanService.Update(c.Request.Context(), versionID, body.toInput(), requestActor(c))
	if err != nil {
		h.log.Error("Update care plan failed", "error", err, "version_id", versionID)
		RespondServiceError(c, err)
		return
	}
	respondLifecycle(c, result)
}

func (h *CarePlanHandler) Restore(c *gin.Context) {
	versionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_version_id", err)
		return
	}
	var body struct {
		ClientID uuid.UUID `json:"client_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}

	result, err := h.carePlanService.Restore(c.Request.Context(), versionID, body.ClientID, requestActor(c))
	if err != nil {
		h.log.Error("Restore care plan failed", "error", err, "version_id", versionID, "client_id", body.ClientID)
		RespondServiceError(c, err)
		return
	}
	respondLifecycle(c, result)
}

func (h *CarePlanHandler) Delete(c *gin.Context) {
	versionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_version_id", err)
		return
	}

	result, err := h.carePlanService.Delete(c.Request.Context(), versionID, requestActor(c))
	if err != nil {
		h.log.Error("Delete care plan failed", "error", err, "version_id", versionID)
		RespondServiceError(c, err)
		return
	}
	body := gin.H{"deleted": true}
	if result.AuditWarning != nil {
		body["warning"] = result.AuditWarning.Error()
	}
	RespondOK(c, body)
}

func (h *CarePlanHandler) GetActive(c *gin.Context) {
	clientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_client_id", err)
		return
	}

	plan, err := h.carePlanService.GetActive(c.Request.Context(), clientID)
	if err != nil {
		h.log.Error("Get active care plan failed", "error", err, "client_id", clientID)
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"care_plan": plan})
}

func (h *CarePlanHandler) GetHistory(c *gin.Context) {
	clientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_client_id", err)
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			RespondError(c, http.StatusBadRequest, "invalid_limit", err)
			return
		}
		limit = parsed
	}

	plans, err := h.carePlanService.GetHistory(c.Request.Context(), clientID, limit)
	if err != nil {
		h.log.Error("Get care plan history failed", "error", err, "client_id", clientID)
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"care_plans": plans})
}
