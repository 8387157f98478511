package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ayushichauhan770/civicseva-api/internal/dto"
	"github.com/ayushichauhan770/civicseva-api/internal/models"
	appErrors "github.com/ayushichauhan770/civicseva-api/pkg/errors"
	"github.com/ayushichauhan770/civicseva-api/pkg/response"
)

type applicationService interface {
	Submit(ctx context.Context, citizenID string, req dto.SubmitApplicationRequest) (*models.Application, error)
	ListUnassigned(ctx context.Context, query dto.UnassignedQuery) ([]models.Application, error)
	Accept(ctx context.Context, applicationID, officialID string) (*models.Application, error)
	Transition(ctx context.Context, applicationID string, actor *models.JWTClaims, req dto.TransitionRequest) (*models.Application, error)
	Get(ctx context.Context, id string) (*models.Application, error)
	GetByTrackingCode(ctx context.Context, code string) (*models.Application, error)
	History(ctx context.Context, applicationID string) ([]models.ApplicationHistory, error)
	ExportTimeline(ctx context.Context, applicationID, format string) ([]byte, string, error)
}

type feedbackService interface {
	SubmitFeedback(ctx context.Context, applicationID string, actor *models.JWTClaims, req dto.FeedbackRequest) (*models.Application, error)
	Eligibility(ctx context.Context, applicationID string, actor *models.JWTClaims) (*dto.FeedbackEligibility, error)
}

// ApplicationHandler exposes REST endpoints for the application lifecycle.
type ApplicationHandler struct {
	service  applicationService
	feedback feedbackService
}

// NewApplicationHandler constructs the handler.
func NewApplicationHandler(service applicationService, feedback feedbackService) *ApplicationHandler {
	return &ApplicationHandler{service: service, feedback: feedback}
}

// Submit godoc
// @Summary Submit a new application
// @Tags Applications
// @Accept json
// @Produce json
// @Param payload body dto.SubmitApplicationRequest true "Application payload"
// @Success 201 {object} response.Envelope
// @Router /applications [post]
func (h *ApplicationHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.SubmitApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid application payload"))
		return
	}
	app, err := h.service.Submit(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, dto.FromApplication(app), nil)
}

// ListUnassigned godoc
// @Summary List applications awaiting acceptance, oldest first
// @Tags Applications
// @Produce json
// @Param after_submitted_at query string false "Cursor: submission time of the last seen application"
// @Param after_id query string false "Cursor: id of the last seen application"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /applications/unassigned [get]
func (h *ApplicationHandler) ListUnassigned(c *gin.Context) {
	var query dto.UnassignedQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid cursor parameters"))
		return
	}
	apps, err := h.service.ListUnassigned(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	responses := make([]*dto.ApplicationResponse, 0, len(apps))
	for i := range apps {
		responses = append(responses, dto.FromApplication(&apps[i]))
	}
	response.JSON(c, http.StatusOK, responses, nil)
}

// Accept godoc
// @Summary Accept an unassigned application
// @Tags Applications
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/accept [post]
func (h *ApplicationHandler) Accept(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	app, err := h.service.Accept(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		h.respondConflictAware(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.FromApplication(app), nil)
}

// Transition godoc
// @Summary Change the status of an application
// @Tags Applications
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.TransitionRequest true "Target status and optional comment"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/status [post]
func (h *ApplicationHandler) Transition(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid transition payload"))
		return
	}
	app, err := h.service.Transition(c.Request.Context(), c.Param("id"), claims, req)
	if err != nil {
		h.respondConflictAware(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.FromApplication(app), nil)
}

// Get godoc
// @Summary Get application detail
// @Tags Applications
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /applications/{id} [get]
func (h *ApplicationHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	app, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if !mayView(claims, app) {
		response.Error(c, appErrors.ErrForbidden)
		return
	}
	response.JSON(c, http.StatusOK, dto.FromApplication(app), nil)
}

// Track godoc
// @Summary Look up an application by tracking code
// @Tags Applications
// @Produce json
// @Param code path string true "Tracking code"
// @Success 200 {object} response.Envelope
// @Router /applications/track/{code} [get]
func (h *ApplicationHandler) Track(c *gin.Context) {
	app, err := h.service.GetByTrackingCode(c.Request.Context(), strings.TrimSpace(c.Param("code")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.FromApplication(app), nil)
}

// History godoc
// @Summary List the status history of an application
// @Tags Applications
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/history [get]
func (h *ApplicationHandler) History(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	app, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if !mayView(claims, app) {
		response.Error(c, appErrors.ErrForbidden)
		return
	}
	rows, err := h.service.History(c.Request.Context(), app.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}

// Export godoc
// @Summary Export the application timeline as CSV or PDF
// @Tags Applications
// @Produce octet-stream
// @Param id path string true "Application ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Router /applications/{id}/export [get]
func (h *ApplicationHandler) Export(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	app, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if !mayView(claims, app) {
		response.Error(c, appErrors.ErrForbidden)
		return
	}
	format := c.DefaultQuery("format", "csv")
	data, filename, err := h.service.ExportTimeline(c.Request.Context(), app.ID, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	contentType := "text/csv"
	if strings.EqualFold(format, "pdf") {
		contentType = "application/pdf"
	}
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, contentType, data)
}

// SubmitFeedback godoc
// @Summary Record the citizen's verdict on a closed application
// @Tags Applications
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.FeedbackRequest true "Feedback payload"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/feedback [post]
func (h *ApplicationHandler) SubmitFeedback(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid feedback payload"))
		return
	}
	app, err := h.feedback.SubmitFeedback(c.Request.Context(), c.Param("id"), claims, req)
	if err != nil {
		h.respondConflictAware(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.FromApplication(app), nil)
}

// FeedbackEligibility godoc
// @Summary Check whether feedback is currently open
// @Tags Applications
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/feedback/eligibility [get]
func (h *ApplicationHandler) FeedbackEligibility(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	eligibility, err := h.feedback.Eligibility(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, eligibility, nil)
}

// respondConflictAware attaches the authoritative current state to 409
// responses so racing clients can resynchronize instead of retrying.
func (h *ApplicationHandler) respondConflictAware(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	if appErr.Status != http.StatusConflict {
		response.Error(c, err)
		return
	}
	current, getErr := h.service.Get(c.Request.Context(), c.Param("id"))
	if getErr != nil {
		response.Error(c, err)
		return
	}
	response.ConflictWithState(c, err, dto.FromApplication(current))
}

// mayView restricts citizens to their own applications. Officials and
// admins see everything.
func mayView(claims *models.JWTClaims, app *models.Application) bool {
	if claims.Role != models.RoleCitizen {
		return true
	}
	return app.CitizenID == claims.UserID
}
