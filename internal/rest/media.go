package rest

import (
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/salonkit/mediavault/media/application"
	"github.com/salonkit/mediavault/media/domain"
)

// MediaHandler exposes the catalog to the admin UI and upload widgets.
type MediaHandler struct {
	catalog             *application.CatalogService
	statsIncludeDeleted bool
}

func NewMediaHandler(catalog *application.CatalogService, statsIncludeDeleted bool) *MediaHandler {
	return &MediaHandler{
		catalog:             catalog,
		statsIncludeDeleted: statsIncludeDeleted,
	}
}

// actorFromHeaders reads the already-resolved actor identity. Session
// handling lives upstream; these headers are set by the gateway after
// authentication.
func actorFromHeaders(c *gin.Context) (domain.Actor, bool) {
	actorID, err := uuid.Parse(c.GetHeader("X-Actor-Id"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid X-Actor-Id header"})
		return domain.Actor{}, false
	}

	actor := domain.Actor{
		ID:   actorID,
		Role: domain.Role(c.GetHeader("X-Actor-Role")),
	}

	if salon := c.GetHeader("X-Actor-Salon"); salon != "" {
		salonID, err := uuid.Parse(salon)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid X-Actor-Salon header"})
			return domain.Actor{}, false
		}
		actor.SalonID = salonID
	}

	return actor, true
}

// assetResponse is the wire shape of an asset.
type assetResponse struct {
	ID           string     `json:"id"`
	OwnerID      string     `json:"ownerId"`
	SalonID      string     `json:"salonId"`
	URL          string     `json:"url"`
	OriginalName string     `json:"originalName"`
	MimeType     string     `json:"mimeType"`
	SizeBytes    int64      `json:"sizeBytes"`
	Category     string     `json:"category"`
	AltText      string     `json:"altText,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	DeletedAt    *time.Time `json:"deletedAt,omitempty"`
}

func toAssetResponse(a *domain.Asset) assetResponse {
	return assetResponse{
		ID:           a.ID.String(),
		OwnerID:      a.OwnerID.String(),
		SalonID:      a.SalonID.String(),
		URL:          a.URL,
		OriginalName: a.OriginalName,
		MimeType:     a.MimeType,
		SizeBytes:    a.SizeBytes,
		Category:     string(a.Category),
		AltText:      a.AltText,
		CreatedAt:    a.CreatedAt,
		DeletedAt:    a.DeletedAt,
	}
}

// writeError maps catalog error kinds onto HTTP statuses. Anything without a
// kind is a plain 500.
func writeError(c *gin.Context, err error) {
	e, ok := domain.AsError(err)
	if !ok {
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("Request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "code": "internal"})
		return
	}

	body := gin.H{"error": e.Message, "code": string(e.Kind)}

	var status int
	switch e.Kind {
	case domain.ErrUnsupportedMedia:
		status = http.StatusUnsupportedMediaType
	case domain.ErrPayloadTooLarge:
		status = http.StatusRequestEntityTooLarge
	case domain.ErrNotFound:
		status = http.StatusNotFound
	case domain.ErrForbidden:
		status = http.StatusForbidden
	case domain.ErrInUse:
		status = http.StatusConflict
		body["usages"] = e.Usages
	case domain.ErrNeedsConfirmation:
		status = http.StatusPreconditionRequired
		body["confirmationToken"] = e.ConfirmationToken
	case domain.ErrConflict:
		status = http.StatusConflict
	case domain.ErrResolverFailure:
		status = http.StatusConflict
		body["failedResolvers"] = e.FailedResolvers
		if len(e.Usages) > 0 {
			body["usages"] = e.Usages
		}
	default:
		status = http.StatusInternalServerError
	}

	c.JSON(status, body)
}

// Upload handles POST /media with a multipart body: file, category, alt_text.
func (h *MediaHandler) Upload(c *gin.Context) {
	actor, ok := actorFromHeaders(c)
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart field 'file' is required"})
		return
	}

	category, err := domain.ParseCategory(c.PostForm("category"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	mimeType := fileHeader.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = mime.TypeByExtension(filepath.Ext(fileHeader.Filename))
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read uploaded file"})
		return
	}
	defer file.Close()

	asset, err := h.catalog.Upload(c.Request.Context(), actor, application.UploadRequest{
		Content:      file,
		OriginalName: filepath.Base(fileHeader.Filename),
		MimeType:     mimeType,
		SizeBytes:    fileHeader.Size,
		Category:     category,
		AltText:      c.PostForm("alt_text"),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"asset": toAssetResponse(asset)})
}

// List handles GET /media with search, filter, sort and pagination params.
func (h *MediaHandler) List(c *gin.Context) {
	filter := domain.ListFilter{
		Search:    c.Query("search"),
		SortBy:    c.DefaultQuery("sortBy", "createdAt"),
		SortOrder: domain.SortOrder(c.DefaultQuery("sortOrder", "desc")),
	}

	if raw := c.Query("category"); raw != "" {
		category, err := domain.ParseCategory(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		filter.Category = category
	}

	if raw := c.Query("ownerId"); raw != "" {
		ownerID, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ownerId"})
			return
		}
		filter.OwnerID = ownerID
	}

	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	filter.IncludeDeleted = c.Query("includeDeleted") == "true"

	result, err := h.catalog.List(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}

	files := make([]assetResponse, 0, len(result.Assets))
	for _, a := range result.Assets {
		files = append(files, toAssetResponse(a))
	}

	totalPages := result.Total / result.Limit
	if result.Total%result.Limit != 0 {
		totalPages++
	}

	body := gin.H{
		"files": files,
		"pagination": gin.H{
			"page":       result.Page,
			"limit":      result.Limit,
			"total":      result.Total,
			"totalPages": totalPages,
		},
	}

	if c.Query("stats") == "true" {
		stats, err := h.catalog.Stats(c.Request.Context(), h.statsIncludeDeleted)
		if err != nil {
			writeError(c, err)
			return
		}
		body["stats"] = gin.H{
			"totalFiles":     stats.TotalFiles,
			"totalSizeBytes": stats.TotalSizeBytes,
		}
	}

	c.JSON(http.StatusOK, body)
}

// Get handles GET /media/:id, returning the asset and its current usages.
func (h *MediaHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid asset id"})
		return
	}

	detail, err := h.catalog.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	body := gin.H{
		"asset":  toAssetResponse(detail.Asset),
		"usages": detail.Usages,
	}
	if len(detail.FailedResolvers) > 0 {
		body["usageWarnings"] = detail.FailedResolvers
	}

	c.JSON(http.StatusOK, body)
}

// Delete handles DELETE /media/:id, advancing the lifecycle one step.
func (h *MediaHandler) Delete(c *gin.Context) {
	actor, ok := actorFromHeaders(c)
	if !ok {
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid asset id"})
		return
	}

	force := c.Query("force") == "true"
	confirmationToken := c.Query("confirmationToken")

	outcome, err := h.catalog.Delete(c.Request.Context(), actor, id, force, confirmationToken)
	if err != nil {
		writeError(c, err)
		return
	}

	if outcome.Purged {
		c.JSON(http.StatusOK, gin.H{"purged": true})
		return
	}

	c.JSON(http.StatusOK, gin.H{"asset": toAssetResponse(outcome.Asset)})
}

// Restore handles POST /media/:id/restore.
func (h *MediaHandler) Restore(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid asset id"})
		return
	}

	asset, err := h.catalog.Restore(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"asset": toAssetResponse(asset)})
}
