package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"photovault/internal/server/database"
	"photovault/internal/server/service"

	"github.com/labstack/echo/v4"
)

// Handler contains the HTTP handlers for the PhotoVault API.
type Handler struct {
	svc *service.Service
	db  *database.DB
}

// NewHandler creates a new handler with the given service dependency.
func NewHandler(svc *service.Service, db *database.DB) *Handler {
	return &Handler{svc: svc, db: db}
}

// registerRequest is the payload for POST /api/register.
type registerRequest struct {
	ExternalID int64  `json:"external_id" validate:"required,gt=0"`
	Username   string `json:"username" validate:"max=32"`
	FirstName  string `json:"first_name" validate:"max=64"`
	LastName   string `json:"last_name" validate:"max=64"`
}

// leaveRequest is the payload for POST /api/accounts/:external_id/leave.
type leaveRequest struct {
	ReplyTo string `json:"reply_to"`
}

// HandleRegister handles POST /api/register.
func (h *Handler) HandleRegister(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	account, storageRec, err := h.svc.Register(c.Request().Context(), service.Profile{
		ExternalID: req.ExternalID,
		Username:   optional(req.Username),
		FirstName:  optional(req.FirstName),
		LastName:   optional(req.LastName),
	})
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"account_id":     account.ID,
		"external_id":    account.ExternalID,
		"capacity_bytes": storageRec.CapacityBytes,
		"message":        "Congratulations! You now have a profile and storage for your photos!",
	})
}

// HandleUploadPhoto handles POST /api/accounts/:external_id/photos.
// Accepts a multipart form with a "photo" field; the multipart size is the
// untrusted declared size. An optional "reply_to" field names the channel
// for asynchronous notices.
func (h *Handler) HandleUploadPhoto(c echo.Context) error {
	externalID, err := parseExternalID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid external id"})
	}

	fileHeader, err := c.FormFile("photo")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "photo is required (use form field 'photo')",
		})
	}

	src, err := fileHeader.Open()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error": "failed to read uploaded photo",
		})
	}
	defer src.Close()

	replyTo := c.FormValue("reply_to")

	result, err := h.svc.Ingest(c.Request().Context(), externalID, src, fileHeader.Size, replyTo)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"filename":        result.Photo.Filename,
		"size_bytes":      result.Photo.SizeBytes,
		"content_hash":    result.Photo.ContentHash,
		"session_started": result.SessionStarted,
		"used_bytes":      result.UsedBytes,
		"capacity_bytes":  result.CapacityBytes,
	})
}

// HandleRandomPhoto handles GET /api/accounts/:external_id/photos/random.
// Streams a uniformly chosen photo.
func (h *Handler) HandleRandomPhoto(c echo.Context) error {
	externalID, err := parseExternalID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid external id"})
	}

	rc, photo, err := h.svc.RandomPhoto(c.Request().Context(), externalID)
	if err != nil {
		return mapServiceError(c, err)
	}
	defer rc.Close()

	c.Response().Header().Set("X-Photo-Hash", photo.ContentHash)
	return c.Stream(http.StatusOK, "image/png", rc)
}

// HandleAccountStats handles GET /api/accounts/:external_id/stats.
func (h *Handler) HandleAccountStats(c echo.Context) error {
	externalID, err := parseExternalID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid external id"})
	}

	stats, err := h.svc.Stats(c.Request().Context(), externalID)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"photos":         stats.Photos,
		"used_bytes":     stats.UsedBytes,
		"capacity_bytes": stats.CapacityBytes,
		"used_human":     humanizeBytes(stats.UsedBytes),
		"capacity_human": humanizeBytes(stats.CapacityBytes),
	})
}

// HandleLeave handles POST /api/accounts/:external_id/leave.
// Drives the two-phase deletion flow: the first request arms the
// confirmation window, a second inside the window deletes everything.
func (h *Handler) HandleLeave(c echo.Context) error {
	externalID, err := parseExternalID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid external id"})
	}

	var req leaveRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	outcome, err := h.svc.Leave(c.Request().Context(), externalID, req.ReplyTo)
	if err != nil {
		return mapServiceError(c, err)
	}

	switch outcome {
	case service.LeaveArmed:
		return c.JSON(http.StatusAccepted, echo.Map{
			"status":  "armed",
			"message": "If you are sure you want to delete your account, send leave again. If it was a mistake, just wait and the request will expire.",
		})
	default:
		return c.JSON(http.StatusOK, echo.Map{
			"status":  "deleted",
			"message": "Your account and all your photos have been deleted, it was nice having you.",
		})
	}
}

// HandleHealth handles GET /health.
func (h *Handler) HandleHealth(c echo.Context) error {
	status := "healthy"
	dbStatus := "connected"

	if err := h.db.HealthCheck(c.Request().Context()); err != nil {
		status = "degraded"
		dbStatus = fmt.Sprintf("error: %v", err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status":   status,
		"database": dbStatus,
	})
}

// HandleStats handles GET /api/stats (admin).
func (h *Handler) HandleStats(c echo.Context) error {
	stats, err := h.svc.GlobalStats(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to retrieve stats"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"total_accounts":     stats.TotalAccounts,
		"total_photos":       stats.TotalPhotos,
		"storage_used_bytes": stats.BytesStored,
		"storage_used_human": humanizeBytes(stats.BytesStored),
	})
}

// HandleReconcile handles POST /api/admin/accounts/:external_id/reconcile
// (admin). Repairs the storage/record/ledger triplet for one account.
func (h *Handler) HandleReconcile(c echo.Context) error {
	externalID, err := parseExternalID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid external id"})
	}

	report, err := h.svc.Reconcile(c.Request().Context(), externalID)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"orphan_files_removed": report.OrphanFilesRemoved,
		"missing_file_records": report.MissingFileRecords,
		"used_bytes":           report.UsedBytes,
	})
}

// --- Helpers ---

func parseExternalID(c echo.Context) (int64, error) {
	return strconv.ParseInt(c.Param("external_id"), 10, 64)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// mapServiceError translates service-layer errors into HTTP responses.
func mapServiceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrNotRegistered):
		return c.JSON(http.StatusNotFound, echo.Map{
			"error": "you don't have an account yet, register first",
		})
	case errors.Is(err, service.ErrAlreadyRegistered):
		return c.JSON(http.StatusConflict, echo.Map{
			"error": "you already have an account",
		})
	case errors.Is(err, service.ErrAccountLimit):
		return c.JSON(http.StatusForbidden, echo.Map{
			"error": "we couldn't create an account for you, we are out of storage space",
		})
	case errors.Is(err, service.ErrQuotaExceeded):
		return c.JSON(http.StatusInsufficientStorage, echo.Map{
			"error": "you can't upload any more photos, you are out of space",
		})
	case errors.Is(err, service.ErrUploadTooLarge):
		return c.JSON(http.StatusRequestEntityTooLarge, echo.Map{
			"error": "photo exceeds the maximum allowed size",
		})
	case errors.Is(err, service.ErrNoPhotos):
		return c.JSON(http.StatusNotFound, echo.Map{
			"error": "you don't have any photos yet, upload some first",
		})
	case errors.Is(err, service.ErrUploadInProgress):
		return c.JSON(http.StatusConflict, echo.Map{
			"error": "please wait for the photo upload to finish before deleting your account",
		})
	case errors.Is(err, service.ErrPartialDelete):
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error": "account deletion did not complete, support has been notified",
		})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	}
}

// humanizeBytes formats a byte count into a human-readable string.
func humanizeBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
