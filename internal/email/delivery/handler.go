package delivery

import (
	"errors"
	"net/http"
	"strconv"

	emaildomain "mailpilot-backend/internal/email/domain"
	emaildto "mailpilot-backend/internal/email/dto"
	"mailpilot-backend/internal/email/usecase"

	"github.com/gin-gonic/gin"
)

type MailHandler struct {
	syncUsecase usecase.SyncUsecase
}

func NewMailHandler(syncUsecase usecase.SyncUsecase) *MailHandler {
	return &MailHandler{
		syncUsecase: syncUsecase,
	}
}

func (h *MailHandler) ListMailItems(c *gin.Context) {
	userID := c.GetString("userID")

	limit := 20
	offset := 0
	if limitStr := c.Query("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if offsetStr := c.Query("offset"); offsetStr != "" {
		if parsed, err := strconv.Atoi(offsetStr); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	items, total, err := h.syncUsecase.ListMailItems(userID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, emaildto.MailItemsResponse{
		Items:  items,
		Limit:  limit,
		Offset: offset,
		Total:  total,
	})
}

func (h *MailHandler) GetMailItem(c *gin.Context) {
	userID := c.GetString("userID")
	id := c.Param("id")

	item, err := h.syncUsecase.GetMailItem(userID, id)
	if err != nil {
		if errors.Is(err, emaildomain.ErrMailItemNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "mail item not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, item)
}

func (h *MailHandler) TrashMailItem(c *gin.Context) {
	h.enqueue(c, emaildomain.OpKindTrash, usecase.OperationPayload{})
}

func (h *MailHandler) ArchiveMailItem(c *gin.Context) {
	h.enqueue(c, emaildomain.OpKindArchive, usecase.OperationPayload{})
}

func (h *MailHandler) MarkAsRead(c *gin.Context) {
	h.enqueue(c, emaildomain.OpKindMarkRead, usecase.OperationPayload{})
}

func (h *MailHandler) MarkAsUnread(c *gin.Context) {
	h.enqueue(c, emaildomain.OpKindMarkUnread, usecase.OperationPayload{})
}

func (h *MailHandler) UpdateLabels(c *gin.Context) {
	var req emaildto.UpdateLabelsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.AddLabels) == 0 && len(req.RemoveLabels) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no label changes given"})
		return
	}
	h.enqueue(c, emaildomain.OpKindUpdateLabels, usecase.OperationPayload{
		AddLabels:    req.AddLabels,
		RemoveLabels: req.RemoveLabels,
	})
}

func (h *MailHandler) UpdateCategory(c *gin.Context) {
	var req emaildto.UpdateCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.enqueue(c, emaildomain.OpKindUpdateCategory, usecase.OperationPayload{Category: req.Category})
}

func (h *MailHandler) enqueue(c *gin.Context, kind string, payload usecase.OperationPayload) {
	userID := c.GetString("userID")
	id := c.Param("id")

	opID, err := h.syncUsecase.EnqueueOperation(c.Request.Context(), userID, id, kind, payload)
	if err != nil {
		if errors.Is(err, emaildomain.ErrMailItemNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "mail item not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if opID == "" {
		c.JSON(http.StatusOK, emaildto.OperationResponse{Message: "no change needed"})
		return
	}
	c.JSON(http.StatusAccepted, emaildto.OperationResponse{
		OperationID: opID,
		Message:     "operation queued",
	})
}

func (h *MailHandler) GetOperation(c *gin.Context) {
	userID := c.GetString("userID")
	id := c.Param("id")

	op, err := h.syncUsecase.GetOperation(userID, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if op == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "operation not found"})
		return
	}

	c.JSON(http.StatusOK, op)
}

func (h *MailHandler) RunSync(c *gin.Context) {
	userID := c.GetString("userID")

	result, err := h.syncUsecase.RunSyncCycle(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, emaildomain.ErrCycleInProgress) {
			c.JSON(http.StatusConflict, gin.H{"error": "sync already in progress"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *MailHandler) GetSyncStatus(c *gin.Context) {
	userID := c.GetString("userID")

	status, err := h.syncUsecase.Status(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, status)
}

func (h *MailHandler) ListCategories(c *gin.Context) {
	userID := c.GetString("userID")

	categories, err := h.syncUsecase.ListCategories(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, emaildto.CategoriesResponse{Categories: categories})
}

func (h *MailHandler) CreateCategory(c *gin.Context) {
	userID := c.GetString("userID")

	var req emaildto.CategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	category := &emaildomain.Category{
		Name:           req.Name,
		GmailLabelID:   req.GmailLabelID,
		RemoveLabelIDs: req.RemoveLabelIDs,
	}
	if err := h.syncUsecase.CreateCategory(userID, category); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, category)
}

func (h *MailHandler) UpdateCategoryConfig(c *gin.Context) {
	userID := c.GetString("userID")

	var req emaildto.CategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.Name = c.Param("name")

	category := &emaildomain.Category{
		Name:           req.Name,
		GmailLabelID:   req.GmailLabelID,
		RemoveLabelIDs: req.RemoveLabelIDs,
	}
	if err := h.syncUsecase.UpdateCategory(userID, category); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, category)
}

func (h *MailHandler) DeleteCategory(c *gin.Context) {
	userID := c.GetString("userID")
	name := c.Param("name")

	if err := h.syncUsecase.DeleteCategory(userID, name); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "category deleted"})
}

func (h *MailHandler) WatchMailbox(c *gin.Context) {
	userID := c.GetString("userID")

	if err := h.syncUsecase.WatchMailbox(c.Request.Context(), userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "watch registered"})
}

func (h *MailHandler) StopWatchMailbox(c *gin.Context) {
	userID := c.GetString("userID")

	if err := h.syncUsecase.StopWatchMailbox(c.Request.Context(), userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "watch stopped"})
}
