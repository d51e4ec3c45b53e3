package dto

import emaildomain "mailpilot-backend/internal/email/domain"

type MailItemsResponse struct {
	Items  []*emaildomain.MailItem `json:"items"`
	Limit  int                     `json:"limit"`
	Offset int                     `json:"offset"`
	Total  int64                   `json:"total"`
}

type UpdateLabelsRequest struct {
	AddLabels    []string `json:"add_labels"`
	RemoveLabels []string `json:"remove_labels"`
}

type UpdateCategoryRequest struct {
	Category string `json:"category" binding:"required"`
}

type OperationResponse struct {
	OperationID string `json:"operation_id,omitempty"`
	Message     string `json:"message"`
}

type CategoryRequest struct {
	Name           string   `json:"name" binding:"required"`
	GmailLabelID   string   `json:"gmail_label_id"`
	RemoveLabelIDs []string `json:"remove_label_ids"`
}

type CategoriesResponse struct {
	Categories []*emaildomain.Category `json:"categories"`
}
