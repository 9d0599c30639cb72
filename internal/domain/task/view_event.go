package task

import "time"

const ViewEventTaskType = "ViewEventTask"

// ViewEventTask records that a product page was viewed. Workers fold these into product popularity.
type ViewEventTask struct {
	ProductID  string    `json:"product_id"`
	ShopID     string    `json:"shop_id,omitempty"`
	CategoryID string    `json:"category_id,omitempty"`
	ViewedAt   time.Time `json:"viewed_at"`
}

func (t *ViewEventTask) TaskType() string {
	return ViewEventTaskType
}

func (t *ViewEventTask) TaskValue() ([]byte, error) {
	return DefaultTaskValue(t)
}
