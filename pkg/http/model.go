package http

// APIResponse represents standard API response.
type APIResponse struct {
	Status  int         `json:"status" example:"200"`
	Message string      `json:"message" example:"OK"`
	Data    interface{} `json:"data,omitempty"`
}

// ValidationError represents validation error detail.
type ValidationError struct {
	Code    string                 `json:"code,omitempty" example:"ERR_REQUIRED"`
	Field   string                 `json:"field,omitempty" example:"symbol"`
	Message string                 `json:"message,omitempty" example:"symbol is required"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// BatchResult pairs a batch item with its outcome. Data is nil when the item failed.
type BatchResult struct {
	Symbol   string      `json:"symbol"`
	Category string      `json:"category"`
	Data     interface{} `json:"data"`
	Error    string      `json:"error,omitempty"`
}
