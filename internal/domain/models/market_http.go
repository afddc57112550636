package models

// Requests for the market HTTP endpoints. Kept in domain alongside the other request shapes.

type SnapshotRequest struct {
	Symbol   string  `param:"symbol" validate:"required,max=32"`
	Category string  `param:"category" validate:"required,max=32"`
	Base     float64 `query:"base" validate:"gte=0"`
}

type BatchItem struct {
	Symbol   string `json:"symbol" validate:"required,max=32"`
	Category string `json:"category" validate:"required,max=32"`
}

type BatchRequest struct {
	Items []BatchItem `json:"items" validate:"required,min=1,max=50,dive"`
}

type StreamRequest struct {
	Symbol   string `query:"symbol" validate:"required,max=32"`
	Category string `query:"category" default:"crypto" validate:"max=32"`
}
