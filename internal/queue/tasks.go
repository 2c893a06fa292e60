package queue

const (
	TypeDocumentProcess   = "document:process"
	TypeEmbeddingGenerate = "embedding:generate"
	TypeWebhookDeliver    = "webhook:deliver"
	TypeCacheOptimize     = "cache:optimize"
	TypeMemoryPoll        = "memory:poll"
	TypeSummaryInvalidate = "summary:invalidate"
)

type DocumentProcessPayload struct {
	DocumentID string `json:"document_id"`
	TenantID   string `json:"tenant_id"`
}

type EmbeddingGeneratePayload struct {
	DocumentID string `json:"document_id"`
	TenantID   string `json:"tenant_id"`
}

type WebhookDeliverPayload struct {
	WebhookID string `json:"webhook_id"`
	Event     string `json:"event"`
	Payload   string `json:"payload"` // JSON string
}
