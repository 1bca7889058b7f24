package entity

import "time"

// Generation statuses. Transitions are one-directional: processing ->
// processing_locked -> completed|failed. A failed generation may be reset to
// processing by an explicit retry after its outputs are purged.
const (
	GenerationStatusProcessing = "processing"
	GenerationStatusLocked     = "processing_locked"
	GenerationStatusCompleted  = "completed"
	GenerationStatusFailed     = "failed"
)

// Error categories recorded on failed generations. The UI and the recovery
// sweep consume these; the lifecycle controller never re-derives them.
const (
	ErrorCategoryUpstreamUnavailable = "upstream_unavailable"
	ErrorCategoryRateLimited         = "rate_limited"
	ErrorCategoryContentSafety       = "content_safety"
	ErrorCategoryValidation          = "validation"
	ErrorCategoryAuth                = "auth"
	ErrorCategoryTimeout             = "timeout"
	ErrorCategoryInternal            = "internal"
)

// Output file types.
const (
	FileTypeImage = "image"
	FileTypeVideo = "video"
)

// DbGeneration is one request to produce image or video output from a model.
type DbGeneration struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserID    uint       `gorm:"column:user_id;index" json:"user_id"`
	User      *DbUser    `gorm:"foreignKey:UserID" json:"-"`
	SessionID uint       `gorm:"column:session_id;index" json:"session_id"`
	Session   *DbSession `gorm:"foreignKey:SessionID" json:"-"`

	// ModelID may be rewritten by the routing resolver during processing.
	ModelID        string  `gorm:"column:model_id;type:varchar(255);index" json:"model_id"`
	Prompt         string  `gorm:"column:prompt;type:text" json:"prompt"`
	NegativePrompt string  `gorm:"column:negative_prompt;type:text" json:"negative_prompt"`
	Parameters     JSONMap `gorm:"column:parameters;type:json" json:"parameters"`

	Status string `gorm:"column:status;type:varchar(32);index" json:"status"`

	ErrorMessage   string `gorm:"column:error_message;type:text" json:"error_message"`
	ErrorCategory  string `gorm:"column:error_category;type:varchar(64)" json:"error_category"`
	ErrorRetryable bool   `gorm:"column:error_retryable" json:"error_retryable"`

	Cost        *float64   `gorm:"column:cost" json:"cost"`
	HeartbeatAt *time.Time `gorm:"column:heartbeat_at" json:"heartbeat_at"`

	Outputs []DbOutput `gorm:"foreignKey:GenerationID" json:"outputs"`
}

// TableName sets the table name.
func (DbGeneration) TableName() string {
	return "generations"
}

// IsTerminal reports whether the generation reached a terminal status.
func (g *DbGeneration) IsTerminal() bool {
	return g != nil && (g.Status == GenerationStatusCompleted || g.Status == GenerationStatusFailed)
}

// DbOutput is one artifact produced by a generation.
type DbOutput struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	GenerationID uint `gorm:"column:generation_id;index" json:"generation_id"`

	// FileURL is the durable URL. When persistence to object storage failed it
	// falls back to the provider-hosted URL, which may expire.
	FileURL     string `gorm:"column:file_url;type:text" json:"file_url"`
	ProviderURL string `gorm:"column:provider_url;type:text" json:"provider_url"`

	FileType string   `gorm:"column:file_type;type:varchar(16)" json:"file_type"`
	Width    int      `gorm:"column:width" json:"width"`
	Height   int      `gorm:"column:height" json:"height"`
	Duration *float64 `gorm:"column:duration" json:"duration"`
	Approved bool     `gorm:"column:approved;default:false" json:"approved"`
}

// TableName sets the table name.
func (DbOutput) TableName() string {
	return "outputs"
}

// DbPromptTemplate is an admin-managed prompt enhancement template.
type DbPromptTemplate struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name     string `gorm:"column:name;type:varchar(255)" json:"name"`
	Template string `gorm:"column:template;type:text" json:"template"`
	IsActive bool   `gorm:"column:is_active;default:true" json:"is_active"`
}

// TableName sets the table name.
func (DbPromptTemplate) TableName() string {
	return "prompt_templates"
}
