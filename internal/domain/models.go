// Package domain defines the persistence models for users, tanks,
// conversations, messages, and audit logs. These types are mapped with GORM
// and form the core data layer of the tank-monitoring application.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Message roles accepted by the transcript store.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleFunction  = "function"
)

// LevelState classifies a tank fill level. A tank is in exactly one state.
type LevelState string

const (
	LevelCritical LevelState = "critical"
	LevelLow      LevelState = "low"
	LevelHealthy  LevelState = "healthy"
)

// LevelStatus is the single classification rule used everywhere a tank
// status is displayed or counted (KPIs, alerts, reports): a tank at or
// below 10% of capacity is critical, at or below 30% is low, anything else
// is healthy. A non-positive capacity classifies as healthy since no
// meaningful ratio exists.
func LevelStatus(currentLevel, capacity float64) LevelState {
	if capacity <= 0 {
		return LevelHealthy
	}
	ratio := currentLevel / capacity
	switch {
	case ratio <= 0.10:
		return LevelCritical
	case ratio <= 0.30:
		return LevelLow
	default:
		return LevelHealthy
	}
}

// User represents an account. Accounts are created at signup and are never
// hard-deleted; OAuth-only accounts may have an empty password hash.
type User struct {
	ID           string         `json:"id"             gorm:"type:char(36);primaryKey"`
	Email        string         `json:"email"          gorm:"type:varchar(255);uniqueIndex;not null"`
	Name         string         `json:"name"           gorm:"type:varchar(255)"`
	PasswordHash string         `json:"-"              gorm:"type:varchar(255)"`
	Provider     string         `json:"provider"       gorm:"type:varchar(32);not null;default:'local'"`
	Role         string         `json:"role"           gorm:"type:varchar(32);not null;default:'user'"`
	SetupDone    bool           `json:"setupCompleted" gorm:"not null;default:false"`
	TankSetup    string         `json:"tankSetup,omitempty" gorm:"type:text"` // free-form JSON from the setup wizard
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `json:"-"              gorm:"index"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Tank represents a monitored water tank. CurrentLevel is mutated by manual
// updates (or a simulated sensor); everything else is set at creation.
type Tank struct {
	ID           string         `json:"id"           gorm:"type:char(36);primaryKey"`
	UserID       string         `json:"user_id"      gorm:"type:char(36);index:idx_user_tanks"`
	Name         string         `json:"name"         gorm:"type:varchar(255);not null"`
	Capacity     float64        `json:"capacity"     gorm:"not null"` // liters
	CurrentLevel float64        `json:"currentLevel" gorm:"not null"` // liters
	Location     string         `json:"location"     gorm:"type:varchar(255)"`
	Type         string         `json:"type"         gorm:"type:varchar(64)"`
	SensorOnline bool           `json:"sensorConnected" gorm:"not null;default:true"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `json:"-"            gorm:"index"`
}

// TableName returns the database table name for Tank.
func (Tank) TableName() string { return "tanks" }

// Status classifies the tank's current fill level.
func (t Tank) Status() LevelState { return LevelStatus(t.CurrentLevel, t.Capacity) }

// Conversation is one chat session. It is created lazily on the first
// message when the caller supplies no conversation id; UpdatedAt is bumped
// whenever a message is appended.
type Conversation struct {
	ID        string         `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string         `json:"user_id,omitempty" gorm:"type:char(36);index:idx_user_convs,priority:1"`
	Title     string         `json:"title"      gorm:"type:varchar(255);not null;default:'AquaMind Chat'"`
	Model     string         `json:"model"      gorm:"type:varchar(64)"`
	Metadata  string         `json:"metadata,omitempty" gorm:"type:text"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"index:idx_user_convs,priority:2"`
	DeletedAt gorm.DeletedAt `json:"-"          gorm:"index"`
}

// TableName returns the database table name for Conversation.
func (Conversation) TableName() string { return "conversations" }

// Message is one turn in a conversation. Rows are immutable after creation;
// transcript order is reconstructed from CreatedAt (then ID) at read time.
type Message struct {
	ID             string    `json:"id"              gorm:"type:char(36);primaryKey"`
	ConversationID string    `json:"conversation_id" gorm:"type:char(36);not null;index:idx_conv_msgs,priority:1"`
	Role           string    `json:"role"            gorm:"type:varchar(16);not null;check:role IN ('user','assistant','system','function')"`
	Content        string    `json:"content"         gorm:"type:text;not null"`
	ContentJSON    string    `json:"content_json,omitempty" gorm:"type:text"` // structured parts when present
	Tokens         int       `json:"tokens"          gorm:"not null;default:0"`
	Model          string    `json:"model"           gorm:"type:varchar(64)"`
	CreatedAt      time.Time `json:"created_at"      gorm:"index:idx_conv_msgs,priority:2"`

	// Conversation is the parent session. Messages are cascade-deleted if
	// their conversation is removed.
	Conversation Conversation `json:"-" gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// AuditLog records one model call: the request and response payloads as
// JSON, the model used, and token/cost accounting. Writes are best-effort;
// a failed audit write never affects the caller-visible outcome.
type AuditLog struct {
	ID           string    `json:"id"            gorm:"type:char(36);primaryKey"`
	Request      string    `json:"request"       gorm:"type:text"`
	Response     string    `json:"response"      gorm:"type:text"`
	Model        string    `json:"model"         gorm:"type:varchar(64)"`
	TokensUsed   int       `json:"tokens_used"`
	CostEstimate float64   `json:"cost_estimate"`
	CreatedAt    time.Time `json:"created_at"    gorm:"index"`
}

// TableName returns the database table name for AuditLog.
func (AuditLog) TableName() string { return "audit_logs" }
