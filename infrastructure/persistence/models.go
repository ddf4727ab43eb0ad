package persistence

import (
	"time"

	"gorm.io/datatypes"
)

// AssetModel represents an uploaded asset in the database.
type AssetModel struct {
	ID          string    `gorm:"column:id;primaryKey;size:255"`
	UserID      string    `gorm:"column:user_id;index;size:255"`
	MimeType    string    `gorm:"column:mime_type;size:255"`
	URL         string    `gorm:"column:url;size:2048"`
	Description string    `gorm:"column:description;type:text"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

// TableName returns the table name.
func (AssetModel) TableName() string {
	return "assets"
}

// ProfileModel represents a producer profile in the database. The active
// and draft details are stored as JSON documents; NULL means absent.
type ProfileModel struct {
	ID            int64          `gorm:"column:id;primaryKey;autoIncrement"`
	UserID        string         `gorm:"column:user_id;uniqueIndex;size:255"`
	FirstName     string         `gorm:"column:first_name;size:255"`
	MiddleName    string         `gorm:"column:middle_name;size:255"`
	LastName      string         `gorm:"column:last_name;size:255"`
	Country       string         `gorm:"column:country;size:255"`
	ActiveProfile datatypes.JSON `gorm:"column:active_profile"`
	DraftProfile  datatypes.JSON `gorm:"column:draft_profile"`
	CreatedAt     time.Time      `gorm:"column:created_at"`
	UpdatedAt     time.Time      `gorm:"column:updated_at"`
}

// TableName returns the table name.
func (ProfileModel) TableName() string {
	return "profiles"
}

// QueueMessageModel is a message held by the database-backed event bus.
// A message is invisible to consumers until VisibleAt, which is how leases
// and redelivery delays are expressed. A dead-lettered message has DeadAt set
// and is never leased again.
type QueueMessageModel struct {
	ID        string     `gorm:"column:id;primaryKey;size:64"`
	Queue     string     `gorm:"column:queue;index:idx_queue_messages_visible,priority:1;size:255"`
	Body      []byte     `gorm:"column:body"`
	Attempts  int        `gorm:"column:attempts;default:0"`
	VisibleAt time.Time  `gorm:"column:visible_at;index:idx_queue_messages_visible,priority:2"`
	DeadAt    *time.Time `gorm:"column:dead_at"`
	LastError string     `gorm:"column:last_error"`
	CreatedAt time.Time  `gorm:"column:created_at"`
}

// TableName returns the table name.
func (QueueMessageModel) TableName() string {
	return "queue_messages"
}
