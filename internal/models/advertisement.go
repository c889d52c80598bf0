package models

// Advertisement is interleaved into the capsule dashboard by display order.
type Advertisement struct {
	BaseModel

	Title        string `gorm:"size:255;not null" json:"title"`
	MediaURL     string `gorm:"type:text;not null" json:"media_url"`
	TargetURL    string `gorm:"type:text" json:"target_url,omitempty"`
	DisplayOrder int    `gorm:"not null;default:0;index" json:"display_order"`
	IsActive     bool   `gorm:"not null;index" json:"is_active"`
}
