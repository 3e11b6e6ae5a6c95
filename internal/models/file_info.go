package models

import "time"

// FileInfo represents metadata about a spooled upload.
type FileInfo struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ContentType string    `json:"contentType,omitempty"`
	Size        int64     `json:"size"`
	UploadedAt  time.Time `json:"uploadedAt"`
	Status      string    `json:"status"` // "spooled", "read"
}
