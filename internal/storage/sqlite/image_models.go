package sqlite

import "time"

// ImageRecord represents a generated weather illustration on disk
type ImageRecord struct {
	ID        int64     `json:"id"`
	Airport   string    `json:"airport"`
	FileName  string    `json:"file_name"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}
