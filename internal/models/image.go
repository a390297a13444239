package models

import "time"

// Image is a resolved background (or shortcut-sign) image with its intrinsic
// pixel dimensions.
type Image struct {
	Ref    string `json:"ref"`
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// IntrinsicSize returns the image dimensions as a Size.
func (i Image) IntrinsicSize() Size {
	return Size{Width: float64(i.Width), Height: float64(i.Height)}
}

// IsZero reports whether no image has been resolved.
func (i Image) IsZero() bool {
	return i.Ref == ""
}

// Asset is metadata about a stored image file.
type Asset struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	UploadedAt  time.Time `json:"uploadedAt"`
}
