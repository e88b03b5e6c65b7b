// Package profiles stores user profiles in the relational database.
package profiles

// UserProfile is one row of the users table. Optional columns are pointers;
// nil means NULL.
type UserProfile struct {
	UserID        string  `json:"user_id"`
	Name          string  `json:"name"`
	Age           *int    `json:"age,omitempty"`
	Phone         *string `json:"phone,omitempty"`
	Address       *string `json:"address,omitempty"`
	PhotoBlobName *string `json:"photo_blob_name,omitempty"`
}

// HasPhoto reports whether the profile references a photo blob.
func (p *UserProfile) HasPhoto() bool {
	return p.PhotoBlobName != nil && *p.PhotoBlobName != ""
}
