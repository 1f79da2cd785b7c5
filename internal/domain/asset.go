package domain

import "time"

// Asset roles recorded by the asset store.
const (
	AssetRoleSource      = "source"
	AssetRoleResult      = "result"
	AssetRoleVideo       = "video"
	AssetRoleVideoResult = "video_result"
)

// Asset types recorded by the asset store.
const (
	AssetTypeImage = "image"
	AssetTypeVideo = "video"
)

// AssetRecord is one row of the external asset store. URL holds either an absolute URL or a
// storage key relative to the media gateway.
type AssetRecord struct {
	URL       string
	Role      string
	Type      string
	CreatedAt time.Time
}

// IsVideo reports whether the record is a rendered video.
func (a AssetRecord) IsVideo() bool {
	return a.Type == AssetTypeVideo || a.Role == AssetRoleVideo || a.Role == AssetRoleVideoResult
}

// AssetTypeFor returns the asset type produced by a mode.
func AssetTypeFor(mode Mode) string {
	if mode == ModeVideo {
		return AssetTypeVideo
	}
	return AssetTypeImage
}
