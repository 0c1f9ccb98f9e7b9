package models

import "time"

// AssetKind identifies what a media asset holds
type AssetKind string

const (
	AssetRawVideo         AssetKind = "raw_video"
	AssetSynthesizedAudio AssetKind = "synthesized_audio"
	AssetComposedVideo    AssetKind = "composed_video"
)

// MediaAsset is a single immutable media file on durable storage
type MediaAsset struct {
	ID        string
	RequestID string
	Path      string
	Kind      AssetKind
	Size      int64
	CreatedAt time.Time
}

// Response builds the public view of the asset
func (a MediaAsset) Response(downloadURL string) AssetResponse {
	return AssetResponse{
		ID:          a.ID,
		RequestID:   a.RequestID,
		Kind:        a.Kind,
		Size:        a.Size,
		CreatedAt:   a.CreatedAt,
		DownloadURL: downloadURL,
	}
}
