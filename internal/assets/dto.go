package assets

import "time"

// AssetResponse is the outward-facing representation of an asset.
type AssetResponse struct {
	AssetID          string                 `json:"assetId"`
	Name             string                 `json:"name"`
	Category         string                 `json:"category"`
	FileName         string                 `json:"fileName"`
	FileURL          string                 `json:"fileUrl"`
	FileType         string                 `json:"fileType"`
	UploadedBy       string                 `json:"uploadedBy,omitempty"`
	UploadedAt       time.Time              `json:"uploadedAt"`
	AvailableFormats map[string]FormatEntry `json:"availableFormats"`
}

func toResponse(a Asset) AssetResponse {
	formats := a.AvailableFormats
	if formats == nil {
		formats = map[string]FormatEntry{}
	}
	return AssetResponse{
		AssetID:          a.ID,
		Name:             a.Name,
		Category:         a.Category,
		FileName:         a.FileName,
		FileURL:          a.FileURL,
		FileType:         a.FileType,
		UploadedBy:       a.UploadedBy,
		UploadedAt:       a.UploadedAt,
		AvailableFormats: formats,
	}
}
