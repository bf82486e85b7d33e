package download

import (
	exif "github.com/dsoprea/go-exif/v3"
)

// exifSummary is the camera metadata kept for a saved image.
type exifSummary struct {
	Make    string
	Model   string
	TakenAt string
}

// readEXIF returns the camera make, model and capture time embedded in data.
// Images without EXIF yield a zero summary.
func readEXIF(data []byte) exifSummary {
	var s exifSummary

	raw, err := exif.SearchAndExtractExif(data)
	if err != nil || raw == nil {
		return s
	}
	entries, _, err := exif.GetFlatExifData(raw, nil)
	if err != nil {
		return s
	}

	var dateTime string
	for _, entry := range entries {
		switch entry.TagName {
		case "Make":
			s.Make = entry.Formatted
		case "Model":
			s.Model = entry.Formatted
		case "DateTimeOriginal":
			s.TakenAt = entry.Formatted
		case "DateTime":
			dateTime = entry.Formatted
		}
	}
	if s.TakenAt == "" {
		s.TakenAt = dateTime
	}
	return s
}
