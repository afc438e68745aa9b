package catalog

import (
	"slices"

	"access_service/internal/models"
)

// The catalog is a closed set. New capabilities are a code change, never a
// runtime mutation; every grant-creating path validates against it.
var types = []models.PermissionType{
	{ID: models.PermissionView, Label: "View", Description: "Open the document and browse its pages"},
	{ID: models.PermissionDownload, Label: "Download", Description: "Download the original document file"},
	{ID: models.PermissionOcr, Label: "OCR", Description: "View the extracted text content"},
	{ID: models.PermissionAiSummary, Label: "AI Summary", Description: "Request an AI-generated summary"},
	{ID: models.PermissionUpload, Label: "Upload", Description: "Upload new versions of the document"},
}

func Types() []models.PermissionType {
	out := make([]models.PermissionType, len(types))
	copy(out, types)
	return out
}

func IsValid(id string) bool {
	for _, t := range types {
		if t.ID == id {
			return true
		}
	}
	return false
}

// IsValidSet reports whether every id is known and view is present.
func IsValidSet(ids []string) bool {
	if !slices.Contains(ids, models.PermissionView) {
		return false
	}
	for _, id := range ids {
		if !IsValid(id) {
			return false
		}
	}
	return true
}

// Normalize dedupes the set and force-adds view. Every grant-creating path
// (direct grant, approval, template apply, bulk) goes through here, so the
// "view is always included" rule cannot be bypassed by a new caller.
func Normalize(ids []string) []string {
	out := []string{models.PermissionView}
	for _, id := range ids {
		if id == models.PermissionView || !IsValid(id) {
			continue
		}
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
