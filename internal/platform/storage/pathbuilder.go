package storage

import (
	"fmt"
	"path"
	"strings"
)

// ExportPathParams identify a single export object.
type ExportPathParams struct {
	Prefix   string
	Date     string
	ExportID string
}

// BuildExportPath composes `<prefix>/<date>/<exportID>.csv`. The prefix may hold several
// segments; every segment must be a plain name.
func BuildExportPath(params ExportPathParams) (string, error) {
	prefix := strings.Trim(strings.TrimSpace(params.Prefix), "/")
	segments := append(strings.Split(prefix, "/"), strings.TrimSpace(params.Date), strings.TrimSpace(params.ExportID))
	labels := len(segments)
	for i, segment := range segments {
		label := "prefix"
		switch i {
		case labels - 2:
			label = "date"
		case labels - 1:
			label = "exportID"
		}
		if err := plainSegment(label, segment); err != nil {
			return "", err
		}
	}
	return path.Join(segments...) + ".csv", nil
}

func plainSegment(label, segment string) error {
	switch {
	case segment == "":
		return fmt.Errorf("storage: %s is required", label)
	case strings.ContainsAny(segment, `/\`):
		return fmt.Errorf("storage: %s %q contains a path separator", label, segment)
	case strings.Contains(segment, ".."):
		return fmt.Errorf("storage: %s %q contains a traversal sequence", label, segment)
	}
	return nil
}
