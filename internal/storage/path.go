package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildExportPath lays exports out by creation day:
// 2026/10/17/<export id>.<format>.
func BuildExportPath(exportID string, createdAt time.Time, format string) (string, error) {
	if err := validatePathComponent(exportID, "export id"); err != nil {
		return "", err
	}
	format = strings.ToLower(strings.TrimSpace(format))
	if err := validatePathComponent(format, "format"); err != nil {
		return "", err
	}

	ts := createdAt.UTC()
	return path.Join(
		fmt.Sprintf("%04d", ts.Year()),
		fmt.Sprintf("%02d", ts.Month()),
		fmt.Sprintf("%02d", ts.Day()),
		exportID+"."+format,
	), nil
}

// ExportFilename is the download name offered to clients.
func ExportFilename(exportID, format string) string {
	return "tabsql-" + exportID + "." + strings.ToLower(strings.TrimSpace(format))
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
