package config

import (
	"fmt"
	"regexp"
	"strings"
)

const maxBranchNameByteLength = 234

var (
	branchNameIgnoreRegex  = regexp.MustCompile(`[/.]*$`)
	branchNameReplaceRegex = regexp.MustCompile(`[^-_/.a-zA-Z0-9]+`)
	hyphenRegex            = regexp.MustCompile(`-+`)
)

// SanitizeBranchName turns free text into a usable branch name
func SanitizeBranchName(name string) string {
	// Remove trailing slashes and dots
	name = branchNameIgnoreRegex.ReplaceAllString(name, "")
	name = branchNameReplaceRegex.ReplaceAllString(name, "-")
	name = hyphenRegex.ReplaceAllString(name, "-")
	name = strings.Trim(name, "-")

	for strings.Contains(name, "..") {
		name = strings.ReplaceAll(name, "..", ".")
	}
	for strings.Contains(name, "//") {
		name = strings.ReplaceAll(name, "//", "/")
	}
	name = strings.TrimPrefix(name, "/")

	if len(name) > maxBranchNameByteLength {
		name = name[:maxBranchNameByteLength]
		// Trim trailing hyphen if we cut at a hyphen
		name = strings.TrimSuffix(name, "-")
	}
	return name
}

// ValidateBranchName rejects names that would not survive sanitizing unchanged
func ValidateBranchName(name string) error {
	if name == "" {
		return fmt.Errorf("branch name must not be empty")
	}
	if clean := SanitizeBranchName(name); clean != name {
		return fmt.Errorf("invalid branch name %q (try %q)", name, clean)
	}
	return nil
}
