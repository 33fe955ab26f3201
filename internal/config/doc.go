// Package config manages sitevc configuration and state persistence.
//
// It handles:
//   - Repository configuration (.sitevc/config.json)
//   - Merge sessions suspended while awaiting conflict picks
//   - Branch name validation
package config
