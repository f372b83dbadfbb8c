package github

import (
	"regexp"
	"strings"
)

var (
	validOwner    = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]*[a-zA-Z0-9])?$`)
	validRepoName = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
)

// ParseRepository splits and validates an "owner/repo" identifier
func ParseRepository(fullName string) (owner, name string, err error) {
	parts := strings.Split(strings.TrimSpace(fullName), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", &ValidationError{
			Field:   "repository",
			Value:   fullName,
			Message: "repository must be in the form owner/repo",
		}
	}
	owner, name = parts[0], parts[1]

	if err := validateOwner(owner); err != nil {
		return "", "", err
	}
	if err := validateRepositoryName(name); err != nil {
		return "", "", err
	}
	return owner, name, nil
}

// ValidateRepository checks an "owner/repo" identifier
func ValidateRepository(fullName string) error {
	_, _, err := ParseRepository(fullName)
	return err
}

func validateOwner(owner string) error {
	if len(owner) > 39 {
		return &ValidationError{
			Field:   "owner",
			Value:   owner,
			Message: "owner must be 39 characters or less",
		}
	}

	// Alphanumeric characters or hyphens, not at either end
	if !validOwner.MatchString(owner) {
		return &ValidationError{
			Field:   "owner",
			Value:   owner,
			Message: "owner can only contain alphanumeric characters and hyphens, and cannot start or end with a hyphen",
		}
	}

	return nil
}

func validateRepositoryName(name string) error {
	if len(name) > 100 {
		return &ValidationError{
			Field:   "name",
			Value:   name,
			Message: "repository name must be 100 characters or less",
		}
	}

	if !validRepoName.MatchString(name) {
		return &ValidationError{
			Field:   "name",
			Value:   name,
			Message: "repository name can only contain alphanumeric characters, periods, hyphens, and underscores",
		}
	}

	if name == "." || name == ".." {
		return &ValidationError{
			Field:   "name",
			Value:   name,
			Message: "repository name cannot be . or ..",
		}
	}

	return nil
}
