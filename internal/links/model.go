package links

import (
	"errors"
	"strings"
)

var (
	// ErrLinkNotFound is wrapped in every errx.NotFound a repository returns.
	ErrLinkNotFound = errors.New("link not found")
	// ErrTitleRequired is wrapped in the errx.Invalid returned by Create.
	ErrTitleRequired = errors.New("title is required")
)

// Link is a stored bookmark. ID is minted by the repository on Create and
// never changes afterwards.
type Link struct {
	ID    string `json:"id" dynamodbav:"id" db:"id"`
	Title string `json:"title" dynamodbav:"title" db:"title"`
	URL   string `json:"url" dynamodbav:"url" db:"url"`
}

// validateTitle is applied by every backend's Create.
func validateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return ErrTitleRequired
	}
	return nil
}
