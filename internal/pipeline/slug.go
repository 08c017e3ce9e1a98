package pipeline

import (
	"errors"
	"fmt"
	"regexp"
)

var contestSlugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,99}$`)

// ErrInvalidContestSlug rejects slugs that are not lowercase letters, digits
// and dashes. Slugs name artifact and result paths, so nothing else gets in.
var ErrInvalidContestSlug = errors.New("contest slug must be lowercase letters, digits and dashes")

func ValidateContestSlug(slug string) error {
	if !contestSlugPattern.MatchString(slug) {
		return fmt.Errorf("%w: %q", ErrInvalidContestSlug, slug)
	}
	return nil
}
