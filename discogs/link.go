package discogs

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

type LinkKind string

const (
	LinkKindRelease LinkKind = "release"
	LinkKindMaster  LinkKind = "master"
)

type InvalidLinkError struct {
	Link string
	Err  error
}

func (e *InvalidLinkError) Error() string {
	return fmt.Sprintf("invalid link %q: %v", e.Link, e.Err)
}

var idPrefix = regexp.MustCompile(`^(\d+)`)

// ParseLink accepts a Discogs release or master URL, or a bare numeric
// release id, and returns the kind and id. Language-prefixed paths
// (/fr/release/..., /es/master/...) are recognized as well.
func ParseLink(link string) (LinkKind, int64, error) {
	if id, err := strconv.ParseInt(link, 10, 64); nil == err {
		return LinkKindRelease, id, nil
	}

	parsedURL, err := url.Parse(link)
	if nil != err {
		return "", 0, &InvalidLinkError{Link: link, Err: fmt.Errorf("failed to parse URL: %v", err)}
	}

	parts := strings.Split(strings.Trim(parsedURL.Path, "/"), "/")
	if len(parts) >= 2 && len(parts[0]) == 2 {
		parts = parts[1:]
	}
	if len(parts) < 2 {
		return "", 0, &InvalidLinkError{Link: link, Err: fmt.Errorf("failed to cut path %q", parsedURL.Path)}
	}

	var kind LinkKind
	switch parts[0] {
	case "release":
		kind = LinkKindRelease
	case "master":
		kind = LinkKindMaster
	default:
		return "", 0, &InvalidLinkError{Link: link, Err: fmt.Errorf("unsupported kind %q", parts[0])}
	}

	m := idPrefix.FindString(parts[1])
	if m == "" {
		return "", 0, &InvalidLinkError{Link: link, Err: fmt.Errorf("no numeric id in path segment %q", parts[1])}
	}
	id, err := strconv.ParseInt(m, 10, 64)
	if nil != err {
		return "", 0, &InvalidLinkError{Link: link, Err: fmt.Errorf("failed to parse id %q: %v", m, err)}
	}
	return kind, id, nil
}

func IsLink(text string) bool {
	u, err := url.Parse(text)
	if nil != err {
		return false
	}

	switch u.Scheme {
	case "https":
	default:
		return false
	}

	switch u.Host {
	case "discogs.com", "www.discogs.com":
	default:
		return false
	}

	_, _, parseErr := ParseLink(text)
	return nil == parseErr
}
