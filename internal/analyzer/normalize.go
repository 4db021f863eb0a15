package analyzer

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// MaxURLLength is the longest accepted submission, measured after trimming.
const MaxURLLength = 255

var (
	hostLabel    = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)
	defaultPorts = map[string]int{"http": 80, "https": 443}
)

// Normalize validates a user supplied URL and reduces it to its origin,
// scheme://host[:port]. The port is kept only when it differs from the
// scheme default. Path, query and fragment are discarded.
func Normalize(raw string) (string, error) {
	input := strings.TrimSpace(raw)
	if input == "" {
		return "", invalid(raw, "url must not be empty")
	}
	if utf8.RuneCountInString(input) > MaxURLLength {
		return "", invalid(raw, "url must be at most 255 characters")
	}

	u, err := url.Parse(input)
	if err != nil {
		return "", invalid(raw, "malformed url")
	}
	scheme := strings.ToLower(u.Scheme)
	if _, ok := defaultPorts[scheme]; !ok {
		return "", invalid(raw, "scheme must be http or https")
	}
	// "http:example.com" parses as an opaque URL with no authority.
	if u.Opaque != "" {
		return "", invalid(raw, "malformed url")
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", invalid(raw, "host is missing")
	}
	if err := checkHost(host); err != nil {
		return "", invalid(raw, err.Error())
	}

	canonical := scheme + "://" + host
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil || port < 1 || port > 65535 {
			return "", invalid(raw, "port must be between 1 and 65535")
		}
		if port != defaultPorts[scheme] {
			canonical += ":" + strconv.Itoa(port)
		}
	}
	return canonical, nil
}

type hostError string

func (e hostError) Error() string { return string(e) }

func checkHost(host string) error {
	dot := strings.LastIndexByte(host, '.')
	if dot < 0 {
		return hostError("host must contain a dot")
	}
	if len(host)-dot-1 < 2 {
		return hostError("top-level domain must be at least 2 characters")
	}
	for _, label := range strings.Split(host, ".") {
		if !hostLabel.MatchString(label) {
			return hostError("host contains an invalid label")
		}
	}
	return nil
}

func invalid(input, reason string) *ValidationError {
	return &ValidationError{Input: input, Reason: reason}
}
