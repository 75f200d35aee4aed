package connection

import (
	"net/url"
	"strings"

	"github.com/agentstation/labsync/pkg/errors"
)

// StateURL derives the lab state endpoint from an API base address.
// The scheme mirrors the base: http becomes ws and https becomes wss.
//
//	StateURL("https://lab.example.com/api", "42") == "wss://lab.example.com/api/ws/labs/42/state"
func StateURL(base, resourceID string) (string, error) {
	switch resourceID {
	case "":
		return "", errors.NewValidationError("resource_id", resourceID, "must not be empty")
	case ".", "..":
		return "", errors.NewValidationError("resource_id", resourceID, "is not a valid path segment")
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", errors.NewConfigError("base_url", "cannot parse "+base, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", errors.NewConfigError("base_url", "unsupported scheme "+u.Scheme, nil)
	}
	if u.Host == "" {
		return "", errors.NewConfigError("base_url", "missing host in "+base, nil)
	}
	u.Fragment = ""
	return u.JoinPath("ws", "labs", url.PathEscape(resourceID), "state").String(), nil
}
