package session

import (
	"fmt"
	"os"
	"strings"

	"github.com/davidahmann/archiveprep/core/jcs"
)

const (
	unknownIdentity = "unknown"
	sessionIDLength = 12
)

// Identity is the environment tuple a session id is derived from.
type Identity struct {
	User      string `json:"user"`
	Workspace string `json:"workspace"`
	Host      string `json:"pod_name"`
}

type IdentityProvider interface {
	Identity() Identity
}

// EnvIdentity reads the identity of the running notebook server from the
// environment. Lookup defaults to os.LookupEnv.
type EnvIdentity struct {
	Lookup func(string) (string, bool)
}

func (e EnvIdentity) Identity() Identity {
	lookup := e.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	first := func(keys ...string) string {
		for _, key := range keys {
			if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
				return value
			}
		}
		return ""
	}
	return Identity{
		User:      first("RENKU_USERNAME", "USER"),
		Workspace: first("RENKU_PROJECT_NAME"),
		Host:      first("HOSTNAME"),
	}.normalized()
}

type StaticIdentity Identity

func (s StaticIdentity) Identity() Identity {
	return Identity(s).normalized()
}

func (i Identity) normalized() Identity {
	fallback := func(value string) string {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			return unknownIdentity
		}
		return trimmed
	}
	return Identity{
		User:      fallback(i.User),
		Workspace: fallback(i.Workspace),
		Host:      fallback(i.Host),
	}
}

// SessionID is the first 12 hex characters of the sha256 digest of the
// identity's RFC 8785 canonical JSON form.
func SessionID(identity Identity) (string, error) {
	digest, err := jcs.DigestValue(identity.normalized())
	if err != nil {
		return "", fmt.Errorf("derive session id: %w", err)
	}
	return digest[:sessionIDLength], nil
}
