package secrets

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Reference is a parsed secret URI:
//
//	secret://NAME[?version=V][&project=P]
//
// sm:// is accepted as an alias of secret://.
type Reference struct {
	Name    string
	Version string
	Project string
}

func ParseReference(raw string) (Reference, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Reference{}, errors.New("secrets: empty reference")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Reference{}, fmt.Errorf("secrets: invalid reference %q: %w", raw, err)
	}
	if u.Scheme != "secret" && u.Scheme != "sm" {
		return Reference{}, fmt.Errorf("secrets: unsupported scheme %q", u.Scheme)
	}
	name := strings.Trim(u.Host+u.Path, "/")
	if name == "" {
		return Reference{}, fmt.Errorf("secrets: missing secret name in %q", raw)
	}
	query := u.Query()
	return Reference{
		Name:    name,
		Version: strings.TrimSpace(query.Get("version")),
		Project: strings.TrimSpace(query.Get("project")),
	}, nil
}

// String is the canonical form without query parameters.
func (r Reference) String() string {
	return "secret://" + r.Name
}

func (r Reference) version() string {
	if r.Version == "" {
		return "latest"
	}
	return r.Version
}

func (r Reference) cacheKey() string {
	return r.Project + "/" + r.Name + "@" + r.version()
}

func (r Reference) resourceName(defaultProject string) string {
	project := r.Project
	if project == "" {
		project = defaultProject
	}
	return fmt.Sprintf("projects/%s/secrets/%s/versions/%s", project, r.Name, r.version())
}
