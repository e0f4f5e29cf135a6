// gitinfo.go turns git remote URLs into the repository identity recorded in the release context.
package gitinfo

import (
	"net/url"
	"path"
	"regexp"
	"strings"
)

// Repo identifies the repository behind a remote URL.
type Repo struct {
	Host       string `json:"host" mapstructure:"host"`
	Owner      string `json:"owner" mapstructure:"owner"`
	Project    string `json:"project" mapstructure:"project"`
	Protocol   string `json:"protocol" mapstructure:"protocol"`
	Remote     string `json:"remote" mapstructure:"remote"`
	Repository string `json:"repository" mapstructure:"repository"`
}

// Map returns the context form of r.
func (r Repo) Map() map[string]any {
	return map[string]any{
		"host":       r.Host,
		"owner":      r.Owner,
		"project":    r.Project,
		"protocol":   r.Protocol,
		"remote":     r.Remote,
		"repository": r.Repository,
	}
}

var (
	windowsDrive = regexp.MustCompile(`^[A-Za-z]:\\\\?`)
	scpLike      = regexp.MustCompile(`^(?:([^@/]+)@)?([^:/]+):(.+)$`)
)

// Parse reads https, ssh, git, file and scp-style (git@host:owner/project.git)
// remotes. An empty URL yields an empty Repo.
func Parse(remoteURL string) Repo {
	raw := strings.TrimSpace(remoteURL)
	if raw == "" {
		return Repo{}
	}
	normalized := windowsDrive.ReplaceAllString(raw, "file://")
	if strings.HasPrefix(normalized, "/") {
		normalized = "file://" + normalized
	}
	normalized = strings.ReplaceAll(normalized, `\`, "/")

	repo := Repo{Remote: raw}
	var p string
	if u, err := url.Parse(normalized); err == nil && u.Scheme != "" && strings.Contains(normalized, "://") {
		repo.Protocol = protocol(u.Scheme)
		repo.Host = u.Hostname()
		p = u.Path
	} else if m := scpLike.FindStringSubmatch(normalized); m != nil {
		repo.Protocol = "ssh"
		repo.Host = m[2]
		p = m[3]
	} else {
		p = normalized
	}

	p = strings.TrimSuffix(strings.Trim(p, "/"), ".git")
	repo.Project = path.Base(p)
	if repo.Project == "." || repo.Project == "/" {
		repo.Project = ""
	}
	owner := strings.Trim(path.Dir(p), "/")
	if owner == "." {
		owner = ""
	}
	if repo.Protocol == "file" {
		owner = path.Base(owner)
		if owner == "." || owner == "/" {
			owner = ""
		}
	}
	repo.Owner = owner
	repo.Repository = repo.Owner + "/" + repo.Project
	return repo
}

func protocol(scheme string) string {
	switch s := strings.ToLower(scheme); s {
	case "git+ssh", "ssh+git":
		return "ssh"
	case "git+https":
		return "https"
	default:
		return s
	}
}
