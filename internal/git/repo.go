package git

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/example/releaser/internal/exit"
	"github.com/example/releaser/internal/shell"
	"github.com/moby/patternmatcher"
)

// Queries against the repository. Read-only commands swallow failures and
// answer empty strings: missing metadata is never fatal.

func (p *Plugin) read(ctx context.Context, argv ...string) string {
	out, err := p.Exec(ctx, argv, shell.ReadOnly)
	if err != nil {
		p.Log().V(1).Info("git query failed", "argv", argv, "err", err.Error())
		return ""
	}
	return out
}

func isRemoteName(s string) bool {
	return s != "" && !strings.Contains(s, "/")
}

// remoteURL resolves the remote to use: the configured remote, then origin,
// then the remote tracked by the current branch. A configured URL is used
// verbatim. It returns the remote as given to git push and its URL.
func (p *Plugin) remoteURL(ctx context.Context, configured, branch string) (remote, url string) {
	candidates := []string{configured, "origin"}
	if branch != "" {
		candidates = append(candidates, p.read(ctx, "git", "config", "--get", "branch."+branch+".remote"))
	}
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if !isRemoteName(c) {
			return c, c
		}
		if u := p.read(ctx, "git", "remote", "get-url", c); u != "" {
			return c, u
		}
		if u := p.read(ctx, "git", "config", "--get", "remote."+c+".url"); u != "" {
			return c, u
		}
	}
	return "", ""
}

func (p *Plugin) branchName(ctx context.Context) string {
	b := p.read(ctx, "git", "rev-parse", "--abbrev-ref", "HEAD")
	if b == "HEAD" {
		return ""
	}
	return b
}

// fetchBackOff spaces fetch retries.
var fetchBackOff = func() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	return b
}

func (p *Plugin) fetch(ctx context.Context, url string, retries int) error {
	if retries < 0 {
		retries = 0
	}
	op := func() error {
		_, err := p.Exec(ctx, []string{"git", "fetch"}, shell.Mutating)
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}
	b := backoff.WithContext(backoff.WithMaxRetries(fetchBackOff(), uint64(retries)), ctx)
	err := backoff.RetryNotify(op, b, func(err error, wait time.Duration) {
		p.Log().Info("git fetch failed, retrying", "remote", url, "in", wait.String(), "err", err.Error())
	})
	if err != nil {
		return exit.Wrap(exit.ErrConnectivity, "Unable to fetch from %s\n%v", url, err)
	}
	return nil
}

// tagFilter accepts the tags that belong to the selected environment: the
// tagMatch glob minus the exclude patterns, and a match of tagRegex with its
// capture group, so "vnext" never passes for v*.
func tagFilter(glob, regex string, exclude []string) (func(tag string) bool, error) {
	if glob == "" {
		glob = "*"
	}
	patterns := []string{glob}
	for _, e := range exclude {
		if e = strings.TrimSpace(e); e != "" {
			patterns = append(patterns, "!"+strings.TrimPrefix(e, "!"))
		}
	}
	pm, err := patternmatcher.New(patterns)
	if err != nil {
		return nil, exit.Wrap(exit.ErrConfig, "git tagExclude: %v", err)
	}
	var re *regexp.Regexp
	if regex != "" {
		if re, err = regexp.Compile(regex); err != nil {
			return nil, exit.Wrap(exit.ErrConfig, "The environment is invalid: %v", err)
		}
	}
	return func(tag string) bool {
		if tag == "" {
			return false
		}
		if ok, err := pm.MatchesOrParentMatches(tag); err != nil || !ok {
			return false
		}
		return re == nil || len(re.FindStringSubmatch(tag)) > 1
	}, nil
}

// latestTag finds the newest accepted tag under glob: the most recently
// created match, then the nearest match of the newest tagged commit, then
// git describe from HEAD.
func (p *Plugin) latestTag(ctx context.Context, glob string, accept func(string) bool) string {
	if glob == "" {
		glob = "*"
	}
	out := p.read(ctx, "git", "for-each-ref", "--sort=-version:refname", "--sort=-creatordate",
		"--format=%(refname:short)", "refs/tags/"+glob)
	for _, tag := range strings.Split(out, "\n") {
		if tag = strings.TrimSpace(tag); accept(tag) {
			return tag
		}
	}
	if commit := p.read(ctx, "git", "rev-list", "--tags="+glob, "--max-count=1"); commit != "" {
		if tag := p.read(ctx, "git", "describe", "--abbrev=0", "--match="+glob, "--tags", commit); accept(tag) {
			return tag
		}
	}
	if tag := p.read(ctx, "git", "describe", "--abbrev=0", "--tags", "--match="+glob); accept(tag) {
		return tag
	}
	return ""
}

const fieldSep = "@@@"

// taggerInfo returns who created tag and when, falling back to the
// committer of the tagged commit for lightweight tags.
func (p *Plugin) taggerInfo(ctx context.Context, tag string) (name, date string) {
	format := strings.Join([]string{"%(taggername)", "%(taggerdate:iso-strict)", "%(committername)", "%(committerdate:iso-strict)"}, fieldSep)
	out := p.read(ctx, "git", "for-each-ref", "--format="+format, "refs/tags/"+tag)
	if out == "" {
		return "", ""
	}
	fields := strings.Split(firstLine(out), fieldSep)
	for len(fields) < 4 {
		fields = append(fields, "")
	}
	name, date = fields[0], fields[1]
	if name == "" {
		name, date = fields[2], fields[3]
	}
	return name, FormatDate(date)
}

// FormatDate renders an ISO 8601 date as "YYYY-MM-DD HH:MM:SS" in local
// time. Unreadable input yields "".
func FormatDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05 -0700", time.RFC1123Z} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Local().Format("2006-01-02 15:04:05")
		}
	}
	return ""
}

func (p *Plugin) hasUpstream(ctx context.Context) bool {
	ref := p.read(ctx, "git", "symbolic-ref", "HEAD")
	if ref == "" {
		return true
	}
	return p.read(ctx, "git", "for-each-ref", "--format=%(upstream:short)", ref) != ""
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}

func argList(v any) []string {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		return strings.Fields(val)
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			out = append(out, fmt.Sprint(item))
		}
		return out
	case []string:
		return val
	}
	return strings.Fields(fmt.Sprint(v))
}
