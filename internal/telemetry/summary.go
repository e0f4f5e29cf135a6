// Package telemetry times and traces the stages of a release.
package telemetry

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Summary condenses the timings of a release run.
// Order lists stage names as they first ran.
type Summary struct {
	Total  time.Duration
	Phases map[string]time.Duration
	Order  []string
	Hooks  int
	Failed string
}

// Line renders the summary on one line, or "" when nothing was recorded.
func (s Summary) Line() string {
	var parts []string
	if s.Total > 0 {
		parts = append(parts, "total="+roundDuration(s.Total))
	}
	if stages := s.stages(); stages != "" {
		parts = append(parts, "stages "+stages)
	}
	if s.Hooks > 0 {
		parts = append(parts, fmt.Sprintf("hooks=%d", s.Hooks))
	}
	if s.Failed != "" {
		parts = append(parts, "failed in "+s.Failed)
	}
	if len(parts) == 0 {
		return ""
	}
	return "Telemetry: " + strings.Join(parts, " · ")
}

func (s Summary) stages() string {
	names := s.Order
	if len(names) == 0 {
		for name := range s.Phases {
			names = append(names, name)
		}
		sort.Strings(names)
	}
	out := make([]string, 0, len(names))
	for _, name := range names {
		d, ok := s.Phases[name]
		if !ok {
			continue
		}
		out = append(out, name+"="+roundDuration(d))
	}
	return strings.Join(out, ", ")
}

func roundDuration(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	if r := d.Round(10 * time.Millisecond); r > 0 {
		return r.String()
	}
	return d.String()
}

// stageClock records how long each release stage took, in run order.
type stageClock struct {
	mu     sync.Mutex
	begun  time.Time
	spent  map[string]time.Duration
	order  []string
	failed string
}

func newStageClock() *stageClock {
	return &stageClock{begun: time.Now(), spent: map[string]time.Duration{}}
}

func (c *stageClock) reset() {
	c.mu.Lock()
	c.begun = time.Now()
	c.mu.Unlock()
}

func (c *stageClock) time(stage string, fn func() error) error {
	start := time.Now()
	err := fn()
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, seen := c.spent[stage]; !seen {
		c.order = append(c.order, stage)
	}
	c.spent[stage] += time.Since(start)
	if err != nil && c.failed == "" {
		c.failed = stage
	}
	return err
}

func (c *stageClock) summary(hooks int) Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	phases := make(map[string]time.Duration, len(c.spent))
	for k, v := range c.spent {
		phases[k] = v
	}
	return Summary{
		Total:  time.Since(c.begun),
		Phases: phases,
		Order:  append([]string(nil), c.order...),
		Hooks:  hooks,
		Failed: c.failed,
	}
}
