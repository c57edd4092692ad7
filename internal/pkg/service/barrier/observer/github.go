package observer

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

type GitHubConfig struct {
	Annotations bool `configKey:"annotations" configUsage:"Print GitHub Actions workflow commands, notice with the leader name and error on failure."`
}

func NewGitHubConfig() GitHubConfig {
	return GitHubConfig{Annotations: false}
}

// GitHub prints GitHub Actions workflow commands.
// The leader prints "::notice::<leader>" when the barrier passed, any failure is printed as "::error::<message>".
type GitHub struct {
	Nop
	lock *sync.Mutex
	out  io.Writer
}

func NewGitHub(out io.Writer) *GitHub {
	return &GitHub{lock: &sync.Mutex{}, out: out}
}

func (o *GitHub) LeaderAnnounced(_ context.Context, leader string) {
	o.command("notice", leader)
}

func (o *GitHub) Fatal(_ context.Context, err error) {
	o.command("error", err.Error())
}

func (o *GitHub) command(name, message string) {
	o.lock.Lock()
	defer o.lock.Unlock()
	_, _ = fmt.Fprintf(o.out, "::%s::%s\n", name, escapeCommandData(message))
}

// escapeCommandData encodes characters with a special meaning in a workflow command.
func escapeCommandData(s string) string {
	s = strings.ReplaceAll(s, "%", "%25")
	s = strings.ReplaceAll(s, "\r", "%0D")
	s = strings.ReplaceAll(s, "\n", "%0A")
	return s
}

var _ Observer = (*GitHub)(nil)
