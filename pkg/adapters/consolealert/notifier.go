// Package consolealert shows notices on the terminal and, when attached to
// one, offers their retry action as a y/N prompt.
package consolealert

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/ideamans/go-l10n"
	"github.com/mattn/go-isatty"

	"github.com/user/framegrab/pkg/ports"
)

// Notifier implements ports.Notifier.
type Notifier struct {
	mu          sync.Mutex
	out         io.Writer
	in          *bufio.Reader
	interactive bool
	title       *color.Color
	hint        *color.Color
	logger      ports.Logger
}

// New writes to stderr and prompts on stdin when both are terminals.
func New(logger ports.Logger) *Notifier {
	interactive := isatty.IsTerminal(os.Stdin.Fd()) && isatty.IsTerminal(os.Stderr.Fd())
	return NewWithIO(os.Stderr, os.Stdin, interactive, logger)
}

// NewWithIO creates a Notifier on explicit streams.
func NewWithIO(out io.Writer, in io.Reader, interactive bool, logger ports.Logger) *Notifier {
	n := &Notifier{
		out:         out,
		in:          bufio.NewReader(in),
		interactive: interactive,
		title:       color.New(color.FgYellow, color.Bold),
		hint:        color.New(color.Faint),
		logger:      logger.WithComponent("notice"),
	}
	if !interactive {
		n.title.DisableColor()
		n.hint.DisableColor()
	}
	return n
}

// Notify implements ports.Notifier.
func (n *Notifier) Notify(ctx context.Context, notice ports.Notice) {
	if !n.show(notice) {
		return
	}
	if err := notice.Retry(ctx); err != nil {
		n.logger.Warn("%s failed: %v", notice.RetryLabel, err)
	}
}

// show prints the notice and reports whether the user asked for a retry.
func (n *Notifier) show(notice ports.Notice) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.title.Fprintln(n.out, l10n.T(notice.Title))
	fmt.Fprintln(n.out, l10n.T(notice.Message))

	if notice.Retry == nil {
		return false
	}
	label := notice.RetryLabel
	if label == "" {
		label = "Retry"
	}
	label = l10n.T(label)
	if !n.interactive {
		n.hint.Fprintln(n.out, l10n.F("(%s is only offered on an interactive terminal)", label))
		return false
	}

	n.hint.Fprintf(n.out, "%s? [y/N] ", label)
	answer, _ := n.in.ReadString('\n')
	return strings.EqualFold(strings.TrimSpace(answer), "y")
}

var _ ports.Notifier = (*Notifier)(nil)
