package cfddns

import (
	"context"
	"errors"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
)

const unknown = "Unknown"

// ShellProbe answers SystemProbe questions with systemctl and apt.
type ShellProbe struct {
	service string
	run     commandRunner
	logger  logrus.FieldLogger
}

// NewShellProbe returns a probe reporting on the systemd unit service, "apache2" if empty.
func NewShellProbe(service string) *ShellProbe {
	if service == "" {
		service = "apache2"
	}
	return &ShellProbe{service: service, run: execRunner, logger: discard}
}

func (p *ShellProbe) ServiceName() string {
	return p.service
}

func (p *ShellProbe) SetLogger(l logrus.FieldLogger) {
	p.logger = l
}

// ServiceStatus reports the output of "systemctl is-active", e.g. "active" or "inactive".
func (p *ShellProbe) ServiceStatus(ctx context.Context) string {
	stdout, _, err := p.run(ctx, "systemctl", "is-active", p.service)
	if err != nil && !exited(err) {
		p.logger.Warnf("could not check %s status: %s", p.service, err)
		return unknown
	}
	status := strings.TrimSpace(string(stdout))
	if status == "" {
		return unknown
	}
	return status
}

// PendingUpdates reports "Updates Available" when apt lists upgradable packages, otherwise "Up-to-date".
func (p *ShellProbe) PendingUpdates(ctx context.Context) string {
	stdout, _, err := p.run(ctx, "apt", "list", "--upgradable")
	if err != nil && !exited(err) {
		p.logger.Warnf("could not check system updates: %s", err)
		return unknown
	}
	out := string(stdout)
	// the first line is the "Listing..." header
	if strings.Contains(out, "upgradable") && len(strings.Split(strings.TrimSpace(out), "\n")) > 1 {
		return "Updates Available"
	}
	return "Up-to-date"
}

// exited reports whether err only means the program ran and exited non-zero.
func exited(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr)
}
