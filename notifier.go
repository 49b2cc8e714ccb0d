package cfddns

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
	"unicode"

	"github.com/sirupsen/logrus"
)

// TimeFormat is the layout of the system time shown in reports.
const TimeFormat = "2006-01-02 15:04:05"

const (
	reportColor   = "#a80000"
	reportTitle   = "URGENT: System IP Address Change Detected"
	reportContent = "**Alert!** The server's public IP address has changed."

	notAvailable = "N/A"
	// leaves room for the code block around the domain report
	maxDomainReport = 1000

	commandTimeout = 30 * time.Second
)

// Report describes a run that changed the public IP.
type Report struct {
	IP         string
	PreviousIP string
	Time       time.Time
	// Service is the name of the service whose status is reported, e.g. "apache2".
	Service       string
	ServiceStatus string
	UpdateStatus  string
	Summary       []string
	Success       bool
}

// DomainStatus joins the summary lines.
func (r Report) DomainStatus() string {
	return strings.Join(r.Summary, "\n")
}

// Message renders r as a chat message.
func (r Report) Message(logger logrus.FieldLogger) *Message {
	m := NewMessage(logger)
	m.SetColor(reportColor)
	m.Title = reportTitle
	m.Content = reportContent

	m.AddField("New Public IP", r.IP, true)
	m.AddField("System Time", r.Time.Format(TimeFormat), true)
	m.AddField(serviceTitle(r.Service)+" Status", orNA(r.ServiceStatus), false)
	m.AddField("System Updates", orNA(r.UpdateStatus), false)

	domainReport := r.DomainStatus()
	if d, cut := truncate(domainReport, maxDomainReport); cut {
		domainReport = d + "..."
	}
	m.AddField("DNS Update Status", "```\n"+domainReport+"\n```", false)
	return m
}

func serviceTitle(service string) string {
	if service == "" {
		return "Service"
	}
	r := []rune(service)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

func orNA(s string) string {
	if s == "" {
		return notAvailable
	}
	return s
}

// Notify implements cfddns.Notifier by posting the rendered report.
func (w *Webhook) Notify(ctx context.Context, r Report) error {
	return w.Send(ctx, r.Message(w.logger))
}

// commandRunner runs an external program and returns what it wrote.
type commandRunner func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// CommandNotifier hands reports to an external program.
//
// The program is called as
//
//	<command> [args...] <ip> <service status> <update status> <system time> <domain status>
//
// and must exit 0 within 30 seconds.
type CommandNotifier struct {
	command string
	args    []string
	timeout time.Duration
	run     commandRunner
	logger  logrus.FieldLogger
}

func NewCommandNotifier(command string, args ...string) *CommandNotifier {
	return &CommandNotifier{
		command: command,
		args:    args,
		timeout: commandTimeout,
		run:     execRunner,
		logger:  discard,
	}
}

func (n *CommandNotifier) SetLogger(l logrus.FieldLogger) {
	n.logger = l
}

// Notify implements cfddns.Notifier.
func (n *CommandNotifier) Notify(ctx context.Context, r Report) error {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	args := append(append([]string(nil), n.args...),
		r.IP,
		orNA(r.ServiceStatus),
		orNA(r.UpdateStatus),
		r.Time.Format(TimeFormat),
		r.DomainStatus(),
	)
	n.logger.Infof("sending notification via %s...", n.command)
	stdout, stderr, err := n.run(ctx, n.command, args...)
	if err == nil {
		n.logger.Infof("notifier executed successfully. Output: %s", strings.TrimSpace(string(stdout)))
		return nil
	}

	var exitErr *exec.ExitError
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		n.logger.Errorf("notifier timed out after %s", n.timeout)
		return fmt.Errorf("%w: notifier %s timed out after %s", ErrExec, n.command, n.timeout)
	case errors.Is(err, exec.ErrNotFound):
		n.logger.Errorf("notifier not found at %s", n.command)
		return fmt.Errorf("%w: notifier %s not found: %s", ErrExec, n.command, err)
	case errors.As(err, &exitErr):
		n.logger.WithField("status", exitErr.ExitCode()).Errorf("notifier execution failed. stdout: %s stderr: %s",
			strings.TrimSpace(string(stdout)), strings.TrimSpace(string(stderr)))
		return fmt.Errorf("%w: notifier %s exited with code %d", ErrExec, n.command, exitErr.ExitCode())
	default:
		n.logger.Errorf("an unexpected error occurred while running the notifier: %s", err)
		return fmt.Errorf("%w: %s", ErrExec, err)
	}
}
