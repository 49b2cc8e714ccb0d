// Command ipnotify sends an IP change report to a chat webhook.
//
// Usage:
//
//	ipnotify [-webhook-url URL] [-service NAME] new_ip service_status update_status system_time domain_status
//
// It is the default external notifier of cfddns and exits 1 when the report could not be delivered.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Travis-Britz/cfddns"
	log "github.com/sirupsen/logrus"
)

func main() {
	webhookURL := flag.String("webhook-url", os.Getenv("DISCORD_WEBHOOK_URL"), "Chat webhook URL (default $DISCORD_WEBHOOK_URL)")
	service := flag.String("service", "apache2", "Name of the service whose status is reported")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] new_ip service_status update_status system_time domain_status\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if err := run(context.Background(), *webhookURL, *service, flag.Args()); err != nil {
		log.Error(err)
		fmt.Printf("Error: %s\n", err)
		os.Exit(1)
	}
	fmt.Println("Notification sent successfully.")
}

func run(ctx context.Context, webhookURL, service string, args []string) error {
	if webhookURL == "" {
		return fmt.Errorf("webhook URL not configured: set DISCORD_WEBHOOK_URL or use -webhook-url")
	}
	report, err := parseReport(service, args)
	if err != nil {
		return err
	}
	w, err := cfddns.NewWebhook(webhookURL)
	if err != nil {
		return fmt.Errorf("failed to initialize webhook: %w", err)
	}
	w.SetLogger(log.StandardLogger())
	if err := w.Notify(ctx, report); err != nil {
		return fmt.Errorf("failed to send IP change notification: %w", err)
	}
	log.Info("IP change notification sent successfully")
	return nil
}

func parseReport(service string, args []string) (cfddns.Report, error) {
	if len(args) != 5 {
		return cfddns.Report{}, fmt.Errorf("expected 5 arguments (new_ip service_status update_status system_time domain_status); got %d", len(args))
	}
	t, err := time.ParseInLocation(cfddns.TimeFormat, args[3], time.Local)
	if err != nil {
		return cfddns.Report{}, fmt.Errorf("invalid system time %q: expected format %s", args[3], cfddns.TimeFormat)
	}
	return cfddns.Report{
		IP:            args[0],
		Service:       service,
		ServiceStatus: args[1],
		UpdateStatus:  args[2],
		Time:          t,
		Summary:       strings.Split(args[4], "\n"),
	}, nil
}
