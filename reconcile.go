package cfddns

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
)

// Result is the outcome of a single run.
type Result struct {
	ResolvedIP string
	// PreviousIP is empty when no IP was stored before the run.
	PreviousIP string
	// Changed is false when the resolved IP matched the stored one and no zone was contacted.
	Changed bool
	// Summary holds the report lines in zone and record order.
	Summary []string
	// Success is true when every attempted record update succeeded.
	Success bool
	Updated int
	Failed  int
	Skipped int
}

// Reconcile resolves the public IP and, if it differs from the stored one,
// points every address record of every zone at it.
//
// A resolution failure aborts the run before anything else is contacted.
// Failed zone listings and record updates are recorded in the Summary and the run carries on;
// a failed update prevents the new IP from being stored so the next run retries it.
// The returned error reports resolution, notification and store failures.
func (c *Client) Reconcile(ctx context.Context) (Result, error) {
	c.logger.Info("starting DDNS update process...")
	ip, err := c.Resolve(ctx)
	if err != nil {
		c.logger.Errorf("could not fetch public IP: %s", err)
		return Result{}, fmt.Errorf("error getting public IP: %w", err)
	}
	res := Result{ResolvedIP: ip.String(), Success: true}
	log := c.logger.WithField("ip", res.ResolvedIP)

	last, found, err := c.Load()
	switch {
	case err != nil:
		log.Errorf("%s, will assume IP needs update", err)
	case !found:
		log.Info("no previous IP stored, will assume IP needs update")
	}
	res.PreviousIP = last

	if found && last == res.ResolvedIP {
		log.Infof("IP unchanged (%s). No update needed.", res.ResolvedIP)
		c.metrics.observe(res, 0, c.now().Unix())
		return res, nil
	}
	res.Changed = true
	log.Infof("public IP changed from '%s' to '%s'. Starting DNS updates.", last, res.ResolvedIP)

	for _, z := range c.zones {
		c.reconcileZone(ctx, z, ip, &res)
	}

	var errs []error
	if len(res.Summary) == 0 {
		log.Info("IP changed, but no DNS record updates or errors to report")
	} else if c.notifier != nil {
		if err := c.notifier.Notify(ctx, c.report(ctx, res)); err != nil {
			log.Errorf("notification failed: %s", err)
			errs = append(errs, fmt.Errorf("error sending notification: %w", err))
		}
	}

	if res.Success {
		if err := c.Save(res.ResolvedIP); err != nil {
			log.Error(err)
			errs = append(errs, err)
		} else {
			log.Infof("all updates completed successfully, saved new IP %s", res.ResolvedIP)
		}
		if res.Updated == 0 {
			log.Info("although the IP changed, no records required an update")
		}
	} else {
		log.Error("one or more record updates failed, the new IP was not saved so the next run retries")
	}

	c.metrics.observe(res, len(c.zones), c.now().Unix())
	c.logger.Info("DDNS update process finished")
	return res, errors.Join(errs...)
}

func (c *Client) reconcileZone(ctx context.Context, z Zone, ip netip.Addr, res *Result) {
	log := c.logger.WithField("zone", z.Name)
	log.Infof("processing zone %s (ID: %s)", z.Name, z.ID)

	records, err := c.ListAddressRecords(ctx, z.ID)
	if err != nil {
		log.Error(err)
	}
	if len(records) == 0 {
		// not a failure: a zone may have no A records at all
		msg := fmt.Sprintf("Zone '%s': No 'A' records found or error fetching records.", z.Name)
		log.Warn(msg)
		res.Summary = append(res.Summary, msg)
		return
	}

	target := ip.String()
	var lines []string
	for _, r := range records {
		if !r.complete() {
			log.Warnf("skipping malformed record: %+v", r)
			res.Skipped++
			continue
		}
		rlog := log.WithField("record", r.Name)
		if r.Target == target {
			rlog.Infof("record already points to %s", target)
			continue
		}
		rlog.Infof("updating record %s (ID: %s) from %s to %s", r.Name, r.ID, r.Target, target)
		if err := c.UpdateAddressRecord(ctx, z.ID, r, ip); err != nil {
			rlog.Errorf("failed to update %s: %s", r.Name, err)
			lines = append(lines, fmt.Sprintf("Failed to update %s: %s", r.Name, err))
			res.Success = false
			res.Failed++
			continue
		}
		rlog.Infof("successfully updated %s to %s", r.Name, target)
		lines = append(lines, fmt.Sprintf("Updated %s to %s (Proxied: ✅)", r.Name, target))
		res.Updated++
	}

	if len(lines) > 0 {
		res.Summary = append(res.Summary, fmt.Sprintf("--- Zone: %s ---", z.Name))
		res.Summary = append(res.Summary, lines...)
	} else {
		res.Summary = append(res.Summary, fmt.Sprintf("Zone '%s': All 'A' records already up-to-date.", z.Name))
	}
}

func (c *Client) report(ctx context.Context, res Result) Report {
	r := Report{
		IP:            res.ResolvedIP,
		PreviousIP:    res.PreviousIP,
		Time:          c.now(),
		ServiceStatus: notAvailable,
		UpdateStatus:  notAvailable,
		Summary:       res.Summary,
		Success:       res.Success,
	}
	if c.serviceProbe != nil {
		r.ServiceStatus = c.serviceProbe.ServiceStatus(ctx)
		if n, ok := c.serviceProbe.(interface{ ServiceName() string }); ok {
			r.Service = n.ServiceName()
		}
	}
	if c.updateProbe != nil {
		r.UpdateStatus = c.updateProbe.PendingUpdates(ctx)
	}
	return r
}
