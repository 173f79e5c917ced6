package scheduler

import (
	"mu-scheduler/internal/wifi"

	"github.com/sirupsen/logrus"
)

func decisionLogFields(d *Decision, width wifi.ChannelWidth) logrus.Fields {
	fields := logrus.Fields{
		"format":     d.Format.String(),
		"ac":         d.AC.String(),
		"width":      width.String(),
		"candidates": d.Candidates,
	}
	if d.Reason != "" {
		fields["reason"] = d.Reason
	}
	if d.Trigger != TriggerNone {
		fields["trigger"] = d.Trigger.String()
	}
	if len(d.Receivers) > 0 {
		fields["served"] = len(d.Receivers)
		fields["preamble"] = d.Preamble.String()
	}
	if len(d.Truncated) > 0 {
		fields["truncated"] = len(d.Truncated)
	}
	if d.Duration > 0 {
		fields["duration"] = d.Duration
	}
	if d.Plan != nil {
		fields["units_used"] = d.Plan.UnitsUsed
		fields["units_total"] = d.Plan.UnitsTotal
	}
	return fields
}

func stationLogFields(aid uint16, address string) logrus.Fields {
	return logrus.Fields{
		"aid":     aid,
		"address": address,
	}
}
