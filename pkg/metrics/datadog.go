package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/AidanTHWong/wallet/pkg/balance"
	"github.com/AidanTHWong/wallet/pkg/shared"

	datadog "github.com/DataDog/datadog-api-client-go/api/v2/datadog"
	"github.com/rs/zerolog/log"
)

type DatadogOptions struct {
	APIKey string
	AppKey string
	// Site overrides the intake site, e.g. datadoghq.eu.
	Site string
	Tags []string
}

// Datadog submits gauges through the Datadog metrics API.
type Datadog struct {
	client *datadog.APIClient
	keys   map[string]datadog.APIKey
	site   string
	tags   []string
}

func NewDatadog(opts DatadogOptions) *Datadog {
	return &Datadog{
		client: datadog.NewAPIClient(datadog.NewConfiguration()),
		keys: map[string]datadog.APIKey{
			"apiKeyAuth": {Key: opts.APIKey},
			"appKeyAuth": {Key: opts.AppKey},
		},
		site: opts.Site,
		tags: opts.Tags,
	}
}

func (d *Datadog) withAuth(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, datadog.ContextAPIKeys, d.keys)
	if d.site != "" {
		ctx = context.WithValue(ctx, datadog.ContextServerVariables, map[string]string{"site": d.site})
	}
	return ctx
}

func (d *Datadog) Post(ctx context.Context, series ...datadog.MetricSeries) error {
	if len(series) == 0 {
		return nil
	}
	payload := datadog.MetricPayload{Series: series}
	if _, _, err := d.client.MetricsApi.SubmitMetrics(d.withAuth(ctx), payload); err != nil {
		return fmt.Errorf("failed to submit metrics: %w", err)
	}
	log.Debug().Int("series", len(series)).Msg("metrics posted to datadog")
	return nil
}

// PostBalances pushes one gauge per wallet and chain plus the grand total.
func (d *Datadog) PostBalances(ctx context.Context, snaps ...balance.Snapshot) error {
	return d.Post(ctx, balanceSeries(time.Now(), d.tags, snaps...)...)
}

func gauge(now time.Time, name string, value float64, tags []string) datadog.MetricSeries {
	return datadog.MetricSeries{
		Metric: name,
		Type:   datadog.METRICINTAKETYPE_GAUGE.Ptr(),
		Points: []datadog.MetricPoint{{
			Timestamp: datadog.PtrInt64(now.Unix()),
			Value:     datadog.PtrFloat64(value),
		}},
		Tags: tags,
	}
}

func balanceSeries(now time.Time, tags []string, snaps ...balance.Snapshot) []datadog.MetricSeries {
	var series []datadog.MetricSeries
	for _, s := range snaps {
		if !s.Connected() {
			continue
		}
		for _, c := range shared.Chains {
			t := append([]string{"wallet:" + s.Name, "chain:" + c.String(), "account_addr:" + s.Address.Hex()}, tags...)
			series = append(series, gauge(now, namespace+".wallet.balance", Ether(s.Balance(c)), t))
		}
	}
	totals := balance.Sum(snaps...)
	series = append(series, gauge(now, namespace+".total.balance", Ether(totals.Grand), tags))
	return series
}
