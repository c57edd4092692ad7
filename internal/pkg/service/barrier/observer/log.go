package observer

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/keboola/go-barrier/internal/pkg/log"
	"github.com/keboola/go-barrier/internal/pkg/service/barrier/aggregation"
	"github.com/keboola/go-barrier/internal/pkg/service/barrier/participant"
)

// Log writes events to the logger.
type Log struct {
	logger log.Logger
	path   string
}

func NewLog(logger log.Logger, path string) *Log {
	return &Log{logger: logger.WithComponent("barrier").With(attribute.String("barrier.path", path)), path: path}
}

func (o *Log) Registered(ctx context.Context, name string, payload participant.Payload) {
	o.logger.Infof(ctx, `registered participant "%s", %s`, name, formatPayload(&payload))
}

func (o *Log) Waiting(ctx context.Context, ready, total int) {
	o.logger.Infof(ctx, `barrier "%s" is waiting, ready: %d / %d`, o.path, ready, total)
}

func (o *Log) Aggregated(ctx context.Context, r aggregation.Report) {
	logger := o.logger.WithDuration(r.Elapsed)
	logger.Infof(ctx, `participants with metadata: %d`, r.Count)
	if r.Values > 0 {
		logger.Infof(ctx, `max: %s, min: %s, mean: %s`, formatFloat(r.Max), formatFloat(r.Min), formatFloat(r.Mean))
	} else {
		logger.Info(ctx, `no participant value`)
	}
	logger.Infof(ctx, `unique addresses: %d`, r.UniqueAddresses)
	logger.Infof(ctx, `top addresses: %s`, formatTopAddresses(r.TopAddresses))
	logger.Infof(ctx, `added participants: %d`, r.Added)
	logger.Infof(ctx, `metadata fetched in %s`, formatSeconds(r.Elapsed))
}

func (o *Log) LeaderMetadata(ctx context.Context, leader string, payload *participant.Payload) {
	if payload == nil {
		o.logger.Warnf(ctx, `metadata of the leader "%s" are not available`, leader)
		return
	}
	o.logger.Infof(ctx, `leader "%s" metadata: %s`, leader, formatPayload(payload))
}

func (o *Log) MetadataFetchFailed(ctx context.Context, name string, err error) {
	o.logger.With(attribute.String("participant", name)).Warn(ctx, err.Error())
}

func (o *Log) Passed(ctx context.Context, count int, elapsed time.Duration) {
	logger := o.logger.WithDuration(elapsed)
	logger.Infof(ctx, `barrier passed, all %d participants are ready`, count)
	logger.Infof(ctx, `barrier took %s`, formatSeconds(elapsed))
}

func (o *Log) LeaderAnnounced(ctx context.Context, leader string) {
	o.logger.Infof(ctx, `participant "%s" is the leader`, leader)
}

func (o *Log) Fatal(ctx context.Context, err error) {
	o.logger.Errorf(ctx, `barrier failed: %s`, err)
}

func formatPayload(p *participant.Payload) string {
	value := "none"
	if p.Value != nil {
		value = formatFloat(*p.Value)
	}
	return fmt.Sprintf(`repository "%s", value %s, address "%s"`, p.Repository, value, p.Address)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// formatSeconds formats the duration as seconds with one decimal place.
func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 1, 64) + " s"
}

func formatTopAddresses(items []aggregation.AddressCount) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, fmt.Sprintf(`"%s"=%d`, item.Address, item.Count))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
