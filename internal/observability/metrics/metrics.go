package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes ledger-level instruments. A nil *Metrics is valid
// and records nothing, so services can take it as an optional dep.
type Metrics struct {
	debits           metric.Int64Counter
	insufficient     metric.Int64Counter
	grants           metric.Int64Counter
	purchases        metric.Int64Counter
	refunds          metric.Int64Counter
	frozenAccounts   metric.Int64Counter
	forfeitedCredits metric.Int64Counter
	debitedCredits   metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "", "grpc":
		return otlpmetricgrpc.New(context.Background(),
			otlpmetricgrpc.WithEndpoint(endpoint),
			otlpmetricgrpc.WithInsecure(),
		)
	case "http":
		return otlpmetrichttp.New(context.Background(),
			otlpmetrichttp.WithEndpoint(endpoint),
			otlpmetrichttp.WithInsecure(),
		)
	default:
		return nil, fmt.Errorf("unsupported otlp protocol %q", protocol)
	}
}

// New configures the ledger instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "creditd"
	}
	meter := provider.Meter(name)

	debits, err := meter.Int64Counter("creditd_debits_total")
	if err != nil {
		return nil, err
	}
	insufficient, err := meter.Int64Counter("creditd_insufficient_credits_total")
	if err != nil {
		return nil, err
	}
	grants, err := meter.Int64Counter("creditd_grants_total")
	if err != nil {
		return nil, err
	}
	purchases, err := meter.Int64Counter("creditd_purchases_total")
	if err != nil {
		return nil, err
	}
	refunds, err := meter.Int64Counter("creditd_refunds_total")
	if err != nil {
		return nil, err
	}
	frozen, err := meter.Int64Counter("creditd_frozen_accounts_total")
	if err != nil {
		return nil, err
	}
	forfeited, err := meter.Int64Counter("creditd_forfeited_credits_total")
	if err != nil {
		return nil, err
	}
	debited, err := meter.Int64Counter("creditd_debited_credits_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		debits:           debits,
		insufficient:     insufficient,
		grants:           grants,
		purchases:        purchases,
		refunds:          refunds,
		frozenAccounts:   frozen,
		forfeitedCredits: forfeited,
		debitedCredits:   debited,
	}, nil
}

func (m *Metrics) IncDebit(ctx context.Context, feature string, amount int64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("feature", feature))
	m.debits.Add(ctx, 1, attrs)
	m.debitedCredits.Add(ctx, amount, attrs)
}

func (m *Metrics) IncInsufficient(ctx context.Context, feature string) {
	if m == nil {
		return
	}
	m.insufficient.Add(ctx, 1, metric.WithAttributes(attribute.String("feature", feature)))
}

func (m *Metrics) IncGrant(ctx context.Context, plan string) {
	if m == nil {
		return
	}
	m.grants.Add(ctx, 1, metric.WithAttributes(attribute.String("plan", plan)))
}

func (m *Metrics) IncPurchase(ctx context.Context, pack string) {
	if m == nil {
		return
	}
	m.purchases.Add(ctx, 1, metric.WithAttributes(attribute.String("pack", pack)))
}

func (m *Metrics) IncRefund(ctx context.Context, feature string) {
	if m == nil {
		return
	}
	m.refunds.Add(ctx, 1, metric.WithAttributes(attribute.String("feature", feature)))
}

func (m *Metrics) IncFrozenAccount(ctx context.Context) {
	if m == nil {
		return
	}
	m.frozenAccounts.Add(ctx, 1)
}

func (m *Metrics) AddForfeited(ctx context.Context, credits int64) {
	if m == nil {
		return
	}
	m.forfeitedCredits.Add(ctx, credits)
}
