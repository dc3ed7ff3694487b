// Copyright 2026 The Kitchen Konnect Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Config holds metrics configuration
type Config struct {
	Enabled bool
}

// Meter wraps OpenTelemetry meter
type Meter struct {
	meter metric.Meter
}

// New creates a new meter instance
func New(ctx context.Context, cfg Config, serviceName string) (*Meter, error) {
	if !cfg.Enabled {
		return &Meter{meter: noop.NewMeterProvider().Meter(serviceName)}, nil
	}

	// Uses the global meter provider; exporters are configured by the OTel SDK env.
	return &Meter{meter: otel.Meter(serviceName)}, nil
}

// GetMeter returns the underlying meter
func (m *Meter) GetMeter() metric.Meter {
	return m.meter
}

// CreateCounter creates a new counter metric
func (m *Meter) CreateCounter(name, description string) (metric.Int64Counter, error) {
	counter, err := m.meter.Int64Counter(
		name,
		metric.WithDescription(description),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create counter %s: %w", name, err)
	}
	return counter, nil
}

// Instruments are the counters recorded by the auth core.
type Instruments struct {
	Logins              metric.Int64Counter
	TokensIssued        metric.Int64Counter
	TokenRotations      metric.Int64Counter
	TokenRevocations    metric.Int64Counter
	GroupSyncFailures   metric.Int64Counter
	VerificationReviews metric.Int64Counter
}

// NewInstruments registers every counter on m.
func NewInstruments(m *Meter) (*Instruments, error) {
	in := &Instruments{}
	var err error
	if in.Logins, err = m.CreateCounter("kkauth.logins", "Login attempts by outcome"); err != nil {
		return nil, err
	}
	if in.TokensIssued, err = m.CreateCounter("kkauth.tokens.issued", "Credential pairs issued"); err != nil {
		return nil, err
	}
	if in.TokenRotations, err = m.CreateCounter("kkauth.tokens.rotations", "Refresh rotations by outcome"); err != nil {
		return nil, err
	}
	if in.TokenRevocations, err = m.CreateCounter("kkauth.tokens.revocations", "Refresh tokens pushed to the denylist"); err != nil {
		return nil, err
	}
	if in.GroupSyncFailures, err = m.CreateCounter("kkauth.groups.sync_failures", "Group mirror failures after a user persist"); err != nil {
		return nil, err
	}
	if in.VerificationReviews, err = m.CreateCounter("kkauth.verification.reviews", "Verification reviews by decision"); err != nil {
		return nil, err
	}
	return in, nil
}

// Noop returns instruments that record nothing.
func Noop() *Instruments {
	in, _ := NewInstruments(&Meter{meter: noop.NewMeterProvider().Meter("noop")})
	return in
}

// Outcome is a convenience option tagging a measurement with an outcome attribute.
func Outcome(v string) metric.AddOption {
	return metric.WithAttributes(attribute.String("outcome", v))
}
