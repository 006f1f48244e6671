/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package natsutil connects the bridge to NATS JetStream and publishes alarm
// changes as CloudEvents.
package natsutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/carverauto/maestream/pkg/logger"
	"github.com/carverauto/maestream/pkg/models"
)

const (
	// DefaultStreamName is the JetStream stream carrying alarm traffic.
	DefaultStreamName = "alarms"

	// SubjectAlarmCreated and SubjectAlarmStatusChanged are the publish
	// subjects, both under the stream's alarms.> space.
	SubjectAlarmCreated       = "alarms.created"
	SubjectAlarmStatusChanged = "alarms.status_changed"

	// TypeAlarmCreated and TypeAlarmStatusChanged are the CloudEvents
	// type identifiers.
	TypeAlarmCreated       = "com.carverauto.maestream.alarm.created"
	TypeAlarmStatusChanged = "com.carverauto.maestream.alarm.status_changed"

	defaultEventSource = "maestream/bridge"
)

// AlarmPublisher publishes alarm changes to NATS JetStream as CloudEvents
// 1.0 envelopes. It satisfies the ingestion service's Notifier interface.
type AlarmPublisher struct {
	js     jetstream.JetStream
	stream string
	source string
	logger logger.Logger
}

// NewAlarmPublisher returns a publisher bound to an existing JetStream
// context. An empty source falls back to the bridge default.
func NewAlarmPublisher(js jetstream.JetStream, streamName, source string, log logger.Logger) *AlarmPublisher {
	if streamName == "" {
		streamName = DefaultStreamName
	}

	if source == "" {
		source = defaultEventSource
	}

	if log == nil {
		log = logger.NewTestLogger()
	}

	return &AlarmPublisher{
		js:     js,
		stream: streamName,
		source: source,
		logger: log,
	}
}

// Notify publishes one alarm change. Created and status-changed events go to
// separate subjects so consumers can subscribe to either.
func (p *AlarmPublisher) Notify(ctx context.Context, change models.AlarmChange) error {
	subject, event := p.newAlarmEvent(change)

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal alarm event: %w", err)
	}

	ack, err := p.js.Publish(ctx, subject, payload)
	if err != nil {
		return fmt.Errorf("publish alarm event to %s: %w", subject, err)
	}

	p.logger.Trace().
		Str("subject", subject).
		Uint64("seq", ack.Sequence).
		Str("key", change.Record.Key().String()).
		Msg("Published alarm event")

	return nil
}

// newAlarmEvent maps one change onto its subject and CloudEvents envelope.
func (p *AlarmPublisher) newAlarmEvent(change models.AlarmChange) (string, models.CloudEvent) {
	subject := SubjectAlarmCreated
	eventType := TypeAlarmCreated

	if change.Kind == models.AlarmChangeStatusChanged {
		subject = SubjectAlarmStatusChanged
		eventType = TypeAlarmStatusChanged
	}

	now := time.Now().UTC()

	return subject, models.CloudEvent{
		SpecVersion:     "1.0",
		ID:              uuid.New().String(),
		Source:          p.source,
		Type:            eventType,
		DataContentType: "application/json",
		Subject:         subject,
		Time:            &now,
		Data:            change.Record,
	}
}

// ConnectWithSecurity opens a NATS connection, with mTLS when a security
// config is supplied, and logs connection lifecycle through the usual
// logger instead of NATS's defaults.
func ConnectWithSecurity(natsURL string, security *models.SecurityConfig, log logger.Logger, extraOpts ...nats.Option) (*nats.Conn, error) {
	var opts []nats.Option

	if security != nil {
		tlsConf, err := TLSConfig(security)
		if err != nil {
			return nil, fmt.Errorf("build NATS TLS config: %w", err)
		}

		opts = append(opts,
			nats.Secure(tlsConf),
			nats.RootCAs(security.TLS.CAFile),
			nats.ClientCert(security.TLS.CertFile, security.TLS.KeyFile),
		)
	}

	opts = append(opts,
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
		nats.ConnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("Connected to NATS")
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)

	opts = append(opts, extraOpts...)

	nc, err := nats.Connect(natsURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	return nc, nil
}

// CreateAlarmPublisher builds a JetStream context on an existing connection,
// makes sure the alarm stream exists, and returns a publisher bound to it.
// domain selects a JetStream domain for leaf-node setups; empty means the
// default.
func CreateAlarmPublisher(ctx context.Context, nc *nats.Conn, domain, streamName string, subjects []string, source string, log logger.Logger) (*AlarmPublisher, error) {
	var (
		js  jetstream.JetStream
		err error
	)

	if domain != "" {
		js, err = jetstream.NewWithDomain(nc, domain)
		if err != nil {
			return nil, fmt.Errorf("create JetStream context with domain %s: %w", domain, err)
		}
	} else {
		js, err = jetstream.New(nc)
		if err != nil {
			return nil, fmt.Errorf("create JetStream context: %w", err)
		}
	}

	if streamName == "" {
		streamName = DefaultStreamName
	}

	if err := ensureStream(ctx, js, streamName, subjects, log); err != nil {
		return nil, err
	}

	return NewAlarmPublisher(js, streamName, source, log), nil
}

// ensureStream creates the alarm stream when it does not exist yet, making
// sure the publish subjects are covered.
func ensureStream(ctx context.Context, js jetstream.JetStream, streamName string, subjects []string, log logger.Logger) error {
	_, err := js.Stream(ctx, streamName)
	if err == nil {
		return nil
	}

	if !isStreamMissingErr(err) {
		return fmt.Errorf("look up stream %s: %w", streamName, err)
	}

	if len(subjects) == 0 {
		subjects = []string{"alarms.>"}
	}

	subjects = ensureSubjectList(subjects, SubjectAlarmCreated)
	subjects = ensureSubjectList(subjects, SubjectAlarmStatusChanged)

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: subjects,
	})
	if err != nil {
		return fmt.Errorf("create or update stream %s: %w", streamName, err)
	}

	log.Info().Str("stream", streamName).Strs("subjects", subjects).Msg("Created alarm stream")

	return nil
}

// isStreamMissingErr distinguishes "stream does not exist" from real lookup
// failures across the jetstream and legacy nats APIs.
func isStreamMissingErr(err error) bool {
	return errors.Is(err, jetstream.ErrNoStreamResponse) ||
		errors.Is(err, jetstream.ErrStreamNotFound) ||
		errors.Is(err, nats.ErrNoStreamResponse) ||
		errors.Is(err, nats.ErrStreamNotFound) ||
		errors.Is(err, nats.ErrNoResponders)
}

// ensureSubjectList appends subject unless an existing pattern already
// covers it.
func ensureSubjectList(subjects []string, subject string) []string {
	for _, pattern := range subjects {
		if matchesSubject(pattern, subject) {
			return subjects
		}
	}

	return append(subjects, subject)
}

// matchesSubject reports whether a NATS subject pattern covers subject.
// `*` matches exactly one token, `>` matches one or more trailing tokens.
func matchesSubject(pattern, subject string) bool {
	if pattern == subject {
		return true
	}

	patternTokens := strings.Split(pattern, ".")
	subjectTokens := strings.Split(subject, ".")

	for i, p := range patternTokens {
		if p == ">" {
			return i < len(subjectTokens)
		}

		if i >= len(subjectTokens) {
			return false
		}

		if p == "*" {
			continue
		}

		if p != subjectTokens[i] {
			return false
		}
	}

	return len(patternTokens) == len(subjectTokens)
}
