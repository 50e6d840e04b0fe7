// Package targeting selects profiles with targeting queries and manages saved segments.
package targeting

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	serviceErrors "github.com/tink3rlabs/targeting/errors"
	"github.com/tink3rlabs/targeting/grammar"
	"github.com/tink3rlabs/targeting/pubsub"
	"github.com/tink3rlabs/targeting/storage"
	"github.com/tink3rlabs/targeting/telemetry"
	"github.com/tink3rlabs/targeting/utils"
)

const SegmentCreated = "segment.created"

// Event is the message published when a segment changes.
type Event struct {
	Type    string          `json:"type"`
	Segment storage.Segment `json:"segment"`
}

type Service struct {
	storage   storage.StorageAdapter
	publisher pubsub.Publisher
	topic     string
	telemetry *telemetry.Telemetry
}

// NewService creates a service over storageAdapter. Segment events go to topic through
// publisher; a nil publisher or an empty topic disables them. A nil t records to a
// registry of its own and discards spans.
func NewService(storageAdapter storage.StorageAdapter, publisher pubsub.Publisher, topic string, t *telemetry.Telemetry) *Service {
	if publisher == nil {
		publisher = pubsub.NoopPublisher{}
	}
	if t == nil {
		t = telemetry.New(noop.NewTracerProvider())
	}
	return &Service{storage: storageAdapter, publisher: publisher, topic: topic, telemetry: t}
}

// parse reads q and tags the span in ctx with the features it tests.
func parse(ctx context.Context, q string) (grammar.Node, error) {
	if strings.TrimSpace(q) == "" {
		return nil, &serviceErrors.BadRequest{Message: "a targeting query is required"}
	}
	n, err := grammar.Parse(q)
	if err != nil {
		return nil, err
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.StringSlice("features", grammar.FeatureNames(n)))
	return n, nil
}

// Count returns how many profiles q targets.
func (s *Service) Count(ctx context.Context, q string) (count int64, err error) {
	ctx, end := s.telemetry.Start(ctx, "count", attribute.String("query", q))
	defer func() { end(err) }()

	n, err := parse(ctx, q)
	if err != nil {
		return 0, err
	}
	return s.storage.TargetCount(ctx, n)
}

// Find lists the profiles q targets, one page at a time.
func (s *Service) Find(ctx context.Context, q string, page storage.Page) (profiles []storage.Profile, next string, err error) {
	ctx, end := s.telemetry.Start(ctx, "find", attribute.String("query", q))
	defer func() { end(err) }()

	n, err := parse(ctx, q)
	if err != nil {
		return nil, "", err
	}
	return s.storage.Target(ctx, n, page)
}

// Search lists the profiles matching a free-text Lucene query over their own fields.
func (s *Service) Search(ctx context.Context, query string, page storage.Page) (profiles []storage.Profile, next string, err error) {
	ctx, end := s.telemetry.Start(ctx, "search", attribute.String("search", query))
	defer func() { end(err) }()

	return s.storage.Search(ctx, query, page)
}

// Match reports whether profile id is targeted by q.
func (s *Service) Match(ctx context.Context, id string, q string) (matched bool, err error) {
	ctx, end := s.telemetry.Start(ctx, "match", attribute.String("profile", id), attribute.String("query", q))
	defer func() { end(err) }()

	n, err := parse(ctx, q)
	if err != nil {
		return false, err
	}
	return s.storage.Match(ctx, id, n)
}

// Canonicalize rewrites q in its canonical form: the text generated from its tree.
func (s *Service) Canonicalize(ctx context.Context, q string) (canonical string, err error) {
	ctx, end := s.telemetry.Start(ctx, "canonicalize", attribute.String("query", q))
	defer func() { end(err) }()

	n, err := parse(ctx, q)
	if err != nil {
		return "", err
	}
	return grammar.Generate(n)
}

// ParseTree parses text from the given start rule, the default rule when empty.
func (s *Service) ParseTree(ctx context.Context, text string, startRule string) (tree grammar.Tree, err error) {
	_, end := s.telemetry.Start(ctx, "parse", attribute.String("start_rule", startRule))
	defer func() { end(err) }()

	var opts []grammar.ParseOption
	if startRule != "" {
		opts = append(opts, grammar.WithStartRule(startRule))
	}
	n, err := grammar.Parse(text, opts...)
	if err != nil {
		return grammar.Tree{}, err
	}
	return grammar.Tree{Node: n}, nil
}

// GenerateText renders a JSON encoded tree as query text.
func (s *Service) GenerateText(ctx context.Context, data []byte) (text string, err error) {
	_, end := s.telemetry.Start(ctx, "generate")
	defer func() { end(err) }()

	return grammar.GenerateJSON(data)
}

func (s *Service) CreateProfile(ctx context.Context, profile *storage.Profile) (err error) {
	ctx, end := s.telemetry.Start(ctx, "create_profile")
	defer func() { end(err) }()

	if profile.ID == "" {
		if profile.ID, err = utils.NewID(); err != nil {
			return err
		}
	}
	for _, f := range profile.Features {
		if !grammar.ValidName(f.Name) {
			return &serviceErrors.BadRequest{Message: fmt.Sprintf("%q is not a valid feature name", f.Name)}
		}
	}
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = time.Now().UTC()
	}
	return s.storage.CreateProfile(ctx, profile)
}

func (s *Service) GetProfile(ctx context.Context, id string) (profile *storage.Profile, err error) {
	ctx, end := s.telemetry.Start(ctx, "get_profile", attribute.String("profile", id))
	defer func() { end(err) }()

	return s.storage.GetProfile(ctx, id)
}

// CreateSegment saves q in canonical form under name and announces the new segment.
func (s *Service) CreateSegment(ctx context.Context, name string, q string) (segment *storage.Segment, err error) {
	ctx, end := s.telemetry.Start(ctx, "create_segment", attribute.String("name", name))
	defer func() { end(err) }()

	if strings.TrimSpace(name) == "" {
		return nil, &serviceErrors.BadRequest{Message: "a segment name is required"}
	}
	n, err := parse(ctx, q)
	if err != nil {
		return nil, err
	}
	canonical, err := grammar.Generate(n)
	if err != nil {
		return nil, err
	}
	id, err := utils.NewID()
	if err != nil {
		return nil, err
	}

	segment = &storage.Segment{ID: id, Name: name, Query: canonical, CreatedAt: time.Now().UTC()}
	if err := s.storage.CreateSegment(ctx, segment); err != nil {
		return nil, err
	}
	s.publish(ctx, SegmentCreated, *segment)
	return segment, nil
}

func (s *Service) GetSegment(ctx context.Context, id string) (segment *storage.Segment, err error) {
	ctx, end := s.telemetry.Start(ctx, "get_segment", attribute.String("segment", id))
	defer func() { end(err) }()

	return s.storage.GetSegment(ctx, id)
}

func (s *Service) ListSegments(ctx context.Context, page storage.Page) (segments []storage.Segment, next string, err error) {
	ctx, end := s.telemetry.Start(ctx, "list_segments")
	defer func() { end(err) }()

	return s.storage.ListSegments(ctx, page)
}

// SegmentCount returns how many profiles the saved segment id targets.
func (s *Service) SegmentCount(ctx context.Context, id string) (count int64, err error) {
	ctx, end := s.telemetry.Start(ctx, "segment_count", attribute.String("segment", id))
	defer func() { end(err) }()

	segment, err := s.storage.GetSegment(ctx, id)
	if err != nil {
		return 0, err
	}
	n, err := grammar.Parse(segment.Query)
	if err != nil {
		return 0, fmt.Errorf("segment %s holds an invalid query: %w", id, err)
	}
	return s.storage.TargetCount(ctx, n)
}

// publish sends an event for segment. The segment is already stored, so a failed
// publish is logged rather than returned.
func (s *Service) publish(ctx context.Context, eventType string, segment storage.Segment) {
	if s.topic == "" {
		return
	}
	message, err := json.Marshal(Event{Type: eventType, Segment: segment})
	if err != nil {
		slog.Error("failed to encode segment event", slog.String("segment", segment.ID), slog.Any("error", err))
		return
	}
	params := map[string]any{"filterKey": "event", "filterValue": eventType}
	if err := s.publisher.Publish(ctx, s.topic, string(message), params); err != nil {
		slog.Error("failed to publish segment event", slog.String("segment", segment.ID), slog.Any("error", err))
	}
}
