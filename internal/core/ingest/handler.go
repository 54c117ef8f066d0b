// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package ingest persists the domain events emitted by the write model.

Every event is applied in its own write transaction that first claims the
event index, so an index is processed at most once. Identical payloads
re-sent within a short window are dropped before touching storage. Tag
instances created by a batch are handed to the order assigner once the batch
has persisted.
*/
package ingest

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/taibuivan/historyatlas/internal/core/atlas"
	"github.com/taibuivan/historyatlas/internal/core/storyindex"
	"github.com/taibuivan/historyatlas/internal/platform/apperr"
	"github.com/taibuivan/historyatlas/internal/platform/constants"
	"github.com/taibuivan/historyatlas/internal/platform/metrics"
	"github.com/taibuivan/historyatlas/pkg/expiring"
	"github.com/taibuivan/historyatlas/pkg/textnorm"
	pkguuid "github.com/taibuivan/historyatlas/pkg/uuid"
)

// Event results used as metric labels.
const (
	resultApplied   = "applied"
	resultDuplicate = "duplicate"
	resultRepeated  = "repeated"
	resultFailed    = "failed"
)

// Assigner orders a freshly inserted tag instance.
type Assigner interface {
	Assign(ctx context.Context, instanceID uuid.UUID) (int64, error)
}

// Result summarizes one [Handler.Handle] call.
type Result struct {
	Applied    int `json:"applied"`
	Duplicates int `json:"duplicates"`
	Repeated   int `json:"repeated"`
	Instances  int `json:"instances"`
	Ordered    int `json:"ordered"`
	Deferred   int `json:"deferred"`
}

// # Handler

// Handler applies ingestion events to the story index.
type Handler struct {
	writer   storyindex.Writer
	assigner Assigner
	memory   *expiring.Cache[string, int64]
	lang     string
	logger   *slog.Logger
}

// NewHandler constructs a [Handler]. Story titles are written in lang.
func NewHandler(writer storyindex.Writer, assigner Assigner, lang string, logger *slog.Logger) *Handler {
	return &Handler{
		writer:   writer,
		assigner: assigner,
		memory:   expiring.New[string, int64](constants.EventMemoryTTL, constants.EventMemorySize),
		lang:     lang,
		logger:   logger,
	}
}

/*
Handle applies a batch of events in order.

Description: Events whose payload was applied moments ago are skipped, and
events whose index is already recorded are logged and dropped. The first
other failure stops the batch. Tag instances created before the stop are
still ordered: instances that cannot be placed yet stay NULL for the bulk
reorderer.

Parameters:
  - context: context.Context
  - events: []Envelope, in stream order

Returns:
  - Result: counters of the batch, filled even on failure
  - error: the failing event, wrapped
*/
func (handler *Handler) Handle(context context.Context, events []Envelope) (Result, error) {
	var result Result
	var created []uuid.UUID
	var failure error

	for _, event := range events {
		key := digest(event)
		if index, seen := handler.memory.Get(key); seen {
			result.Repeated++
			metrics.EventsTotal.WithLabelValues(event.Type, resultRepeated).Inc()
			handler.logger.Debug("ingest_event_repeated", slog.Int64("index", event.Index), slog.Int64("first_index", index))
			continue
		}

		instanceID, err := handler.apply(context, event)

		var duplicate *atlas.DuplicateEventError
		if errors.As(err, &duplicate) {
			result.Duplicates++
			handler.memory.Set(key, event.Index)
			metrics.EventsTotal.WithLabelValues(event.Type, resultDuplicate).Inc()
			handler.logger.Warn("ingest_event_duplicate", slog.Int64("index", event.Index), slog.String("type", event.Type))
			continue
		}
		if err != nil {
			metrics.EventsTotal.WithLabelValues(event.Type, resultFailed).Inc()
			failure = fmt.Errorf("ingest: event %d (%s): %w", event.Index, event.Type, err)
			break
		}

		result.Applied++
		handler.memory.Set(key, event.Index)
		metrics.EventsTotal.WithLabelValues(event.Type, resultApplied).Inc()
		if instanceID != nil {
			created = append(created, *instanceID)
		}
	}

	result.Instances = len(created)
	if err := handler.order(context, created, &result); err != nil {
		failure = errors.Join(failure, err)
	}

	handler.logger.Info("ingest_batch_handled",
		slog.Int("events", len(events)),
		slog.Int("applied", result.Applied),
		slog.Int("duplicates", result.Duplicates),
		slog.Int("ordered", result.Ordered),
		slog.Int("deferred", result.Deferred),
	)
	return result, failure
}

// order assigns story orders to the new instances in creation order. A
// failure on one instance leaves it NULL and moves on.
func (handler *Handler) order(context context.Context, instances []uuid.UUID, result *Result) error {
	var failures []error
	for _, instanceID := range instances {
		order, err := handler.assigner.Assign(context, instanceID)
		switch {
		case err == nil:
			result.Ordered++
			handler.logger.Debug("story_order_assigned", slog.String("instance_id", instanceID.String()), slog.Int64("story_order", order))

		case errors.Is(err, atlas.ErrUnorderable), atlas.IsStoryOrderConflict(err):
			result.Deferred++

		default:
			if context.Err() != nil {
				return errors.Join(append(failures, context.Err())...)
			}
			result.Deferred++
			failures = append(failures, fmt.Errorf("ingest: order %s: %w", instanceID, err))
		}
	}
	return errors.Join(failures...)
}

// # Event Application

func (handler *Handler) apply(context context.Context, event Envelope) (*uuid.UUID, error) {
	step, err := handler.prepare(event)
	if err != nil {
		return nil, err
	}

	var instanceID *uuid.UUID
	err = handler.writer.InWriteTx(context, func(tx storyindex.WriteTx) error {
		if err := tx.RecordEvent(context, event.Index, event.Type); err != nil {
			return err
		}
		created, err := step(context, tx)
		instanceID = created
		return err
	})
	if err != nil {
		return nil, err
	}
	return instanceID, nil
}

// step is a decoded event ready to run inside a write transaction. It returns
// the id of the tag instance it created, if any.
type step func(context context.Context, tx storyindex.WriteTx) (*uuid.UUID, error)

// prepare decodes and validates an event outside of any transaction.
func (handler *Handler) prepare(event Envelope) (step, error) {
	if tagType, ok := tagTypes[event.Type]; ok {
		var payload TagPayload
		if err := decode(event.Payload, &payload); err != nil {
			return nil, err
		}
		if err := payload.validate(tagType); err != nil {
			return nil, err
		}
		return handler.tagStep(tagType, payload), nil
	}

	switch event.Type {
	case TypeSummaryAdded:
		var payload SummaryPayload
		if err := decode(event.Payload, &payload); err != nil {
			return nil, err
		}
		if payload.ID == uuid.Nil {
			return nil, apperr.ValidationError("Summary id is required", apperr.FieldError{Field: "id", Message: "This field is required"})
		}
		return func(context context.Context, tx storyindex.WriteTx) (*uuid.UUID, error) {
			if err := tx.InsertSummary(context, atlas.Summary{ID: payload.ID, Text: payload.Text}); err != nil {
				return nil, err
			}
			if payload.CitationID == uuid.Nil {
				return nil, nil
			}
			return nil, tx.AttachCitation(context, payload.CitationID, payload.ID)
		}, nil

	case TypeCitationAdded:
		var payload CitationPayload
		if err := decode(event.Payload, &payload); err != nil {
			return nil, err
		}
		return func(context context.Context, tx storyindex.WriteTx) (*uuid.UUID, error) {
			// The summary link is written by SummaryAdded, which may come
			// before or after this event.
			return nil, tx.InsertCitation(context, atlas.Citation{
				ID:         payload.ID,
				Text:       payload.Text,
				AccessDate: payload.AccessDate,
				PageNum:    payload.PageNum,
			})
		}, nil

	case TypeMetaAdded:
		var payload MetaPayload
		if err := decode(event.Payload, &payload); err != nil {
			return nil, err
		}
		return func(context context.Context, tx storyindex.WriteTx) (*uuid.UUID, error) {
			source := atlas.Source{
				ID:        payload.ID,
				Title:     payload.Title,
				Author:    payload.Author,
				Publisher: payload.Publisher,
				PubDate:   payload.PubDate,
			}
			return nil, tx.InsertSource(context, source, payload.CitationID)
		}, nil
	}

	return nil, apperr.ValidationError("Unknown event type", apperr.FieldError{Field: "type", Message: fmt.Sprintf("Unsupported event type %q", event.Type)})
}

// tagStep creates or extends a tag and tags the summary with it.
func (handler *Handler) tagStep(tagType atlas.TagType, payload TagPayload) step {
	name := textnorm.Name(payload.Name)

	return func(context context.Context, tx storyindex.WriteTx) (*uuid.UUID, error) {
		if _, err := tx.UpsertTag(context, payload.tag(tagType, name)); err != nil {
			return nil, err
		}
		if err := tx.AddName(context, payload.ID, name); err != nil {
			return nil, err
		}
		if err := tx.EnsureStory(context, payload.ID, handler.lang, StoryTitle(tagType, name)); err != nil {
			return nil, err
		}

		instance := atlas.TagInstance{
			ID:        pkguuid.New(),
			SummaryID: payload.SummaryID,
			TagID:     payload.ID,
			StartChar: payload.CitationStart,
			StopChar:  payload.CitationEnd,
			After:     atlas.NewAfter(payload.After...),
		}
		created, err := tx.InsertTagInstance(context, instance)
		if err != nil || !created {
			return nil, err
		}
		return &instance.ID, nil
	}
}

// StoryTitle is the title a new tag's story gets in the default language.
func StoryTitle(tagType atlas.TagType, name string) string {
	switch tagType {
	case atlas.TagPerson:
		return "The Life of " + name
	case atlas.TagPlace:
		return "The History of " + name
	default:
		return name
	}
}

// # Helpers

func decode(raw json.RawMessage, target any) error {
	if err := json.Unmarshal(raw, target); err != nil {
		return apperr.ValidationError("Malformed event payload", apperr.FieldError{Field: "payload", Message: err.Error()})
	}
	return nil
}

// digest identifies an event by its type and payload body, ignoring the
// index so that re-sent copies collide.
func digest(event Envelope) string {
	hash, _ := blake2b.New256(nil)
	hash.Write([]byte(event.Type))
	hash.Write([]byte{0})
	hash.Write(event.Payload)
	return hex.EncodeToString(hash.Sum(nil))
}
