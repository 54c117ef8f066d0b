// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package storyindex

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/taibuivan/historyatlas/internal/core/atlas"
	"github.com/taibuivan/historyatlas/internal/platform/database/schema"
	"github.com/taibuivan/historyatlas/internal/platform/dberr"
)

var (
	pe = schema.AtlasPerson
	st = schema.AtlasStory
	ev = schema.SystemEventLog
)

// InWriteTx runs one ingestion event in a single transaction.
func (index *PostgresIndex) InWriteTx(context context.Context, fn func(WriteTx) error) error {
	return index.inTx(context, "", func(transaction pgx.Tx) error {
		return fn(&postgresTx{tx: transaction})
	})
}

// RecordEvent claims the event index. A second claim affects no row and is
// reported without aborting the transaction.
func (transaction *postgresTx) RecordEvent(context context.Context, index int64, eventType string) error {
	query := fmt.Sprintf(`INSERT INTO %s (%s, %s) VALUES ($1, $2) ON CONFLICT (%s) DO NOTHING`,
		ev.Table, ev.Index, ev.Type, ev.Index)

	tag, err := transaction.tx.Exec(context, query, index, eventType)
	if err != nil {
		return dberr.Wrap(err, "record_event")
	}
	if tag.RowsAffected() == 0 {
		return &atlas.DuplicateEventError{Index: index}
	}
	return nil
}

/*
UpsertTag inserts a tag with its variant row and names.

Description: The base row and the variant row are queued on one batch. An
existing tag (matched by id or wikidata id) is left untouched and only its
names are merged.

Returns:
  - bool: true when the tag was created by this call
*/
func (transaction *postgresTx) UpsertTag(context context.Context, tag atlas.Tag) (bool, error) {
	query := fmt.Sprintf(`INSERT INTO %s (%s, %s, %s) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
		tg.Table, tg.ID, tg.Type, tg.WikidataID)

	result, err := transaction.tx.Exec(context, query, tag.ID, tag.Type, tag.WikidataID)
	if err != nil {
		return false, dberr.Wrap(err, "upsert_tag")
	}
	created := result.RowsAffected() == 1

	if created {
		if err := transaction.insertVariant(context, tag); err != nil {
			return false, err
		}
	}

	for _, name := range tag.Names {
		if err := transaction.AddName(context, tag.ID, name); err != nil {
			return false, err
		}
	}
	return created, nil
}

func (transaction *postgresTx) insertVariant(context context.Context, tag atlas.Tag) error {
	var (
		query string
		args  []any
	)

	switch tag.Type {
	case atlas.TagPerson:
		query = fmt.Sprintf(`INSERT INTO %s (%s) VALUES ($1)`, pe.Table, pe.ID)
		args = []any{tag.ID}
	case atlas.TagPlace:
		if tag.Place == nil {
			return fmt.Errorf("postgres: place tag %s has no coordinates", tag.ID)
		}
		query = fmt.Sprintf(`INSERT INTO %s (%s, %s, %s, %s) VALUES ($1, $2, $3, $4)`,
			pl.Table, pl.ID, pl.Latitude, pl.Longitude, pl.GeoShape)
		args = []any{tag.ID, tag.Place.Latitude, tag.Place.Longitude, tag.Place.GeoShape}
	case atlas.TagTime:
		if tag.Time == nil {
			return fmt.Errorf("postgres: time tag %s has no datetime", tag.ID)
		}
		date, err := tag.Time.Date()
		if err != nil {
			return fmt.Errorf("postgres: time tag %s: %w", tag.ID, err)
		}
		query = fmt.Sprintf(`INSERT INTO %s (%s, %s, %s, %s, %s, %s, %s) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			tm.Table, tm.ID, tm.DateTime, tm.CalendarModel, tm.Precision, tm.Year, tm.Month, tm.Day)
		args = []any{tag.ID, tag.Time.DateTime, tag.Time.CalendarModel, int16(tag.Time.Precision),
			date.Year, int16(date.Month), int16(date.Day)}
	default:
		return fmt.Errorf("postgres: unknown tag type %q", tag.Type)
	}

	_, err := transaction.tx.Exec(context, query, args...)
	return dberr.Wrap(err, "insert_tag_variant")
}

// AddName interns the name and links it to the tag once.
func (transaction *postgresTx) AddName(context context.Context, tagID uuid.UUID, name string) error {
	if name == "" {
		return nil
	}

	query := fmt.Sprintf(`
		WITH interned AS (
			INSERT INTO %s (%s) VALUES ($2)
			ON CONFLICT (%s) DO UPDATE SET %s = EXCLUDED.%s
			RETURNING %s
		)
		INSERT INTO %s (%s, %s) SELECT $1, %s FROM interned
		ON CONFLICT DO NOTHING`,
		nm.Table, nm.Name,
		nm.Name, nm.Name, nm.Name,
		nm.ID,
		tn.Table, tn.TagID, tn.NameID, nm.ID,
	)

	if _, err := transaction.tx.Exec(context, query, tagID, name); err != nil {
		if dberr.IsForeignKeyViolation(err) {
			return atlas.NewMissing("tag", tagID)
		}
		return dberr.Wrap(err, "add_name")
	}
	return nil
}

func (transaction *postgresTx) EnsureStory(context context.Context, tagID uuid.UUID, lang, name string) error {
	batch := &pgx.Batch{}
	batch.Queue(fmt.Sprintf(`INSERT INTO %s (%s) VALUES ($1) ON CONFLICT DO NOTHING`, st.Table, st.ID), tagID)
	batch.Queue(fmt.Sprintf(`INSERT INTO %s (%s, %s, %s) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
		sn.Table, sn.StoryID, sn.Lang, sn.Name), tagID, lang, name)

	result := transaction.tx.SendBatch(context, batch)
	defer result.Close()

	for range 2 {
		if _, err := result.Exec(); err != nil {
			if dberr.IsForeignKeyViolation(err) {
				return atlas.NewMissing("tag", tagID)
			}
			return dberr.Wrap(err, "ensure_story")
		}
	}
	return nil
}

func (transaction *postgresTx) InsertSummary(context context.Context, summary atlas.Summary) error {
	query := fmt.Sprintf(`INSERT INTO %s (%s, %s) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		su.Table, su.ID, su.Text)

	_, err := transaction.tx.Exec(context, query, summary.ID, summary.Text)
	return dberr.Wrap(err, "insert_summary")
}

// InsertCitation upserts a citation without dropping a summary or source link
// recorded by an earlier event.
func (transaction *postgresTx) InsertCitation(context context.Context, citation atlas.Citation) error {
	query := fmt.Sprintf(`
		INSERT INTO %[1]s (%[2]s, %[3]s, %[4]s, %[5]s, %[6]s, %[7]s)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (%[2]s) DO UPDATE SET
			%[3]s = COALESCE(EXCLUDED.%[3]s, %[1]s.%[3]s),
			%[4]s = COALESCE(EXCLUDED.%[4]s, %[1]s.%[4]s),
			%[5]s = EXCLUDED.%[5]s,
			%[6]s = EXCLUDED.%[6]s,
			%[7]s = EXCLUDED.%[7]s`,
		ci.Table, ci.ID, ci.SummaryID, ci.SourceID, ci.Text, ci.PageNum, ci.AccessDate,
	)

	_, err := transaction.tx.Exec(context, query,
		citation.ID, citation.SummaryID, citation.SourceID, citation.Text, citation.PageNum, citation.AccessDate)
	if dberr.IsForeignKeyViolation(err) && citation.SummaryID != nil {
		return atlas.NewMissing("summary", *citation.SummaryID)
	}
	return dberr.Wrap(err, "insert_citation")
}

func (transaction *postgresTx) AttachCitation(context context.Context, citationID, summaryID uuid.UUID) error {
	query := fmt.Sprintf(`
		INSERT INTO %[1]s (%[2]s, %[3]s) VALUES ($1, $2)
		ON CONFLICT (%[2]s) DO UPDATE SET %[3]s = EXCLUDED.%[3]s`,
		ci.Table, ci.ID, ci.SummaryID)

	_, err := transaction.tx.Exec(context, query, citationID, summaryID)
	if dberr.IsForeignKeyViolation(err) {
		return atlas.NewMissing("summary", summaryID)
	}
	return dberr.Wrap(err, "attach_citation")
}

// InsertSource stores the source once and points the citation at it.
func (transaction *postgresTx) InsertSource(context context.Context, source atlas.Source, citationID uuid.UUID) error {
	batch := &pgx.Batch{}
	batch.Queue(fmt.Sprintf(`
		INSERT INTO %s (%s, %s, %s, %s, %s) VALUES ($1, $2, $3, $4, $5) ON CONFLICT DO NOTHING`,
		so.Table, so.ID, so.Title, so.Author, so.Publisher, so.PubDate),
		source.ID, source.Title, source.Author, source.Publisher, source.PubDate)
	batch.Queue(fmt.Sprintf(`
		INSERT INTO %[1]s (%[2]s, %[3]s) VALUES ($1, $2)
		ON CONFLICT (%[2]s) DO UPDATE SET %[3]s = EXCLUDED.%[3]s`,
		ci.Table, ci.ID, ci.SourceID),
		citationID, source.ID)

	result := transaction.tx.SendBatch(context, batch)
	defer result.Close()

	for range 2 {
		if _, err := result.Exec(); err != nil {
			return dberr.Wrap(err, "insert_source")
		}
	}
	return nil
}

func (transaction *postgresTx) InsertTagInstance(context context.Context, instance atlas.TagInstance) (bool, error) {
	after, err := instance.After.Column()
	if err != nil {
		return false, fmt.Errorf("postgres: encode after: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (%s, %s, %s, %s, %s, %s, %s)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb)
		ON CONFLICT (%s, %s) DO NOTHING`,
		ti.Table, ti.ID, ti.SummaryID, ti.TagID, ti.StartChar, ti.StopChar, ti.StoryOrder, ti.After,
		ti.SummaryID, ti.TagID,
	)

	tag, err := transaction.tx.Exec(context, query,
		instance.ID, instance.SummaryID, instance.TagID,
		instance.StartChar, instance.StopChar, instance.StoryOrder, after)
	if err != nil {
		if dberr.IsForeignKeyViolation(err) {
			return false, atlas.NewMissing("summary or tag", instance.SummaryID)
		}
		return false, dberr.Wrap(err, "insert_tag_instance")
	}
	return tag.RowsAffected() == 1, nil
}
