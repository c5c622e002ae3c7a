package extract

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"crm-sync/internal/salesforce"
	"crm-sync/internal/tabledesc"
	"crm-sync/pkg/log"
)

// WatermarkLayout is the literal form of a timestamp in a remote filter: UTC, seconds.
const WatermarkLayout = "2006-01-02T15:04:05Z"

var ErrIncompleteRecord = errors.New("remote record lacks a key field")

// Querier is the remote query capability.
type Querier interface {
	Query(ctx context.Context, soql string, includeDeleted bool) (*salesforce.QueryResult, error)
	QueryMore(ctx context.Context, next string, includeDeleted bool) (*salesforce.QueryResult, error)
}

// ChangeRecord maps each sync field to its raw remote value.
type ChangeRecord map[string]any

type Extractor struct {
	querier Querier
	logger  zerolog.Logger
}

func NewExtractor(querier Querier) *Extractor {
	return &Extractor{
		querier: querier,
		logger: log.Logger.With().
			Str("component", "change_extractor").
			Logger(),
	}
}

// BuildQuery selects the sync fields of rows changed strictly after watermark. A zero
// watermark selects every row.
func BuildQuery(desc *tabledesc.Descriptor, watermark time.Time) string {
	return "SELECT " + strings.Join(desc.SyncFields, ",") + " FROM " + desc.Name + whereClause(desc, watermark)
}

// BuildCountQuery counts the rows BuildQuery would return.
func BuildCountQuery(desc *tabledesc.Descriptor, watermark time.Time) string {
	return "SELECT COUNT() FROM " + desc.Name + whereClause(desc, watermark)
}

func whereClause(desc *tabledesc.Descriptor, watermark time.Time) string {
	if watermark.IsZero() {
		return ""
	}
	return " WHERE " + desc.TimestampField + " > " + watermark.UTC().Format(WatermarkLayout)
}

// ExtractSince lazily yields every remote row changed after watermark. Pages are fetched
// one after the other as the sequence is consumed. The sequence ends after the first
// error; nothing is retried.
func (e *Extractor) ExtractSince(
	ctx context.Context,
	desc *tabledesc.Descriptor,
	watermark time.Time,
	includeDeleted bool,
) iter.Seq2[ChangeRecord, error] {
	return func(yield func(ChangeRecord, error) bool) {
		soql := BuildQuery(desc, watermark)
		logger := e.logger.With().Str("table", desc.Name).Logger()
		logger.Debug().Str("soql", soql).Bool("include_deleted", includeDeleted).Msg("Extracting changes")

		result, err := e.querier.Query(ctx, soql, includeDeleted)
		for page := 1; ; page++ {
			if err != nil {
				yield(nil, fmt.Errorf("failed to fetch page %d of %s: %w", page, desc.Name, err))
				return
			}
			logger.Debug().Int("page", page).Int("records", len(result.Records)).Msg("Fetched page")

			for _, raw := range result.Records {
				record, err := toChangeRecord(desc, raw)
				if !yield(record, err) || err != nil {
					return
				}
			}

			if result.NextRecordsURL == "" {
				return
			}
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			result, err = e.querier.QueryMore(ctx, result.NextRecordsURL, includeDeleted)
		}
	}
}

// CountSince returns how many rows ExtractSince would yield.
func (e *Extractor) CountSince(
	ctx context.Context,
	desc *tabledesc.Descriptor,
	watermark time.Time,
	includeDeleted bool,
) (int, error) {
	result, err := e.querier.Query(ctx, BuildCountQuery(desc, watermark), includeDeleted)
	if err != nil {
		return 0, fmt.Errorf("failed to count changes of %s: %w", desc.Name, err)
	}
	return result.TotalSize, nil
}

func toChangeRecord(desc *tabledesc.Descriptor, raw salesforce.Record) (ChangeRecord, error) {
	record := make(ChangeRecord, len(desc.SyncFields))
	for _, name := range desc.SyncFields {
		record[name] = raw[name]
	}
	for _, key := range []string{desc.PrimaryKeyField, desc.TimestampField} {
		if record[key] == nil {
			return nil, fmt.Errorf("%w: %s.%s is missing", ErrIncompleteRecord, desc.Name, key)
		}
	}
	return record, nil
}
