package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderdesk-backend/internal/importer"
	pkgerrors "github.com/angelmondragon/orderdesk-backend/pkg/errors"
	"github.com/angelmondragon/orderdesk-backend/pkg/feed"
)

// Handler runs one kind of task and returns the value stored as its result.
type Handler func(ctx context.Context, userID uuid.UUID, payload json.RawMessage) (any, error)

type feedFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

type catalogImporter interface {
	ImportCatalog(ctx context.Context, ownerID uuid.UUID, doc *feed.Document) (importer.ImportSummary, error)
}

type catalogExporter interface {
	ExportCatalog(ctx context.Context, ownerID uuid.UUID) (*feed.Document, error)
}

type goodsCounter interface {
	AddImportedGoods(n int)
}

// ImportHandler fetches the feed named in the payload and replaces the
// partner's catalog with it.
func ImportHandler(fetcher feedFetcher, imports catalogImporter, counter goodsCounter) Handler {
	return func(ctx context.Context, userID uuid.UUID, raw json.RawMessage) (any, error) {
		var payload ImportPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid import payload")
		}
		if payload.URL == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "import payload has no url")
		}
		body, err := fetcher.Fetch(ctx, payload.URL)
		if err != nil {
			return nil, err
		}
		doc, err := feed.Parse(body)
		if err != nil {
			return nil, err
		}
		summary, err := imports.ImportCatalog(ctx, userID, doc)
		if err != nil {
			return nil, err
		}
		if counter != nil {
			counter.AddImportedGoods(summary.Goods)
		}
		return summary, nil
	}
}

// ExportResult carries the catalog both as structured JSON and as feed YAML.
type ExportResult struct {
	*feed.Document
	YAML string `json:"yaml"`
}

func ExportHandler(exports catalogExporter) Handler {
	return func(ctx context.Context, userID uuid.UUID, _ json.RawMessage) (any, error) {
		doc, err := exports.ExportCatalog(ctx, userID)
		if err != nil {
			return nil, err
		}
		raw, err := feed.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("render feed: %w", err)
		}
		return ExportResult{Document: doc, YAML: string(raw)}, nil
	}
}
