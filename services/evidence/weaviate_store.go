// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package evidence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/auth"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Property names of the evidence class.
const (
	propContent     = "content"
	propAssetID     = "assetId"
	propModality    = "modality"
	propContentType = "contentType"
	propTimestamp   = "timestamp"
	propPageLabel   = "pageLabel"
)

// WeaviateConfig configures WeaviateStore.
type WeaviateConfig struct {
	// URL is the Weaviate base URL, e.g. http://localhost:8080.
	URL string

	// Class is the collection holding evidence chunks.
	Class string

	// APIKey is optional.
	APIKey string

	// TopK is the default result cap.
	TopK int

	Logger *slog.Logger
}

// WeaviateStore queries a Weaviate class with BM25 over chunk content.
//
// # Description
//
// The store over-fetches 2*TopK hits, filtered by asset when the query names
// one, and applies Rerank before truncating to TopK.
//
// # Thread Safety
//
// Safe for concurrent use.
type WeaviateStore struct {
	client *weaviate.Client
	class  string
	topK   int
	logger *slog.Logger
}

// NewWeaviateStore builds the client. It does not contact the server.
func NewWeaviateStore(cfg WeaviateConfig) (*WeaviateStore, error) {
	if cfg.URL == "" {
		return nil, errors.New("weaviate url is required")
	}
	if cfg.Class == "" {
		return nil, errors.New("weaviate class is required")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid weaviate url %q", cfg.URL)
	}

	wc := weaviate.Config{Host: u.Host, Scheme: u.Scheme}
	if wc.Scheme == "" {
		wc.Scheme = "http"
	}
	if cfg.APIKey != "" {
		wc.AuthConfig = auth.ApiKey{Value: cfg.APIKey}
	}
	client, err := weaviate.NewClient(wc)
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}

	topK := cfg.TopK
	if topK <= 0 {
		topK = 5
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &WeaviateStore{
		client: client,
		class:  cfg.Class,
		topK:   topK,
		logger: logger.With(slog.String("component", "weaviate_evidence")),
	}, nil
}

// Search implements Store.
func (s *WeaviateStore) Search(ctx context.Context, q Query) ([]Evidence, error) {
	topK := q.TopK
	if topK <= 0 {
		topK = s.topK
	}

	ctx, span := otel.Tracer("evidence").Start(ctx, "evidence.weaviate.Search")
	defer span.End()
	span.SetAttributes(
		attribute.String("evidence.class", s.class),
		attribute.Int("evidence.top_k", topK),
		attribute.String("evidence.asset_id", q.AssetID),
	)

	bm25 := s.client.GraphQL().Bm25ArgBuilder().
		WithQuery(q.Text).
		WithProperties(propContent)

	get := s.client.GraphQL().Get().
		WithClassName(s.class).
		WithFields(
			graphql.Field{Name: propContent},
			graphql.Field{Name: propAssetID},
			graphql.Field{Name: propModality},
			graphql.Field{Name: propContentType},
			graphql.Field{Name: propTimestamp},
			graphql.Field{Name: propPageLabel},
			graphql.Field{Name: "_additional { score }"},
		).
		WithBM25(bm25).
		WithLimit(topK * 2)

	if q.AssetID != "" {
		get = get.WithWhere(filters.Where().
			WithPath([]string{propAssetID}).
			WithOperator(filters.Equal).
			WithValueString(q.AssetID))
	}

	result, err := get.Do(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "bm25 query failed")
		return nil, searchErr("bm25 query: %v", err)
	}
	if len(result.Errors) > 0 {
		span.SetStatus(codes.Error, result.Errors[0].Message)
		return nil, searchErr("bm25 query: %s", result.Errors[0].Message)
	}

	hits := s.parse(result)
	out := Rerank(q.Text, hits, topK)
	span.SetAttributes(attribute.Int("evidence.results", len(out)))
	s.logger.Debug("weaviate search",
		slog.String("query", q.Text),
		slog.Int("fetched", len(hits)),
		slog.Int("returned", len(out)))
	return out, nil
}

func (s *WeaviateStore) parse(result *models.GraphQLResponse) []Evidence {
	data, ok := result.Data["Get"].(map[string]interface{})
	if !ok {
		return nil
	}
	objects, ok := data[s.class].([]interface{})
	if !ok {
		return nil
	}

	hits := make([]Evidence, 0, len(objects))
	for _, obj := range objects {
		m, ok := obj.(map[string]interface{})
		if !ok {
			continue
		}
		ev := Evidence{
			Content: stringOf(m[propContent]),
			Metadata: Metadata{
				AssetID:  stringOf(m[propAssetID]),
				Modality: Modality(stringOf(m[propModality])),
				Type:     stringOf(m[propContentType]),
			},
		}
		if add, ok := m["_additional"].(map[string]interface{}); ok {
			ev.Score = floatOf(add["score"])
		}
		switch ev.Metadata.Modality {
		case ModalityVideo:
			if v, ok := m[propTimestamp].(float64); ok {
				ev.Metadata.Timestamp = &v
			}
		case ModalityPDF:
			if v, ok := m[propPageLabel].(float64); ok {
				page := int(v)
				ev.Metadata.PageLabel = &page
			}
		}
		hits = append(hits, ev)
	}
	return hits
}

func stringOf(v interface{}) string {
	s, _ := v.(string)
	return s
}

// floatOf accepts the BM25 score, which Weaviate reports as a string.
func floatOf(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err == nil {
			return f
		}
	}
	return 0
}
