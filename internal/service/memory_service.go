package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/elastic/go-elasticsearch/v8"

	"jizhuanti-go/internal/model"
	"jizhuanti-go/pkg/es"
)

// MemoryService 提供跨会话的回忆检索：对已回答的问答全文搜索，
// 并把新回答写入索引。同时实现 MemoryIndexer。
type MemoryService interface {
	MemoryIndexer
	Search(ctx context.Context, userID, query string, topK int) ([]model.MemorySearchResult, error)
}

type memoryService struct {
	esClient  *elasticsearch.Client
	indexName string
}

// NewMemoryService 创建一个新的 MemoryService 实例。
func NewMemoryService(esClient *elasticsearch.Client, indexName string) MemoryService {
	return &memoryService{esClient: esClient, indexName: indexName}
}

// IndexTurn 把一轮已回答的问答写入回忆索引。
func (s *memoryService) IndexTurn(ctx context.Context, turn model.ConversationTurn) error {
	doc := model.MemoryDocument{
		TurnID:      strconv.FormatUint(uint64(turn.ID), 10),
		UserID:      turn.UserID,
		Chapter:     turn.Chapter,
		SessionID:   turn.SessionID,
		RoundNumber: turn.RoundNumber,
		Question:    turn.Question,
		Answer:      turn.Answer,
		CreatedAt:   turn.CreatedAt,
	}
	return es.IndexDocument(ctx, s.indexName, doc)
}

// Search 在用户自己的回忆里做全文检索，按相关度返回前 topK 条。
func (s *memoryService) Search(ctx context.Context, userID, query string, topK int) ([]model.MemorySearchResult, error) {
	if topK <= 0 {
		topK = 5
	}

	esQuery := map[string]interface{}{
		"size": topK,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": map[string]interface{}{
					"multi_match": map[string]interface{}{
						"query":  query,
						"fields": []string{"answer^2", "question"},
					},
				},
				"filter": map[string]interface{}{
					"term": map[string]interface{}{"user_id": userID},
				},
			},
		},
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(esQuery); err != nil {
		return nil, fmt.Errorf("failed to encode search query: %w", err)
	}

	res, err := s.esClient.Search(
		s.esClient.Search.WithContext(ctx),
		s.esClient.Search.WithIndex(s.indexName),
		s.esClient.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search memories: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, errors.New("memory search returned error: " + res.String())
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Score  float64              `json:"_score"`
				Source model.MemoryDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	results := make([]model.MemorySearchResult, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		results = append(results, model.MemorySearchResult{
			Chapter:     hit.Source.Chapter,
			RoundNumber: hit.Source.RoundNumber,
			Question:    hit.Source.Question,
			Answer:      hit.Source.Answer,
			Score:       hit.Score,
		})
	}
	return results, nil
}
