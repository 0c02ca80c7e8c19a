// Package search 维护会话文档在 Elasticsearch 中的全文检索副本
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/ashwinyue/gptbundle/internal/model"
)

// Service 检索索引服务
type Service struct {
	es    *elasticsearch.Client
	index string
}

// NewService 创建检索索引服务
// 客户端由组合根显式构造注入，索引初始化通过 EnsureIndex 显式完成
func NewService(es *elasticsearch.Client, index string) *Service {
	return &Service{es: es, index: index}
}

// EnsureIndex 确保索引存在，幂等；由组合根在启动时调用一次
// 并发首次调用者触发的 resource_already_exists 冲突按成功处理
func (s *Service) EnsureIndex(ctx context.Context) error {
	res, err := s.es.Indices.Exists([]string{s.index}, s.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to check index existence: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == 200 {
		return nil
	}

	mapping := map[string]interface{}{
		"settings": map[string]interface{}{
			"number_of_shards":   1,
			"number_of_replicas": 1,
		},
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"user_email": map[string]interface{}{"type": "keyword"},
				"timestamp":  map[string]interface{}{"type": "double"},
				"messages": map[string]interface{}{
					"properties": map[string]interface{}{
						"content": map[string]interface{}{"type": "text"},
					},
				},
			},
		},
	}
	body, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("failed to marshal mapping: %w", err)
	}

	createRes, err := s.es.Indices.Create(s.index,
		s.es.Indices.Create.WithContext(ctx),
		s.es.Indices.Create.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer createRes.Body.Close()

	if createRes.IsError() {
		raw, _ := io.ReadAll(createRes.Body)
		if strings.Contains(string(raw), "resource_already_exists_exception") {
			return nil
		}
		return fmt.Errorf("failed to create index: %s", string(raw))
	}
	return nil
}

// Index 以创建语义索引会话副本
// 该 chat_id 已被索引时返回 model.ErrChatAlreadyExists
func (s *Service) Index(ctx context.Context, chat *model.Chat) error {
	return s.store(ctx, chat, true)
}

// Reindex 无条件覆盖会话副本（追加消息后使用）
func (s *Service) Reindex(ctx context.Context, chat *model.Chat) error {
	return s.store(ctx, chat, false)
}

func (s *Service) store(ctx context.Context, chat *model.Chat, createOnly bool) error {
	doc, err := json.Marshal(chat)
	if err != nil {
		return fmt.Errorf("failed to marshal chat: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      s.index,
		DocumentID: chat.ChatID,
		Body:       bytes.NewReader(doc),
	}
	if createOnly {
		req.OpType = "create"
	}

	res, err := req.Do(ctx, s.es)
	if err != nil {
		return fmt.Errorf("failed to index chat: %w", err)
	}
	defer res.Body.Close()

	if createOnly && res.StatusCode == 409 {
		return model.ErrChatAlreadyExists
	}
	if res.IsError() {
		return fmt.Errorf("failed to index chat: %s", res.String())
	}
	return nil
}

// Remove 删除索引副本，幂等；文档不存在不报错
func (s *Service) Remove(ctx context.Context, chatID string) error {
	res, err := s.es.Delete(s.index, chatID, s.es.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to delete from index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != 404 {
		return fmt.Errorf("failed to delete from index: %s", res.String())
	}
	return nil
}

// Search 按关键词全文检索属主的会话，结果按时间戳降序
func (s *Service) Search(ctx context.Context, owner, keyword string) ([]*model.Chat, error) {
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": []interface{}{
					map[string]interface{}{"match": map[string]interface{}{"messages.content": keyword}},
				},
				"filter": []interface{}{
					map[string]interface{}{"term": map[string]interface{}{"user_email": owner}},
				},
			},
		},
	}
	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	res, err := s.es.Search(
		s.es.Search.WithContext(ctx),
		s.es.Search.WithIndex(s.index),
		s.es.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search chats: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("failed to search chats: %s", res.String())
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source model.Chat `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	chats := make([]*model.Chat, 0, len(parsed.Hits.Hits))
	for i := range parsed.Hits.Hits {
		chat := parsed.Hits.Hits[i].Source
		chats = append(chats, &chat)
	}
	sort.Slice(chats, func(i, j int) bool {
		return chats[i].Timestamp > chats[j].Timestamp
	})
	return chats, nil
}
