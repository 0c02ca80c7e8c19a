// Package llm 封装外部补全 API：文本流式生成与图像生成
package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/schema"

	"github.com/ashwinyue/gptbundle/internal/config"
	"github.com/ashwinyue/gptbundle/internal/model"
	"github.com/ashwinyue/gptbundle/internal/service/media"
)

// MediaStore 图像生成结果的存储接口
type MediaStore interface {
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	PresignedURL(ctx context.Context, key string) (string, error)
}

// Service 补全客户端
type Service struct {
	cfg        *config.AIConfig
	media      MediaStore
	httpClient *http.Client
}

// NewService 创建补全客户端
func NewService(cfg *config.AIConfig, mediaStore MediaStore) *Service {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &Service{
		cfg:        cfg,
		media:      mediaStore,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// StreamText 流式生成文本回复
// 目标模型取会话最后一条消息的 llm_model；返回单趟流，调用方负责读完或关闭
func (s *Service) StreamText(ctx context.Context, chat *model.Chat) (*schema.StreamReader[*schema.Message], error) {
	messages := toSchemaMessages(chat.Messages)
	if len(messages) == 0 {
		return nil, fmt.Errorf("%w: chat has no text messages", model.ErrInvalidInput)
	}

	modelName := chat.Messages[len(chat.Messages)-1].LLMModel
	if modelName == "" {
		modelName = s.cfg.Model
	}

	chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:  s.cfg.APIKey,
		BaseURL: s.cfg.BaseURL,
		Model:   modelName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	return chatModel.Stream(ctx, messages)
}

// toSchemaMessages 转换消息为 eino 输入；图像消息不参与文本补全
func toSchemaMessages(messages []model.Message) []*schema.Message {
	result := make([]*schema.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.MessageType != model.MessageTypeText {
			continue
		}
		result = append(result, &schema.Message{
			Role:    toSchemaRole(msg.Role),
			Content: msg.Content,
		})
	}
	return result
}

func toSchemaRole(role model.MessageRole) schema.RoleType {
	switch role {
	case model.RoleAssistant:
		return schema.Assistant
	default:
		return schema.User
	}
}

// imageGenerationResponse OpenAI 兼容图像接口响应
type imageGenerationResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
	} `json:"data"`
}

// CompleteImage 由用户消息生成图像
// 消息类型不是 image 时返回 model.ErrInvalidInput；
// 生成的图像逐张上传到永久命名空间并附上预签名 URL
func (s *Service) CompleteImage(ctx context.Context, userMessage *model.Message) (*model.Message, error) {
	if userMessage.MessageType != model.MessageTypeImage {
		return nil, fmt.Errorf("%w: message type must be %q", model.ErrInvalidInput, model.MessageTypeImage)
	}

	modelName := userMessage.LLMModel
	if modelName == "" {
		modelName = s.cfg.ImageModel
	}

	reqBody := map[string]interface{}{
		"model":           modelName,
		"prompt":          userMessage.Content,
		"response_format": "b64_json",
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal image request: %w", err)
	}

	url := strings.TrimRight(s.cfg.BaseURL, "/") + "/images/generations"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build image request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("image request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("image response status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed imageGenerationResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse image response: %w", err)
	}
	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("image response contains no data")
	}

	var keys, urls []string
	for _, item := range parsed.Data {
		decoded, err := base64.StdEncoding.DecodeString(item.B64JSON)
		if err != nil {
			return nil, fmt.Errorf("failed to decode image data: %w", err)
		}

		key := media.GeneratedKey()
		if err := s.media.Upload(ctx, key, bytes.NewReader(decoded), int64(len(decoded)), "image/png"); err != nil {
			return nil, err
		}
		presigned, err := s.media.PresignedURL(ctx, key)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
		urls = append(urls, presigned)
	}

	return &model.Message{
		Content:       userMessage.Content,
		Role:          model.RoleAssistant,
		MessageType:   model.MessageTypeImage,
		MediaKeys:     keys,
		PresignedURLs: urls,
		LLMModel:      modelName,
	}, nil
}

// ModelInfo 可用模型信息
type ModelInfo struct {
	ModelName            string `json:"model_name"`
	Description          string `json:"description"`
	SupportsInputVision  bool   `json:"supports_input_vision"`
	SupportsOutputVision bool   `json:"supports_output_vision"`
}

// modelListResponse 模型列表响应
type modelListResponse struct {
	Data []struct {
		ID           string `json:"id"`
		Description  string `json:"description"`
		Architecture struct {
			Modality         string   `json:"modality"`
			InputModalities  []string `json:"input_modalities"`
			OutputModalities []string `json:"output_modalities"`
		} `json:"architecture"`
	} `json:"data"`
}

// ListModels 列出提供方的可用模型及其视觉能力
func (s *Service) ListModels(ctx context.Context) ([]ModelInfo, error) {
	url := strings.TrimRight(s.cfg.BaseURL, "/") + "/models"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build models request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("models request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read models response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("models response status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed modelListResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse models response: %w", err)
	}

	models := make([]ModelInfo, 0, len(parsed.Data))
	for _, item := range parsed.Data {
		if item.ID == "" {
			continue
		}

		inputVision := contains(item.Architecture.InputModalities, "image")
		outputVision := contains(item.Architecture.OutputModalities, "image")
		// 旧格式："text+image->text" 之类的 modality 字符串
		if !inputVision && strings.Contains(item.Architecture.Modality, "->") {
			inputPart := strings.SplitN(item.Architecture.Modality, "->", 2)[0]
			inputVision = strings.Contains(inputPart, "image")
		}

		models = append(models, ModelInfo{
			ModelName:            item.ID,
			Description:          item.Description,
			SupportsInputVision:  inputVision,
			SupportsOutputVision: outputVision,
		})
	}
	return models, nil
}

func contains(items []string, target string) bool {
	for _, item := range items {
		if item == target {
			return true
		}
	}
	return false
}
