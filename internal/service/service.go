package service

import (
	"context"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/ashwinyue/gptbundle/internal/config"
	"github.com/ashwinyue/gptbundle/internal/repository"
	"github.com/ashwinyue/gptbundle/internal/service/auth"
	"github.com/ashwinyue/gptbundle/internal/service/chat"
	"github.com/ashwinyue/gptbundle/internal/service/llm"
	"github.com/ashwinyue/gptbundle/internal/service/media"
	"github.com/ashwinyue/gptbundle/internal/service/search"
)

// Services 服务集合
type Services struct {
	Auth   *auth.Service
	Chat   *chat.Service
	Search *search.Service
	Media  *media.Service
	LLM    *llm.Service

	Config *config.Config
}

// NewServices 创建所有服务
// 客户端实例由此处显式构造注入，生命周期随进程
func NewServices(ctx context.Context, repos *repository.Repositories, cfg *config.Config, esClient *elasticsearch.Client) (*Services, error) {
	mediaSvc, err := media.New(ctx, &cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to init media storage: %w", err)
	}

	searchSvc := search.NewService(esClient, cfg.Elastic.IndexName)
	llmSvc := llm.NewService(&cfg.AI, mediaSvc)
	chatSvc := chat.NewService(repos.Chat, searchSvc, mediaSvc, llmSvc)
	authSvc := auth.NewService(repos.User, &cfg.JWT)

	return &Services{
		Auth:   authSvc,
		Chat:   chatSvc,
		Search: searchSvc,
		Media:  mediaSvc,
		LLM:    llmSvc,
		Config: cfg,
	}, nil
}
