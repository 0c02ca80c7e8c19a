package testutil

import (
	"io"
	"net/http"
	"strings"
)

// CannedResponse 预置的 HTTP 响应
type CannedResponse struct {
	StatusCode int
	Body       string
	Header     http.Header
}

// CannedTransport 按请求路径返回预置响应的 RoundTripper
// 带 X-Elastic-Product 头，可直接给 Elasticsearch 客户端当 Transport
type CannedTransport struct {
	// Responses 按 "METHOD /path" 精确匹配，其次按前缀匹配
	Responses map[string]CannedResponse
	// Requests 记录收到的请求，便于断言
	Requests []*http.Request
}

// RoundTrip 实现 http.RoundTripper 接口
func (t *CannedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.Requests = append(t.Requests, req)

	key := req.Method + " " + req.URL.Path
	resp, ok := t.Responses[key]
	if !ok {
		for pattern, candidate := range t.Responses {
			if strings.HasPrefix(key, pattern) {
				resp, ok = candidate, true
				break
			}
		}
	}
	if !ok {
		resp = CannedResponse{StatusCode: http.StatusNotFound, Body: `{}`}
	}

	header := http.Header{}
	for k, vs := range resp.Header {
		for _, v := range vs {
			header.Add(k, v)
		}
	}
	if header.Get("Content-Type") == "" {
		header.Set("Content-Type", "application/json")
	}
	if header.Get("X-Elastic-Product") == "" {
		header.Set("X-Elastic-Product", "Elasticsearch")
	}

	return &http.Response{
		StatusCode: resp.StatusCode,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(resp.Body)),
		Request:    req,
	}, nil
}
