// Package testutil 提供测试辅助工具
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"
)

// OllamaServer 模拟模型服务的管理接口
type OllamaServer struct {
	*httptest.Server
	TagHits atomic.Int32
}

// NewOllamaServer 启动返回给定模型列表与版本的测试服务器
func NewOllamaServer(t *testing.T, version string, models ...string) *OllamaServer {
	t.Helper()
	s := &OllamaServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/tags":
			s.TagHits.Add(1)
			tags := make([]map[string]string, 0, len(models))
			for _, m := range models {
				tags = append(tags, map[string]string{"name": m, "model": m})
			}
			json.NewEncoder(w).Encode(map[string]any{"models": tags})
		case "/api/version":
			json.NewEncoder(w).Encode(map[string]string{"version": version})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(s.Close)
	return s
}

// redirectTransport 把所有请求改写到测试服务器
type redirectTransport struct {
	base *url.URL
	next http.RoundTripper
}

func (t *redirectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	cloned := req.Clone(req.Context())
	cloned.URL.Scheme = t.base.Scheme
	cloned.URL.Host = t.base.Host
	return t.next.RoundTrip(cloned)
}

// NewTestClient 创建测试用 HTTP 客户端，请求无论目标主机都发往 ts
func NewTestClient(ts *httptest.Server) *http.Client {
	u, _ := url.Parse(ts.URL)
	return &http.Client{
		Timeout:   5 * time.Second,
		Transport: &redirectTransport{base: u, next: http.DefaultTransport},
	}
}
