package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BerniceZTT/crm_web/models"
	"github.com/BerniceZTT/crm_web/monitoring"
	"github.com/BerniceZTT/crm_web/utils"
)

// 响应体读取上限
const maxBodyBytes = 8 << 20

// TransportError 远程存储请求失败：网络错误、非 2xx 状态或响应无法解析
type TransportError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
	Err        error
}

// Error 返回面向用户的错误信息
func (e *TransportError) Error() string {
	return e.Message
}

// Unwrap 返回底层错误
func (e *TransportError) Unwrap() error {
	return e.Err
}

// HTTPStatus 远程存储错误统一映射为 502
func (e *TransportError) HTTPStatus() int {
	return http.StatusBadGateway
}

// Store 远程CRUD存储
type Store interface {
	FetchCollection(ctx context.Context, name string) ([]json.RawMessage, error)
	FetchOne(ctx context.Context, name string, id models.ID) (json.RawMessage, error)
	Create(ctx context.Context, name string, payload interface{}) (json.RawMessage, error)
	Replace(ctx context.Context, name string, id models.ID, payload interface{}) (json.RawMessage, error)
	Remove(ctx context.Context, name string, id models.ID) error
}

// RemoteStore 基于 HTTP 的远程存储客户端，不重试，不带认证
type RemoteStore struct {
	baseURL string
	client  *http.Client
}

// NewRemoteStore 创建远程存储客户端
func NewRemoteStore(baseURL string, timeout time.Duration) *RemoteStore {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &RemoteStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// FetchCollection 获取整个集合；后端返回单个对象时归一化为单元素数组
func (s *RemoteStore) FetchCollection(ctx context.Context, name string) ([]json.RawMessage, error) {
	path := "/" + name
	body, err := s.do(ctx, http.MethodGet, name, path, nil)
	if err != nil {
		return nil, err
	}
	items, err := normalizeCollection(body)
	if err != nil {
		return nil, &TransportError{
			Method:  http.MethodGet,
			Path:    path,
			Message: fmt.Sprintf("无法解析集合 %s 的响应", name),
			Err:     err,
		}
	}
	return items, nil
}

// FetchOne 获取单个实体
func (s *RemoteStore) FetchOne(ctx context.Context, name string, id models.ID) (json.RawMessage, error) {
	path := entityPath(name, id)
	body, err := s.do(ctx, http.MethodGet, name, path, nil)
	if err != nil {
		return nil, err
	}
	if !isJSONObject(body) {
		return nil, &TransportError{Method: http.MethodGet, Path: path, Message: "远程存储返回的实体无法解析"}
	}
	return body, nil
}

// Create 创建实体；响应体为空或不是对象时返回 nil，调用方使用提交的数据
func (s *RemoteStore) Create(ctx context.Context, name string, payload interface{}) (json.RawMessage, error) {
	body, err := s.do(ctx, http.MethodPost, name, "/"+name, payload)
	if err != nil {
		return nil, err
	}
	if !isJSONObject(body) {
		return nil, nil
	}
	return body, nil
}

// Replace 整体替换实体（PUT 全量数据）
func (s *RemoteStore) Replace(ctx context.Context, name string, id models.ID, payload interface{}) (json.RawMessage, error) {
	body, err := s.do(ctx, http.MethodPut, name, entityPath(name, id), payload)
	if err != nil {
		return nil, err
	}
	if !isJSONObject(body) {
		return nil, nil
	}
	return body, nil
}

// Remove 删除实体
func (s *RemoteStore) Remove(ctx context.Context, name string, id models.ID) error {
	_, err := s.do(ctx, http.MethodDelete, name, entityPath(name, id), nil)
	return err
}

func (s *RemoteStore) do(ctx context.Context, method, collection, path string, payload interface{}) (json.RawMessage, error) {
	fullURL := s.baseURL + path
	utils.LogRemoteRequest(method, fullURL, payload)

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, &TransportError{Method: method, Path: path, Message: "请求数据序列化失败", Err: err}
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return nil, &TransportError{Method: method, Path: path, Message: "创建请求失败", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	elapsed := time.Since(start)
	monitoring.RemoteStoreDuration.WithLabelValues(method, collection).Observe(elapsed.Seconds())
	if err != nil {
		monitoring.RemoteStoreRequests.WithLabelValues(method, collection, "network_error").Inc()
		utils.LogRemoteResponse(method, fullURL, 0, elapsed, err)
		return nil, &TransportError{Method: method, Path: path, Message: "无法连接远程存储，请稍后重试", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		monitoring.RemoteStoreRequests.WithLabelValues(method, collection, "network_error").Inc()
		utils.LogRemoteResponse(method, fullURL, resp.StatusCode, elapsed, err)
		return nil, &TransportError{Method: method, Path: path, StatusCode: resp.StatusCode, Message: "读取远程存储响应失败", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		monitoring.RemoteStoreRequests.WithLabelValues(method, collection, "http_error").Inc()
		terr := &TransportError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Message:    backendMessage(body, resp.StatusCode),
		}
		utils.LogRemoteResponse(method, fullURL, resp.StatusCode, elapsed, terr)
		return nil, terr
	}

	monitoring.RemoteStoreRequests.WithLabelValues(method, collection, "success").Inc()
	utils.LogRemoteResponse(method, fullURL, resp.StatusCode, elapsed, nil)
	return bytes.TrimSpace(body), nil
}

func entityPath(name string, id models.ID) string {
	return "/" + name + "/" + url.PathEscape(id.String())
}

// normalizeCollection 数组原样拆分，单个对象包装为数组，空或 null 视为空集合
func normalizeCollection(body []byte) ([]json.RawMessage, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || string(body) == "null" {
		return []json.RawMessage{}, nil
	}
	switch body[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, err
		}
		out := items[:0]
		for _, item := range items {
			if t := bytes.TrimSpace(item); len(t) > 0 && string(t) != "null" {
				out = append(out, item)
			}
		}
		return out, nil
	case '{':
		if !json.Valid(body) {
			return nil, fmt.Errorf("无效的JSON对象")
		}
		return []json.RawMessage{json.RawMessage(body)}, nil
	}
	return nil, fmt.Errorf("意外的响应格式")
}

func isJSONObject(body []byte) bool {
	return len(body) > 0 && body[0] == '{' && json.Valid(body)
}

// backendMessage 优先使用后端返回的 message/error，其次是纯文本响应
func backendMessage(body []byte, status int) string {
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '{' {
		var payload struct {
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		if err := json.Unmarshal(body, &payload); err == nil {
			if payload.Message != "" {
				return payload.Message
			}
			if payload.Error != "" {
				return payload.Error
			}
		}
	} else if len(body) > 0 && len(body) <= 512 && !bytes.HasPrefix(body, []byte("<")) {
		return string(body)
	}
	return fmt.Sprintf("远程存储请求失败 (HTTP %d)", status)
}

// FetchAll 获取集合并解码为指定类型
func FetchAll[T any](ctx context.Context, s Store, name string) ([]T, error) {
	raw, err := s.FetchCollection(ctx, name)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(raw))
	for _, item := range raw {
		var v T
		if err := json.Unmarshal(item, &v); err != nil {
			return nil, &TransportError{
				Method:  http.MethodGet,
				Path:    "/" + name,
				Message: fmt.Sprintf("集合 %s 中存在无法解析的数据", name),
				Err:     err,
			}
		}
		out = append(out, v)
	}
	return out, nil
}

// FetchByID 获取单个实体并解码
func FetchByID[T any](ctx context.Context, s Store, name string, id models.ID) (T, error) {
	var v T
	raw, err := s.FetchOne(ctx, name, id)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, &TransportError{Method: http.MethodGet, Path: entityPath(name, id), Message: "实体数据无法解析", Err: err}
	}
	return v, nil
}

// CreateAs 创建实体并返回确认后的数据；后端未回显时返回提交的数据
func CreateAs[T any](ctx context.Context, s Store, name string, payload T) (T, error) {
	raw, err := s.Create(ctx, name, payload)
	if err != nil {
		return payload, err
	}
	return decodeEcho(raw, payload), nil
}

// ReplaceAs 替换实体并返回确认后的数据；后端未回显时返回提交的数据
func ReplaceAs[T any](ctx context.Context, s Store, name string, id models.ID, payload T) (T, error) {
	raw, err := s.Replace(ctx, name, id, payload)
	if err != nil {
		return payload, err
	}
	return decodeEcho(raw, payload), nil
}

// decodeEcho 将回显覆盖到提交的数据上，回显缺失的字段保留提交值
func decodeEcho[T any](raw json.RawMessage, payload T) T {
	if len(raw) == 0 {
		return payload
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return payload
	}
	var merged T
	if err := json.Unmarshal(data, &merged); err != nil {
		return payload
	}
	if err := json.Unmarshal(raw, &merged); err != nil {
		utils.Logger.Warn().Err(err).Msg("远程存储回显无法解析，使用提交的数据")
		return payload
	}
	return merged
}
