package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dujiao-next/discount-engine/internal/logger"

	"github.com/cenkalti/backoff/v4"
)

var (
	ErrSessionInvalid  = errors.New("platform session invalid")
	ErrRequestFailed   = errors.New("platform request failed")
	ErrResponseInvalid = errors.New("platform response invalid")
	ErrRejected        = errors.New("platform rejected request")
)

const (
	defaultBaseURLTemplate = "https://%s/admin/api/%s"
	defaultAPIVersion      = "2024-01"
	defaultTimeout         = 12 * time.Second
	defaultMaxRetries      = 4
	defaultChunkSize       = 100
	maxChunkSize           = 100
	ordersPageLimit        = 250
	maxErrorBodyLength     = 300
)

// Options 平台客户端配置
type Options struct {
	BaseURLTemplate string // 两个占位符：店铺域名、API 版本
	APIVersion      string
	Timeout         time.Duration
	MaxRetries      int
	ChunkSize       int
	InitialBackoff  time.Duration
	HTTPClient      *http.Client
}

// Session 商户会话（店铺域名 + 访问令牌）
type Session struct {
	ShopDomain  string
	AccessToken string
}

// Client 促销规则 REST 客户端
type Client struct {
	opts Options
	http *http.Client
}

// NewClient 创建平台客户端
func NewClient(opts Options) *Client {
	if strings.TrimSpace(opts.BaseURLTemplate) == "" {
		opts.BaseURLTemplate = defaultBaseURLTemplate
	}
	if strings.TrimSpace(opts.APIVersion) == "" {
		opts.APIVersion = defaultAPIVersion
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	} else if opts.MaxRetries == 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.ChunkSize <= 0 || opts.ChunkSize > maxChunkSize {
		opts.ChunkSize = defaultChunkSize
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 500 * time.Millisecond
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{opts: opts, http: httpClient}
}

// CreatePriceRule 创建促销规则，返回平台规则 ID
func (c *Client) CreatePriceRule(ctx context.Context, session Session, rule PriceRule) (string, error) {
	if err := session.validate(); err != nil {
		return "", err
	}
	body, err := json.Marshal(map[string]interface{}{"price_rule": rule.payload()})
	if err != nil {
		return "", fmt.Errorf("%w: marshal price rule failed", ErrRequestFailed)
	}
	respBody, err := c.call(ctx, session, http.MethodPost, "/price_rules.json", nil, body)
	if err != nil {
		return "", err
	}
	var resp struct {
		PriceRule struct {
			ID json.Number `json:"id"`
		} `json:"price_rule"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("%w: decode price rule failed", ErrResponseInvalid)
	}
	id := strings.TrimSpace(resp.PriceRule.ID.String())
	if id == "" {
		return "", fmt.Errorf("%w: price rule id missing", ErrResponseInvalid)
	}
	return id, nil
}

// UpdatePriceRule 同步促销规则参数（折扣值、适用范围、有效期）
func (c *Client) UpdatePriceRule(ctx context.Context, session Session, priceRuleID string, rule PriceRule) error {
	if err := session.validate(); err != nil {
		return err
	}
	priceRuleID = strings.TrimSpace(priceRuleID)
	if priceRuleID == "" {
		return fmt.Errorf("%w: price rule id is required", ErrRequestFailed)
	}
	payload := rule.payload()
	payload["id"] = priceRuleID
	body, err := json.Marshal(map[string]interface{}{"price_rule": payload})
	if err != nil {
		return fmt.Errorf("%w: marshal price rule failed", ErrRequestFailed)
	}
	_, err = c.call(ctx, session, http.MethodPut, "/price_rules/"+url.PathEscape(priceRuleID)+".json", nil, body)
	return err
}

// CreateDiscountCodes 把一批码注册到促销规则，按平台上限分片提交；
// 平台对已存在的码按幂等处理，同一批次可安全重推
func (c *Client) CreateDiscountCodes(ctx context.Context, session Session, priceRuleID string, codes []string) error {
	if err := session.validate(); err != nil {
		return err
	}
	priceRuleID = strings.TrimSpace(priceRuleID)
	if priceRuleID == "" {
		return fmt.Errorf("%w: price rule id is required", ErrRequestFailed)
	}
	endpoint := "/price_rules/" + url.PathEscape(priceRuleID) + "/batch.json"
	for start := 0; start < len(codes); start += c.opts.ChunkSize {
		end := start + c.opts.ChunkSize
		if end > len(codes) {
			end = len(codes)
		}
		items := make([]map[string]string, 0, end-start)
		for _, code := range codes[start:end] {
			items = append(items, map[string]string{"code": code})
		}
		body, err := json.Marshal(map[string]interface{}{"discount_codes": items})
		if err != nil {
			return fmt.Errorf("%w: marshal discount codes failed", ErrRequestFailed)
		}
		if _, err := c.call(ctx, session, http.MethodPost, endpoint, nil, body); err != nil {
			return fmt.Errorf("push codes [%d,%d): %w", start, end, err)
		}
	}
	return nil
}

// ListOrders 拉取时间窗口内创建的订单，自动跟随分页
func (c *Client) ListOrders(ctx context.Context, session Session, since, until time.Time) ([]Order, error) {
	if err := session.validate(); err != nil {
		return nil, err
	}
	query := url.Values{}
	query.Set("status", "any")
	query.Set("limit", strconv.Itoa(ordersPageLimit))
	query.Set("created_at_min", since.UTC().Format(time.RFC3339))
	query.Set("created_at_max", until.UTC().Format(time.RFC3339))

	var orders []Order
	for page := 0; page < 100; page++ {
		respBody, header, err := c.callWithHeader(ctx, session, http.MethodGet, "/orders.json", query, nil)
		if err != nil {
			return orders, err
		}
		var resp struct {
			Orders []Order `json:"orders"`
		}
		if err := json.Unmarshal(respBody, &resp); err != nil {
			return orders, fmt.Errorf("%w: decode orders failed", ErrResponseInvalid)
		}
		orders = append(orders, resp.Orders...)

		pageInfo := nextPageInfo(header.Get("Link"))
		if pageInfo == "" {
			break
		}
		query = url.Values{}
		query.Set("limit", strconv.Itoa(ordersPageLimit))
		query.Set("page_info", pageInfo)
	}
	return orders, nil
}

func (c *Client) call(ctx context.Context, session Session, method, endpoint string, query url.Values, body []byte) ([]byte, error) {
	respBody, _, err := c.callWithHeader(ctx, session, method, endpoint, query, body)
	return respBody, err
}

// callWithHeader 发送请求，网络错误、429 与 5xx 指数退避重试，其余 4xx 直接失败
func (c *Client) callWithHeader(ctx context.Context, session Session, method, endpoint string, query url.Values, body []byte) ([]byte, http.Header, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	target := c.endpointURL(session, endpoint, query)

	var (
		respBody []byte
		header   http.Header
		attempt  int
	)
	operation := func() error {
		attempt++
		data, status, h, err := c.doJSONRequest(ctx, session, method, target, body)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		switch {
		case status >= 200 && status < 300:
			respBody, header = data, h
			return nil
		case status == http.StatusTooManyRequests || status >= 500:
			return fmt.Errorf("%w: status=%d", ErrRequestFailed, status)
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			return backoff.Permanent(fmt.Errorf("%w: status=%d", ErrSessionInvalid, status))
		default:
			return backoff.Permanent(fmt.Errorf("%w: status=%d body=%s", ErrRejected, status, truncate(string(data), maxErrorBodyLength)))
		}
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.opts.InitialBackoff
	policy.MaxElapsedTime = 0
	retry := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.opts.MaxRetries)), ctx)

	notify := func(err error, wait time.Duration) {
		logger.Warnw("platform_request_retry",
			"shop", session.ShopDomain,
			"method", method,
			"endpoint", endpoint,
			"attempt", attempt,
			"wait", wait,
			"error", err,
		)
	}
	if err := backoff.RetryNotify(operation, retry, notify); err != nil {
		return nil, nil, err
	}
	return respBody, header, nil
}

func (c *Client) doJSONRequest(ctx context.Context, session Session, method, target string, body []byte) ([]byte, int, http.Header, error) {
	ctx, cancel := c.withDefaultTimeout(ctx)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("%w: build request failed", ErrRequestFailed)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Shopify-Access-Token", strings.TrimSpace(session.AccessToken))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("%w: http request failed: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, nil, fmt.Errorf("%w: read response failed", ErrRequestFailed)
	}
	return respBody, resp.StatusCode, resp.Header, nil
}

func (c *Client) withDefaultTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.opts.Timeout)
}

func (c *Client) endpointURL(session Session, endpoint string, query url.Values) string {
	base := fmt.Sprintf(c.opts.BaseURLTemplate, strings.TrimSpace(session.ShopDomain), c.opts.APIVersion)
	target := strings.TrimRight(base, "/") + endpoint
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	return target
}

func (s Session) validate() error {
	if strings.TrimSpace(s.ShopDomain) == "" || strings.TrimSpace(s.AccessToken) == "" {
		return ErrSessionInvalid
	}
	return nil
}

// nextPageInfo 解析 Link 头中 rel="next" 的 page_info
func nextPageInfo(link string) string {
	for _, part := range strings.Split(link, ",") {
		part = strings.TrimSpace(part)
		if !strings.Contains(part, `rel="next"`) {
			continue
		}
		start := strings.Index(part, "<")
		end := strings.Index(part, ">")
		if start < 0 || end <= start {
			return ""
		}
		parsed, err := url.Parse(part[start+1 : end])
		if err != nil {
			return ""
		}
		return parsed.Query().Get("page_info")
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
