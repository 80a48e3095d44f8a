// Package nps fetches workplace data from the National Pension Service
// enquiry API, caching raw responses through the fingerprint response cache
// so repeated lookups stay off the rate-limited upstream.
package nps

import (
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

	"github.com/opendatakr/npscache/internal/workplace/storage"
)

// DefaultBaseURL is the public workplace enquiry service endpoint.
const DefaultBaseURL = "https://apis.data.go.kr/B552015/NpsBplcInfoInqireServiceV2"

// DefaultCacheTTL bounds how long a raw API response is served from cache.
const DefaultCacheTTL = 24 * time.Hour

// API kinds tag cached responses per endpoint.
const (
	KindBase    = "base"
	KindDetail  = "detail"
	KindMonthly = "monthly"
)

const (
	pathBase    = "getBassInfoSearchV2"
	pathDetail  = "getDetailInfoSearchV2"
	pathMonthly = "getPdAcctoSttusInfoSearchV2"

	searchPageSize = 30
)

var (
	// ErrServiceKeyRequired indicates the client was built without an API key.
	ErrServiceKeyRequired = errors.New("nps service key is required")
	// ErrNameRequired indicates a base search needs a workplace name.
	ErrNameRequired = errors.New("workplace name is required")
	// ErrSeqRequired indicates a detail or monthly lookup needs a seq.
	ErrSeqRequired = errors.New("workplace seq is required")
)

// BaseInfo is one workplace row from the base search endpoint.
type BaseInfo struct {
	Seq            string
	Name           string
	RegistrationNo string
	DataPeriod     string
	Address        string
}

// DetailInfo carries the subscriber and premium figures for one workplace.
// Nil fields were absent upstream.
type DetailInfo struct {
	SubscriberCount     *int64
	MonthlyNoticeAmount *int64
}

// MonthlyStatus carries the joiner and leaver counts for one workplace.
// Nil fields were absent upstream.
type MonthlyStatus struct {
	NewHireCount *int64
	LeaverCount  *int64
}

// Client calls the workplace enquiry API through a response cache.
type Client struct {
	baseURL    string
	serviceKey string
	cache      storage.ResponseCacheStore
	httpClient *http.Client
	cacheTTL   time.Duration
}

// NewClient builds an API client. The issued service key arrives
// percent-encoded; it is decoded once here so query encoding does not
// double-escape it.
func NewClient(baseURL, serviceKey string, cache storage.ResponseCacheStore, httpClient *http.Client) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	serviceKey = strings.TrimSpace(serviceKey)
	if decoded, err := url.QueryUnescape(serviceKey); err == nil {
		serviceKey = decoded
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
		cache:      cache,
		httpClient: httpClient,
		cacheTTL:   DefaultCacheTTL,
	}
}

// FetchBase searches workplaces by name, newest reporting period first.
// registrationNo narrows the search when present.
func (c *Client) FetchBase(ctx context.Context, name, registrationNo string) ([]BaseInfo, error) {
	name = strings.TrimSpace(name)
	registrationNo = strings.TrimSpace(registrationNo)
	if name == "" {
		return nil, ErrNameRequired
	}

	cacheParams := map[string]string{"wkplNm": name}
	query := url.Values{}
	query.Set("wkplNm", name)
	query.Set("numOfRows", strconv.Itoa(searchPageSize))
	query.Set("pageNo", "1")
	query.Set("wkplNmOrdrBy", "ASC")
	query.Set("dataCrtYmOrdrBy", "DESC")
	if registrationNo != "" {
		cacheParams["bzowrRgstNo"] = registrationNo
		query.Set("bzowrRgstNo", registrationNo)
	}

	body, err := c.fetch(ctx, KindBase, pathBase, cacheParams, query)
	if err != nil {
		return nil, fmt.Errorf("fetch base info: %w", err)
	}

	results := make([]BaseInfo, 0, len(body.Items.Item))
	for _, row := range body.Items.Item {
		results = append(results, BaseInfo{
			Seq:            strings.TrimSpace(string(row.Seq)),
			Name:           string(row.WkplNm),
			RegistrationNo: string(row.BzowrRgstNo),
			DataPeriod:     string(row.DataCrtYm),
			Address:        string(row.WkplRoadNmDtlAddr),
		})
	}
	return results, nil
}

// FetchDetail returns the subscriber figures for one workplace. A workplace
// without a detail row yields the zero value.
func (c *Client) FetchDetail(ctx context.Context, seq string) (DetailInfo, error) {
	seq = strings.TrimSpace(seq)
	if seq == "" {
		return DetailInfo{}, ErrSeqRequired
	}

	query := url.Values{}
	query.Set("seq", seq)
	body, err := c.fetch(ctx, KindDetail, pathDetail, map[string]string{"seq": seq}, query)
	if err != nil {
		return DetailInfo{}, fmt.Errorf("fetch detail info: %w", err)
	}
	if len(body.Items.Item) == 0 {
		return DetailInfo{}, nil
	}

	row := body.Items.Item[0]
	return DetailInfo{
		SubscriberCount:     row.JnngpCnt.Int64(),
		MonthlyNoticeAmount: row.CrrmmNtcAmt.Int64(),
	}, nil
}

// FetchMonthly returns the joiner and leaver counts for one workplace. A
// workplace without a monthly row yields the zero value.
func (c *Client) FetchMonthly(ctx context.Context, seq string) (MonthlyStatus, error) {
	seq = strings.TrimSpace(seq)
	if seq == "" {
		return MonthlyStatus{}, ErrSeqRequired
	}

	query := url.Values{}
	query.Set("seq", seq)
	body, err := c.fetch(ctx, KindMonthly, pathMonthly, map[string]string{"seq": seq}, query)
	if err != nil {
		return MonthlyStatus{}, fmt.Errorf("fetch monthly status: %w", err)
	}
	if len(body.Items.Item) == 0 {
		return MonthlyStatus{}, nil
	}

	row := body.Items.Item[0]
	return MonthlyStatus{
		NewHireCount: row.NwAcqzrCnt.Int64(),
		LeaverCount:  row.LssJnngpCnt.Int64(),
	}, nil
}

// fetch serves one endpoint call from the response cache, falling back to the
// network on a miss. Only envelopes with a success result code are cached, so
// upstream error payloads never shadow later retries.
func (c *Client) fetch(ctx context.Context, kind, path string, cacheParams map[string]string, query url.Values) (responseBody, error) {
	if c == nil || c.httpClient == nil {
		return responseBody{}, fmt.Errorf("nps client is not configured")
	}
	if c.serviceKey == "" {
		return responseBody{}, ErrServiceKeyRequired
	}

	if c.cache != nil {
		entry, err := c.cache.GetResponse(ctx, kind, cacheParams)
		if err == nil {
			return parseEnvelope([]byte(entry.ResponseBody))
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return responseBody{}, fmt.Errorf("read response cache: %w", err)
		}
	}

	raw, err := c.request(ctx, path, query)
	if err != nil {
		return responseBody{}, err
	}
	body, err := parseEnvelope(raw)
	if err != nil {
		return responseBody{}, err
	}

	if c.cache != nil {
		if err := c.cache.PutResponse(ctx, kind, cacheParams, string(raw), c.cacheTTL); err != nil {
			return responseBody{}, fmt.Errorf("write response cache: %w", err)
		}
	}
	return body, nil
}

func (c *Client) request(ctx context.Context, path string, query url.Values) ([]byte, error) {
	query.Set("serviceKey", c.serviceKey)
	query.Set("dataType", "JSON")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+path+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build api request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("api returned %s", resp.Status)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read api response: %w", err)
	}
	return raw, nil
}

type envelope struct {
	Response struct {
		Header struct {
			ResultCode string `json:"resultCode"`
			ResultMsg  string `json:"resultMsg"`
		} `json:"header"`
		Body responseBody `json:"body"`
	} `json:"response"`
}

type responseBody struct {
	Items itemList `json:"items"`
}

// itemList absorbs the feed's two empty-result shapes: an object holding an
// item array, or a bare empty string.
type itemList struct {
	Item []item `json:"item"`
}

func (l *itemList) UnmarshalJSON(data []byte) error {
	token := strings.TrimSpace(string(data))
	if token == "" || token == "null" || token == `""` {
		*l = itemList{}
		return nil
	}
	type plain itemList
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*l = itemList(decoded)
	return nil
}

type item struct {
	Seq               apiString `json:"seq"`
	WkplNm            apiString `json:"wkplNm"`
	BzowrRgstNo       apiString `json:"bzowrRgstNo"`
	DataCrtYm         apiString `json:"dataCrtYm"`
	WkplRoadNmDtlAddr apiString `json:"wkplRoadNmDtlAddr"`
	JnngpCnt          apiInt    `json:"jnngpCnt"`
	CrrmmNtcAmt       apiInt    `json:"crrmmNtcAmt"`
	NwAcqzrCnt        apiInt    `json:"nwAcqzrCnt"`
	LssJnngpCnt       apiInt    `json:"lssJnngpCnt"`
}

// apiString tolerates the feed emitting either strings or bare numbers.
type apiString string

func (s *apiString) UnmarshalJSON(data []byte) error {
	token := strings.TrimSpace(string(data))
	if token == "null" {
		*s = ""
		return nil
	}
	if unquoted, err := strconv.Unquote(token); err == nil {
		*s = apiString(unquoted)
		return nil
	}
	*s = apiString(token)
	return nil
}

// apiInt tolerates numbers, numeric strings, and empty values. Anything
// non-numeric decodes as absent, matching how the feed omits sparse counts.
type apiInt string

func (n *apiInt) UnmarshalJSON(data []byte) error {
	token := strings.TrimSpace(string(data))
	if unquoted, err := strconv.Unquote(token); err == nil {
		token = strings.TrimSpace(unquoted)
	}
	if token == "" || token == "null" {
		*n = ""
		return nil
	}
	if _, err := strconv.ParseInt(token, 10, 64); err != nil {
		*n = ""
		return nil
	}
	*n = apiInt(token)
	return nil
}

// Int64 returns the decoded value, or nil when the field was absent.
func (n apiInt) Int64() *int64 {
	if n == "" {
		return nil
	}
	parsed, err := strconv.ParseInt(string(n), 10, 64)
	if err != nil {
		return nil
	}
	return &parsed
}

func parseEnvelope(raw []byte) (responseBody, error) {
	var decoded envelope
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return responseBody{}, fmt.Errorf("decode api response: %w", err)
	}
	header := decoded.Response.Header
	if header.ResultCode != "00" {
		return responseBody{}, fmt.Errorf("api result %s: %s", header.ResultCode, header.ResultMsg)
	}
	return decoded.Response.Body, nil
}
