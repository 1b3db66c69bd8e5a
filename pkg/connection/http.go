package connection

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"sync"

	"github.com/buger/jsonparser"
	"github.com/filemakergo/fmorm/pkg/constants"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/spf13/cast"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// HTTPConnection talks to the FileMaker Data API. It implements Store,
// ContainerUploader and ContainerDownloader.
type HTTPConnection struct {
	config  Config
	baseURL string
	logger  zerolog.Logger

	httpClient *http.Client
	variables  sync.Map
}

var (
	_ Store               = (*HTTPConnection)(nil)
	_ ContainerUploader   = (*HTTPConnection)(nil)
	_ ContainerDownloader = (*HTTPConnection)(nil)
)

var repetitionKey = regexp.MustCompile(`^(.+)\((\d+)\)$`)

func NewHTTPConnection(c *Config) *HTTPConnection {
	timeout := c.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &HTTPConnection{
		config: *c,
		baseURL: fmt.Sprintf("%s/fmi/data/%s/databases/%s",
			c.Host, c.apiVersion(), url.PathEscape(c.Database)),
		logger: c.Logger,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (h *HTTPConnection) SetHTTPClient(client *http.Client) *HTTPConnection {
	h.httpClient = client
	return h
}

// Connect opens a Data API session.
func (h *HTTPConnection) Connect(ctx context.Context) error {
	if err := h.config.Validate(); err != nil {
		return err
	}
	return h.login(ctx)
}

// Close ends the session if one is open.
func (h *HTTPConnection) Close(ctx context.Context) error {
	token, ok := h.variables.LoadAndDelete(tokenKey)
	if !ok {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		h.baseURL+"/sessions/"+url.PathEscape(token.(string)), http.NoBody)
	if err != nil {
		return err
	}
	_, err = h.makeRequest(req)
	return err
}

func (h *HTTPConnection) login(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/sessions", bytes.NewBufferString("{}"))
	if err != nil {
		return err
	}
	req.SetBasicAuth(h.config.Username, h.config.Password)
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if err := envelopeError(body); err != nil {
		return err
	}

	token := resp.Header.Get(SessionTokenHeader)
	if token == "" {
		token, err = jsonparser.GetString(body, "response", "token")
		if err != nil {
			return fmt.Errorf("%w: no session token", constants.InvalidResponse)
		}
	}
	h.variables.Store(tokenKey, token)
	return nil
}

// send performs one Data API call and returns the "response" member of the envelope.
func (h *HTTPConnection) send(ctx context.Context, method, path string, body any) ([]byte, error) {
	if body == nil {
		return h.sendRenewing(ctx, method, path, nil, "")
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return h.sendRenewing(ctx, method, path, payload, "application/json")
}

// sendRenewing is send for an encoded payload. An expired session is renewed once
// and the request is rebuilt from payload.
func (h *HTTPConnection) sendRenewing(ctx context.Context, method, path string, payload []byte, contentType string) ([]byte, error) {
	res, err := h.sendOnce(ctx, method, path, payload, contentType)
	if errors.Is(err, &StoreError{Code: constants.CodeInvalidToken}) {
		h.logger.Warn().Str("path", path).Msg("data api session expired, logging in again")
		if err := h.login(ctx); err != nil {
			return nil, err
		}
		res, err = h.sendOnce(ctx, method, path, payload, contentType)
	}
	return res, err
}

func (h *HTTPConnection) sendOnce(ctx context.Context, method, path string, payload []byte, contentType string) ([]byte, error) {
	if _, ok := h.variables.Load(tokenKey); !ok {
		if err := h.login(ctx); err != nil {
			return nil, err
		}
	}

	var reader io.Reader = http.NoBody
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return h.makeRequest(req)
}

func (h *HTTPConnection) makeRequest(req *http.Request) ([]byte, error) {
	if token, ok := h.variables.Load(tokenKey); ok {
		req.Header.Set("Authorization", "Bearer "+token.(string))
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if err := envelopeError(respBytes); err != nil {
		if errors.Is(err, &StoreError{Code: constants.CodeInvalidToken}) {
			h.variables.Delete(tokenKey)
		}
		return nil, err
	}

	response, dataType, _, err := jsonparser.Get(respBytes, "response")
	if dataType == jsonparser.NotExist {
		return []byte("{}"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", constants.InvalidResponse, err)
	}
	return response, nil
}

// envelopeError returns the first message of the envelope as a *StoreError unless its
// code is 0.
func envelopeError(body []byte) error {
	codeStr, err := jsonparser.GetString(body, "messages", "[0]", "code")
	if err != nil {
		return fmt.Errorf("%w: %v", constants.InvalidResponse, err)
	}
	code, err := strconv.Atoi(codeStr)
	if err != nil {
		return fmt.Errorf("%w: message code %q", constants.InvalidResponse, codeStr)
	}
	if code == constants.CodeOK {
		return nil
	}
	message, _ := jsonparser.GetString(body, "messages", "[0]", "message")
	return &StoreError{Code: code, Message: message}
}

type sortJSON struct {
	FieldName string    `json:"fieldName"`
	SortOrder SortOrder `json:"sortOrder"`
}

type findJSON struct {
	Query  []map[string]string `json:"query"`
	Sort   []sortJSON          `json:"sort,omitempty"`
	Offset string              `json:"offset,omitempty"`
	Limit  string              `json:"limit,omitempty"`
}

func (o *findOptions) sortBody() []sortJSON {
	rules := make([]SortRule, len(o.SortRules))
	copy(rules, o.SortRules)
	sort.SliceStable(rules, func(i, j int) bool { return rules[i].Precedence < rules[j].Precedence })

	out := make([]sortJSON, 0, len(rules))
	for _, r := range rules {
		out = append(out, sortJSON{FieldName: r.Field, SortOrder: r.Order})
	}
	return out
}

func (o *findOptions) findBody(query []map[string]string) findJSON {
	f := findJSON{Query: query, Sort: o.sortBody()}
	// the Data API offset is 1-based
	if o.Range.Skip > 0 {
		f.Offset = strconv.Itoa(o.Range.Skip + 1)
	}
	if o.Range.Limit != nil {
		f.Limit = strconv.Itoa(*o.Range.Limit)
	}
	return f
}

func criteriaJSON(criteria []Criterion) map[string]string {
	q := make(map[string]string, len(criteria))
	for _, c := range criteria {
		q[c.Field] = c.Value
	}
	return q
}

func (h *HTTPConnection) Find(ctx context.Context, req *FindRequest) (*Result, error) {
	if len(req.Criteria) == 0 {
		return h.findAll(ctx, req)
	}
	body := req.findBody([]map[string]string{criteriaJSON(req.Criteria)})
	return h.find(ctx, req.Layout, body)
}

func (h *HTTPConnection) FindCompound(ctx context.Context, req *CompoundFindRequest) (*Result, error) {
	query := make([]map[string]string, 0, req.Requests.Len())
	for _, sub := range req.SubRequests() {
		query = append(query, criteriaJSON(sub.Criteria))
	}
	return h.find(ctx, req.Layout, req.findBody(query))
}

func (h *HTTPConnection) find(ctx context.Context, layout string, body findJSON) (*Result, error) {
	data, err := h.send(ctx, http.MethodPost, layoutPath(layout)+"/_find", body)
	if err != nil {
		return nil, err
	}
	res, err := decodeRecords(data)
	if err != nil {
		return nil, err
	}
	h.logger.Debug().Str("layout", layout).Int("requests", len(body.Query)).
		Int("records", res.FetchCount()).Msg("find")
	return res, nil
}

// findAll lists records without criteria, which the _find endpoint does not accept.
func (h *HTTPConnection) findAll(ctx context.Context, req *FindRequest) (*Result, error) {
	params := url.Values{}
	if req.Range.Skip > 0 {
		params.Set("_offset", strconv.Itoa(req.Range.Skip+1))
	}
	if req.Range.Limit != nil {
		params.Set("_limit", strconv.Itoa(*req.Range.Limit))
	}
	if sorts := req.sortBody(); len(sorts) > 0 {
		b, err := json.Marshal(sorts)
		if err != nil {
			return nil, err
		}
		params.Set("_sort", string(b))
	}

	path := layoutPath(req.Layout) + "/records"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	data, err := h.send(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return decodeRecords(data)
}

func (h *HTTPConnection) getRecord(ctx context.Context, layout, recordID string) (*Result, error) {
	data, err := h.send(ctx, http.MethodGet, recordPath(layout, recordID), nil)
	if err != nil {
		return nil, err
	}
	return decodeRecords(data)
}

type writeResponse struct {
	RecordID string `json:"recordId"`
	ModID    string `json:"modId"`
}

func (h *HTTPConnection) Add(ctx context.Context, layout string, fields map[string]any) (*Result, error) {
	data, err := h.send(ctx, http.MethodPost, layoutPath(layout)+"/records",
		map[string]any{"fieldData": encodeFieldData(fields)})
	if err != nil {
		return nil, err
	}
	var wr writeResponse
	if err := json.Unmarshal(data, &wr); err != nil {
		return nil, fmt.Errorf("%w: %v", constants.InvalidResponse, err)
	}
	h.logger.Debug().Str("layout", layout).Str("recordId", wr.RecordID).Msg("add")
	return h.getRecord(ctx, layout, wr.RecordID)
}

func (h *HTTPConnection) Edit(ctx context.Context, layout, recordID, modificationID string, fields map[string]any) (*Result, error) {
	body := map[string]any{"fieldData": encodeFieldData(fields)}
	if modificationID != "" {
		body["modId"] = modificationID
	}
	if _, err := h.send(ctx, http.MethodPatch, recordPath(layout, recordID), body); err != nil {
		return nil, err
	}
	h.logger.Debug().Str("layout", layout).Str("recordId", recordID).Msg("edit")
	return h.getRecord(ctx, layout, recordID)
}

func (h *HTTPConnection) Delete(ctx context.Context, layout, recordID string) (*Result, error) {
	if _, err := h.send(ctx, http.MethodDelete, recordPath(layout, recordID), nil); err != nil {
		return nil, err
	}
	h.logger.Debug().Str("layout", layout).Str("recordId", recordID).Msg("delete")
	return &Result{}, nil
}

func (h *HTTPConnection) UploadContainer(ctx context.Context, layout, recordID, field, filename string, data []byte) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("upload", filename)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	path := recordPath(layout, recordID) + "/containers/" + url.PathEscape(field) + "/1"
	resp, err := h.sendRenewing(ctx, http.MethodPost, path, buf.Bytes(), w.FormDataContentType())
	if err != nil {
		return "", err
	}
	modID, err := jsonparser.GetString(resp, "modId")
	if err != nil {
		return "", fmt.Errorf("%w: %v", constants.InvalidResponse, err)
	}
	return modID, nil
}

func (h *HTTPConnection) DownloadContainer(ctx context.Context, containerURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, containerURL, http.NoBody)
	if err != nil {
		return nil, err
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("downloading container: %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func layoutPath(layout string) string {
	return "/layouts/" + url.PathEscape(layout)
}

func recordPath(layout, recordID string) string {
	return layoutPath(layout) + "/records/" + url.PathEscape(recordID)
}

// encodeFieldData spreads repetition values over "name(n)" keys.
func encodeFieldData(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		rep, ok := v.([]any)
		if !ok {
			out[k] = fieldValue(v)
			continue
		}
		for i, rv := range rep {
			out[fmt.Sprintf("%s(%d)", k, i+1)] = fieldValue(rv)
		}
	}
	return out
}

// fieldValue maps nil to the empty value, the Data API rejects null field data.
func fieldValue(v any) any {
	if v == nil {
		return ""
	}
	return v
}

type rawRecord struct {
	RecordID   string                                                            `json:"recordId"`
	ModID      string                                                            `json:"modId"`
	FieldData  *orderedmap.OrderedMap[string, any]                               `json:"fieldData"`
	PortalData *orderedmap.OrderedMap[string, []*orderedmap.OrderedMap[string, any]] `json:"portalData"`
}

type recordsResponse struct {
	DataInfo struct {
		FoundCount int `json:"foundCount"`
	} `json:"dataInfo"`
	Data []rawRecord `json:"data"`
}

func decodeRecords(data []byte) (*Result, error) {
	var rr recordsResponse
	if err := json.Unmarshal(data, &rr); err != nil {
		return nil, fmt.Errorf("%w: %v", constants.InvalidResponse, err)
	}

	res := &Result{FoundCount: rr.DataInfo.FoundCount, Records: make([]*Record, 0, len(rr.Data))}
	for _, raw := range rr.Data {
		rec := NewRecord(raw.RecordID, raw.ModID)
		setFields(rec, raw.FieldData)

		if raw.PortalData != nil {
			for portal := raw.PortalData.Oldest(); portal != nil; portal = portal.Next() {
				rows := make([]*Record, 0, len(portal.Value))
				for _, row := range portal.Value {
					rows = append(rows, portalRecord(row))
				}
				rec.AddRelatedSet(portal.Key, rows...)
			}
		}
		res.Records = append(res.Records, rec)
	}
	return res, nil
}

func portalRecord(row *orderedmap.OrderedMap[string, any]) *Record {
	id, _ := row.Get("recordId")
	modID, _ := row.Get("modId")
	rec := NewRecord(cast.ToString(id), cast.ToString(modID))
	row.Delete("recordId")
	row.Delete("modId")
	setFields(rec, row)
	return rec
}

func setFields(rec *Record, fields *orderedmap.OrderedMap[string, any]) {
	if fields == nil {
		return
	}
	for pair := fields.Oldest(); pair != nil; pair = pair.Next() {
		if m := repetitionKey.FindStringSubmatch(pair.Key); m != nil {
			idx, _ := strconv.Atoi(m[2])
			if idx > 0 {
				rec.SetRepetition(m[1], idx, pair.Value)
				continue
			}
		}
		if _, seen := rec.Field(pair.Key); seen {
			// "name(1)" was seen before the plain name
			rec.SetRepetition(pair.Key, 1, pair.Value)
			continue
		}
		rec.SetField(pair.Key, pair.Value)
	}
}
