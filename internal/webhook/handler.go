package webhook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/Enriquefft/openclaw-sms-webhook/internal/bus"
	"github.com/Enriquefft/openclaw-sms-webhook/internal/sms"
)

const (
	contentTypeForm = "application/x-www-form-urlencoded"
	contentTypeJSON = "application/json"
)

// Handler normalises inbound SMS webhooks and publishes them.
type Handler struct {
	Endpoint     string
	MaxBodyBytes int64
	Publisher    bus.Publisher
	Logger       *slog.Logger
}

// Route binds a method, path and content-type predicate to an entry point.
type Route struct {
	Name    string
	Method  string
	Path    string
	Accepts func(mediaType string, params map[string]string) bool
	Serve   func(w http.ResponseWriter, r *http.Request) error
}

// Routes returns the route table for the configured endpoint. Routes sharing a
// method and path are tried in order; the first whose predicate matches wins.
func (h *Handler) Routes() []Route {
	return []Route{
		{
			Name:    "query",
			Method:  http.MethodGet,
			Path:    h.Endpoint,
			Accepts: anyContentType,
			Serve:   h.serveQuery,
		},
		{
			Name:    "form",
			Method:  http.MethodPost,
			Path:    h.Endpoint,
			Accepts: isForm,
			Serve:   h.serveForm,
		},
		{
			Name:    "json",
			Method:  http.MethodPost,
			Path:    h.Endpoint,
			Accepts: isJSON,
			Serve:   h.serveJSON,
		},
	}
}

// Register installs the route table on mux. Methods without a route get a
// 405 from the mux itself.
func (h *Handler) Register(mux *http.ServeMux) {
	var patterns []string
	grouped := make(map[string][]Route)
	for _, rt := range h.Routes() {
		pattern := rt.Method + " " + rt.Path
		if _, ok := grouped[pattern]; !ok {
			patterns = append(patterns, pattern)
		}
		grouped[pattern] = append(grouped[pattern], rt)
	}
	for _, pattern := range patterns {
		mux.HandleFunc(pattern, h.dispatch(grouped[pattern]))
	}
}

// HandleValues publishes an event built from flat key/value pairs.
func (h *Handler) HandleValues(ctx context.Context, values map[string]string) error {
	return h.publish(ctx, sms.FromValues(values))
}

// HandleJSON publishes an event parsed from a raw JSON object.
func (h *Handler) HandleJSON(ctx context.Context, body []byte) error {
	ev, err := sms.FromJSON(body)
	if err != nil {
		return err
	}
	return h.publish(ctx, ev)
}

func (h *Handler) publish(ctx context.Context, ev sms.MessageEvent) error {
	env := bus.NewEnvelope(bus.SourceSMSWebhook, ev)
	if err := h.Publisher.Publish(ctx, env); err != nil {
		return fmt.Errorf("publish %s: %w", env.ID, err)
	}
	h.logger().Debug("inbound sms published", "id", env.ID, "message_id", ev.MessageID(), "fields", ev.Len())
	return nil
}

func (h *Handler) dispatch(routes []Route) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mediaType, params := parseContentType(r.Header.Get("Content-Type"))
		for _, rt := range routes {
			if !rt.Accepts(mediaType, params) {
				continue
			}
			if err := rt.Serve(w, r); err != nil {
				h.writeError(w, rt.Name, err)
				return
			}
			w.WriteHeader(http.StatusOK)
			return
		}
		h.logger().Warn("unsupported content type", "method", r.Method, "content_type", r.Header.Get("Content-Type"))
		http.Error(w, "unsupported media type", http.StatusUnsupportedMediaType)
	}
}

func (h *Handler) serveQuery(_ http.ResponseWriter, r *http.Request) error {
	values, err := url.ParseQuery(r.URL.RawQuery)
	if err != nil {
		return fmt.Errorf("%w: query: %v", sms.ErrMalformedPayload, err)
	}
	return h.HandleValues(r.Context(), firstValues(values))
}

// serveForm merges query and body parameters. Query values come first, so
// they win on conflict. Body values are percent-decoded and then transcoded
// from the declared charset.
func (h *Handler) serveForm(w http.ResponseWriter, r *http.Request) error {
	query, err := url.ParseQuery(r.URL.RawQuery)
	if err != nil {
		return fmt.Errorf("%w: query: %v", sms.ErrMalformedPayload, err)
	}

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes()))
	if err != nil {
		return err
	}
	body, err := url.ParseQuery(string(raw))
	if err != nil {
		return fmt.Errorf("%w: form: %v", sms.ErrMalformedPayload, err)
	}

	_, params := parseContentType(r.Header.Get("Content-Type"))
	dec := charsetDecoder(params["charset"])

	flat := firstValues(query)
	for k, v := range body {
		key, err := transcode(dec, k)
		if err != nil {
			return err
		}
		if _, ok := flat[key]; ok {
			continue
		}
		val := ""
		if len(v) > 0 {
			if val, err = transcode(dec, v[0]); err != nil {
				return err
			}
		}
		flat[key] = val
	}
	return h.HandleValues(r.Context(), flat)
}

func (h *Handler) serveJSON(w http.ResponseWriter, r *http.Request) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes()))
	if err != nil {
		return err
	}
	return h.HandleJSON(r.Context(), body)
}

func (h *Handler) writeError(w http.ResponseWriter, route string, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		h.logger().Warn("webhook body too large", "route", route, "limit", tooLarge.Limit)
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
	case errors.Is(err, sms.ErrMalformedPayload):
		h.logger().Warn("malformed webhook payload", "route", route, "err", err)
		http.Error(w, "malformed payload", http.StatusBadRequest)
	default:
		h.logger().Error("webhook failed", "route", route, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (h *Handler) maxBodyBytes() int64 {
	if h.MaxBodyBytes <= 0 {
		return 1 << 20
	}
	return h.MaxBodyBytes
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

// firstValues flattens multi-valued parameters, keeping the first value.
func firstValues(values url.Values) map[string]string {
	flat := make(map[string]string, len(values))
	for k, v := range values {
		if len(v) > 0 {
			flat[k] = v[0]
		} else {
			flat[k] = ""
		}
	}
	return flat
}

// charsetDecoder returns nil for UTF-8 (or no charset), meaning no transcoding.
func charsetDecoder(charset string) *encoding.Decoder {
	if charset == "" || strings.EqualFold(charset, "utf-8") || strings.EqualFold(charset, "utf8") {
		return nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil
	}
	return enc.NewDecoder()
}

func transcode(dec *encoding.Decoder, s string) (string, error) {
	if dec == nil {
		return s, nil
	}
	out, err := dec.String(s)
	if err != nil {
		return "", fmt.Errorf("%w: form charset: %v", sms.ErrMalformedPayload, err)
	}
	return out, nil
}

func parseContentType(header string) (string, map[string]string) {
	if header == "" {
		return "", nil
	}
	mediaType, params, err := mime.ParseMediaType(header)
	if err != nil {
		return "", nil
	}
	return mediaType, params
}

func anyContentType(string, map[string]string) bool { return true }

// isForm matches on media type; a charset parameter is honoured when it names
// a known encoding and rejected otherwise.
func isForm(mediaType string, params map[string]string) bool {
	if mediaType != contentTypeForm {
		return false
	}
	charset := params["charset"]
	if charset == "" {
		return true
	}
	_, err := htmlindex.Get(charset)
	return err == nil
}

func isJSON(mediaType string, _ map[string]string) bool {
	return mediaType == contentTypeJSON
}
