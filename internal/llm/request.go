package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/billie-coop/ollamagate/internal/llm/queue"
)

// ErrUnknownRequest is returned by DecodeRequest for unsupported request types.
var ErrUnknownRequest = errors.New("unsupported request type")

// Ollama endpoints the gateway knows about.
const (
	EndpointRoot     = "/"
	EndpointTags     = "/api/tags"
	EndpointShow     = "/api/show"
	EndpointGenerate = "/api/generate"
	EndpointChat     = "/api/chat"
	EndpointPull     = "/api/pull"
	EndpointDelete   = "/api/delete"
)

// Params is the JSON object a caller passes through to Ollama untouched.
type Params map[string]interface{}

// Request is one action a caller can ask of Ollama.
//
// The set of implementations is closed: TestConnection, ListModels, ShowModel,
// Generate, Chat, PullModel, DeleteModel and Raw.
type Request interface {
	// Endpoint is the path relative to the Ollama base URL
	Endpoint() string
	// Method is the HTTP method
	Method() string
	// Header returns the headers to send
	Header() http.Header
	// Body returns the encoded request body, nil for none
	Body() ([]byte, error)
	// Class is the lane this request is scheduled in
	Class() queue.Class

	isRequest()
}

// TestConnection probes GET /, which answers "Ollama is running" in plain text.
type TestConnection struct{}

// ListModels lists local models via GET /api/tags.
type ListModels struct{}

// ShowModel fetches model metadata via POST /api/show.
type ShowModel struct {
	Name string
}

// Generate runs a completion via POST /api/generate.
type Generate struct {
	Params Params
}

// Chat runs a chat completion via POST /api/chat.
type Chat struct {
	Params Params
}

// PullModel downloads a model via POST /api/pull.
type PullModel struct {
	Params Params
}

// DeleteModel removes a model via DELETE /api/delete. Ollama answers 200 with no body.
type DeleteModel struct {
	Name string
}

// Raw passes an arbitrary request through. It is classified by its endpoint.
type Raw struct {
	Path       string
	HTTPMethod string
	Headers    map[string]string
	Payload    []byte
}

func (TestConnection) Endpoint() string { return EndpointRoot }
func (ListModels) Endpoint() string     { return EndpointTags }
func (ShowModel) Endpoint() string      { return EndpointShow }
func (Generate) Endpoint() string       { return EndpointGenerate }
func (Chat) Endpoint() string           { return EndpointChat }
func (PullModel) Endpoint() string      { return EndpointPull }
func (DeleteModel) Endpoint() string    { return EndpointDelete }
func (r Raw) Endpoint() string {
	if r.Path == "" {
		return EndpointRoot
	}
	return r.Path
}

func (TestConnection) Method() string { return http.MethodGet }
func (ListModels) Method() string     { return http.MethodGet }
func (ShowModel) Method() string      { return http.MethodPost }
func (Generate) Method() string       { return http.MethodPost }
func (Chat) Method() string           { return http.MethodPost }
func (PullModel) Method() string      { return http.MethodPost }
func (DeleteModel) Method() string    { return http.MethodDelete }
func (r Raw) Method() string {
	if r.HTTPMethod == "" {
		return http.MethodGet
	}
	return strings.ToUpper(r.HTTPMethod)
}

func (TestConnection) Header() http.Header { return http.Header{} }
func (ListModels) Header() http.Header     { return http.Header{} }
func (ShowModel) Header() http.Header      { return jsonHeader() }
func (Generate) Header() http.Header       { return jsonHeader() }
func (Chat) Header() http.Header           { return jsonHeader() }
func (PullModel) Header() http.Header      { return jsonHeader() }
func (DeleteModel) Header() http.Header    { return jsonHeader() }
func (r Raw) Header() http.Header {
	h := http.Header{}
	for k, v := range r.Headers {
		h.Set(k, v)
	}
	if len(r.Payload) > 0 && h.Get("Content-Type") == "" {
		h.Set("Content-Type", "application/json")
	}
	return h
}

func (TestConnection) Body() ([]byte, error) { return nil, nil }
func (ListModels) Body() ([]byte, error)     { return nil, nil }
func (r ShowModel) Body() ([]byte, error)    { return json.Marshal(map[string]string{"name": r.Name}) }
func (r Generate) Body() ([]byte, error)     { return marshalParams(r.Params) }
func (r Chat) Body() ([]byte, error)         { return marshalParams(r.Params) }
func (r PullModel) Body() ([]byte, error)    { return marshalParams(r.Params) }
func (r DeleteModel) Body() ([]byte, error)  { return json.Marshal(map[string]string{"name": r.Name}) }
func (r Raw) Body() ([]byte, error)          { return r.Payload, nil }

func (TestConnection) Class() queue.Class { return queue.Light }
func (ListModels) Class() queue.Class     { return queue.Light }
func (ShowModel) Class() queue.Class      { return queue.Light }
func (Generate) Class() queue.Class       { return queue.Heavy }
func (Chat) Class() queue.Class           { return queue.Heavy }
func (PullModel) Class() queue.Class      { return queue.Heavy }
func (DeleteModel) Class() queue.Class    { return queue.Light }
func (r Raw) Class() queue.Class          { return ClassifyEndpoint(r.Endpoint()) }

func (TestConnection) isRequest() {}
func (ListModels) isRequest()     {}
func (ShowModel) isRequest()      {}
func (Generate) isRequest()       {}
func (Chat) isRequest()           {}
func (PullModel) isRequest()      {}
func (DeleteModel) isRequest()    {}
func (Raw) isRequest()            {}

func jsonHeader() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	return h
}

func marshalParams(p Params) ([]byte, error) {
	if p == nil {
		p = Params{}
	}
	return json.Marshal(p)
}

// WithStream returns a copy of req with Ollama's "stream" flag forced to stream.
// Requests without params are returned unchanged.
func WithStream(req Request, stream bool) Request {
	switch r := req.(type) {
	case Generate:
		return Generate{Params: r.Params.with("stream", stream)}
	case Chat:
		return Chat{Params: r.Params.with("stream", stream)}
	case PullModel:
		return PullModel{Params: r.Params.with("stream", stream)}
	default:
		return req
	}
}

func (p Params) with(key string, value interface{}) Params {
	out := make(Params, len(p)+1)
	for k, v := range p {
		out[k] = v
	}
	out[key] = value
	return out
}

// Name returns a short label for logs and metrics, e.g. "generate".
func Name(req Request) string {
	switch r := req.(type) {
	case TestConnection:
		return "testConnection"
	case ListModels:
		return "getModels"
	case ShowModel:
		return "showModel"
	case Generate:
		return "generate"
	case Chat:
		return "chat"
	case PullModel:
		return "pullModel"
	case DeleteModel:
		return "deleteModel"
	case Raw:
		return "ollamaRequest " + r.Method() + " " + r.Endpoint()
	default:
		return fmt.Sprintf("%T", req)
	}
}

// wireRequest is the JSON shape callers send.
//
//	{"type": "generate", "params": {"model": "llama3.1", "prompt": "hi"}}
//	{"type": "deleteModel", "name": "llama3.1"}
//	{"type": "ollamaRequest", "endpoint": "/api/ps", "options": {"method": "GET"}}
type wireRequest struct {
	Type     string       `json:"type"`
	Params   Params       `json:"params,omitempty"`
	Model    string       `json:"model,omitempty"`
	Name     string       `json:"name,omitempty"`
	Prompt   string       `json:"prompt,omitempty"`
	Endpoint string       `json:"endpoint,omitempty"`
	Options  *wireOptions `json:"options,omitempty"`
}

type wireOptions struct {
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    json.RawMessage   `json:"body,omitempty"`
}

// DecodeRequest parses the caller wire format into a Request.
func DecodeRequest(data []byte) (Request, error) {
	var w wireRequest
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}

	switch w.Type {
	case "testConnection":
		return TestConnection{}, nil
	case "getModels", "fetchModels":
		return ListModels{}, nil
	case "showModel":
		return ShowModel{Name: w.modelName()}, nil
	case "generate", "sendToOllama", "streamOllama":
		return Generate{Params: w.params()}, nil
	case "chat":
		return Chat{Params: w.params()}, nil
	case "pullModel":
		return PullModel{Params: w.params()}, nil
	case "deleteModel":
		return DeleteModel{Name: w.modelName()}, nil
	case "ollamaRequest":
		return w.raw()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRequest, w.Type)
	}
}

// params merges the shorthand fields into Params.
func (w wireRequest) params() Params {
	p := Params{}
	if w.Options != nil && len(w.Options.Body) > 0 {
		_ = json.Unmarshal(w.Options.Body, &p)
	}
	for k, v := range w.Params {
		p[k] = v
	}
	if _, ok := p["model"]; !ok && w.Model != "" {
		p["model"] = w.Model
	}
	if _, ok := p["prompt"]; !ok && w.Prompt != "" {
		p["prompt"] = w.Prompt
	}
	return p
}

func (w wireRequest) modelName() string {
	for _, candidate := range []string{w.Name, w.Model} {
		if candidate != "" {
			return candidate
		}
	}
	p := w.params()
	for _, key := range []string{"name", "model"} {
		if s, ok := p[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func (w wireRequest) raw() (Request, error) {
	if !strings.HasPrefix(w.Endpoint, "/") || strings.HasPrefix(w.Endpoint, "//") {
		return nil, fmt.Errorf("decode request: ollamaRequest needs an absolute endpoint path, got %q", w.Endpoint)
	}
	endpoint, err := CleanEndpoint(w.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	r := Raw{Path: endpoint}
	if w.Options != nil {
		r.HTTPMethod = w.Options.Method
		r.Headers = w.Options.Headers
		r.Payload = rawBody(w.Options.Body)
	}
	return r, nil
}

// rawBody accepts either a JSON value or a JSON string holding the encoded body,
// since browser callers usually pre-stringify.
func rawBody(body json.RawMessage) []byte {
	if len(body) == 0 || string(body) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(body, &s); err == nil {
		return []byte(s)
	}
	return []byte(body)
}
