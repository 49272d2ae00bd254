package handlers

import (
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"sync"

	"gopkg.in/yaml.v3"
)

// DocsHandler serves the OpenAPI document and a Swagger UI page.
type DocsHandler struct {
	logger      *slog.Logger
	spec        []byte
	swaggerHTML *template.Template

	jsonOnce sync.Once
	jsonSpec []byte
	jsonErr  error
}

// NewDocsHandler creates a docs handler for the given YAML document.
func NewDocsHandler(spec []byte, logger *slog.Logger) *DocsHandler {
	return &DocsHandler{
		logger:      logger,
		spec:        spec,
		swaggerHTML: template.Must(template.New("swagger").Parse(swaggerUITemplate)),
	}
}

// ServeSwaggerUI serves the Swagger UI at /api/docs.
func (h *DocsHandler) ServeSwaggerUI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	page := struct{ SpecURL, Title string }{"/api/docs/openapi.yaml", "Diagrams API"}
	if err := h.swaggerHTML.Execute(w, page); err != nil {
		h.logger.Error("failed to render Swagger UI", "error", err)
	}
}

// ServeOpenAPIYAML serves the document at /api/docs/openapi.yaml.
func (h *DocsHandler) ServeOpenAPIYAML(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.Write(h.spec)
}

// ServeOpenAPIJSON serves the document converted to JSON at /api/docs/openapi.json.
func (h *DocsHandler) ServeOpenAPIJSON(w http.ResponseWriter, r *http.Request) {
	h.jsonOnce.Do(func() {
		h.jsonSpec, h.jsonErr = yamlToJSON(h.spec)
	})
	if h.jsonErr != nil {
		WriteServiceError(w, r, h.logger, h.jsonErr, "convert OpenAPI document")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(h.jsonSpec)
}

func yamlToJSON(doc []byte) ([]byte, error) {
	var v any
	if err := yaml.Unmarshal(doc, &v); err != nil {
		return nil, fmt.Errorf("parsing OpenAPI document: %w", err)
	}
	return json.Marshal(stringKeys(v))
}

// stringKeys rewrites maps with non-string keys, such as unquoted status
// codes, so the value can be encoded as JSON.
func stringKeys(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = stringKeys(e)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[fmt.Sprint(k)] = stringKeys(e)
		}
		return out
	case []any:
		for i, e := range t {
			t[i] = stringKeys(e)
		}
		return t
	}
	return v
}

const swaggerUITemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
    <style>
        body { margin: 0; }
        .swagger-ui .topbar { background-color: #0f766e; }
    </style>
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
        window.ui = SwaggerUIBundle({
            url: "{{.SpecURL}}",
            dom_id: "#swagger-ui",
            deepLinking: true,
            persistAuthorization: true,
            displayRequestDuration: true
        });
    </script>
</body>
</html>`
