package service

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// FallbackTemplate is rendered when the template file cannot be loaded.
const FallbackTemplate = `<!DOCTYPE html>
<html>
  <body style="font-family: Arial, sans-serif; color: #222;">
    <p>Hi {{var:first_name}},</p>
    <p>We picked {{var:offer_title}} for you: {{var:discount}}% off with code <strong>{{var:promo_code}}</strong>.</p>
    <p><a href="{{var:link}}">See the offer</a></p>
  </body>
</html>
`

// TemplateRenderer loads its template once per process and substitutes
// {{var:name}} tokens on every render.
type TemplateRenderer struct {
	Path     string
	ReadFile func(name string) ([]byte, error)
	Log      zerolog.Logger

	once sync.Once
	body string
}

func NewTemplateRenderer(path string, log zerolog.Logger) *TemplateRenderer {
	return &TemplateRenderer{Path: path, ReadFile: os.ReadFile, Log: log}
}

func (r *TemplateRenderer) Render(vars map[string]any) string {
	return RenderTemplate(r.Body(), vars)
}

// Body returns the cached template, loading it on first use.
func (r *TemplateRenderer) Body() string {
	r.once.Do(r.load)
	return r.body
}

func (r *TemplateRenderer) load() {
	read := r.ReadFile
	if read == nil {
		read = os.ReadFile
	}
	raw, err := read(r.Path)
	switch {
	case err != nil:
		r.Log.Warn().Err(err).Str("path", r.Path).Msg("campaign template not loaded, using fallback")
		r.body = FallbackTemplate
	case strings.TrimSpace(string(raw)) == "":
		r.Log.Warn().Str("path", r.Path).Msg("campaign template is empty, using fallback")
		r.body = FallbackTemplate
	default:
		r.Log.Debug().Str("path", r.Path).Int("bytes", len(raw)).Msg("campaign template loaded")
		r.body = string(raw)
	}
}

// RenderTemplate replaces every {{var:key}} token for the keys in vars.
// Unknown tokens are left as they are; substituted values are not rescanned.
func RenderTemplate(body string, vars map[string]any) string {
	if len(vars) == 0 {
		return body
	}
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, "{{var:"+k+"}}", fmt.Sprint(vars[k]))
	}
	return strings.NewReplacer(pairs...).Replace(body)
}
