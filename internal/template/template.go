// Package template renders outreach message templates with lead data
// using the Liquid template language.
package template

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ignite/lead-nurture/internal/domain"
	"github.com/osteele/liquid"
)

// Renderer handles Liquid template rendering with parse caching.
type Renderer struct {
	engine *liquid.Engine
	cache  sync.Map // map[string]*liquid.Template
}

// NewRenderer creates a renderer with the outreach filters registered.
func NewRenderer() *Renderer {
	engine := liquid.NewEngine()

	// Default value filter: {{ first_name | default: "there" }}
	engine.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if value == nil {
			return defaultVal
		}
		strVal := fmt.Sprintf("%v", value)
		if strVal == "" || strVal == "<nil>" {
			return defaultVal
		}
		return value
	})

	// Capitalize first letter: {{ first_name | capitalize }}
	engine.RegisterFilter("capitalize", func(s string) string {
		if len(s) == 0 {
			return s
		}
		return strings.ToUpper(string(s[0])) + strings.ToLower(s[1:])
	})

	return &Renderer{engine: engine}
}

// Bindings builds the variable set available to outreach templates.
func Bindings(lead *domain.Lead) map[string]interface{} {
	firstName := lead.Name
	if i := strings.IndexByte(firstName, ' '); i > 0 {
		firstName = firstName[:i]
	}
	return map[string]interface{}{
		"lead_id":    lead.ID,
		"name":       lead.Name,
		"first_name": firstName,
		"source":     lead.Source,
	}
}

// Render renders a template against a lead. Rendering is lax: on any parse
// or render failure the raw template is returned so a bad template never
// blocks a decision.
func (r *Renderer) Render(tpl string, lead *domain.Lead) string {
	var parsed *liquid.Template
	if cached, ok := r.cache.Load(tpl); ok {
		parsed = cached.(*liquid.Template)
	} else {
		p, err := r.engine.ParseString(tpl)
		if err != nil {
			return tpl
		}
		r.cache.Store(tpl, p)
		parsed = p
	}

	out, err := parsed.RenderString(Bindings(lead))
	if err != nil {
		return tpl
	}
	return out
}
