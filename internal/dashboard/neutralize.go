package dashboard

import (
	"fmt"
	"regexp"
)

// Variant selects how a dashboard is neutralized.
type Variant string

const (
	// VariantPortable keeps the cluster variable but hides it and binds it
	// to "All".
	VariantPortable Variant = "portable"
	// VariantAgnostic removes the cluster variable and every reference to it.
	VariantAgnostic Variant = "agnostic"
)

// Mode selects where the filter patterns are applied.
type Mode string

const (
	// ModeText rewrites the whole serialized document. Any string that
	// happens to contain a pattern is rewritten, not only queries.
	ModeText Mode = "text"
	// ModeStructural rewrites only expression-bearing string fields.
	ModeStructural Mode = "structural"
)

// ParseMode validates a rewrite mode name. The empty string selects ModeText.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeText:
		return ModeText, nil
	case ModeStructural:
		return ModeStructural, nil
	default:
		return "", fmt.Errorf("invalid rewrite mode %q (expected text or structural)", s)
	}
}

// DefaultLabel is the template variable and label the rewriter targets.
const DefaultLabel = "cluster"

// DefaultDatasource is the datasource binding written into the datasource
// variable.
const DefaultDatasource = "default"

// expressionFields are the keys whose string values hold queries or legends.
var expressionFields = map[string]bool{
	"expr":         true,
	"query":        true,
	"definition":   true,
	"legendFormat": true,
}

type replacement struct {
	re   *regexp.Regexp
	with string
}

// Rewriter neutralizes the cluster template variable of dashboards.
type Rewriter struct {
	label      string
	datasource string
	mode       Mode

	portable []replacement
	agnostic []replacement
}

// Options configures a Rewriter. Zero values select the defaults.
type Options struct {
	Label      string
	Datasource string
	Mode       Mode
}

// NewRewriter compiles the filter patterns for opts.Label.
func NewRewriter(opts Options) *Rewriter {
	if opts.Label == "" {
		opts.Label = DefaultLabel
	}

	if opts.Datasource == "" {
		opts.Datasource = DefaultDatasource
	}

	if opts.Mode == "" {
		opts.Mode = ModeText
	}

	label := regexp.QuoteMeta(opts.Label)
	// Quotes appear escaped when the pattern sits inside a serialized JSON
	// string and bare when applied to a decoded value.
	value := `\\?"\$` + label + `\\?"`
	regexFilter := label + `=~` + value
	anyFilter := label + `=~?` + value

	return &Rewriter{
		label:      opts.Label,
		datasource: opts.Datasource,
		mode:       opts.Mode,
		portable: []replacement{
			{regexp.MustCompile(`,\s*` + regexFilter), ""},
			{regexp.MustCompile(regexFilter + `,\s*`), ""},
			{regexp.MustCompile(`\{` + regexFilter + `\}`), "{}"},
		},
		agnostic: []replacement{
			{regexp.MustCompile(`,\s*` + anyFilter), ""},
			{regexp.MustCompile(anyFilter + `,\s*`), ""},
			{regexp.MustCompile(`\{` + anyFilter + `\}`), "{}"},
			// A legend reference takes one adjacent colon separator with it.
			{regexp.MustCompile(`\{\{` + label + `\}\}:|:?\{\{` + label + `\}\}`), ""},
		},
	}
}

// Neutralize applies variant v to d and returns the rewritten dashboard.
// d itself is not modified.
func (r *Rewriter) Neutralize(d *Dashboard, v Variant) (*Dashboard, error) {
	switch v {
	case VariantPortable:
		return r.MakePortable(d)
	case VariantAgnostic:
		return r.MakeClusterAgnostic(d)
	default:
		return nil, fmt.Errorf("unknown dashboard variant %q", v)
	}
}

// MakePortable removes "=~" cluster filters, hides the cluster variable
// with an "All" selection and binds the datasource variable to the default
// datasource.
func (r *Rewriter) MakePortable(d *Dashboard) (*Dashboard, error) {
	out, err := r.rewrite(d, r.portable)
	if err != nil {
		return nil, err
	}

	if v := findVariable(out, r.label); v != nil {
		current := NewObject()
		current.Set("selected", true)
		current.Set("text", []any{"All"})
		current.Set("value", []any{"$__all"})

		v.Set("hide", 2)
		v.Set("current", current)
		v.Set("allValue", ".*")
		v.Set("includeAll", true)
	}

	r.bindDatasource(out)

	return out, nil
}

// MakeClusterAgnostic removes every cluster filter and legend reference and
// deletes all cluster variables.
func (r *Rewriter) MakeClusterAgnostic(d *Dashboard) (*Dashboard, error) {
	out, err := r.rewrite(d, r.agnostic)
	if err != nil {
		return nil, err
	}

	list, ok := variableList(out)
	if !ok {
		return out, nil
	}

	kept := make([]any, 0, len(list))

	for _, item := range list {
		if obj, ok := item.(*Object); ok && variableName(obj) == r.label {
			continue
		}

		kept = append(kept, item)
	}

	out.Root.Value("templating").(*Object).Set("list", kept)

	return out, nil
}

func (r *Rewriter) bindDatasource(d *Dashboard) {
	v := findVariable(d, "datasource")
	if v == nil {
		return
	}

	current := NewObject()
	current.Set("selected", false)
	current.Set("text", r.datasource)
	current.Set("value", r.datasource)

	v.Set("current", current)
}

// rewrite returns a copy of d with the replacements applied.
func (r *Rewriter) rewrite(d *Dashboard, repl []replacement) (*Dashboard, error) {
	text, err := Encode(d.Root, "")
	if err != nil {
		return nil, fmt.Errorf("serializing dashboard: %w", err)
	}

	if r.mode == ModeStructural {
		out, err := Parse(text)
		if err != nil {
			return nil, err
		}

		rewriteFields(out.Root, "", repl)

		return out, nil
	}

	text = applyAll(text, repl)

	out, err := Parse(text)
	if err != nil {
		return nil, fmt.Errorf("re-parsing rewritten dashboard: %w", err)
	}

	return out, nil
}

func applyAll(b []byte, repl []replacement) []byte {
	for _, rp := range repl {
		b = rp.re.ReplaceAll(b, []byte(rp.with))
	}

	return b
}

func rewriteFields(v any, key string, repl []replacement) any {
	switch val := v.(type) {
	case *Object:
		for pair := val.Oldest(); pair != nil; pair = pair.Next() {
			pair.Value = rewriteFields(pair.Value, pair.Key, repl)
		}
	case []any:
		for i := range val {
			val[i] = rewriteFields(val[i], key, repl)
		}
	case string:
		if expressionFields[key] {
			return string(applyAll([]byte(val), repl))
		}
	}

	return v
}

func variableList(d *Dashboard) ([]any, bool) {
	templating, ok := d.Root.Value("templating").(*Object)
	if !ok {
		return nil, false
	}

	list, ok := templating.Value("list").([]any)

	return list, ok
}

// findVariable returns the first template variable called name.
func findVariable(d *Dashboard, name string) *Object {
	list, _ := variableList(d)

	for _, item := range list {
		if obj, ok := item.(*Object); ok && variableName(obj) == name {
			return obj
		}
	}

	return nil
}

func variableName(v *Object) string {
	name, _ := v.Value("name").(string)
	return name
}
