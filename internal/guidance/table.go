// ABOUTME: Canned guidance table routed by keyword to a topic of scripture passages
// ABOUTME: Loaded from an embedded YAML document; picks one passage per reply
package guidance

import (
	"context"
	_ "embed"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed scriptures.yaml
var scripturesYAML []byte

// DefaultTopic is used when no rule matches a query
const DefaultTopic = "wisdom"

// DefaultSource attributes passages that carry no source of their own
const DefaultSource = "Hindu Scriptures"

// Rule routes queries containing any keyword to a topic
type Rule struct {
	Topic    string   `yaml:"topic"`
	Deity    string   `yaml:"deity"`
	Source   string   `yaml:"source"`
	Keywords []string `yaml:"keywords"`
}

// Passage is one quotable text with a short reflection
type Passage struct {
	Text       string `yaml:"text"`
	Reflection string `yaml:"reflection"`
	Deity      string `yaml:"deity"`
	Source     string `yaml:"source"`
}

// Reply is a rendered answer with its attribution
type Reply struct {
	Text   string `json:"text"`
	Deity  string `json:"deity,omitempty"`
	Source string `json:"source"`
	Topic  string `json:"topic"`
}

// Table is a stateless keyword → passage lookup
type Table struct {
	Rules  []Rule               `yaml:"rules"`
	Topics map[string][]Passage `yaml:"topics"`

	mu  sync.Mutex
	rng *rand.Rand
}

// ParseTable decodes a YAML table and checks that every rule points at a non-empty topic
func ParseTable(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse guidance table: %w", err)
	}
	if len(t.Topics[DefaultTopic]) == 0 {
		return nil, fmt.Errorf("guidance table has no %q passages", DefaultTopic)
	}
	for i, r := range t.Rules {
		if len(t.Topics[r.Topic]) == 0 {
			return nil, fmt.Errorf("rule %d routes to empty topic %q", i, r.Topic)
		}
		for j, kw := range r.Keywords {
			r.Keywords[j] = strings.ToLower(strings.TrimSpace(kw))
		}
	}
	t.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	return &t, nil
}

// DefaultTable returns the embedded scripture table
func DefaultTable() *Table {
	t, err := ParseTable(scripturesYAML)
	if err != nil {
		panic(err)
	}
	return t
}

// Seed makes passage selection deterministic
func (t *Table) Seed(a, b uint64) {
	t.mu.Lock()
	t.rng = rand.New(rand.NewPCG(a, b))
	t.mu.Unlock()
}

// Match returns the first rule whose keyword appears in query
func (t *Table) Match(query string) (Rule, bool) {
	q := strings.ToLower(query)
	for _, r := range t.Rules {
		for _, kw := range r.Keywords {
			if kw != "" && strings.Contains(q, kw) {
				return r, true
			}
		}
	}
	return Rule{}, false
}

// Reply picks a passage for query and renders it
func (t *Table) Reply(query string) Reply {
	rule, ok := t.Match(query)
	topic := DefaultTopic
	if ok {
		topic = rule.Topic
	}
	options := t.Topics[topic]

	t.mu.Lock()
	p := options[t.rng.IntN(len(options))]
	t.mu.Unlock()

	deity := rule.Deity
	if deity == "" {
		deity = p.Deity
	}
	source := rule.Source
	if source == "" {
		source = p.Source
	}
	if source == "" {
		source = DefaultSource
	}

	var b strings.Builder
	if deity != "" {
		b.WriteString(deity)
		b.WriteString(" says: ")
	}
	b.WriteString(`"` + p.Text + `"`)
	if p.Reflection != "" {
		b.WriteString("\n\n")
		b.WriteString(p.Reflection)
	}
	return Reply{Text: b.String(), Deity: deity, Source: source, Topic: topic}
}

// Respond implements the engine's Responder; the table never fails
func (t *Table) Respond(_ context.Context, message string) (string, error) {
	return t.Reply(message).Text, nil
}
