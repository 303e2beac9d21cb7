// Package jobspec holds the data model of the job specification: the
// document shape, its canonicalization, and the environment map the
// interpreter threads through the command tree.
package jobspec

import "fmt"

// JobSpec is the immutable document driving a run: an ordered list of
// artifact imports and a tree of command nodes.
type JobSpec struct {
	Import   []Import      `yaml:"import" json:"import"`
	Commands []CommandNode `yaml:"commands" json:"commands"`
	// HasCommands distinguishes an explicit empty `commands: []` from an
	// absent key. Both canonicalize to an empty slice and run the same way
	// (imports are still resolved); the flag only records which form the
	// document used.
	HasCommands bool `yaml:"-" json:"-"`
}

// Import describes one entry of the job spec's `import` list.
type Import struct {
	ID string `yaml:"id" json:"id"`
	// Ref is nil when absent (import but bind no env vars). A present but
	// empty string is rejected by Canonicalize.
	Ref *string `yaml:"ref,omitempty" json:"ref,omitempty"`
}

// CommandNodeKind identifies which of the mutually-exclusive kind keys a
// CommandNode carries.
type CommandNodeKind int

const (
	KindNone CommandNodeKind = iota
	KindCommands
	KindCmd
	KindHit
	KindSet
	KindPrependPath
	KindAppendPath
	KindPrependFlag
	KindAppendFlag
	KindChdir
)

func (k CommandNodeKind) String() string {
	switch k {
	case KindCommands:
		return "commands"
	case KindCmd:
		return "cmd"
	case KindHit:
		return "hit"
	case KindSet:
		return "set"
	case KindPrependPath:
		return "prepend_path"
	case KindAppendPath:
		return "append_path"
	case KindPrependFlag:
		return "prepend_flag"
	case KindAppendFlag:
		return "append_flag"
	case KindChdir:
		return "chdir"
	default:
		return "none"
	}
}

// CommandNode is one entry in a command list. Exactly one kind key may be
// present; see CommandNode.Kind.
type CommandNode struct {
	Commands []CommandNode `yaml:"commands,omitempty" json:"commands,omitempty"`
	Cmd      []string      `yaml:"cmd,omitempty" json:"cmd,omitempty"`
	Hit      []string      `yaml:"hit,omitempty" json:"hit,omitempty"`
	Set      string        `yaml:"set,omitempty" json:"set,omitempty"`
	PrependPath string     `yaml:"prepend_path,omitempty" json:"prepend_path,omitempty"`
	AppendPath  string     `yaml:"append_path,omitempty" json:"append_path,omitempty"`
	PrependFlag string     `yaml:"prepend_flag,omitempty" json:"prepend_flag,omitempty"`
	AppendFlag  string     `yaml:"append_flag,omitempty" json:"append_flag,omitempty"`
	Chdir       string     `yaml:"chdir,omitempty" json:"chdir,omitempty"`

	// Value/NohashValue are the env-mod kinds' operand. NohashValue wins
	// over Value when both are present.
	Value       *string `yaml:"value,omitempty" json:"value,omitempty"`
	NohashValue *string `yaml:"nohash_value,omitempty" json:"nohash_value,omitempty"`

	Inputs []InputSpec `yaml:"inputs,omitempty" json:"inputs,omitempty"`

	ToVar        string `yaml:"to_var,omitempty" json:"to_var,omitempty"`
	AppendToFile string `yaml:"append_to_file,omitempty" json:"append_to_file,omitempty"`
}

// InputSpec carries exactly one of Text, String, JSON; see InputSpec.Kind.
type InputSpec struct {
	Text   []string    `yaml:"text,omitempty" json:"text,omitempty"`
	String *string     `yaml:"string,omitempty" json:"string,omitempty"`
	JSON   interface{} `yaml:"json,omitempty" json:"json,omitempty"`

	// hasText/hasString/hasJSON distinguish "present but zero value" from
	// "absent", the way HasCommands does for JobSpec. Populated by the
	// loader; callers constructing InputSpec programmatically should set
	// these explicitly (see NewTextInput et al).
	hasText   bool
	hasString bool
	hasJSON   bool
}

// NewTextInput builds an InputSpec carrying a `text` payload.
func NewTextInput(lines []string) InputSpec {
	return InputSpec{Text: lines, hasText: true}
}

// NewStringInput builds an InputSpec carrying a `string` payload.
func NewStringInput(s string) InputSpec {
	return InputSpec{String: &s, hasString: true}
}

// NewJSONInput builds an InputSpec carrying a `json` payload.
func NewJSONInput(doc interface{}) InputSpec {
	return InputSpec{JSON: doc, hasJSON: true}
}

// MarkPresence must be called after unmarshaling an InputSpec from YAML/JSON
// so Kind can tell "key present with zero value" from "key absent"; the
// loader calls this once per decoded InputSpec.
func (i *InputSpec) MarkPresence(hasText, hasString, hasJSON bool) {
	i.hasText, i.hasString, i.hasJSON = hasText, hasString, hasJSON
}

// Kind reports which of text/string/json is populated, and fails if it's
// not exactly one.
func (i InputSpec) Kind() (string, error) {
	n := 0
	kind := ""
	if i.hasText {
		n++
		kind = "text"
	}
	if i.hasString {
		n++
		kind = "string"
	}
	if i.hasJSON {
		n++
		kind = "json"
	}
	if n != 1 {
		return "", invalidf("input entry must have exactly one of 'text', 'string', 'json', got %d", n)
	}
	return kind, nil
}

// Kind returns the single populated kind key of the node, or KindNone if
// the node is empty. An InvalidJobSpecError is returned if more than one
// kind key is present.
func (n CommandNode) Kind() (CommandNodeKind, error) {
	type candidate struct {
		kind    CommandNodeKind
		present bool
	}
	candidates := []candidate{
		{KindCommands, n.Commands != nil},
		{KindCmd, n.Cmd != nil},
		{KindHit, n.Hit != nil},
		{KindSet, n.Set != ""},
		{KindPrependPath, n.PrependPath != ""},
		{KindAppendPath, n.AppendPath != ""},
		{KindPrependFlag, n.PrependFlag != ""},
		{KindAppendFlag, n.AppendFlag != ""},
		{KindChdir, n.Chdir != ""},
	}
	found := KindNone
	count := 0
	for _, c := range candidates {
		if c.present {
			count++
			found = c.kind
		}
	}
	switch count {
	case 0:
		if n.isEmpty() {
			return KindNone, nil
		}
		return KindNone, invalidf("node must be empty or have exactly one of the kind keys, got foreign keys with none set")
	case 1:
		return found, nil
	default:
		return KindNone, invalidf("node has more than one kind key present (%d)", count)
	}
}

func (n CommandNode) isEmpty() bool {
	return n.ToVar == "" && n.AppendToFile == "" && len(n.Inputs) == 0 &&
		n.Value == nil && n.NohashValue == nil
}

// Validate checks the cross-field rules: to_var and append_to_file
// are mutually exclusive; neither is allowed with commands; inputs is
// not allowed with commands.
func (n CommandNode) Validate() error {
	kind, err := n.Kind()
	if err != nil {
		return err
	}
	if n.ToVar != "" && n.AppendToFile != "" {
		return invalidf("to_var and append_to_file are mutually exclusive")
	}
	if kind == KindCommands {
		if n.ToVar != "" || n.AppendToFile != "" {
			return invalidf("commands is not compatible with to_var or append_to_file")
		}
		if len(n.Inputs) != 0 {
			return invalidf("commands is not compatible with inputs")
		}
	}
	if (n.ToVar != "" || n.AppendToFile != "") && kind != KindCmd && kind != KindHit {
		return invalidf("to_var/append_to_file are only allowed on cmd/hit nodes")
	}
	if len(n.Inputs) != 0 && kind != KindCmd && kind != KindHit {
		return invalidf("inputs is only allowed on cmd/hit nodes")
	}
	return nil
}

// ResolveValue returns the node's env-mod operand, preferring NohashValue
// over Value.
func (n CommandNode) ResolveValue() (string, error) {
	if n.NohashValue != nil {
		return *n.NohashValue, nil
	}
	if n.Value != nil {
		return *n.Value, nil
	}
	return "", invalidf("set/prepend/append node is missing a value")
}

// Env is an ordered mapping from identifier to textual value, copy-on-scope
// across nested command list boundaries.
type Env struct {
	keys   []string
	values map[string]string
}

// NewEnv builds an empty Env.
func NewEnv() *Env {
	return &Env{values: map[string]string{}}
}

// Copy returns an independent copy; mutating the copy never affects the
// original.
func (e *Env) Copy() *Env {
	cp := &Env{
		keys:   append([]string(nil), e.keys...),
		values: make(map[string]string, len(e.values)),
	}
	for k, v := range e.values {
		cp.values[k] = v
	}
	return cp
}

// Get returns the value bound to key and whether it was present.
func (e *Env) Get(key string) (string, bool) {
	v, ok := e.values[key]
	return v, ok
}

// Set binds key to value, preserving first-insertion order for iteration.
func (e *Env) Set(key, value string) {
	if _, ok := e.values[key]; !ok {
		e.keys = append(e.keys, key)
	}
	e.values[key] = value
}

// Keys returns the bound keys in insertion order.
func (e *Env) Keys() []string {
	return append([]string(nil), e.keys...)
}

// Map returns a copy of the bindings as a plain map, for handing to
// exec.Cmd.Env construction or serialization.
func (e *Env) Map() map[string]string {
	m := make(map[string]string, len(e.values))
	for k, v := range e.values {
		m[k] = v
	}
	return m
}

// Environ renders the env as a `KEY=VALUE` slice in insertion order,
// suitable for exec.Cmd.Env (which fully replaces the host environment).
func (e *Env) Environ() []string {
	out := make([]string, 0, len(e.keys))
	for _, k := range e.keys {
		out = append(out, fmt.Sprintf("%s=%s", k, e.values[k]))
	}
	return out
}

// NodePos is a node's path in the command tree, used to generate
// collision-free temp filenames.
type NodePos []int

// Child returns the position of the i'th child of this node.
func (p NodePos) Child(i int) NodePos {
	return append(append(NodePos(nil), p...), i)
}

func (p NodePos) String() string {
	s := ""
	for i, v := range p {
		if i > 0 {
			s += "_"
		}
		s += fmt.Sprintf("%d", v)
	}
	return s
}
