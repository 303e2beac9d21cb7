package jobspec

import "gopkg.in/yaml.v2"

// rawJobSpec mirrors JobSpec but lets us detect whether "commands" was
// present in the document at all (HasCommands), which yaml.v2 erases by
// default since an absent key and an explicit `commands: []` both
// unmarshal to a nil/empty slice.
type rawJobSpec struct {
	Import   []Import    `yaml:"import"`
	Commands *[]rawNode `yaml:"commands"`
}

// rawNode mirrors CommandNode but with InputSpec swapped for rawInput so
// presence tracking survives the yaml.v2 decode.
type rawNode struct {
	Commands []rawNode `yaml:"commands,omitempty"`
	Cmd      []string  `yaml:"cmd,omitempty"`
	Hit      []string  `yaml:"hit,omitempty"`
	Set      string     `yaml:"set,omitempty"`
	PrependPath string  `yaml:"prepend_path,omitempty"`
	AppendPath  string  `yaml:"append_path,omitempty"`
	PrependFlag string  `yaml:"prepend_flag,omitempty"`
	AppendFlag  string  `yaml:"append_flag,omitempty"`
	Chdir       string  `yaml:"chdir,omitempty"`

	Value       *string `yaml:"value,omitempty"`
	NohashValue *string `yaml:"nohash_value,omitempty"`

	Inputs []rawInput `yaml:"inputs,omitempty"`

	ToVar        string `yaml:"to_var,omitempty"`
	AppendToFile string `yaml:"append_to_file,omitempty"`
}

type rawInput struct {
	Text   *[]string   `yaml:"text,omitempty"`
	String *string     `yaml:"string,omitempty"`
	JSON   interface{} `yaml:"json,omitempty"`
	hasJSONKey bool
}

// UnmarshalYAML intercepts decoding so rawInput can tell "json: null"
// (key present, value null) apart from the key being absent entirely.
func (r *rawInput) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var m map[string]interface{}
	if err := unmarshal(&m); err != nil {
		return err
	}
	if v, ok := m["text"]; ok {
		lines := make([]string, 0, len(v.([]interface{})))
		for _, e := range v.([]interface{}) {
			lines = append(lines, e.(string))
		}
		r.Text = &lines
	}
	if v, ok := m["string"]; ok {
		s, _ := v.(string)
		r.String = &s
	}
	if v, ok := m["json"]; ok {
		r.JSON = v
		r.hasJSONKey = true
	}
	return nil
}

func (r rawInput) toInputSpec() InputSpec {
	spec := InputSpec{JSON: r.JSON}
	if r.Text != nil {
		spec.Text = *r.Text
	}
	spec.String = r.String
	spec.MarkPresence(r.Text != nil, r.String != nil, r.hasJSONKey)
	return spec
}

func (r rawNode) toCommandNode() CommandNode {
	n := CommandNode{
		Cmd: r.Cmd, Hit: r.Hit, Set: r.Set,
		PrependPath: r.PrependPath, AppendPath: r.AppendPath,
		PrependFlag: r.PrependFlag, AppendFlag: r.AppendFlag,
		Chdir: r.Chdir, Value: r.Value, NohashValue: r.NohashValue,
		ToVar: r.ToVar, AppendToFile: r.AppendToFile,
	}
	for _, c := range r.Commands {
		n.Commands = append(n.Commands, c.toCommandNode())
	}
	for _, i := range r.Inputs {
		n.Inputs = append(n.Inputs, i.toInputSpec())
	}
	return n
}

// Load decodes a job-spec document (YAML, a superset of JSON for this
// document shape) into a JobSpec, preserving whether the top-level
// "commands" key was present at all.
func Load(data []byte) (JobSpec, error) {
	var raw rawJobSpec
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return JobSpec{}, invalidf("failed to parse job spec: %s", err)
	}

	spec := JobSpec{Import: raw.Import}
	if raw.Commands != nil {
		spec.HasCommands = true
		for _, n := range *raw.Commands {
			spec.Commands = append(spec.Commands, n.toCommandNode())
		}
	}
	return spec, nil
}
