package interpreter

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/afero"

	"github.com/thewtex/hashdist/pkg/jobspec"
	"github.com/thewtex/hashdist/pkg/tempdir"
)

// materializeInputs implements the inputs materializer:
// each entry is persisted under the run TempDir as
// "<pos>_in<k>[.json]" and exposed to nodeEnv (the node's local scope
// only) as the binding "in<k>".
func materializeInputs(td *tempdir.TempDir, inputs []jobspec.InputSpec, nodeEnv *jobspec.Env, pos jobspec.NodePos) error {
	for k, input := range inputs {
		kind, err := input.Kind()
		if err != nil {
			return err
		}

		name := fmt.Sprintf("%s_in%d", pos.String(), k)
		var payload []byte
		switch kind {
		case "text":
			for i, line := range input.Text {
				if i > 0 {
					payload = append(payload, '\n')
				}
				payload = append(payload, line...)
			}
		case "string":
			payload = []byte(*input.String)
		case "json":
			name += ".json"
			payload, err = json.MarshalIndent(input.JSON, "", "    ")
			if err != nil {
				return fmt.Errorf("failed to encode json input %d: %w", k, err)
			}
		}

		path := td.Path + "/" + name
		if err := afero.WriteFile(td.Fs, path, payload, 0644); err != nil {
			return fmt.Errorf("failed to materialize input %d: %w", k, err)
		}
		nodeEnv.Set(fmt.Sprintf("in%d", k), path)
	}
	return nil
}
