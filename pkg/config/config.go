// Package config parses and validates the configuration document the
// benchmarking harness passes to every algorithm run.
//
// The harness contract is a single JSON object (inline on the command line or
// in a file); files ending in .yaml or .yml are accepted as YAML and decoded
// through the same strict schema. Unknown fields anywhere in the document are
// a configuration error rather than being silently dropped.
package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hed1ad/tsguard/pkg/errors"
)

// ExecutionType selects between the two phases of the harness contract.
type ExecutionType string

// The two recognized execution types. Anything else is a fatal
// configuration error before any data is touched.
const (
	Train   ExecutionType = "train"
	Execute ExecutionType = "execute"
)

// Params is implemented by each algorithm's customParameters struct. Values
// arrive pre-populated with the algorithm's defaults; fields present in the
// document override them and Validate runs on the result.
type Params interface {
	Validate() error
}

// Args is the top-level configuration document shared by all algorithms.
type Args struct {
	ExecutionType ExecutionType `json:"executionType"`
	DataInput     string        `json:"dataInput"`
	DataOutput    string        `json:"dataOutput"`
	ModelInput    string        `json:"modelInput"`
	ModelOutput   string        `json:"modelOutput"`
	RunDatabase   string        `json:"runDatabase"`

	// Params holds the algorithm's decoded customParameters.
	Params Params `json:"-"`
}

// shadow mirrors Args for decoding, deferring customParameters so the
// algorithm-specific struct can be decoded strictly in a second pass.
type shadow struct {
	ExecutionType    ExecutionType   `json:"executionType"`
	DataInput        string          `json:"dataInput"`
	DataOutput       string          `json:"dataOutput"`
	ModelInput       string          `json:"modelInput"`
	ModelOutput      string          `json:"modelOutput"`
	RunDatabase      string          `json:"runDatabase"`
	CustomParameters json.RawMessage `json:"customParameters"`
}

// Load reads source and decodes it into an Args whose Params field is the
// provided params value. source is either an inline JSON object or a path to
// a JSON or YAML file.
func Load(source string, params Params) (*Args, error) {
	raw, err := read(source)
	if err != nil {
		return nil, err
	}

	var sh shadow
	if err := decodeStrict(raw, &sh); err != nil {
		return nil, errors.Configurationf("malformed configuration: %v", err)
	}

	if len(sh.CustomParameters) > 0 {
		if err := decodeStrict(sh.CustomParameters, params); err != nil {
			return nil, errors.Configurationf("malformed customParameters: %v", err)
		}
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	args := &Args{
		ExecutionType: sh.ExecutionType,
		DataInput:     sh.DataInput,
		DataOutput:    sh.DataOutput,
		ModelInput:    sh.ModelInput,
		ModelOutput:   sh.ModelOutput,
		RunDatabase:   sh.RunDatabase,
		Params:        params,
	}
	if err := args.Validate(); err != nil {
		return nil, err
	}
	return args, nil
}

// Validate checks the top-level document for the chosen execution type.
func (a *Args) Validate() error {
	if a.DataInput == "" {
		return errors.Configurationf("dataInput is required")
	}
	switch a.ExecutionType {
	case Train:
		if a.ModelOutput == "" {
			return errors.Configurationf("modelOutput is required for train runs")
		}
	case Execute:
		if a.ModelInput == "" {
			return errors.Configurationf("modelInput is required for execute runs")
		}
		if a.DataOutput == "" {
			return errors.Configurationf("dataOutput is required for execute runs")
		}
	default:
		return errors.Configurationf("unknown executionType %q; expected %q or %q",
			a.ExecutionType, Train, Execute)
	}
	return nil
}

// read returns the configuration document as JSON bytes. Inline JSON is
// recognized by a leading brace; otherwise source is a file path whose
// extension picks the codec (.yaml/.yml convert to JSON before decoding).
func read(source string) ([]byte, error) {
	if strings.HasPrefix(strings.TrimSpace(source), "{") {
		return []byte(source), nil
	}

	data, err := os.ReadFile(source)
	if err != nil {
		return nil, errors.Configurationf("reading config %s: %v", source, err)
	}

	switch strings.ToLower(filepath.Ext(source)) {
	case ".yaml", ".yml":
		return yamlToJSON(data)
	default:
		return data, nil
	}
}

// yamlToJSON re-encodes a YAML document as JSON so both formats flow through
// one strict decoder.
func yamlToJSON(data []byte) ([]byte, error) {
	var doc map[string]interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Configurationf("malformed YAML configuration: %v", err)
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.Configurationf("converting YAML configuration: %v", err)
	}
	return out, nil
}

// decodeStrict unmarshals JSON into v, rejecting unknown fields and trailing
// content.
func decodeStrict(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected trailing content")
	}
	return nil
}

// Echo returns the resolved configuration as loggable fields; runs echo their
// config at startup so the harness logs attribute each artifact to its run.
func (a *Args) Echo() map[string]interface{} {
	return map[string]interface{}{
		"executionType":    a.ExecutionType,
		"dataInput":        a.DataInput,
		"dataOutput":       a.DataOutput,
		"modelInput":       a.ModelInput,
		"modelOutput":      a.ModelOutput,
		"runDatabase":      a.RunDatabase,
		"customParameters": a.Params,
	}
}
