// Package program loads program descriptions, the declared types with
// their members and interop configuration, from YAML or TOML files.
package program

// Document is the on-disk shape of a program description.
type Document struct {
	Assembly string    `yaml:"assembly" toml:"assembly"`
	Types    []TypeDoc `yaml:"types" toml:"types"`
}

// TypeDoc describes one declared type.
type TypeDoc struct {
	Name                string      `yaml:"name" toml:"name"`
	Style               string      `yaml:"style" toml:"style"`
	Assembly            string      `yaml:"assembly" toml:"assembly"`
	Base                string      `yaml:"base" toml:"base"`
	State               string      `yaml:"state" toml:"state"`
	DefaultKey          string      `yaml:"default_key" toml:"default_key"`
	Classifier          string      `yaml:"classifier" toml:"classifier"`
	Interfaces          []string    `yaml:"interfaces" toml:"interfaces"`
	Members             []MemberDoc `yaml:"members" toml:"members"`
	GenericArity        int         `yaml:"generic_arity" toml:"generic_arity"`
	Sealed              bool        `yaml:"sealed" toml:"sealed"`
	Abstract            bool        `yaml:"abstract" toml:"abstract"`
	UndefinedIsDistinct bool        `yaml:"undefined_is_distinct" toml:"undefined_is_distinct"`
	RuntimePrimitive    bool        `yaml:"runtime_primitive" toml:"runtime_primitive"`
}

// MemberDoc describes one member of a declared type.
type MemberDoc struct {
	Name       string     `yaml:"name" toml:"name"`
	Kind       string     `yaml:"kind" toml:"kind"`
	Type       string     `yaml:"type" toml:"type"`
	Import     string     `yaml:"import" toml:"import"`
	Export     string     `yaml:"export" toml:"export"`
	Binding    string     `yaml:"binding" toml:"binding"`
	Inline     string     `yaml:"inline" toml:"inline"`
	Params     []ParamDoc `yaml:"params" toml:"params"`
	Implements []string   `yaml:"implements" toml:"implements"`
	BodySize   int        `yaml:"body_size" toml:"body_size"`
	Static     bool       `yaml:"static" toml:"static"`
	Public     bool       `yaml:"public" toml:"public"`
	Virtual    bool       `yaml:"virtual" toml:"virtual"`
	Abstract   bool       `yaml:"abstract" toml:"abstract"`
	Override   bool       `yaml:"override" toml:"override"`
	Key        bool       `yaml:"key" toml:"key"`
}

// ParamDoc describes one parameter.
type ParamDoc struct {
	Name string `yaml:"name" toml:"name"`
	Type string `yaml:"type" toml:"type"`
}
