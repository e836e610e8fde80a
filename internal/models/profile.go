package models

// Profile is a named, reusable set of analysis settings loaded from YAML.
type Profile struct {
	Name         string `yaml:"name"`
	Description  string `yaml:"description"`
	PValueTable  string `yaml:"pvalue_table"`
	Threshold    any    `yaml:"t,omitempty"`
	Binary       string `yaml:"binary,omitempty"`
	OutputPrefix string `yaml:"output_prefix,omitempty"`
	Filter       string `yaml:"filter,omitempty"`
}
