package schemas

// -- Target Mapping Schemas --

// TargetMapping binds a human-readable target label to a selector.
type TargetMapping struct {
	TargetText string `json:"target_text" yaml:"target_text"`
	Selector   string `json:"selector" yaml:"selector"`
}

// MappingDocument is the wire format served by external mapping sources.
type MappingDocument struct {
	Mappings []TargetMapping `json:"mappings" yaml:"mappings"`
}
