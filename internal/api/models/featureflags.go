package models

// FeatureFlag is one runtime tunable. UpdatedAt is absent for built-in
// defaults that were never overridden.
type FeatureFlag struct {
	Key       string     `json:"key"`
	Value     any        `json:"value"`
	UpdatedAt *Timestamp `json:"updatedAt,omitempty"`
}

// FeatureFlags is the list of all flags.
type FeatureFlags struct {
	Flags []FeatureFlag `json:"flags"`
}

// UpsertFeatureFlagsRequest is the request body for PUT /v1/admin/feature-flags.
type UpsertFeatureFlagsRequest struct {
	Flags map[string]any `json:"flags" validate:"required,min=1"`
}
