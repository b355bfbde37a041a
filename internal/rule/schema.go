package rule

// FieldDoc documents one condition field for a given match type.
type FieldDoc struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
	Doc  string `json:"doc" yaml:"doc"`
}

// MatchTypeSchema is the authoring reference for one match type:
// which fields it requires, which are optional, and one canonical
// example. This is metadata generation only; it carries no state and
// plays no part in matching.
type MatchTypeSchema struct {
	Type     MatchType  `json:"match_type" yaml:"match_type"`
	Summary  string     `json:"summary" yaml:"summary"`
	Required []FieldDoc `json:"required" yaml:"required"`
	Optional []FieldDoc `json:"optional,omitempty" yaml:"optional,omitempty"`
	Example  string     `json:"example" yaml:"example"`
}

var commonOptional = []FieldDoc{
	{Name: "count", Type: "int", Doc: "how many qualifying actions this step needs before it is satisfied (default 1)"},
	{Name: "within", Type: "window", Doc: `step window, "<K> actions" or a duration like "30s"`},
	{Name: "allowed_roles", Type: "list of string", Doc: "exclusionary gate: actions by these roles never advance the step"},
}

// SchemaReference returns the field reference and canonical example
// for every match type, in taxonomy order.
func SchemaReference() []MatchTypeSchema {
	return []MatchTypeSchema{
		{
			Type:    FieldEquals,
			Summary: "Matches when the named action field equals the given value.",
			Required: []FieldDoc{
				{Name: "field", Type: "string", Doc: "action field: action_type, target, actor_role, or an attributes key"},
				{Name: "value", Type: "string|number|bool", Doc: "value the field must equal"},
			},
			Optional: commonOptional,
			Example: `match_type: field_equals
field: action_type
value: network_request`,
		},
		{
			Type:    FieldMatchesRx,
			Summary: "Matches when the named action field matches a regular expression.",
			Required: []FieldDoc{
				{Name: "field", Type: "string", Doc: "action field to inspect"},
				{Name: "pattern", Type: "string", Doc: "RE2 regular expression"},
			},
			Optional: commonOptional,
			Example: `match_type: field_matches_regex
field: target
pattern: '(?i)(/etc/passwd|\.env|id_rsa)'`,
		},
		{
			Type:    FieldInSet,
			Summary: "Matches when the named action field equals any value in a set.",
			Required: []FieldDoc{
				{Name: "field", Type: "string", Doc: "action field to inspect"},
				{Name: "values", Type: "list of string", Doc: "accepted values"},
			},
			Optional: commonOptional,
			Example: `match_type: field_in_set
field: action_type
values: [file_write, credential_access]`,
		},
		{
			Type:    CountThreshold,
			Summary: "Fires when at least min_count actions matching the predicate occur within the window.",
			Required: []FieldDoc{
				{Name: "field", Type: "string", Doc: "action field the counted predicate inspects"},
				{Name: "value", Type: "string|number|bool", Doc: "value the field must equal for an action to count"},
				{Name: "min_count", Type: "int", Doc: "detections fire when the running count reaches this"},
			},
			Optional: []FieldDoc{
				{Name: "within", Type: "window", Doc: "sliding window the count is scoped to; unbounded when omitted"},
				{Name: "allowed_roles", Type: "list of string", Doc: "actions by these roles are never counted"},
			},
			Example: `match_type: count_threshold
field: action_type
value: file_write
min_count: 3
within: 10 actions`,
		},
		{
			Type:    RoleMismatch,
			Summary: "Matches when an action is performed by a role outside the allowed set.",
			Required: []FieldDoc{
				{Name: "allowed_roles", Type: "list of string", Doc: "roles authorized to perform the action"},
			},
			Optional: []FieldDoc{
				{Name: "action_type", Type: "string", Doc: "restrict the check to one action type"},
				{Name: "count", Type: "int", Doc: "how many mismatched actions the step needs (default 1)"},
				{Name: "within", Type: "window", Doc: `step window, "<K> actions" or a duration`},
			},
			Example: `match_type: role_mismatch
action_type: credential_access
allowed_roles: [credential-agent]`,
		},
	}
}

// SchemaFor returns the reference entry for one match type.
func SchemaFor(t MatchType) (MatchTypeSchema, bool) {
	for _, s := range SchemaReference() {
		if s.Type == t {
			return s, true
		}
	}
	return MatchTypeSchema{}, false
}
