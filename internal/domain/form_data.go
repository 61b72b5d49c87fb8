package domain

import "encoding/json"

// FormData is the submission payload attached to a job. A few fields are
// promoted to typed members so the summary projection can expose them without
// re-parsing; everything else the client sent is preserved in Extra.
type FormData struct {
	ContentType    string
	TargetAudience string
	MainGoals      string

	Extra map[string]json.RawMessage
}

const (
	formFieldContentType    = "contentType"
	formFieldTargetAudience = "targetAudience"
	formFieldMainGoals      = "goals"
)

func (f FormData) MarshalJSON() ([]byte, error) {
	merged := make(map[string]json.RawMessage, len(f.Extra)+3)
	for key, value := range f.Extra {
		merged[key] = append(json.RawMessage(nil), value...)
	}
	if f.ContentType != "" {
		merged[formFieldContentType] = mustEncodeString(f.ContentType)
	}
	if f.TargetAudience != "" {
		merged[formFieldTargetAudience] = mustEncodeString(f.TargetAudience)
	}
	if f.MainGoals != "" {
		merged[formFieldMainGoals] = mustEncodeString(f.MainGoals)
	}
	return json.Marshal(merged)
}

func (f *FormData) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		*f = FormData{}
		return nil
	}

	raw := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	parsed := FormData{Extra: make(map[string]json.RawMessage)}
	for key, value := range raw {
		switch key {
		case formFieldContentType:
			_ = json.Unmarshal(value, &parsed.ContentType)
		case formFieldTargetAudience:
			_ = json.Unmarshal(value, &parsed.TargetAudience)
		case formFieldMainGoals:
			_ = json.Unmarshal(value, &parsed.MainGoals)
		default:
			parsed.Extra[key] = append(json.RawMessage(nil), value...)
		}
	}

	*f = parsed
	return nil
}

func mustEncodeString(value string) json.RawMessage {
	encoded, _ := json.Marshal(value)
	return encoded
}
