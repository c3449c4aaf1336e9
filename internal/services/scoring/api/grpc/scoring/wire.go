package scoring

import (
	"encoding/json"
	"strconv"
	"strings"

	"google.golang.org/protobuf/types/known/structpb"

	apperrors "github.com/louisbranch/questline/internal/platform/errors"
	"github.com/louisbranch/questline/internal/services/scoring/domain/simulation"
	"github.com/louisbranch/questline/internal/services/scoring/domain/strategy"
)

func stringField(in *structpb.Struct, name string) string {
	value, ok := in.GetFields()[name]
	if !ok {
		return ""
	}
	return strings.TrimSpace(value.GetStringValue())
}

func intField(in *structpb.Struct, name string) int {
	value, ok := in.GetFields()[name]
	if !ok {
		return 0
	}
	switch kind := value.GetKind().(type) {
	case *structpb.Value_NumberValue:
		return int(kind.NumberValue)
	case *structpb.Value_StringValue:
		n, _ := strconv.Atoi(strings.TrimSpace(kind.StringValue))
		return n
	default:
		return 0
	}
}

// variablesField reads a flat object of strategy overrides. Numbers and
// booleans are accepted and rendered in their canonical string form.
func variablesField(in *structpb.Struct, name string) map[string]string {
	value, ok := in.GetFields()[name]
	if !ok {
		return nil
	}
	fields := value.GetStructValue().GetFields()
	if len(fields) == 0 {
		return nil
	}
	out := make(map[string]string, len(fields))
	for key, field := range fields {
		switch kind := field.GetKind().(type) {
		case *structpb.Value_StringValue:
			out[key] = strings.TrimSpace(kind.StringValue)
		case *structpb.Value_NumberValue:
			out[key] = strconv.FormatFloat(kind.NumberValue, 'f', -1, 64)
		case *structpb.Value_BoolValue:
			out[key] = strconv.FormatBool(kind.BoolValue)
		}
	}
	return out
}

// payloadField decodes the presented preview: an object holding the
// snapshots array in wire form and the commitment digest.
func payloadField(in *structpb.Struct) (strategy.Payload, error) {
	value, ok := in.GetFields()["payload"]
	if !ok {
		return strategy.Payload{}, nil
	}
	payload := value.GetStructValue()
	if payload == nil {
		return strategy.Payload{}, apperrors.New(apperrors.CodeSnapshotMalformed, "payload must be an object")
	}
	out := strategy.Payload{Commitment: stringField(payload, "commitment")}
	list, ok := payload.GetFields()["snapshots"]
	if !ok {
		return out, nil
	}
	raw, err := list.MarshalJSON()
	if err != nil {
		return strategy.Payload{}, apperrors.Wrap(apperrors.CodeSnapshotMalformed, "encode snapshots", err)
	}
	if err := json.Unmarshal(raw, &out.Snapshots); err != nil {
		if _, ok := apperrors.As(err); ok {
			return strategy.Payload{}, err
		}
		return strategy.Payload{}, apperrors.Wrap(apperrors.CodeSnapshotMalformed, "decode snapshots", err)
	}
	return out, nil
}

// snapshotsValue renders snapshots in their wire form as generic values.
func snapshotsValue(snapshots []simulation.Snapshot) ([]any, error) {
	raw, err := json.Marshal(snapshots)
	if err != nil {
		return nil, err
	}
	var out []any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func breakdownValue(breakdown map[string]int) map[string]any {
	out := make(map[string]any, len(breakdown))
	for name, points := range breakdown {
		out[name] = points
	}
	return out
}

func variablesValue(variables map[string]string) map[string]any {
	out := make(map[string]any, len(variables))
	for name, value := range variables {
		out[name] = value
	}
	return out
}

func descriptorValue(d strategy.Descriptor) map[string]any {
	variables := make([]any, 0, len(d.Variables))
	for _, v := range d.Variables {
		variables = append(variables, map[string]any{
			"name":        v.Name,
			"kind":        string(v.Kind),
			"default":     v.Default,
			"description": v.Description,
		})
	}
	return map[string]any{
		"id":          d.ID,
		"name":        d.Name,
		"description": d.Description,
		"version":     d.Version,
		"fingerprint": d.Fingerprint,
		"variables":   variables,
	}
}
