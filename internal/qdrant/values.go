package qdrant

import (
	"fmt"
	"strconv"

	"github.com/qdrant/go-client/qdrant"
)

func convertToQdrantPoint(p *Point) (*qdrant.PointStruct, error) {
	payload, err := convertToQdrantPayload(p.Payload)
	if err != nil {
		return nil, fmt.Errorf("point %s: %w", p.ID, err)
	}
	return &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(p.ID),
		Vectors: qdrant.NewVectors(p.Vector...),
		Payload: payload,
	}, nil
}

func convertToQdrantPayload(payload map[string]interface{}) (map[string]*qdrant.Value, error) {
	out := make(map[string]*qdrant.Value, len(payload))
	for k, v := range payload {
		val, err := convertToQdrantValue(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		out[k] = val
	}
	return out, nil
}

// convertToQdrantValue handles the typed slices and maps payload encoders
// produce, then defers to qdrant.NewValue for scalars.
func convertToQdrantValue(v interface{}) (*qdrant.Value, error) {
	switch val := v.(type) {
	case []string:
		list := make([]*qdrant.Value, len(val))
		for i, s := range val {
			list[i] = qdrant.NewValueString(s)
		}
		return qdrant.NewValueFromList(list...), nil
	case []int:
		list := make([]*qdrant.Value, len(val))
		for i, n := range val {
			list[i] = qdrant.NewValueInt(int64(n))
		}
		return qdrant.NewValueFromList(list...), nil
	case []interface{}:
		list := make([]*qdrant.Value, len(val))
		for i, item := range val {
			conv, err := convertToQdrantValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = conv
		}
		return qdrant.NewValueFromList(list...), nil
	case []map[string]interface{}:
		list := make([]*qdrant.Value, len(val))
		for i, item := range val {
			conv, err := convertToQdrantValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = conv
		}
		return qdrant.NewValueFromList(list...), nil
	case map[string]interface{}:
		fields, err := convertToQdrantPayload(val)
		if err != nil {
			return nil, err
		}
		return qdrant.NewValueFromFields(fields), nil
	default:
		out, err := qdrant.NewValue(val)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return out, nil
	}
}

func convertFromQdrantScoredPoint(p *qdrant.ScoredPoint) *ScoredPoint {
	return &ScoredPoint{
		Point: Point{
			ID:      extractPointID(p.Id),
			Vector:  extractVectorOutput(p.Vectors),
			Payload: extractPayload(p.Payload),
		},
		Score: p.Score,
	}
}

func convertFromQdrantRetrievedPoint(p *qdrant.RetrievedPoint) *Point {
	return &Point{
		ID:      extractPointID(p.Id),
		Vector:  extractVectorOutput(p.Vectors),
		Payload: extractPayload(p.Payload),
	}
}

func extractPointID(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if uuid := id.GetUuid(); uuid != "" {
		return uuid
	}
	return strconv.FormatUint(id.GetNum(), 10)
}

func extractVectorOutput(vectors *qdrant.VectorsOutput) []float32 {
	if vectors == nil {
		return nil
	}
	if vec := vectors.GetVector(); vec != nil {
		if dense := vec.GetDense(); dense != nil {
			return dense.GetData()
		}
	}
	return nil
}

func extractPayload(payload map[string]*qdrant.Value) map[string]interface{} {
	if payload == nil {
		return nil
	}
	result := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		result[k] = extractValue(v)
	}
	return result
}

// extractValue returns int64, float64, string, bool, nil,
// map[string]interface{} or []interface{}.
func extractValue(v *qdrant.Value) interface{} {
	if v == nil {
		return nil
	}
	switch val := v.Kind.(type) {
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	case *qdrant.Value_StructValue:
		return extractPayload(val.StructValue.GetFields())
	case *qdrant.Value_ListValue:
		items := val.ListValue.GetValues()
		list := make([]interface{}, len(items))
		for i, item := range items {
			list[i] = extractValue(item)
		}
		return list
	default:
		return nil
	}
}
