package clv

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"retail-analytics/models"
)

// ArtifactVersion is bumped whenever the encoded layout changes
const ArtifactVersion = 1

// Artifact is the reusable part of a training run: the scaler, both models
// and the scoring policy
type Artifact struct {
	Version    int
	Scaler     *Scaler
	Regression *LinearModel
	Classifier *LogisticModel
	Config     Config
}

// ArtifactOf extracts the reusable models from a training result
func ArtifactOf(r *Result) *Artifact {
	return &Artifact{
		Version:    ArtifactVersion,
		Scaler:     r.Scaler,
		Regression: r.Regression,
		Classifier: r.Classifier,
		Config:     r.Config,
	}
}

// Score applies the stored models to a new RFM snapshot
func (a *Artifact) Score(rows []models.CustomerRFM) []ScoredCustomer {
	return Score(rows, a.Scaler, a.Regression, a.Classifier, a.Config)
}

// EncodeArtifact serializes the artifact as protobuf Struct wire bytes
func EncodeArtifact(a *Artifact) ([]byte, error) {
	if a == nil || a.Scaler == nil || a.Regression == nil || a.Classifier == nil {
		return nil, models.NewInvalidParameterError("artifact", "incomplete model artifact", nil)
	}

	s, err := structpb.NewStruct(map[string]interface{}{
		"version":  a.Version,
		"features": stringList(FeatureNames),
		"scaler": map[string]interface{}{
			"mean": floatList(a.Scaler.Mean),
			"std":  floatList(a.Scaler.Std),
		},
		"regression": map[string]interface{}{
			"coef": floatList(a.Regression.Coef),
			"bias": a.Regression.Bias,
		},
		"classifier": map[string]interface{}{
			"coef": floatList(a.Classifier.Coef),
			"bias": a.Classifier.Bias,
		},
		"policy": map[string]interface{}{
			"churn_recency_days": a.Config.ChurnRecencyDays,
			"low_risk_below":     a.Config.LowRiskBelow,
			"high_risk_from":     a.Config.HighRiskFrom,
			"tier_low_quantile":  a.Config.TierLowQuantile,
			"tier_high_quantile": a.Config.TierHighQuantile,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("build artifact struct: %w", err)
	}

	return proto.Marshal(s)
}

// DecodeArtifact restores an artifact written by EncodeArtifact
func DecodeArtifact(data []byte) (*Artifact, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal artifact: %w", err)
	}
	root := s.GetFields()

	version := int(root["version"].GetNumberValue())
	if version != ArtifactVersion {
		return nil, models.NewInvalidParameterError("artifact", "unsupported artifact version", version)
	}

	features := root["features"].GetListValue().GetValues()
	if len(features) != len(FeatureNames) {
		return nil, models.NewInvalidParameterError("artifact", "feature layout does not match", len(features))
	}
	for i, f := range features {
		if f.GetStringValue() != FeatureNames[i] {
			return nil, models.NewInvalidParameterError("artifact", "feature order does not match", f.GetStringValue())
		}
	}

	scaler := root["scaler"].GetStructValue().GetFields()
	regression := root["regression"].GetStructValue().GetFields()
	classifier := root["classifier"].GetStructValue().GetFields()
	policy := root["policy"].GetStructValue().GetFields()

	cfg := DefaultConfig()
	cfg.ChurnRecencyDays = int(policy["churn_recency_days"].GetNumberValue())
	cfg.LowRiskBelow = policy["low_risk_below"].GetNumberValue()
	cfg.HighRiskFrom = policy["high_risk_from"].GetNumberValue()
	cfg.TierLowQuantile = policy["tier_low_quantile"].GetNumberValue()
	cfg.TierHighQuantile = policy["tier_high_quantile"].GetNumberValue()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("artifact policy: %w", err)
	}

	a := &Artifact{
		Version: version,
		Scaler: &Scaler{
			Mean: numbers(scaler["mean"]),
			Std:  numbers(scaler["std"]),
		},
		Regression: &LinearModel{
			Coef:         numbers(regression["coef"]),
			Bias:         regression["bias"].GetNumberValue(),
			FeatureNames: append([]string(nil), FeatureNames...),
		},
		Classifier: &LogisticModel{
			Coef:         numbers(classifier["coef"]),
			Bias:         classifier["bias"].GetNumberValue(),
			FeatureNames: append([]string(nil), FeatureNames...),
		},
		Config: cfg,
	}

	dim := len(FeatureNames)
	if len(a.Scaler.Mean) != dim || len(a.Scaler.Std) != dim || len(a.Regression.Coef) != dim || len(a.Classifier.Coef) != dim {
		return nil, models.NewInvalidParameterError("artifact", "coefficient count does not match features", dim)
	}
	return a, nil
}

func floatList(values []float64) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func stringList(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func numbers(v *structpb.Value) []float64 {
	list := v.GetListValue().GetValues()
	out := make([]float64, len(list))
	for i, item := range list {
		out[i] = item.GetNumberValue()
	}
	return out
}
