package params

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestDefaultsComplete(t *testing.T) {
	doc, err := Defaults()
	if err != nil {
		t.Fatalf("Defaults failed: %v", err)
	}

	required := []string{
		"PeaktableParameters", "MsmsParameters", "PhenotypeParameters",
		"GroupMetadataParameters", "SpecLibParameters", "MS2QueryResultsParameters",
		"AsResultsParameters", "AdductAnnotationParameters", "NeutralLossParameters",
		"FragmentAnnParameters", "SpecSimNetworkCosineParameters",
		"SpecSimNetworkDeepscoreParameters", "FeatureFilteringParameters",
		"BlankAssignmentParameters", "GroupFactAssignmentParameters",
		"PhenoQualAssgnParameters", "PhenoQuantPercentAssgnParameters",
		"PhenoQuantConcAssgnParameters", "SpectralLibMatchingCosineParameters",
		"SpectralLibMatchingDeepscoreParameters", "AsKcbCosineMatchingParameters",
		"AsKcbDeepscoreMatchingParameters",
	}
	for _, name := range required {
		if _, ok := doc[name]; !ok {
			t.Errorf("Defaults missing module %s", name)
		}
	}
}

func TestDefaultsIndependentCopies(t *testing.T) {
	a, _ := Defaults()
	b, _ := Defaults()

	a["AdductAnnotationParameters"]["mass_dev_ppm"] = 99.0
	if v, _ := b.GetFloat("AdductAnnotationParameters", "mass_dev_ppm"); v == 99.0 {
		t.Error("Mutating one defaults copy leaked into another")
	}
}

func TestClone(t *testing.T) {
	doc, _ := Defaults()
	clone := doc.Clone()

	clone["MsmsParameters"]["rel_int_from"] = 0.5
	if v, _ := doc.GetFloat("MsmsParameters", "rel_int_from"); v == 0.5 {
		t.Error("Clone is not independent of the original")
	}
}

func TestMigrateLegacyKeys(t *testing.T) {
	session := map[string]any{
		"parameters": map[string]any{
			"PhenoQualAssgnParams":      map[string]any{"activate_module": true, "factor": 5.0},
			"AsKcbCosineMatchingParams": map[string]any{"activate_module": false},
			"PeaktableParameters":       map[string]any{"format": "mzmine3"},
		},
	}

	migrated := MigrateLegacyKeys(session)
	parameters := migrated["parameters"].(map[string]any)

	if _, ok := parameters["PhenoQualAssgnParams"]; ok {
		t.Error("Legacy key PhenoQualAssgnParams survived migration")
	}
	if _, ok := parameters["PhenoQualAssgnParameters"]; !ok {
		t.Error("Expected current key PhenoQualAssgnParameters after migration")
	}
	if _, ok := parameters["AsKcbCosineMatchingParameters"]; !ok {
		t.Error("Expected current key AsKcbCosineMatchingParameters after migration")
	}
	if _, ok := parameters["PeaktableParameters"]; !ok {
		t.Error("Non-legacy key must be untouched")
	}
}

func TestMigrateIdempotent(t *testing.T) {
	session := map[string]any{
		"parameters": map[string]any{
			"PhenoQuantConcAssgnParams": map[string]any{"activate_module": true},
		},
	}

	once := MigrateLegacyKeys(session)
	snapshot, _ := json.Marshal(once)

	twice := MigrateLegacyKeys(once)
	again, _ := json.Marshal(twice)

	if string(snapshot) != string(again) {
		t.Errorf("Migration is not idempotent:\nonce:  %s\ntwice: %s", snapshot, again)
	}
}

func TestApplySessionActivatedOverrides(t *testing.T) {
	doc, _ := Defaults()
	session := map[string]any{
		"parameters": map[string]any{
			"BlankAssignmentParameters": map[string]any{
				"activate_module": true,
				"factor":          20.0,
				"algorithm":       "median",
				"value":           "height",
			},
		},
	}

	ApplySession(doc, session)

	if !doc.Activated("BlankAssignmentParameters") {
		t.Error("Activated session module should override defaults")
	}
	if f, _ := doc.GetFloat("BlankAssignmentParameters", "factor"); f != 20.0 {
		t.Errorf("Expected factor=20, got %v", f)
	}
}

func TestApplySessionInactiveMarkedFalse(t *testing.T) {
	doc, _ := Defaults()
	// AdductAnnotation is active in the defaults; an inactive session module
	// must force it off rather than inherit the stale activation.
	session := map[string]any{
		"parameters": map[string]any{
			"AdductAnnotationParameters": map[string]any{"activate_module": false, "mass_dev_ppm": 5.0},
		},
	}

	ApplySession(doc, session)

	m := doc["AdductAnnotationParameters"]
	active, present := m["activate_module"].(bool)
	if !present {
		t.Fatal("activate_module must be explicitly present")
	}
	if active {
		t.Error("Inactive session module must be marked activate_module=false")
	}
	// Default leaf values remain; only the flag is forced.
	if f, _ := doc.GetFloat("AdductAnnotationParameters", "mass_dev_ppm"); f != 10.0 {
		t.Errorf("Inactive module must keep default values, got ppm=%v", f)
	}
}

func TestApplySessionNeverDropsModules(t *testing.T) {
	doc, _ := Defaults()
	before := make([]string, 0, len(doc))
	for name := range doc {
		before = append(before, name)
	}

	session := map[string]any{
		"parameters": map[string]any{
			"UnknownFutureModule": map[string]any{"activate_module": true},
			"MsmsParameters":      map[string]any{"filepath": "/x", "format": "mgf"},
		},
	}
	ApplySession(doc, session)

	for _, name := range before {
		if _, ok := doc[name]; !ok {
			t.Errorf("Module %s was dropped by session merge", name)
		}
	}
	if _, ok := doc["UnknownFutureModule"]; ok {
		t.Error("Unknown session module must not be added")
	}
}

func TestAssembleFloatField(t *testing.T) {
	doc, _ := Defaults()
	form := map[string]string{"FeatureFilteringParametersAreaMin": "0.05"}

	if err := Assemble(doc, form); err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}

	v, ok := doc["FeatureFilteringParameters"]["filter_rel_area_range_min"].(float64)
	if !ok || v != 0.05 {
		t.Errorf("Expected float 0.05, got %v (%T)", doc["FeatureFilteringParameters"]["filter_rel_area_range_min"], doc["FeatureFilteringParameters"]["filter_rel_area_range_min"])
	}
}

func TestAssembleCheckbox(t *testing.T) {
	doc, _ := Defaults()

	if err := Assemble(doc, map[string]string{"BlankAssignmentParametersActivate": "on"}); err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	if !doc.Activated("BlankAssignmentParameters") {
		t.Error("Checkbox value \"on\" must activate the module")
	}

	if err := Assemble(doc, map[string]string{"BlankAssignmentParametersActivate": "off"}); err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	if doc.Activated("BlankAssignmentParameters") {
		t.Error("Any checkbox value other than \"on\" must deactivate the module")
	}
}

func TestAssembleIntFields(t *testing.T) {
	doc, _ := Defaults()
	form := map[string]string{
		"SpecSimNetworkCosineParametersMinNr":     "7",
		"SpectralLibMatchingCosineParametersDiff": "600.0",
	}

	if err := Assemble(doc, form); err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}

	if v, ok := doc["SpecSimNetworkCosineParameters"]["msms_min_frag_nr"].(int); !ok || v != 7 {
		t.Errorf("Expected int 7, got %v", doc["SpecSimNetworkCosineParameters"]["msms_min_frag_nr"])
	}
	if v, ok := doc["SpectralLibMatchingCosineParameters"]["max_precursor_mass_diff"].(int); !ok || v != 600 {
		t.Errorf("Expected int 600 from float input, got %v", doc["SpectralLibMatchingCosineParameters"]["max_precursor_mass_diff"])
	}
}

func TestAssemblePhenotypeQualitative(t *testing.T) {
	doc, _ := Defaults()
	form := map[string]string{"PhenotypeParametersFormat": "qualitative"}

	if err := Assemble(doc, form); err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}

	if got := doc.GetString("PhenotypeParameters", "format"); got != "qualitative" {
		t.Errorf("Expected format=qualitative, got %q", got)
	}
	if !doc.Activated("PhenoQualAssgnParameters") {
		t.Error("qualitative format must activate PhenoQualAssgnParameters")
	}
	if doc.Activated("PhenoQuantPercentAssgnParameters") {
		t.Error("PhenoQuantPercentAssgnParameters must stay inactive")
	}
	if doc.Activated("PhenoQuantConcAssgnParameters") {
		t.Error("PhenoQuantConcAssgnParameters must stay inactive")
	}
}

func TestAssemblePhenotypeFormatRejected(t *testing.T) {
	doc, _ := Defaults()
	err := Assemble(doc, map[string]string{"PhenotypeParametersFormat": "bogus"})

	var asmErr *AssemblyError
	if !errors.As(err, &asmErr) {
		t.Fatalf("Expected AssemblyError, got %v", err)
	}
	if asmErr.Field != "PhenotypeParametersFormat" {
		t.Errorf("Error must name the offending field, got %q", asmErr.Field)
	}
}

func TestAssemblePhenotypeFormatFalseSkipped(t *testing.T) {
	doc, _ := Defaults()
	if err := Assemble(doc, map[string]string{"PhenotypeParametersFormat": "false"}); err != nil {
		t.Fatalf("Literal \"false\" must be skipped, got %v", err)
	}
	if doc.Activated("PhenoQualAssgnParameters") {
		t.Error("No phenotype module may be activated for the literal \"false\"")
	}
}

func TestAssembleBadNumber(t *testing.T) {
	doc, _ := Defaults()
	err := Assemble(doc, map[string]string{"AdductAnnotationParametersPpm": "ten"})

	var asmErr *AssemblyError
	if !errors.As(err, &asmErr) {
		t.Fatalf("Expected AssemblyError, got %v", err)
	}
	if asmErr.Field != "AdductAnnotationParametersPpm" {
		t.Errorf("Error must name the offending field, got %q", asmErr.Field)
	}
}

func TestAssembleUnknownFieldIgnored(t *testing.T) {
	doc, _ := Defaults()
	snapshot := doc.Clone()

	if err := Assemble(doc, map[string]string{"SomeFutureUIField": "whatever"}); err != nil {
		t.Fatalf("Unknown fields must be ignored, got %v", err)
	}
	if !reflect.DeepEqual(doc, snapshot) {
		t.Error("Unknown field must not change the document")
	}
}

func TestAssembleEmptyAntismashJobSkipped(t *testing.T) {
	doc, _ := Defaults()
	if err := Assemble(doc, map[string]string{"AsResultsParametersJob": ""}); err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	if got := doc.GetString("AsResultsParameters", "job_id"); got != "" {
		t.Errorf("Empty job id must stay empty, got %q", got)
	}

	if err := Assemble(doc, map[string]string{"AsResultsParametersJob": "bacteria-abc123"}); err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	if got := doc.GetString("AsResultsParameters", "job_id"); got != "bacteria-abc123" {
		t.Errorf("Expected job id recorded, got %q", got)
	}
}

func TestAssembleKeepsAllModules(t *testing.T) {
	doc, _ := Defaults()
	defaults, _ := Defaults()

	form := map[string]string{
		"PeaktableParametersPolarity":        "negative",
		"FeatureFilteringParametersActivate": "on",
		"BlankAssignmentParametersFactor":    "15",
	}
	if err := Assemble(doc, form); err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}

	for name := range defaults {
		if _, ok := doc[name]; !ok {
			t.Errorf("Module %s missing after assembly", name)
		}
	}
}

func TestSchemaValidator(t *testing.T) {
	v, err := NewSchemaValidator()
	if err != nil {
		t.Fatalf("NewSchemaValidator failed: %v", err)
	}

	valid := map[string]any{
		"parameters": map[string]any{
			"PeaktableParameters": map[string]any{"format": "mzmine3"},
		},
	}
	if err := v.ValidateSession(valid); err != nil {
		t.Errorf("Valid session rejected: %v", err)
	}

	missing := map[string]any{"metadata": map[string]any{}}
	err = v.ValidateSession(missing)
	var schemaErr *SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("Expected SchemaError, got %v", err)
	}
	if !strings.Contains(schemaErr.Error(), "parameters") {
		t.Errorf("Error should mention the missing key, got %q", schemaErr.Error())
	}
	if strings.Contains(schemaErr.Error(), "\n") {
		t.Error("Schema error must be a single line")
	}
}

func TestSchemaValidatorRejectsNonObjectParameters(t *testing.T) {
	v, _ := NewSchemaValidator()
	bad := map[string]any{"parameters": "not an object"}

	var schemaErr *SchemaError
	if err := v.ValidateSession(bad); !errors.As(err, &schemaErr) {
		t.Fatalf("Expected SchemaError, got %v", err)
	}
}

func TestValidateDocument(t *testing.T) {
	v, _ := NewSchemaValidator()
	doc, _ := Defaults()

	if err := v.ValidateDocument(doc); err != nil {
		t.Errorf("Default document rejected by schema: %v", err)
	}
}

