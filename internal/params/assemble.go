package params

import (
	"fmt"
	"strconv"
)

// AssemblyError is a fatal error raised when a submitted form field cannot
// be applied to the parameter document. The whole in-progress document must
// be discarded by the caller.
type AssemblyError struct {
	Field string
	Err   error
}

func (e *AssemblyError) Error() string {
	return fmt.Sprintf("parameter assignment failed for field %q: %v", e.Field, e.Err)
}

func (e *AssemblyError) Unwrap() error {
	return e.Err
}

// coercion describes how a raw form value maps onto a document leaf.
type coercion int

const (
	asString coercion = iota
	asFloat
	asInt
	// asCheckbox treats the literal string "on" as true, anything else
	// as false (HTML checkbox semantics).
	asCheckbox
	// asIntFromFloat parses a float and truncates, for numeric inputs
	// rendered with a decimal step but stored as integers.
	asIntFromFloat
)

// fieldSpec binds one external form field name to exactly one
// (module, leaf key, coercion) triple.
type fieldSpec struct {
	module string
	key    string
	coerce coercion
}

// formFieldTable is the complete mapping of recognized form fields. Adding a
// field to the UI means adding a row here, nothing else. Field names not in
// this table are silently ignored for forward compatibility.
var formFieldTable = map[string]fieldSpec{
	"PeaktableParametersFormat":   {"PeaktableParameters", "format", asString},
	"PeaktableParametersPolarity": {"PeaktableParameters", "polarity", asString},

	"MsmsParametersFormat":       {"MsmsParameters", "format", asString},
	"MsmsParametersFormatRelInt": {"MsmsParameters", "rel_int_from", asFloat},

	"FeatureFilteringParametersActivate": {"FeatureFilteringParameters", "activate_module", asCheckbox},
	"FeatureFilteringParametersAreaMin":  {"FeatureFilteringParameters", "filter_rel_area_range_min", asFloat},
	"FeatureFilteringParametersAreaMax":  {"FeatureFilteringParameters", "filter_rel_area_range_max", asFloat},
	"FeatureFilteringParametersIntMin":   {"FeatureFilteringParameters", "filter_rel_int_range_min", asFloat},
	"FeatureFilteringParametersIntMax":   {"FeatureFilteringParameters", "filter_rel_int_range_max", asFloat},

	"AdductAnnotationParametersActivate": {"AdductAnnotationParameters", "activate_module", asCheckbox},
	"AdductAnnotationParametersPpm":      {"AdductAnnotationParameters", "mass_dev_ppm", asFloat},

	"NeutralLossParametersActivate": {"NeutralLossParameters", "activate_module", asCheckbox},
	"NeutralLossParametersPpm":      {"NeutralLossParameters", "mass_dev_ppm", asFloat},

	"FragmentAnnParametersActivate": {"FragmentAnnParameters", "activate_module", asCheckbox},
	"FragmentAnnParametersPpm":      {"FragmentAnnParameters", "mass_dev_ppm", asFloat},

	"SpecSimNetworkCosineParametersActivate": {"SpecSimNetworkCosineParameters", "activate_module", asCheckbox},
	"SpecSimNetworkCosineParametersMinNr":    {"SpecSimNetworkCosineParameters", "msms_min_frag_nr", asInt},
	"SpecSimNetworkCosineParametersTol":      {"SpecSimNetworkCosineParameters", "fragment_tol", asFloat},
	"SpecSimNetworkCosineParametersScore":    {"SpecSimNetworkCosineParameters", "score_cutoff", asFloat},
	"SpecSimNetworkCosineParametersLinks":    {"SpecSimNetworkCosineParameters", "max_nr_links", asInt},

	"SpecSimNetworkDeepscoreParametersActivate": {"SpecSimNetworkDeepscoreParameters", "activate_module", asCheckbox},
	"SpecSimNetworkDeepscoreParametersMinNr":    {"SpecSimNetworkDeepscoreParameters", "msms_min_frag_nr", asInt},
	"SpecSimNetworkDeepscoreParametersScore":    {"SpecSimNetworkDeepscoreParameters", "score_cutoff", asFloat},
	"SpecSimNetworkDeepscoreParametersLinks":    {"SpecSimNetworkDeepscoreParameters", "max_nr_links", asInt},

	"PhenoQualAssgnParametersFactor":    {"PhenoQualAssgnParameters", "factor", asInt},
	"PhenoQualAssgnParametersAlgorithm": {"PhenoQualAssgnParameters", "algorithm", asString},
	"PhenoQualAssgnParametersValue":     {"PhenoQualAssgnParameters", "value", asString},

	"PhenoQuantPercentAssgnParametersAvg":    {"PhenoQuantPercentAssgnParameters", "sample_avg", asString},
	"PhenoQuantPercentAssgnParametersVal":    {"PhenoQuantPercentAssgnParameters", "value", asString},
	"PhenoQuantPercentAssgnParametersAlg":    {"PhenoQuantPercentAssgnParameters", "algorithm", asString},
	"PhenoQuantPercentAssgnParametersFdrAlg": {"PhenoQuantPercentAssgnParameters", "fdr_corr", asString},
	"PhenoQuantPercentAssgnParametersPVal":   {"PhenoQuantPercentAssgnParameters", "p_val_cutoff", asFloat},
	"PhenoQuantPercentAssgnParametersCoeff":  {"PhenoQuantPercentAssgnParameters", "coeff_cutoff", asFloat},

	"PhenoQuantConcAssgnParametersAvg":    {"PhenoQuantConcAssgnParameters", "sample_avg", asString},
	"PhenoQuantConcAssgnParametersVal":    {"PhenoQuantConcAssgnParameters", "value", asString},
	"PhenoQuantConcAssgnParametersAlg":    {"PhenoQuantConcAssgnParameters", "algorithm", asString},
	"PhenoQuantConcAssgnParametersFdrAlg": {"PhenoQuantConcAssgnParameters", "fdr_corr", asString},
	"PhenoQuantConcAssgnParametersPVal":   {"PhenoQuantConcAssgnParameters", "p_val_cutoff", asFloat},
	"PhenoQuantConcAssgnParametersCoeff":  {"PhenoQuantConcAssgnParameters", "coeff_cutoff", asFloat},

	"GroupMetadataParametersFormat": {"GroupMetadataParameters", "format", asString},

	"GroupFactAssignmentParametersActivate":  {"GroupFactAssignmentParameters", "activate_module", asCheckbox},
	"GroupFactAssignmentParametersAlgorithm": {"GroupFactAssignmentParameters", "algorithm", asString},
	"GroupFactAssignmentParametersValue":     {"GroupFactAssignmentParameters", "value", asString},

	"BlankAssignmentParametersActivate":  {"BlankAssignmentParameters", "activate_module", asCheckbox},
	"BlankAssignmentParametersFactor":    {"BlankAssignmentParameters", "factor", asInt},
	"BlankAssignmentParametersAlgorithm": {"BlankAssignmentParameters", "algorithm", asString},
	"BlankAssignmentParametersValue":     {"BlankAssignmentParameters", "value", asString},

	"SpecLibParametersFormat": {"SpecLibParameters", "format", asString},

	"SpectralLibMatchingCosineParametersActivate":   {"SpectralLibMatchingCosineParameters", "activate_module", asCheckbox},
	"SpectralLibMatchingCosineParametersMinMatched": {"SpectralLibMatchingCosineParameters", "min_nr_matched_peaks", asInt},
	"SpectralLibMatchingCosineParametersTol":        {"SpectralLibMatchingCosineParameters", "fragment_tol", asFloat},
	"SpectralLibMatchingCosineParametersScore":      {"SpectralLibMatchingCosineParameters", "score_cutoff", asFloat},
	"SpectralLibMatchingCosineParametersDiff":       {"SpectralLibMatchingCosineParameters", "max_precursor_mass_diff", asIntFromFloat},

	"SpectralLibMatchingDeepscoreParametersActivate": {"SpectralLibMatchingDeepscoreParameters", "activate_module", asCheckbox},
	"SpectralLibMatchingDeepscoreParametersScore":    {"SpectralLibMatchingDeepscoreParameters", "score_cutoff", asFloat},
	"SpectralLibMatchingDeepscoreParametersDiff":     {"SpectralLibMatchingDeepscoreParameters", "max_precursor_mass_diff", asIntFromFloat},

	"AsResultsParametersCutoff": {"AsResultsParameters", "similarity_cutoff", asFloat},

	"AsKcbCosineMatchingParametersActivate":   {"AsKcbCosineMatchingParameters", "activate_module", asCheckbox},
	"AsKcbCosineMatchingParametersMinMatched": {"AsKcbCosineMatchingParameters", "min_nr_matched_peaks", asInt},
	"AsKcbCosineMatchingParametersTol":        {"AsKcbCosineMatchingParameters", "fragment_tol", asFloat},
	"AsKcbCosineMatchingParametersScore":      {"AsKcbCosineMatchingParameters", "score_cutoff", asFloat},
	"AsKcbCosineMatchingParametersDiff":       {"AsKcbCosineMatchingParameters", "max_precursor_mass_diff", asIntFromFloat},

	"AsKcbDeepscoreMatchingParametersActivate": {"AsKcbDeepscoreMatchingParameters", "activate_module", asCheckbox},
	"AsKcbDeepscoreMatchingParametersScore":    {"AsKcbDeepscoreMatchingParameters", "score_cutoff", asFloat},
	"AsKcbDeepscoreMatchingParametersDiff":     {"AsKcbDeepscoreMatchingParameters", "max_precursor_mass_diff", asIntFromFloat},

	"MS2QueryResultsParametersCutoff": {"MS2QueryResultsParameters", "score_cutoff", asFloat},
}

// Phenotype format values and the assignment module each one activates.
// The three modules are mutually exclusive.
var phenotypeFormatModules = map[string]string{
	"qualitative":               "PhenoQualAssgnParameters",
	"quantitative-percentage":   "PhenoQuantPercentAssgnParameters",
	"quantitative-concentration": "PhenoQuantConcAssgnParameters",
}

// Assemble applies every submitted form field to doc through the static
// field table. The first coercion failure abandons the assembly with an
// AssemblyError naming the offending field; the caller must discard the
// whole document. Unknown field names are ignored.
func Assemble(doc Document, form map[string]string) error {
	for field, raw := range form {
		if err := applyField(doc, field, raw); err != nil {
			return err
		}
	}
	return nil
}

func applyField(doc Document, field, raw string) error {
	// Two fields fall outside the generic table: the phenotype format
	// selector fans out into a module activation, and the antiSMASH job
	// id is only recorded when non-empty.
	switch field {
	case "PhenotypeParametersFormat":
		return applyPhenotypeFormat(doc, raw)
	case "AsResultsParametersJob":
		if raw != "" {
			return doc.Set("AsResultsParameters", "job_id", raw)
		}
		return nil
	}

	spec, ok := formFieldTable[field]
	if !ok {
		return nil
	}

	value, err := coerceValue(spec.coerce, raw)
	if err != nil {
		return &AssemblyError{Field: field, Err: err}
	}
	if err := doc.Set(spec.module, spec.key, value); err != nil {
		return &AssemblyError{Field: field, Err: err}
	}
	return nil
}

// applyPhenotypeFormat sets the phenotype format string and activates the
// matching assignment module. The literal "false" means no phenotype data
// was provided and is skipped.
func applyPhenotypeFormat(doc Document, raw string) error {
	if raw == "false" {
		return nil
	}

	module, ok := phenotypeFormatModules[raw]
	if !ok {
		return &AssemblyError{
			Field: "PhenotypeParametersFormat",
			Err:   fmt.Errorf("phenotype file format %q is not an allowed value", raw),
		}
	}

	if err := doc.Set("PhenotypeParameters", "format", raw); err != nil {
		return &AssemblyError{Field: "PhenotypeParametersFormat", Err: err}
	}
	if err := doc.Set(module, "activate_module", true); err != nil {
		return &AssemblyError{Field: "PhenotypeParametersFormat", Err: err}
	}
	return nil
}

func coerceValue(c coercion, raw string) (any, error) {
	switch c {
	case asString:
		return raw, nil
	case asCheckbox:
		return raw == "on", nil
	case asFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("not a valid number: %q", raw)
		}
		return f, nil
	case asInt:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("not a valid integer: %q", raw)
		}
		return n, nil
	case asIntFromFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("not a valid number: %q", raw)
		}
		return int(f), nil
	}
	return nil, fmt.Errorf("unknown coercion %d", c)
}
