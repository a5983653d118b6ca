package params

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/fermo-metabolomics/fermo-srv/internal/config"
)

// ModuleError reports a module configuration that failed validation.
type ModuleError struct {
	Module string
	Err    error
}

func (e *ModuleError) Error() string {
	return fmt.Sprintf("invalid configuration for %s: %v", e.Module, e.Err)
}

func (e *ModuleError) Unwrap() error {
	return e.Err
}

// Enumerated string sets accepted by the analysis engine.
var (
	peaktableFormats = map[string]bool{"mzmine3": true, "mzmine4": true}
	polarities       = map[string]bool{"positive": true, "negative": true}
	msmsFormats      = map[string]bool{"mgf": true}
	phenotypeFormats = map[string]bool{
		"qualitative":               true,
		"quantitative-percentage":   true,
		"quantitative-concentration": true,
	}
	metadataFormats = map[string]bool{"fermo": true}
	speclibFormats  = map[string]bool{"mgf": true}
)

// ModuleValidator performs the cross-field checks that depend on which
// optional modules are active. Limits ride on the injected config.
type ModuleValidator struct {
	cfg *config.Config
}

// NewModuleValidator creates a validator bound to the deployment config.
func NewModuleValidator(cfg *config.Config) *ModuleValidator {
	return &ModuleValidator{cfg: cfg}
}

// Validate checks the assembled document. File-bearing modules are only
// validated when an input file was recorded for them; optional modules only
// when activated. The antiSMASH results module is checked here for its
// cutoff only, since its archives are not downloaded until the job runs.
func (v *ModuleValidator) Validate(doc Document) error {
	if err := v.validatePeaktable(doc); err != nil {
		return err
	}

	fileModules := map[string]map[string]bool{
		"MsmsParameters":            msmsFormats,
		"GroupMetadataParameters":   metadataFormats,
		"SpecLibParameters":         speclibFormats,
		"PhenotypeParameters":       phenotypeFormats,
		"MS2QueryResultsParameters": nil,
	}
	for name, formats := range fileModules {
		if err := validateFileModule(doc, name, formats); err != nil {
			return err
		}
	}

	if doc.GetString("AsResultsParameters", "job_id") != "" {
		if err := validateUnitInterval(doc, "AsResultsParameters", "similarity_cutoff"); err != nil {
			return err
		}
	}

	for _, name := range optionalModules {
		if !doc.Activated(name) {
			continue
		}
		if err := validateActiveModule(doc, name); err != nil {
			return err
		}
	}

	return nil
}

func (v *ModuleValidator) validatePeaktable(doc Document) error {
	path := doc.GetString("PeaktableParameters", "filepath")
	if path == "" {
		return &ModuleError{Module: "PeaktableParameters", Err: fmt.Errorf("no peaktable file provided")}
	}
	if _, err := os.Stat(path); err != nil {
		return &ModuleError{Module: "PeaktableParameters", Err: fmt.Errorf("peaktable file not accessible: %w", err)}
	}
	if format := doc.GetString("PeaktableParameters", "format"); !peaktableFormats[format] {
		return &ModuleError{Module: "PeaktableParameters", Err: fmt.Errorf("unknown peaktable format %q", format)}
	}
	if polarity := doc.GetString("PeaktableParameters", "polarity"); !polarities[polarity] {
		return &ModuleError{Module: "PeaktableParameters", Err: fmt.Errorf("unknown polarity %q", polarity)}
	}

	if v.cfg.Online {
		features, err := countCSVRows(path)
		if err != nil {
			return &ModuleError{Module: "PeaktableParameters", Err: fmt.Errorf("could not read peaktable: %w", err)}
		}
		if features > v.cfg.MaxFeatures {
			return &ModuleError{
				Module: "PeaktableParameters",
				Err: fmt.Errorf(
					"too many features in peaktable (max: %d); please reduce or run in offline mode",
					v.cfg.MaxFeatures,
				),
			}
		}
	}

	return nil
}

// countCSVRows counts data rows (excluding the header) of a CSV file.
func countCSVRows(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	rows := 0
	for {
		_, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
		rows++
	}
	if rows > 0 {
		rows-- // header
	}
	return rows, nil
}

// validateFileModule checks modules whose activation is implied by the
// presence of an uploaded file path.
func validateFileModule(doc Document, name string, formats map[string]bool) error {
	path := doc.GetString(name, "filepath")
	if path == "" {
		path = doc.GetString(name, "dirpath")
	}
	if path == "" {
		return nil
	}

	if _, err := os.Stat(path); err != nil {
		return &ModuleError{Module: name, Err: fmt.Errorf("input file not accessible: %w", err)}
	}
	if formats != nil {
		if format := doc.GetString(name, "format"); !formats[format] {
			return &ModuleError{Module: name, Err: fmt.Errorf("unknown format %q", format)}
		}
	}
	return nil
}

// optionalModules are the activatable modules checked when active.
var optionalModules = []string{
	"AdductAnnotationParameters",
	"NeutralLossParameters",
	"FragmentAnnParameters",
	"SpecSimNetworkCosineParameters",
	"SpecSimNetworkDeepscoreParameters",
	"FeatureFilteringParameters",
	"BlankAssignmentParameters",
	"GroupFactAssignmentParameters",
	"PhenoQualAssgnParameters",
	"PhenoQuantConcAssgnParameters",
	"PhenoQuantPercentAssgnParameters",
	"SpectralLibMatchingCosineParameters",
	"SpectralLibMatchingDeepscoreParameters",
	"AsKcbCosineMatchingParameters",
	"AsKcbDeepscoreMatchingParameters",
}

// validateActiveModule applies per-key sanity rules to an activated module.
// Every known numeric key is range-checked; keys a module does not carry are
// skipped.
func validateActiveModule(doc Document, name string) error {
	module := doc[name]

	positiveFloats := []string{"mass_dev_ppm", "fragment_tol"}
	for _, key := range positiveFloats {
		if raw, ok := module[key]; ok {
			f, ok := doc.GetFloat(name, key)
			if !ok || f <= 0 {
				return &ModuleError{Module: name, Err: fmt.Errorf("%s must be a positive number, got %v", key, raw)}
			}
		}
	}

	unitFloats := []string{"score_cutoff", "p_val_cutoff", "coeff_cutoff",
		"filter_rel_area_range_min", "filter_rel_area_range_max",
		"filter_rel_int_range_min", "filter_rel_int_range_max"}
	for _, key := range unitFloats {
		if _, ok := module[key]; ok {
			if err := validateUnitInterval(doc, name, key); err != nil {
				return err
			}
		}
	}

	positiveInts := []string{"msms_min_frag_nr", "max_nr_links", "factor",
		"min_nr_matched_peaks", "max_precursor_mass_diff"}
	for _, key := range positiveInts {
		if raw, ok := module[key]; ok {
			f, ok := doc.GetFloat(name, key)
			if !ok || f < 1 {
				return &ModuleError{Module: name, Err: fmt.Errorf("%s must be a positive integer, got %v", key, raw)}
			}
		}
	}

	stringKeys := []string{"algorithm", "value", "sample_avg", "fdr_corr"}
	for _, key := range stringKeys {
		if _, ok := module[key]; ok {
			if doc.GetString(name, key) == "" {
				return &ModuleError{Module: name, Err: fmt.Errorf("%s must not be empty", key)}
			}
		}
	}

	// Range pairs must be ordered.
	if _, ok := module["filter_rel_area_range_min"]; ok {
		min, _ := doc.GetFloat(name, "filter_rel_area_range_min")
		max, _ := doc.GetFloat(name, "filter_rel_area_range_max")
		if min > max {
			return &ModuleError{Module: name, Err: fmt.Errorf("relative area range minimum exceeds maximum")}
		}
	}
	if _, ok := module["filter_rel_int_range_min"]; ok {
		min, _ := doc.GetFloat(name, "filter_rel_int_range_min")
		max, _ := doc.GetFloat(name, "filter_rel_int_range_max")
		if min > max {
			return &ModuleError{Module: name, Err: fmt.Errorf("relative intensity range minimum exceeds maximum")}
		}
	}

	return nil
}

func validateUnitInterval(doc Document, module, key string) error {
	f, ok := doc.GetFloat(module, key)
	if !ok || f < 0 || f > 1 {
		return &ModuleError{Module: module, Err: fmt.Errorf("%s must be between 0 and 1", key)}
	}
	return nil
}
