package params

// legacyModuleKeys maps deprecated module names found in old session files to
// their current names.
var legacyModuleKeys = map[string]string{
	"PhenoQualAssgnParams":         "PhenoQualAssgnParameters",
	"PhenoQuantPercentAssgnParams": "PhenoQuantPercentAssgnParameters",
	"PhenoQuantConcAssgnParams":    "PhenoQuantConcAssgnParameters",
	"AsKcbCosineMatchingParams":    "AsKcbCosineMatchingParameters",
	"AsKcbDeepscoreMatchingParams": "AsKcbDeepscoreMatchingParameters",
}

// MigrateLegacyKeys rewrites deprecated module names in the session's
// parameter block to their current names. The rename only fires when the
// legacy key is present, so applying the migration twice is a no-op the
// second time. The session is modified in place and returned for chaining.
func MigrateLegacyKeys(session map[string]any) map[string]any {
	parameters, ok := session["parameters"].(map[string]any)
	if !ok {
		return session
	}

	for legacy, current := range legacyModuleKeys {
		if val, exists := parameters[legacy]; exists {
			parameters[current] = val
			delete(parameters, legacy)
		}
	}

	return session
}
