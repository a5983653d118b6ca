package params

// ApplySession selectively merges the parameters block of a validated,
// migrated session into doc. Only modules that are explicitly activated in
// the session override the defaults wholesale; every other session module is
// marked inactive on the target so a stale activation flag can never survive
// from a differently-sourced document. Module keys present in doc are never
// deleted, and session modules unknown to the defaults are ignored.
func ApplySession(doc Document, session map[string]any) {
	parameters, ok := session["parameters"].(map[string]any)
	if !ok {
		return
	}

	for name, raw := range parameters {
		module, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if _, known := doc[name]; !known {
			continue
		}
		if active, _ := module["activate_module"].(bool); active {
			doc[name] = module
		} else {
			doc[name]["activate_module"] = false
		}
	}
}
