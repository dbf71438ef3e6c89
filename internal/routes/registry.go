package routes

// LoaderFunc produces a feature's child routes on first navigation into the
// feature. The real feature views are pluggable subsystems outside this
// module; the loader is the integration point.
type LoaderFunc func() ([]Route, error)

// FeatureRoute declares a role-gated feature subtree that can be registered
// after login. The user needs ANY of Roles to see the feature.
type FeatureRoute struct {
	Path  string
	Label string
	Icon  string
	Roles []string
	Load  LoaderFunc
}

// Registry is the immutable table of available features. Extending the
// console means appending entries here, not touching guard or router logic.
type Registry []FeatureRoute

// DefaultRegistry returns the built-in feature set.
func DefaultRegistry() Registry {
	return Registry{
		{
			Path:  "orders",
			Label: "Orders",
			Icon:  "📦",
			Roles: []string{"RBOFFORDERS"},
			Load:  featureStub,
		},
		{
			Path:  "payments",
			Label: "Payments",
			Icon:  "💳",
			Roles: []string{"RBOPAYMENT", "RBOPAYMENTVIEW"},
			Load:  featureStub,
		},
		{
			Path:  "messages",
			Label: "Messages",
			Icon:  "✉️",
			Roles: []string{"RBOMESSAGES"},
			Load:  featureStub,
		},
	}
}

// featureStub stands in for a feature's route subtree: a single index view.
func featureStub() ([]Route, error) {
	return []Route{{Path: ""}}, nil
}
