// Package authz contains the pure access-policy checks shared by the route
// guards and the dynamic router.
package authz

// SatisfiesAny reports whether have contains at least one element of
// required. An empty requirement is always satisfied.
func SatisfiesAny(have, required []string) bool {
	if len(required) == 0 {
		return true
	}
	for _, r := range required {
		if contains(have, r) {
			return true
		}
	}
	return false
}

// SatisfiesAll reports whether have contains every element of required.
// An empty requirement is always satisfied.
func SatisfiesAll(have, required []string) bool {
	for _, r := range required {
		if !contains(have, r) {
			return false
		}
	}
	return true
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
