package core

import "k8s.io/apimachinery/pkg/labels"

// SelectorResolver produces the label selector applied to a watch
// subscription. Resolve is called once per (re)connect, so dynamic
// implementations can change the selector between connections. Errors
// propagate to the watch loop and count as a connection failure.
type SelectorResolver interface {
	Resolve() (string, error)
}

// SelectorResolverFunc adapts an ordinary function to the
// SelectorResolver interface.
type SelectorResolverFunc func() (string, error)

func (f SelectorResolverFunc) Resolve() (string, error) {
	return f()
}

// StaticSelector resolves to a fixed selector string. The zero value
// selects everything.
type StaticSelector string

func (s StaticSelector) Resolve() (string, error) {
	return string(s), nil
}

// LabelsSelector resolves a label set to its canonical selector
// string via apimachinery's validated formatting.
type LabelsSelector labels.Set

func (s LabelsSelector) Resolve() (string, error) {
	return labels.SelectorFromValidatedSet(labels.Set(s)).String(), nil
}
