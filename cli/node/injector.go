package node

import (
	"reflect"

	"golang.org/x/xerrors"
)

// reflectInjector is a dependency injector that uses reflection to resolve
// specific interfaces. Dependencies are tried in the order they were injected.
//
// - implements node.Injector
type reflectInjector struct {
	deps []interface{}
}

// NewInjector returns a empty injector.
func NewInjector() Injector {
	return &reflectInjector{}
}

// Resolve implements node.Injector. It populates the given interface with the
// first compatible dependency.
func (inj *reflectInjector) Resolve(v interface{}) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr {
		return xerrors.New("expect a pointer")
	}

	if !rv.Elem().IsValid() {
		return xerrors.Errorf("reflect value '%v' is invalid", rv)
	}

	for _, dep := range inj.deps {
		value := reflect.ValueOf(dep)

		if value.Type().AssignableTo(rv.Elem().Type()) {
			rv.Elem().Set(value)
			return nil
		}
	}

	return xerrors.Errorf("couldn't find dependency for '%v'", rv.Elem().Type())
}

// Inject implements node.Injector. A dependency of the same type replaces the
// previous one.
func (inj *reflectInjector) Inject(v interface{}) {
	for i, dep := range inj.deps {
		if reflect.TypeOf(dep) == reflect.TypeOf(v) {
			inj.deps[i] = v
			return
		}
	}

	inj.deps = append(inj.deps, v)
}

// Resolve returns the dependency of the injector compatible with T.
func Resolve[T any](inj Injector) (T, error) {
	var dep T

	err := inj.Resolve(&dep)
	if err != nil {
		return dep, xerrors.Errorf("injector: %v", err)
	}

	return dep, nil
}
