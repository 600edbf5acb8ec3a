package host

import "reflect"

// ImportPath is the path interpreted source uses to import this package.
const ImportPath = "hotswap/pkg/host"

// Symbols exports the package to the interpreter, keyed "importpath/name".
var Symbols = map[string]map[string]reflect.Value{
	ImportPath + "/host": {
		"Vector3":  reflect.ValueOf((*Vector3)(nil)),
		"V3":       reflect.ValueOf(V3),
		"Distance": reflect.ValueOf(Distance),
	},
}
