package jsengine

import (
	"fmt"

	"github.com/dop251/goja"
)

// jsonObject resolves the standard global JSON object. JSONParse and
// JSONStringify below adapt the teacher's free functions (originally
// thin wrappers over V8's JSON::Parse/JSON::Stringify C++ API) onto
// goja, which exposes the same behavior only through that object. They
// are bound to a manipulator so they share the Factory and Runtime
// already resolved for the owner thread.
func (m *manipulator) jsonObject() (*goja.Object, error) {
	global := m.rt.GlobalObject()
	jsonVal := global.Get("JSON")
	obj, ok := jsonVal.(*goja.Object)
	if !ok || obj == nil {
		return nil, fmt.Errorf("jsengine: global JSON object is unavailable")
	}
	return obj, nil
}

// JSONParse parses str and returns it as a Value. A non-string str
// yields a value_exception; malformed input and any other failure of
// JSON.parse yield an execute_exception (terminated_exception if the
// call was interrupted).
func (m *manipulator) JSONParse(str *Value) *Value {
	if str.Type() != TypeString {
		return m.f.FromException(TypeValueException, "Bad argument: JSONParse expects a string")
	}
	jsonObj, err := m.jsonObject()
	if err != nil {
		return m.f.FromException(TypeExecuteException, err.Error())
	}
	parseFn, ok := goja.AssertFunction(jsonObj.Get("parse"))
	if !ok {
		return m.f.FromException(TypeExecuteException, "JSON.parse is not callable")
	}
	result, callErr := parseFn(jsonObj, m.rt.ToValue(str.String()))
	if callErr != nil {
		return m.classifyCallError(callErr)
	}
	v, verr := m.f.FromAny(result)
	if verr != nil {
		return m.f.FromException(TypeExecuteException, verr.Error())
	}
	return v
}

// JSONStringify stringifies val and returns the encoded string as a
// Value. Values that JSON can't represent (functions, symbols, cyclic
// structures) surface as execute_exception, matching the teacher's
// "could not encode Value to JSON" failure mode.
func (m *manipulator) JSONStringify(val *Value) *Value {
	jsonObj, err := m.jsonObject()
	if err != nil {
		return m.f.FromException(TypeExecuteException, err.Error())
	}
	stringifyFn, ok := goja.AssertFunction(jsonObj.Get("stringify"))
	if !ok {
		return m.f.FromException(TypeExecuteException, "JSON.stringify is not callable")
	}
	result, callErr := stringifyFn(jsonObj, toEngineArg(m.rt, val))
	if callErr != nil {
		return m.classifyCallError(callErr)
	}
	if goja.IsUndefined(result) {
		return m.f.FromException(TypeExecuteException, "jsengine: could not encode value to JSON")
	}
	v, verr := m.f.FromAny(result)
	if verr != nil {
		return m.f.FromException(TypeExecuteException, verr.Error())
	}
	return v
}
