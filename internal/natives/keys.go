// Keys installation: a global map of key-name to numeric scancode, grounded
// in _examples/original_source/pi_vm.c's define_keys() (A-Z, 0-9, plus a
// table of named special keys). The original builds these from SDL_Scancode
// constants; SDL/screen support is out of scope here (spec.md's Non-goals),
// so the codes below are placeholder sequential values preserving only the
// name set and relative ordering, not real SDL_Scancode numbers.
package natives

import (
	"piscript/internal/hashmap"
	"piscript/internal/value"
	"piscript/internal/vm"
)

var specialKeys = []string{
	"SPACE", "ENTER", "ESC",
	"UP", "DOWN", "LEFT", "RIGHT",
	"LSHIFT", "RSHIFT", "LCTRL", "RCTRL", "LALT", "RALT",
}

// RegisterKeys installs the Keys global: a map from key name to a placeholder
// numeric code, for scripts that reference keyboard input symbolically
// without this VM providing real input handling.
func RegisterKeys(v *vm.VM) {
	table := hashmap.New[value.Value]()

	code := 0
	for c := 'A'; c <= 'Z'; c++ {
		table.Put(string(c), value.Num(float64(code)))
		code++
	}
	for c := '0'; c <= '9'; c++ {
		table.Put(string(c), value.Num(float64(code)))
		code++
	}
	for _, name := range specialKeys {
		table.Put(name, value.Num(float64(code)))
		code++
	}

	keysObj := v.Track(value.NewMap(table))
	v.DefineGlobal("Keys", value.Obj(keysObj))
}
