package vm

import "github.com/xirelogy/go-lisp/internal/value"

// Call invokes the procedure bound to the global name with args.
func (vm *VM) Call(name string, args []value.Value) (value.Value, error) {
	callee, ok := vm.globals.Lookup(name)
	if !ok {
		return vm.fail(vm.errorf(nil, "undefined variable '%s'", name))
	}
	return vm.CallValue(callee, args)
}

// CallValue invokes callee with args on a fresh stack. A closure callee
// becomes the outermost frame.
func (vm *VM) CallValue(callee value.Value, args []value.Value) (value.Value, error) {
	vm.ResetState()
	vm.peakStack, vm.peakFrames = 0, 0
	vm.push(callee)
	for _, a := range args {
		vm.push(a)
	}
	if err := vm.callValue(len(args)); err != nil {
		return vm.fail(vm.wrapError(nil, err))
	}
	if len(vm.frames) == 0 {
		result := vm.pop()
		vm.ResetState()
		return result, nil
	}
	val, err := vm.run()
	if err != nil {
		return vm.fail(err)
	}
	return val, nil
}
