package vm

import "github.com/xirelogy/go-lisp/internal/value"

// captureUpvalue returns the open cell for stack slot, creating one if no
// closure has captured the slot yet.
func (vm *VM) captureUpvalue(slot int) value.Ref {
	i := 0
	for ; i < len(vm.openUpvalues); i++ {
		uv := vm.heap.Upvalue(vm.openUpvalues[i])
		if uv.Slot == slot {
			return vm.openUpvalues[i]
		}
		if uv.Slot > slot {
			break
		}
	}
	ref := vm.heap.NewUpvalue(slot)
	vm.openUpvalues = append(vm.openUpvalues, value.Ref{})
	copy(vm.openUpvalues[i+1:], vm.openUpvalues[i:])
	vm.openUpvalues[i] = ref
	return ref
}

// closeUpvalues closes every open cell whose slot is at or above from,
// copying the live stack value into the cell.
func (vm *VM) closeUpvalues(from int) {
	n := len(vm.openUpvalues)
	for n > 0 {
		uv := vm.heap.Upvalue(vm.openUpvalues[n-1])
		if uv.Slot < from {
			break
		}
		uv.Value = vm.stack[uv.Slot]
		uv.Closed = true
		n--
	}
	vm.openUpvalues = vm.openUpvalues[:n]
}

func (vm *VM) upvalueGet(ref value.Ref) value.Value {
	uv := vm.heap.Upvalue(ref)
	if uv.Closed {
		return uv.Value
	}
	return vm.stack[uv.Slot]
}

func (vm *VM) upvalueSet(ref value.Ref, v value.Value) {
	uv := vm.heap.Upvalue(ref)
	if uv.Closed {
		uv.Value = v
		return
	}
	vm.stack[uv.Slot] = v
}
