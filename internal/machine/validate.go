package machine

import (
	"errors"
	"fmt"
	"slices"
)

// ValidateModule checks the CFG invariants of every function.
func ValidateModule(m *Module) error {
	if m == nil {
		return nil
	}
	var errs []error
	for _, f := range m.Funcs {
		if f == nil {
			continue
		}
		if err := Validate(f); err != nil {
			errs = append(errs, fmt.Errorf("function %s: %w", f.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Validate checks the invariants the lowering stage guarantees:
// block IDs match layout, branch targets exist, terminators only end
// blocks, control never falls off the end of the function, and predecessor
// lists are exactly the inverse of the successor edges.
func Validate(f *Func) error {
	if f == nil {
		return nil
	}

	var errs []error

	// 1. Entry and block identities
	if err := validateLayout(f); err != nil {
		errs = append(errs, err)
	}

	// 2. Branch targets and terminator placement
	if err := validateTerminators(f); err != nil {
		errs = append(errs, err)
	}

	// 3. Predecessor/successor consistency
	if err := validatePreds(f); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func validateLayout(f *Func) error {
	var errs []error
	if len(f.Blocks) > 0 && !f.Valid(f.Entry) {
		errs = append(errs, fmt.Errorf("entry bb%d does not exist", f.Entry))
	}
	for i := range f.Blocks {
		if int(f.Blocks[i].ID) != i {
			errs = append(errs, fmt.Errorf("bb%d: stored id is %d", i, f.Blocks[i].ID))
		}
	}
	return errors.Join(errs...)
}

func validateTerminators(f *Func) error {
	var errs []error
	for i := range f.Blocks {
		bb := &f.Blocks[i]
		for j := range bb.Instrs {
			in := &bb.Instrs[j]
			if in.IsTerminator() && j != len(bb.Instrs)-1 {
				errs = append(errs, fmt.Errorf("%s: %s is not the last instruction", bb.Label(), in.Mnemonic()))
			}
			if !in.IsUnconditionalBranch() && !in.IsConditionalBranch() {
				continue
			}
			t, ok := in.Target()
			switch {
			case !ok:
				errs = append(errs, fmt.Errorf("%s: %s has no target", bb.Label(), in.Mnemonic()))
			case !f.Valid(t):
				errs = append(errs, fmt.Errorf("%s: %s target bb%d does not exist", bb.Label(), in.Mnemonic(), t))
			}
		}
		if i == len(f.Blocks)-1 {
			if last := bb.Back(); last == nil || !last.EndsFlow() {
				errs = append(errs, fmt.Errorf("%s: control falls off the end of the function", bb.Label()))
			}
		}
	}
	return errors.Join(errs...)
}

func validatePreds(f *Func) error {
	var errs []error
	want := make([][]BlockID, len(f.Blocks))
	for i := range f.Blocks {
		from := f.Blocks[i].ID
		for _, to := range f.Successors(from) {
			want[to] = append(want[to], from)
		}
	}
	for i := range f.Blocks {
		bb := &f.Blocks[i]
		for _, p := range want[i] {
			if !bb.HasPred(p) {
				errs = append(errs, fmt.Errorf("%s: missing predecessor bb%d", bb.Label(), p))
			}
		}
		for _, p := range bb.Preds {
			if !slices.Contains(want[i], p) {
				errs = append(errs, fmt.Errorf("%s: bb%d is not a predecessor", bb.Label(), p))
			}
		}
	}
	return errors.Join(errs...)
}
