package machine

import (
	"fmt"
	"strconv"
	"strings"
)

// Reg is a RISC-V integer register, x0..x31.
type Reg uint8

// NumRegs is the number of integer registers.
const NumRegs = 32

const (
	// X0 is hard-wired to zero.
	X0 Reg = 0
	RA Reg = 1
	SP Reg = 2
	GP Reg = 3
	TP Reg = 4
	T0 Reg = 5
	T1 Reg = 6
	T2 Reg = 7
	S0 Reg = 8
	S1 Reg = 9
	A0 Reg = 10
	A1 Reg = 11
	A2 Reg = 12
	A3 Reg = 13
	A4 Reg = 14
	A5 Reg = 15
	A6 Reg = 16
	A7 Reg = 17
)

var abiNames = [NumRegs]string{
	"zero", "ra", "sp", "gp", "tp", "t0", "t1", "t2",
	"s0", "s1", "a0", "a1", "a2", "a3", "a4", "a5",
	"a6", "a7", "s2", "s3", "s4", "s5", "s6", "s7",
	"s8", "s9", "s10", "s11", "t3", "t4", "t5", "t6",
}

var regByName = func() map[string]Reg {
	m := make(map[string]Reg, 2*NumRegs+1)
	for i, name := range abiNames {
		m[name] = Reg(i)
		m["x"+strconv.Itoa(i)] = Reg(i)
	}
	m["fp"] = S0
	return m
}()

// String returns the ABI name of the register.
func (r Reg) String() string {
	if int(r) < len(abiNames) {
		return abiNames[r]
	}
	return fmt.Sprintf("x?%d", uint8(r))
}

// ParseReg resolves an ABI name ("a0") or architectural name ("x10").
func ParseReg(name string) (Reg, bool) {
	r, ok := regByName[strings.ToLower(strings.TrimSpace(name))]
	return r, ok
}
