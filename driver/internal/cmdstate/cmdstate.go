// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package cmdstate implements the command buffer state
// machine shared by backends.
//
//	Initial --Begin--> Recording --End--> Executable
//	   ^                                     |
//	   +----Reset---- Pending <---Submit-----+
//
// Invalid transitions and recording commands issued
// outside the Recording state panic.
package cmdstate

import (
	"github.com/gviegas/rhi/driver"
)

// Machine tracks the state of one command buffer.
// Prefix is prepended to panic messages (e.g., "vk").
// The zero value is in the Initial state.
type Machine struct {
	Prefix string
	st     driver.CmdState
	inPass bool
	bound  bool
}

// State returns the current state.
func (m *Machine) State() driver.CmdState { return m.st }

// InPass returns whether a render pass is open.
func (m *Machine) InPass() bool { return m.inPass }

func (m *Machine) fail(op, why string) {
	panic(m.Prefix + ": " + op + ": " + why + " (state " + m.st.String() + ")")
}

// Begin transitions from Initial to Recording.
func (m *Machine) Begin() {
	if m.st != driver.CmdInitial {
		m.fail("Begin", "command buffer not in initial state")
	}
	m.st = driver.CmdRecording
	m.inPass = false
	m.bound = false
}

// End transitions from Recording to Executable.
func (m *Machine) End() {
	m.Record("End")
	if m.inPass {
		m.fail("End", "render pass not ended")
	}
	m.st = driver.CmdExecutable
}

// Submit transitions from Executable to Pending.
func (m *Machine) Submit() {
	if m.st != driver.CmdExecutable {
		m.fail("Submit", "command buffer not executable")
	}
	m.st = driver.CmdPending
}

// Reset transitions to Initial from any state.
// The caller must ensure that a Pending command buffer
// has completed execution.
func (m *Machine) Reset() {
	m.st = driver.CmdInitial
	m.inPass = false
	m.bound = false
}

// Record checks that op can be recorded.
func (m *Machine) Record(op string) {
	if m.st != driver.CmdRecording {
		m.fail(op, "command buffer not recording")
	}
}

// Outside checks that op can be recorded outside of a
// render pass (copies, barriers, dispatches).
func (m *Machine) Outside(op string) {
	m.Record(op)
	if m.inPass {
		m.fail(op, "not allowed inside a render pass")
	}
}

// Inside checks that op can be recorded inside a render
// pass (draws).
func (m *Machine) Inside(op string) {
	m.Record(op)
	if !m.inPass {
		m.fail(op, "requires a render pass")
	}
}

// BeginPass opens a render pass.
func (m *Machine) BeginPass() {
	m.Outside("BeginPass")
	m.inPass = true
}

// EndPass closes the current render pass.
func (m *Machine) EndPass() {
	m.Inside("EndPass")
	m.inPass = false
}

// Bind records that a pipeline was set.
func (m *Machine) Bind() {
	m.Record("SetPipeline")
	m.bound = true
}

// Bound checks that a pipeline was set before op.
func (m *Machine) Bound(op string) {
	if !m.bound {
		m.fail(op, "no pipeline set")
	}
}
