// Package hostbridge compiles statically typed class definitions into a
// representation that can cross the boundary into a dynamic,
// prototype-based host and back.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	hostbridge/
//	├── typegraph/       Type and member model of a program
//	├── program/         YAML/TOML program descriptions
//	├── classify/        Instance-state inference and validation
//	├── construct/       Importing constructor matching
//	├── marshal/         Per-type import/export strategies and key minting
//	├── dispatch/        Virtual slot naming and binding plans
//	├── runtime/         Phased type loader, type records and native objects
//	├── host/            Model of the dynamic host's values
//	├── manifest/        Minimal-load manifests (CBOR)
//	├── session/         Setup pass and runtime emission
//	├── lazy/            Run-once cells used by the caches
//	├── errors/          Structured error types for diagnostics
//	└── cmd/hostbridge/  Command line driver
//
// # Quick Start
//
// Classify a program and emit its runtime:
//
//	prog, err := program.LoadFile("program.yaml")
//	if err != nil {
//	    return err
//	}
//	s := session.New(prog, session.DefaultOptions())
//	plan, err := s.Setup()
//	if err != nil {
//	    return err // *errors.SetupError lists every rejected definition
//	}
//	rt, err := s.Emit(plan, bodies)
//	if err != nil {
//	    return err
//	}
//	v, err := rt.Export("Point", obj)
//
// # Instance States
//
// Every class is NativeOnly, Shared, HostOnly or Merged. Shared instances
// are paired with one host object through an identity key. HostOnly
// instances are wrapped freshly on every import. Merged types have no native
// instance at all and every member call goes to the host value.
//
// # Loading
//
// Type records advance through Id, Shape and Constructed. Each phase is
// reached at most once and static initializers run exactly once. In
// collect-only mode the loader records what a run requested into a
// manifest that a later run can preload.
package hostbridge
