// Package dispatch implements the kindred method-resolution and
// type-coercion engine.
//
// This package contains:
//   - Tag-chain value typing (TypeTag, TypeChain)
//   - Registry-based single dispatch with explicit delegation
//   - Double-dispatch type unification with hierarchy fallback
//   - Directional value conversion (casts)
//   - Column-wise reconciliation of structured records
package dispatch
