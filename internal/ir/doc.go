// Package ir provides the serialized value representation for orbit.
//
// Every cell value, resource sample and activity argument crosses package
// and process boundaries as an ir.Value: a sealed, self-describing union of
// Null, Real, Int, Bool, String, List and Map. ValueSchema (Schema) describes
// which values a resource or parameter may take, and the schema-directed
// codec converts between plain Go values and ir.Value.
//
// Key design constraints:
//   - ir imports no other internal package except duration (a leaf)
//   - Int and Real stay distinct through JSON (reals always carry a
//     fraction or exponent on the wire)
//   - Map keys iterate in RFC 8785 order via SortedKeys
//   - Content hashes use canonical JSON with domain separation
package ir
