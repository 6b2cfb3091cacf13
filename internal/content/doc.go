// Package content provides the value model for replicated document bodies.
//
// A document body is a tree of Value nodes. The package imports nothing
// internal so every other package can depend on it.
//
// Shape:
//   - Map and List are the only containers
//   - Text is opaque rich text; it is a leaf that traversal never enters
//   - Map keys iterate in RFC 8785 order via SortedKeys
package content
