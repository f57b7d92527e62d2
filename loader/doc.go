// Package loader reads declarative rule definitions from JSON files and
// materializes them into facts and rules.
//
// A definition names facts by string; the loader allocates a registry slot
// for each distinct name in order of first appearance, so the same fact name
// used across rules and files resolves to the same bit. Files may hold a
// single definition object or an array of them.
package loader
