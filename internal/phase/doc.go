// Package phase names the two sync jobs shuttle drives and the fixed ordering
// between them.
package phase
