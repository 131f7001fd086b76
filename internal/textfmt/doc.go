// Package textfmt renders printer states and reports as chat text.
//
// Reports use the HTML subset chat clients understand (<b> only); any value
// that comes from the device is escaped.
package textfmt
