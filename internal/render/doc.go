// Package render turns assistant markdown into output for a host.
//
// HTML renders with goldmark, with raw HTML suppressed and links opening in
// a new tab. Terminal walks the goldmark AST and writes indented plain text,
// optionally colored with the theme's primary color for links and quotes.
package render
