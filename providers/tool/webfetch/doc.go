// Package webfetch provides a tool that reads a web page and hands it to the
// model as Markdown, using html-to-markdown for the conversion.
package webfetch
