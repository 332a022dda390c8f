// Package sanitize provides the string normalizers metaboxes rely on: Slug for
// identifiers and storage keys, Text and Textarea for submitted values, and
// HTML for trusted fragments. Markup handling is delegated to bluemonday
// policies that are built once and shared.
package sanitize
