// Package web embeds the browser render layer.
package web

import _ "embed"

//go:embed index.html
var IndexHTML []byte
