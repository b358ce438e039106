package httpapi

import "embed"

//go:embed static
var embedded embed.FS
