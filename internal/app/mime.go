package app

import (
	"log"
	"mime"
)

// staticTypes are the content types of the embedded assets. Minimal
// containers often ship without /etc/mime.types.
var staticTypes = map[string]string{
	".css":  "text/css; charset=utf-8",
	".js":   "text/javascript; charset=utf-8",
	".json": "application/json",
	".svg":  "image/svg+xml",
}

func init() {
	for ext, typ := range staticTypes {
		ensureMimeType(ext, typ)
	}
}

func ensureMimeType(ext, typ string) {
	if mime.TypeByExtension(ext) != "" {
		return
	}
	if err := mime.AddExtensionType(ext, typ); err != nil {
		log.Printf("app: failed to register MIME type for %s: %v", ext, err)
	}
}
