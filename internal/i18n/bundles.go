// Package i18n serves the localized message bundles used by the dashboard.
package i18n

import (
	"encoding/json"
	"fmt"
	"io/fs"

	"golang.org/x/text/language"

	"github.com/otp-manager/otp-manager/web"
)

// Bundle names.
const (
	Default = "default"
	French  = "fr"
	English = "en"
)

// offered lists the negotiable bundles in preference order.
var offered = []language.Tag{language.French, language.English}

var offeredNames = []string{French, English}

// Bundles holds the decoded message bundles.
type Bundles struct {
	bundles map[string]map[string]any
	matcher language.Matcher
}

// Load decodes the embedded bundles.
func Load() (*Bundles, error) {
	return LoadFS(web.Messages)
}

// LoadFS decodes messages.json, messages_fr.json and messages_en.json from fsys.
func LoadFS(fsys fs.FS) (*Bundles, error) {
	files := map[string]string{
		Default: "messages/messages.json",
		French:  "messages/messages_fr.json",
		English: "messages/messages_en.json",
	}
	b := &Bundles{bundles: make(map[string]map[string]any, len(files)), matcher: language.NewMatcher(offered)}
	for name, file := range files {
		raw, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("i18n: read %s: %w", file, err)
		}
		var messages map[string]any
		if err := json.Unmarshal(raw, &messages); err != nil {
			return nil, fmt.Errorf("i18n: decode %s: %w", file, err)
		}
		b.bundles[name] = messages
	}
	return b, nil
}

// Get returns the named bundle, falling back to the default one.
func (b *Bundles) Get(name string) map[string]any {
	if messages, ok := b.bundles[name]; ok {
		return messages
	}
	return b.bundles[Default]
}

// Negotiate picks a bundle name from an Accept-Language header. A missing
// header accepts anything and yields the first offered language; a header
// matching none of them yields the default bundle.
func (b *Bundles) Negotiate(acceptLanguage string) string {
	if acceptLanguage == "" {
		return offeredNames[0]
	}
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return Default
	}
	_, index, confidence := b.matcher.Match(tags...)
	if confidence == language.No {
		return Default
	}
	return offeredNames[index]
}

// ByName maps the language names used by the dashboard selector.
func ByName(name string) string {
	switch name {
	case "français":
		return French
	case "english":
		return English
	default:
		return Default
	}
}
