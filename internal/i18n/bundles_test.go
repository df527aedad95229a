package i18n

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedBundlesLoad(t *testing.T) {
	b, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "fr", b.Get(French)["lang"])
	assert.Equal(t, "en", b.Get(English)["lang"])
	assert.Equal(t, "default", b.Get(Default)["lang"])
	assert.Equal(t, "default", b.Get("de")["lang"])
}

func TestNegotiate(t *testing.T) {
	b, err := Load()
	require.NoError(t, err)

	cases := map[string]string{
		"":                          French,
		"fr-FR,fr;q=0.9":            French,
		"en-US,en;q=0.8":            English,
		"de-DE,en;q=0.5":            English,
		"ja":                        Default,
		"en;q=0.4,fr;q=0.9":         French,
	}
	for header, want := range cases {
		assert.Equal(t, want, b.Negotiate(header), "header %q", header)
	}
}

func TestByName(t *testing.T) {
	assert.Equal(t, French, ByName("français"))
	assert.Equal(t, English, ByName("english"))
	assert.Equal(t, Default, ByName("klingon"))
	assert.Equal(t, Default, ByName(""))
}

func TestLoadFSReportsBrokenBundle(t *testing.T) {
	fsys := fstest.MapFS{
		"messages/messages.json":    {Data: []byte(`{}`)},
		"messages/messages_fr.json": {Data: []byte(`{`)},
		"messages/messages_en.json": {Data: []byte(`{}`)},
	}
	_, err := LoadFS(fsys)
	assert.Error(t, err)
}
