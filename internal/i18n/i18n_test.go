package i18n

import (
	"testing"

	"devicemonitor/internal/ha"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func loadCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Load()
	require.NoError(t, err)
	return c
}

func TestLoad(t *testing.T) {
	c := loadCatalog(t)

	langs := c.Languages()
	require.Len(t, langs, 3)
	assert.Equal(t, language.English, langs[0])
	assert.Contains(t, langs, language.German)
	assert.Contains(t, langs, language.French)
}

func TestCatalogsHaveTheSameKeys(t *testing.T) {
	c := loadCatalog(t)
	en := c.messages[language.English]

	for _, tag := range c.Languages() {
		for key := range en {
			_, ok := c.messages[tag][key]
			assert.True(t, ok, "%s is missing %s", tag, key)
		}
	}
}

func TestTranslator_Matching(t *testing.T) {
	c := loadCatalog(t)

	testCases := []struct {
		lang string
		want language.Tag
	}{
		{"en", language.English},
		{"de", language.German},
		{"de-CH", language.German},
		{"fr-CA", language.French},
		{"ja", language.English},
		{"", language.English},
		{"not a language", language.English},
	}

	for _, tc := range testCases {
		t.Run(tc.lang, func(t *testing.T) {
			assert.Equal(t, tc.want, c.Translator(tc.lang).Language())
		})
	}
}

func TestTranslator_Text(t *testing.T) {
	c := loadCatalog(t)

	assert.Equal(t, "Battery Monitor", c.Translator("en").Text("battery.title", "x"))
	assert.Equal(t, "Batterieüberwachung", c.Translator("de").Text("battery.title", "x"))
	assert.Equal(t, "Lumières", c.Translator("fr").Text("light.title", "x"))
	assert.Equal(t, "fallback", c.Translator("de").Text("no.such.key", "fallback"))
}

func TestTranslator_FormatState(t *testing.T) {
	en := loadCatalog(t).Translator("en")
	de := loadCatalog(t).Translator("de")

	door := map[string]interface{}{"device_class": "door"}

	testCases := []struct {
		name string
		tr   *Translator
		st   *ha.State
		want string
	}{
		{"door open", en, &ha.State{EntityID: "binary_sensor.front", State: "on", Attributes: door}, "Open"},
		{"door closed de", de, &ha.State{EntityID: "binary_sensor.front", State: "off", Attributes: door}, "Geschlossen"},
		{"jammed lock", de, &ha.State{EntityID: "lock.front", State: "jammed"}, "Blockiert"},
		{"light on", en, &ha.State{EntityID: "light.kitchen", State: "on"}, "On"},
		{"battery low by id", en, &ha.State{EntityID: "binary_sensor.x_battery_low", State: "on"}, "Low"},
		{"unavailable", de, &ha.State{EntityID: "sensor.x_battery", State: "unavailable"}, "Nicht verfügbar"},
		{"numeric sensor", en, &ha.State{EntityID: "sensor.x_battery", State: "45"}, ""},
		{"binary sensor without class", en, &ha.State{EntityID: "binary_sensor.motion", State: "on"}, ""},
		{"nil", en, nil, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.tr.FormatState(tc.st))
		})
	}
}
