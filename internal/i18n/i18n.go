// Package i18n provides the translated strings of the card and badge and a
// formatter for entity states. Catalogs are embedded YAML files, one per
// language, loaded once at startup.
package i18n

import (
	"embed"
	"fmt"
	"path"
	"strings"

	"devicemonitor/internal/ha"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var locales embed.FS

// Catalog holds the messages of every embedded language
type Catalog struct {
	tags     []language.Tag
	messages map[language.Tag]map[string]string
	matcher  language.Matcher
}

// Load parses every embedded catalog. English is always the fallback language.
func Load() (*Catalog, error) {
	files, err := locales.ReadDir("locales")
	if err != nil {
		return nil, fmt.Errorf("failed to list locales: %w", err)
	}

	c := &Catalog{
		tags:     []language.Tag{language.English},
		messages: make(map[language.Tag]map[string]string),
	}

	for _, f := range files {
		name := strings.TrimSuffix(f.Name(), path.Ext(f.Name()))
		tag, err := language.Parse(name)
		if err != nil {
			return nil, fmt.Errorf("invalid locale file %s: %w", f.Name(), err)
		}

		data, err := locales.ReadFile("locales/" + f.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read locale %s: %w", name, err)
		}

		messages, err := parseMessages(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse locale %s: %w", name, err)
		}

		c.messages[tag] = messages
		if tag != language.English {
			c.tags = append(c.tags, tag)
		}
	}

	if _, ok := c.messages[language.English]; !ok {
		return nil, fmt.Errorf("missing English catalog")
	}

	c.matcher = language.NewMatcher(c.tags)
	return c, nil
}

// parseMessages flattens a nested YAML document into dotted keys
func parseMessages(data []byte) (map[string]string, error) {
	var doc map[string]interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	messages := make(map[string]string)
	var walk func(prefix string, node map[string]interface{})
	walk = func(prefix string, node map[string]interface{}) {
		for k, v := range node {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			switch val := v.(type) {
			case map[string]interface{}:
				walk(key, val)
			case string:
				messages[key] = val
			default:
				messages[key] = fmt.Sprint(val)
			}
		}
	}
	walk("", doc)
	return messages, nil
}

// Languages returns the available languages, English first
func (c *Catalog) Languages() []language.Tag {
	return c.tags
}

// Translator returns the translator for the closest available language.
// Unparsable or unsupported languages get English.
func (c *Catalog) Translator(lang string) *Translator {
	tag := language.English
	if desired, err := language.Parse(lang); err == nil {
		_, index, confidence := c.matcher.Match(desired)
		if confidence != language.No {
			tag = c.tags[index]
		}
	}

	return &Translator{
		tag:      tag,
		messages: c.messages[tag],
		fallback: c.messages[language.English],
	}
}

// Translator resolves messages for one language
type Translator struct {
	tag      language.Tag
	messages map[string]string
	fallback map[string]string
}

// Language returns the translator's language
func (t *Translator) Language() language.Tag {
	return t.tag
}

// Text returns the message for key, the English message when the language
// lacks it, or fallback
func (t *Translator) Text(key, fallback string) string {
	if msg, ok := t.messages[key]; ok {
		return msg
	}
	if msg, ok := t.fallback[key]; ok {
		return msg
	}
	return fallback
}

// FormatState returns the localized display of an entity state, or "" when
// the state has no translation (numeric sensor readings, for one).
func (t *Translator) FormatState(state *ha.State) string {
	if state == nil {
		return ""
	}

	switch state.State {
	case "unavailable", "unknown":
		return t.Text("state."+state.State, "")
	}

	switch state.Domain() {
	case "lock":
		return t.Text("lock."+state.State, "")
	case "light":
		return t.Text("light_state."+state.State, "")
	case "binary_sensor":
		deviceClass := state.StringAttribute("device_class")
		if deviceClass == "" && strings.HasSuffix(state.EntityID, "_battery_low") {
			deviceClass = "battery"
		}
		if deviceClass == "" {
			return ""
		}
		return t.Text("binary_sensor."+deviceClass+"."+state.State, "")
	}
	return ""
}
