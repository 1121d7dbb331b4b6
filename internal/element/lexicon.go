package element

// Keywords maps each element to the words that indicate its register.
var Keywords = map[Element][]string{
	Fire: {
		"stuck", "passion", "create", "destroy", "change", "transform",
		"energy", "motivation", "burn", "ignite",
	},
	Water: {
		"feel", "emotion", "intuition", "dream", "heal", "flow", "release",
		"cleanse", "tears", "grief", "love", "connect", "empathy", "sensitive",
	},
	Earth: {
		"ground", "stable", "practical", "manifest", "build", "body",
		"routine", "structure", "money", "work", "home",
	},
	Air: {
		"think", "thought", "idea", "communicate", "speak", "understand",
		"perspective", "clarity", "learn", "plan",
	},
	Aether: {
		"unity", "oneness", "void", "emptiness", "integration", "spirit",
		"meaning", "purpose", "transcend", "soul",
	},
}

// Archetypes lists the archetypal figures associated with each element.
var Archetypes = map[Element][]string{
	Fire:   {"Warrior", "Creator", "Destroyer", "Catalyst"},
	Water:  {"Healer", "Mystic", "Empath", "Shapeshifter"},
	Earth:  {"Builder", "Guardian", "Provider", "Anchor"},
	Air:    {"Messenger", "Scholar", "Visionary", "Wanderer"},
	Aether: {"Oracle", "Void-Walker", "Integrator", "Transcendent"},
}

// Symbols holds the primary symbol for each element.
var Symbols = map[Element]string{
	Fire:   "phoenix",
	Water:  "ocean",
	Earth:  "mountain",
	Air:    "wind",
	Aether: "void",
}

var index = buildIndex()

func buildIndex() map[string]Element {
	idx := make(map[string]Element)
	for _, e := range All {
		for _, w := range Keywords[e] {
			idx[w] = e
		}
	}
	return idx
}

// Lookup returns the element a single lower-case token belongs to.
// Simple plural and verb suffixes are stripped before giving up.
func Lookup(token string) (Element, bool) {
	if e, ok := index[token]; ok {
		return e, true
	}
	for _, suffix := range []string{"ing", "ed", "s"} {
		if n := len(token) - len(suffix); n > 2 && token[n:] == suffix {
			if e, ok := index[token[:n]]; ok {
				return e, true
			}
		}
	}
	return Unknown, false
}

// Archetype returns the primary archetype for e, or "" for Unknown.
func Archetype(e Element) string {
	if a := Archetypes[e]; len(a) > 0 {
		return a[0]
	}
	return ""
}

// SymbolMeanings gives the themes carried by each element's symbol.
var SymbolMeanings = map[Element][]string{
	Fire:   {"rebirth", "transformation"},
	Water:  {"emotions", "unconscious"},
	Earth:  {"stability", "challenge"},
	Air:    {"change", "communication"},
	Aether: {"potential", "mystery"},
}
